package truncate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

const (
	// MaxTokens is the token budget for one tool response.
	MaxTokens = 6000
	// CharsPerToken is the average characters per token used for estimates.
	CharsPerToken = 4
	// MaxChars is the character budget derived from the two above.
	MaxChars = MaxTokens * CharsPerToken
)

// Truncate renders value as text and cuts it to MaxChars characters,
// appending a marker that reports the original size. It never fails.
func Truncate(value any) string {
	text, _ := Apply(value)
	return text
}

// Apply is Truncate that also reports whether the text was cut.
func Apply(value any) (string, bool) {
	text := Serialize(value)
	length := utf8.RuneCountInString(text)
	if length <= MaxChars {
		return text, false
	}

	estimate := (length + CharsPerToken - 1) / CharsPerToken
	var sb strings.Builder
	sb.WriteString(prefixRunes(text, MaxChars))
	sb.WriteString("\n\n--- TRUNCATED ---\n")
	sb.WriteString(fmt.Sprintf("Response was ~%s tokens (limit: %s). Use more specific queries to reduce response size.",
		humanize.Comma(int64(estimate)), humanize.Comma(MaxTokens)))
	return sb.String(), true
}

// Serialize passes strings through and renders other values as indented JSON.
func Serialize(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		var buf bytes.Buffer
		if err := json.Indent(&buf, v, "", "  "); err == nil {
			return buf.String()
		}
		return string(v)
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		return fmt.Sprintf("%v", value)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func prefixRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
