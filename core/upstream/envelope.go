package upstream

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	apperrors "github.com/hyperterse/codemode/core/shared/errors"
)

// Message is one entry of an envelope's errors or messages list.
type Message struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
}

// ResultInfo carries pagination details for list endpoints.
type ResultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// Envelope is the remote API's JSON wrapper. Exactly one of Success or
// Failure is set.
type Envelope struct {
	Success *Success
	Failure *Failure
}

type Success struct {
	Result     json.RawMessage
	Messages   []any
	ResultInfo *ResultInfo
}

type Failure struct {
	Errors []Message
}

type wireEnvelope struct {
	Success    *bool           `json:"success"`
	Result     json.RawMessage `json:"result"`
	Errors     []Message       `json:"errors"`
	Messages   []any           `json:"messages"`
	ResultInfo *ResultInfo     `json:"result_info,omitempty"`
}

// IsJSON reports whether a Content-Type header denotes a JSON body.
func IsJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// DecodeEnvelope decodes body as an envelope. Anything that is not a JSON
// object carrying a boolean "success" is an upstream error.
func DecodeEnvelope(apiName, contentType string, body []byte) (*Envelope, error) {
	if !IsJSON(contentType) {
		return nil, apperrors.NewUpstreamError(fmt.Sprintf("%s API returned unexpected content type %q", apiName, contentType))
	}
	var wire wireEnvelope
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrCodeUpstream,
			fmt.Sprintf("%s API returned a malformed response", apiName), err)
	}
	if wire.Success == nil {
		return nil, apperrors.NewUpstreamError(fmt.Sprintf("%s API returned a response without a success flag", apiName))
	}
	if !*wire.Success {
		return &Envelope{Failure: &Failure{Errors: wire.Errors}}, nil
	}
	return &Envelope{Success: &Success{
		Result:     wire.Result,
		Messages:   wire.Messages,
		ResultInfo: wire.ResultInfo,
	}}, nil
}

// Err returns the upstream error for a failed envelope, or nil.
func (e *Envelope) Err(apiName string) error {
	if e.Failure == nil {
		return nil
	}
	return apperrors.NewUpstreamError(fmt.Sprintf("%s API error: %s", apiName, FormatErrors(e.Failure.Errors)))
}

// FormatErrors renders errors as "code: message" pairs joined by ", ".
func FormatErrors(errors []Message) string {
	if len(errors) == 0 {
		return "unknown error"
	}
	parts := make([]string, 0, len(errors))
	for _, e := range errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	return strings.Join(parts, ", ")
}
