package sandbox

import (
	"context"
	"encoding/json"
	"errors"
)

// FlagNetwork grants a unit the host fetch capability.
const FlagNetwork = "network"

// Recipe is everything a provider needs to build one execution unit. It
// holds source text and non-secret settings only.
type Recipe struct {
	// MainModule names the entry module in Modules.
	MainModule string
	// Modules maps module names to source. Names ending in ".json" are data
	// modules the main module loads with require().
	Modules            map[string]string
	CompatibilityDate  string
	CompatibilityFlags []string
}

// HasFlag reports whether flag is among the recipe's compatibility flags.
func (r Recipe) HasFlag(flag string) bool {
	for _, f := range r.CompatibilityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Outcome is what a unit's entry operation returned.
type Outcome struct {
	// Result is the JSON encoding of the script's value when OK is true.
	Result json.RawMessage
	OK     bool
	// ErrorName is the JS error's name, e.g. "TypeError" or "UpstreamError".
	ErrorName string
	Error     string
	Trace     string
}

// Provider creates isolated, single-use execution units.
type Provider interface {
	Create(ctx context.Context, id string, recipe Recipe) (Handle, error)
}

// Handle is a provisioned unit exposing one entry operation.
type Handle interface {
	ID() string
	// Invoke calls the unit's entry operation with args passed as call-time
	// data. A non-nil error means the call itself failed, not the script.
	Invoke(ctx context.Context, args ...any) (*Outcome, error)
}

// ErrUnsettled is returned when the entry operation's promise never settles.
var ErrUnsettled = errors.New("script did not settle")

// SyntaxError reports a script that could not be parsed or compiled.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string {
	return e.Message
}
