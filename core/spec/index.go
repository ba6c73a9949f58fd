package spec

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Verbs lists the HTTP methods recognised in a path item, in catalog order.
var Verbs = []string{"get", "put", "post", "delete", "patch", "head", "options", "trace"}

// ResolvedSpec is the self-contained API description served to scripts.
type ResolvedSpec struct {
	Paths map[string]PathItem `json:"paths"`
}

// PathItem maps a lowercase verb to its operation.
type PathItem map[string]*Operation

// Operation is one inlined OpenAPI operation.
type Operation struct {
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	OperationID string         `json:"operationId,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Parameters  []any          `json:"parameters,omitempty"`
	RequestBody any            `json:"requestBody,omitempty"`
	Responses   map[string]any `json:"responses,omitempty"`
}

// Index holds a ResolvedSpec together with its canonical JSON encoding.
type Index struct {
	spec   *ResolvedSpec
	source string
}

// NewIndex wraps spec. The spec must not be modified afterwards.
func NewIndex(spec *ResolvedSpec) (*Index, error) {
	if spec == nil || spec.Paths == nil {
		return nil, fmt.Errorf("resolved spec has no paths")
	}
	encoded, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resolved spec: %w", err)
	}
	return &Index{spec: spec, source: string(encoded)}, nil
}

// Load reads an artifact written by the build command.
func Load(path string) (*Index, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading spec artifact: %w", err)
	}
	var resolved ResolvedSpec
	if err := json.Unmarshal(content, &resolved); err != nil {
		return nil, fmt.Errorf("invalid spec artifact %s: %w", path, err)
	}
	return NewIndex(&resolved)
}

// Get returns the shared, read-only spec.
func (i *Index) Get() *ResolvedSpec {
	return i.spec
}

// Source returns the canonical JSON encoding of the spec.
func (i *Index) Source() string {
	return i.source
}

var (
	defaultOnce  sync.Once
	defaultIndex *Index
	defaultErr   error
)

// Init loads the process-wide index once. Later calls return the first
// outcome regardless of path.
func Init(path string) (*Index, error) {
	defaultOnce.Do(func() {
		defaultIndex, defaultErr = Load(path)
	})
	return defaultIndex, defaultErr
}
