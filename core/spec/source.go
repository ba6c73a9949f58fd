package spec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperterse/codemode/core/logger"
	"github.com/pb33f/libopenapi"
	"gopkg.in/yaml.v3"
)

// Fetch reads the schema document from an http(s) URL or a local file.
func Fetch(ctx context.Context, client *http.Client, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		content, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("error reading schema file: %w", err)
		}
		return content, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch schema: %s returned %d", source, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Validate rejects documents that libopenapi does not recognise as OpenAPI 3.x.
func Validate(content []byte) error {
	doc, err := libopenapi.NewDocument(content)
	if err != nil {
		return fmt.Errorf("not an OpenAPI document: %w", err)
	}
	info := doc.GetSpecInfo()
	if info == nil || !strings.HasPrefix(info.Version, "3.") {
		version := ""
		if info != nil {
			version = info.Version
		}
		return fmt.Errorf("unsupported OpenAPI version %q: expected 3.x", version)
	}
	return nil
}

// Parse decodes a JSON or YAML document into plain maps and slices.
func Parse(content []byte) (any, error) {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var doc any
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON schema document: %w", err)
		}
		return doc, nil
	}

	var doc any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML schema document: %w", err)
	}
	return normalizeYAML(doc), nil
}

// normalizeYAML converts non-string mapping keys (e.g. response codes parsed
// as integers) into strings so the tree matches the JSON shape.
func normalizeYAML(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[key] = normalizeYAML(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			out[fmt.Sprint(key)] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = normalizeYAML(child)
		}
		return out
	default:
		return v
	}
}

// FromDocument resolves the references reachable from each path item of doc
// and extracts its operations.
func FromDocument(doc any) (*ResolvedSpec, error) {
	root, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema document must be an object, got %T", doc)
	}
	rawPaths, ok := root["paths"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema document has no paths object")
	}

	out := &ResolvedSpec{Paths: make(map[string]PathItem, len(rawPaths))}
	for path, rawItem := range rawPaths {
		resolved, err := ResolveNode(doc, rawItem)
		if err != nil {
			return nil, fmt.Errorf("path %s: %w", path, err)
		}
		item, ok := resolved.(map[string]any)
		if !ok {
			continue
		}
		shared, _ := item["parameters"].([]any)

		pathItem := PathItem{}
		for _, verb := range Verbs {
			rawOp, ok := item[verb].(map[string]any)
			if !ok {
				continue
			}
			pathItem[verb] = toOperation(rawOp, shared)
		}
		if len(pathItem) > 0 {
			out.Paths[path] = pathItem
		}
	}
	return out, nil
}

func toOperation(raw map[string]any, shared []any) *Operation {
	op := &Operation{
		Summary:     stringField(raw, "summary"),
		Description: stringField(raw, "description"),
		OperationID: stringField(raw, "operationId"),
		RequestBody: raw["requestBody"],
	}
	if tags, ok := raw["tags"].([]any); ok {
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				op.Tags = append(op.Tags, s)
			}
		}
	}
	if responses, ok := raw["responses"].(map[string]any); ok {
		op.Responses = responses
	}
	own, _ := raw["parameters"].([]any)
	op.Parameters = mergeParameters(shared, own)
	return op
}

// mergeParameters appends path-level parameters not overridden by an
// operation-level parameter with the same name and location.
func mergeParameters(shared, own []any) []any {
	if len(shared) == 0 {
		return own
	}
	seen := make(map[string]struct{}, len(own))
	for _, param := range own {
		seen[parameterKey(param)] = struct{}{}
	}
	merged := append([]any{}, own...)
	for _, param := range shared {
		key := parameterKey(param)
		if _, exists := seen[key]; exists && key != "" {
			continue
		}
		merged = append(merged, param)
	}
	return merged
}

func parameterKey(param any) string {
	m, ok := param.(map[string]any)
	if !ok {
		return ""
	}
	name := stringField(m, "name")
	if name == "" {
		return ""
	}
	return stringField(m, "in") + ":" + name
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Build fetches, validates, parses and resolves the schema at source.
func Build(ctx context.Context, client *http.Client, source string) (*ResolvedSpec, error) {
	log := logger.New("spec")

	content, err := Fetch(ctx, client, source)
	if err != nil {
		return nil, log.Errorf("%w", err)
	}
	log.Debugf("Fetched %d bytes from %s", len(content), source)

	if err := Validate(content); err != nil {
		return nil, log.Errorf("%w", err)
	}
	doc, err := Parse(content)
	if err != nil {
		return nil, log.Errorf("%w", err)
	}
	resolved, err := FromDocument(doc)
	if err != nil {
		return nil, log.Errorf("failed to resolve schema: %w", err)
	}
	log.Debugf("Resolved %d paths", len(resolved.Paths))
	return resolved, nil
}

// WriteArtifact writes spec as JSON to path, creating parent directories.
func WriteArtifact(path string, spec *ResolvedSpec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	encoded, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to encode resolved spec: %w", err)
	}
	return os.WriteFile(path, encoded, 0o644)
}
