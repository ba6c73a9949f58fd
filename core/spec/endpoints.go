package spec

import (
	"sort"
	"strings"
)

// EndpointDescriptor is a lightweight listing entry for one verb and path.
type EndpointDescriptor struct {
	Method  string
	Path    string
	Summary string
	Tags    []string
}

// Category is a named group of endpoints.
type Category struct {
	Name      string
	Endpoints []EndpointDescriptor
}

// Endpoints lists every operation sorted by path, then verb order.
func Endpoints(spec *ResolvedSpec) []EndpointDescriptor {
	if spec == nil {
		return nil
	}
	paths := make([]string, 0, len(spec.Paths))
	for path := range spec.Paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var out []EndpointDescriptor
	for _, path := range paths {
		item := spec.Paths[path]
		category := InferCategory(path)
		for _, verb := range Verbs {
			op, ok := item[verb]
			if !ok || op == nil {
				continue
			}
			out = append(out, EndpointDescriptor{
				Method:  strings.ToUpper(verb),
				Path:    path,
				Summary: op.Summary,
				Tags:    mergeTags(op.Tags, category),
			})
		}
	}
	return out
}

// GroupByCategory groups endpoints by their inferred category, sorted by name.
func GroupByCategory(endpoints []EndpointDescriptor) []Category {
	index := map[string]int{}
	var groups []Category
	for _, endpoint := range endpoints {
		name := InferCategory(endpoint.Path)
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, Category{Name: name})
		}
		groups[i].Endpoints = append(groups[i].Endpoints, endpoint)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].Name < groups[b].Name })
	return groups
}

// InferCategory derives a product category from a path: placeholders are
// skipped, and under /accounts or /zones the next literal segment wins.
func InferCategory(path string) string {
	var literals []string
	for _, segment := range strings.Split(path, "/") {
		if segment == "" || (strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")) {
			continue
		}
		literals = append(literals, segment)
	}
	if len(literals) == 0 {
		return "root"
	}
	if (literals[0] == "accounts" || literals[0] == "zones") && len(literals) > 1 {
		return literals[1]
	}
	return literals[0]
}

// mergeTags appends category and drops case-insensitive duplicates, keeping
// the first spelling.
func mergeTags(tags []string, category string) []string {
	seen := make(map[string]struct{}, len(tags)+1)
	out := make([]string, 0, len(tags)+1)
	for _, tag := range append(append([]string{}, tags...), category) {
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}
