package spec

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	refKey      = "$ref"
	circularKey = "$circular"
)

// Resolve returns a deep copy of root with every internal "$ref" node replaced
// by its target. A reference met again while it is still being expanded on the
// current ancestor chain becomes {"$circular": "<pointer>"}.
func Resolve(root any) (any, error) {
	return ResolveNode(root, root)
}

// ResolveNode is Resolve for a fragment of root: it returns a deep copy of
// node with every "$ref" looked up in root. Parts of root that node never
// references are not visited.
func ResolveNode(root, node any) (any, error) {
	r := &resolver{root: root, active: make(map[string]struct{})}
	return r.resolve(node)
}

type resolver struct {
	root   any
	active map[string]struct{}
}

func (r *resolver) resolve(node any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if ref, ok := v[refKey]; ok {
			return r.resolveRef(ref)
		}
		out := make(map[string]any, len(v))
		for key, child := range v {
			resolved, err := r.resolve(child)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			resolved, err := r.resolve(child)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *resolver) resolveRef(ref any) (any, error) {
	pointer, ok := ref.(string)
	if !ok {
		return nil, fmt.Errorf("invalid $ref: expected string, got %T", ref)
	}
	if _, cyclic := r.active[pointer]; cyclic {
		return map[string]any{circularKey: pointer}, nil
	}

	target, err := lookup(r.root, pointer)
	if err != nil {
		return nil, err
	}

	r.active[pointer] = struct{}{}
	defer delete(r.active, pointer)

	resolved, err := r.resolve(target)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pointer, err)
	}
	return resolved, nil
}

// lookup walks root along a "#/a/b/0" pointer.
func lookup(root any, pointer string) (any, error) {
	if pointer == "#" || pointer == "#/" {
		return root, nil
	}
	path, ok := strings.CutPrefix(pointer, "#/")
	if !ok {
		return nil, fmt.Errorf("unsupported $ref %q: only local \"#/...\" pointers are allowed", pointer)
	}

	current := root
	for _, raw := range strings.Split(path, "/") {
		segment := unescapePointerSegment(raw)
		switch v := current.(type) {
		case map[string]any:
			next, exists := v[segment]
			if !exists {
				return nil, fmt.Errorf("unresolvable $ref %q: key %q not found", pointer, segment)
			}
			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(v) {
				return nil, fmt.Errorf("unresolvable $ref %q: invalid index %q", pointer, segment)
			}
			current = v[index]
		default:
			return nil, fmt.Errorf("unresolvable $ref %q: cannot descend into %T at %q", pointer, current, segment)
		}
	}
	return current, nil
}

func unescapePointerSegment(segment string) string {
	if !strings.Contains(segment, "~") {
		return segment
	}
	return strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
}

// ContainsRefs reports whether any "$ref" node remains reachable in node.
func ContainsRefs(node any) bool {
	switch v := node.(type) {
	case map[string]any:
		if _, ok := v[refKey]; ok {
			return true
		}
		for _, child := range v {
			if ContainsRefs(child) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if ContainsRefs(child) {
				return true
			}
		}
	}
	return false
}
