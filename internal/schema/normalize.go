// Package schema flattens reference-based JSON schemas into the self-contained
// form accepted by strict structured-output APIs.
package schema

import (
	"log/slog"
	"strings"
)

const (
	keyDefs  = "$defs"
	keyRef   = "$ref"
	keyConst = "const"
	keyEnum  = "enum"
)

// refPrefixes are the reference forms understood by Normalize.
var refPrefixes = []string{"#/$defs/", "#/definitions/"}

// Normalize resolves every "$ref" against the top-level "$defs" namespace,
// rewrites "const" markers as single-value enums and returns
// {type: object, title, properties, required}.
//
// References to missing definitions are left in place. A reference that is
// already being resolved higher up the tree is also left in place, so
// self-referential definitions terminate. The input is never modified.
// Normalize(Normalize(s)) equals Normalize(s).
func Normalize(raw map[string]any) map[string]any {
	defs, _ := raw[keyDefs].(map[string]any)
	r := &resolver{defs: defs, active: make(map[string]bool)}

	props, _ := r.resolve(raw["properties"]).(map[string]any)
	if props == nil {
		props = map[string]any{}
	}

	title, _ := raw["title"].(string)

	return map[string]any{
		"type":       "object",
		"title":      title,
		"properties": props,
		"required":   copyRequired(raw["required"]),
	}
}

type resolver struct {
	defs   map[string]any
	active map[string]bool // definitions on the current resolution path
}

func (r *resolver) resolve(node any) any {
	switch v := node.(type) {
	case map[string]any:
		return r.resolveObject(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.resolve(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return v
	}
}

func (r *resolver) resolveObject(node map[string]any) any {
	if ref, ok := node[keyRef].(string); ok {
		if resolved, ok := r.follow(ref); ok {
			return resolved
		}
		slog.Debug("leaving schema reference unresolved", "ref", ref)
	}

	out := make(map[string]any, len(node))
	for k, v := range node {
		switch k {
		case keyDefs:
			// Nested namespaces are only meaningful at the top level.
			continue
		case keyConst:
			out[keyEnum] = []any{v}
		default:
			if _, isConst := node[keyConst]; isConst && k == keyEnum {
				continue
			}
			out[k] = r.resolve(v)
		}
	}
	return out
}

// follow returns a resolved deep copy of the referenced definition.
func (r *resolver) follow(ref string) (any, bool) {
	name, ok := defName(ref)
	if !ok || r.active[name] {
		return nil, false
	}
	def, ok := r.defs[name]
	if !ok {
		return nil, false
	}

	r.active[name] = true
	defer delete(r.active, name)
	return r.resolve(def), true
}

func defName(ref string) (string, bool) {
	for _, prefix := range refPrefixes {
		if name, ok := strings.CutPrefix(ref, prefix); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

func copyRequired(v any) []any {
	switch req := v.(type) {
	case []any:
		out := make([]any, len(req))
		copy(out, req)
		return out
	case []string:
		out := make([]any, len(req))
		for i, s := range req {
			out[i] = s
		}
		return out
	default:
		return []any{}
	}
}
