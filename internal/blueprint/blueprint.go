/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package blueprint implements the Blueprint Renderer:
// recursive expansion of a parameterised JSON template ("{{ var }}" and
// "{% if ... %} ... {% else %} ... {% endif %}" tokens in string leaves)
// against a variable map.
package blueprint

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// bareVarRe matches a string leaf that is exactly "{{ name }}",
	// which takes the raw variable value rather than a textual splice.
	bareVarRe = regexp.MustCompile(`^\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}$`)
	// inlineVarRe matches "{{ name }}" occurrences within a larger string.
	inlineVarRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)
	// ifBlockRe matches a single "{% if expr %} then {% else %} else {% endif %}"
	// block, possibly without an else branch.
	ifBlockRe = regexp.MustCompile(`(?s)\{%\s*if\s+(.+?)\s*%\}(.*?)(?:\{%\s*else\s*%\}(.*?))?\{%\s*endif\s*%\}`)
)

// Render expands template (an arbitrary JSON tree decoded into Go values
// via encoding/json) against vars, returning the expanded tree.
func Render(template any, vars map[string]any) (any, error) {
	switch t := template.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := Render(v, vars)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := Render(v, vars)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case string:
		return renderString(t, vars)
	default:
		return t, nil
	}
}

// RenderJSON unmarshals templateJSON, renders it against vars, and
// re-marshals the result.
func RenderJSON(templateJSON []byte, vars map[string]any) ([]byte, error) {
	var tree any
	if err := json.Unmarshal(templateJSON, &tree); err != nil {
		return nil, fmt.Errorf("blueprint: invalid template JSON: %w", err)
	}
	rendered, err := Render(tree, vars)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rendered)
}

func renderString(s string, vars map[string]any) (any, error) {
	// Conditional blocks are resolved first; a string leaf may consist
	// entirely of one, or have conditionals interleaved with literal text.
	expanded, err := expandConditionals(s, vars)
	if err != nil {
		return nil, err
	}

	if m := bareVarRe.FindStringSubmatch(expanded); m != nil {
		val, ok := lookup(vars, m[1])
		if !ok {
			return nil, fmt.Errorf("blueprint: unknown variable %q", m[1])
		}
		return val, nil
	}

	var missing error
	result := inlineVarRe.ReplaceAllStringFunc(expanded, func(match string) string {
		name := inlineVarRe.FindStringSubmatch(match)[1]
		val, ok := lookup(vars, name)
		if !ok {
			missing = fmt.Errorf("blueprint: unknown variable %q", name)
			return match
		}
		return coerceToString(val)
	})
	if missing != nil {
		return nil, missing
	}
	return result, nil
}

// expandConditionals repeatedly resolves "{% if %}...{% else %}...{% endif %}"
// blocks (innermost/leftmost first) until none remain.
func expandConditionals(s string, vars map[string]any) (string, error) {
	ifOpenRe := regexp.MustCompile(`\{%\s*if\s+`)
	for {
		loc := ifBlockRe.FindStringSubmatchIndex(s)
		if loc == nil {
			return s, nil
		}
		// The match spans the first opening tag to the first endif; the
		// last opening tag inside that span starts the innermost block.
		if opens := ifOpenRe.FindAllStringIndex(s[loc[0]:loc[1]], -1); len(opens) > 1 {
			start := loc[0] + opens[len(opens)-1][0]
			loc = ifBlockRe.FindStringSubmatchIndex(s[start:])
			for i := range loc {
				if loc[i] >= 0 {
					loc[i] += start
				}
			}
		}
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] < 0 {
				continue
			}
			groups[i] = s[loc[2*i]:loc[2*i+1]]
		}
		expr, thenBranch, elseBranch := groups[1], groups[2], groups[3]

		truthy, err := evalCondition(expr, vars)
		if err != nil {
			return "", err
		}
		var replacement string
		if truthy {
			replacement = thenBranch
		} else {
			replacement = elseBranch
		}
		s = s[:loc[0]] + replacement + s[loc[1]:]
	}
}

// evalCondition evaluates a simple "var", "var == literal", "var != literal"
// or "!var" boolean/equality expression over vars.
func evalCondition(expr string, vars map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)

	if strings.HasPrefix(expr, "!") {
		inner, err := evalCondition(strings.TrimSpace(expr[1:]), vars)
		if err != nil {
			return false, err
		}
		return !inner, nil
	}

	for _, op := range []string{"==", "!="} {
		if idx := strings.Index(expr, op); idx >= 0 {
			lhs := strings.TrimSpace(expr[:idx])
			rhs := strings.Trim(strings.TrimSpace(expr[idx+len(op):]), `"'`)
			val, ok := lookup(vars, lhs)
			if !ok {
				return false, fmt.Errorf("blueprint: unknown variable %q", lhs)
			}
			equal := coerceToString(val) == rhs
			if op == "!=" {
				return !equal, nil
			}
			return equal, nil
		}
	}

	val, ok := lookup(vars, expr)
	if !ok {
		return false, fmt.Errorf("blueprint: unknown variable %q", expr)
	}
	return truthy(val), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case nil:
		return false
	default:
		return true
	}
}

// lookup resolves a dotted path (e.g. "a.b") against vars.
func lookup(vars map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = vars
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func coerceToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
