// Package supervisor implements the Supervisor Protocol (component C):
// JSON-constrained plan generation and step-selection, and the defensive
// JSON extraction those protocols depend on to survive noisy model output.
package supervisor

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first well-formed JSON object out of content,
// tolerating the usual ways a language model decorates its output: markdown
// fences, leading/trailing prose, and unbalanced braces past the real
// object. Ported from the source's _extract_json, same four-strategy
// fallback in the same order.
func ExtractJSON(content string) (map[string]any, error) {
	clean := stripFences(content)

	var direct map[string]any
	if err := json.Unmarshal([]byte(clean), &direct); err == nil {
		return direct, nil
	}

	if span, ok := braceMatch(content); ok {
		var matched map[string]any
		if err := json.Unmarshal([]byte(span), &matched); err == nil {
			return matched, nil
		}
	}

	if span, ok := firstLastBrace(content); ok {
		var spanned map[string]any
		if err := json.Unmarshal([]byte(span), &spanned); err == nil {
			return spanned, nil
		}
	}

	var fallback map[string]any
	err := json.Unmarshal([]byte(clean), &fallback)
	return fallback, err
}

func stripFences(content string) string {
	clean := strings.ReplaceAll(content, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean)
}

// braceMatch walks content from its first '{', string- and escape-aware,
// and returns the span up to the brace that balances it.
func braceMatch(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start == -1 {
		return "", false
	}

	balance := 0
	end := -1
	inString := false
	escaped := false

	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			balance++
		case '}':
			balance--
			if balance == 0 {
				end = i
			}
		}
		if end != -1 {
			break
		}
	}

	if end == -1 {
		return "", false
	}
	return content[start : end+1], true
}

// firstLastBrace is the dirty last-resort fallback: first '{' to last '}'.
func firstLastBrace(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return content[start : end+1], true
}

// lowerKeys normalizes top-level keys to lower-case, matching the source's
// `{k.lower(): v for k, v in plan.items()}` step before persisting a plan.
func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
