package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON finds the first balanced JSON object in s and returns it.
// Markdown fences are stripped first. Braces inside strings are honoured.
func ExtractJSON(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```yaml", "```text", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}

	for from := 0; ; {
		rel := strings.IndexByte(s[from:], '{')
		if rel == -1 {
			return ""
		}
		start := from + rel
		if end := balancedEnd(s, start); end > 0 {
			candidate := strings.TrimSpace(s[start:end])
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}
		from = start + 1
	}
}

// balancedEnd returns the index just past the brace closing s[start], or -1.
func balancedEnd(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// DecodeJSON extracts the first JSON object from s into v.
func DecodeJSON(s string, v any) bool {
	raw := ExtractJSON(s)
	if raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}
