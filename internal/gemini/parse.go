// parse.go — extracting the verdict JSON from a model reply.
// Models occasionally wrap JSON in prose or code fences even when told
// not to, so the parser pulls the first balanced JSON object out of the
// reply instead of unmarshalling the whole string.
package gemini

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when no parseable JSON object exists in the reply.
var ErrNoJSON = errors.New("gemini: no JSON object in model reply")

// ParseVerdict extracts and validates the verdict object from a reply.
// Confidence is clamped to [0, 1].
func ParseVerdict(reply string) (Verdict, error) {
	obj := firstJSONObject(reply)
	if obj == "" {
		return Verdict{}, ErrNoJSON
	}

	var v Verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return Verdict{}, ErrNoJSON
	}

	if v.Confidence < 0 {
		v.Confidence = 0
	} else if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v, nil
}

// firstJSONObject returns the first balanced {...} substring, tracking
// string literals so braces inside quoted values don't break the scan.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
