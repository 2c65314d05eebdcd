package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = errors.New("reply contains no JSON object")

var fencePattern = regexp.MustCompile("```(?:json)?")

// ExtractJSON returns the first balanced JSON object in text that parses.
// Markdown fences are ignored. Strings are scanned with escape handling so braces inside them do not count.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
	for start := strings.IndexByte(s, '{'); start >= 0; {
		obj, ok := balancedObject(s, start)
		if !ok {
			break
		}
		if json.Valid([]byte(obj)) {
			return json.RawMessage(obj), nil
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	if json.Valid([]byte(s)) && strings.HasPrefix(s, "{") {
		return json.RawMessage(s), nil
	}
	return nil, ErrNoJSON
}

// balancedObject scans from s[start] == '{' to its matching brace.
func balancedObject(s string, start int) (string, bool) {
	depth := 0
	inString := false
	escaped := false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// Decode extracts the first JSON object in text into v.
func Decode(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
