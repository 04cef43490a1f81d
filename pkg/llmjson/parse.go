// Package llmjson turns free-form model output into JSON values. It never
// calls the model itself; callers decide what to do when nothing parses.
package llmjson

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no candidate yields a JSON object.
var ErrNoJSON = errors.New("llmjson: no parseable json object")

// Strategy extracts one parse candidate from raw text.
type Strategy func(raw string) (string, bool)

// Strategies is the ordered candidate chain; the first candidate that parses wins.
var Strategies = []Strategy{Trimmed, StripFence, FirstFencedBlock, FirstObject}

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

// Trimmed returns the raw text without surrounding whitespace.
func Trimmed(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	return s, s != ""
}

// StripFence drops a leading ```lang line and a trailing ``` marker.
func StripFence(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	changed := false
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		changed = true
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		changed = true
	}
	s = strings.TrimSpace(s)
	return s, changed && s != ""
}

// FirstFencedBlock returns the body of the first fenced code block.
func FirstFencedBlock(raw string) (string, bool) {
	m := fencedBlock.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	s := strings.TrimSpace(m[1])
	return s, s != ""
}

// FirstObject returns the first balanced {...} in raw.
func FirstObject(raw string) (string, bool) {
	return ExtractFirstJSONObject(raw)
}

// ExtractFirstJSONObject scans for the first balanced object, tracking string
// and escape state so braces inside string values do not end the scan.
func ExtractFirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// FixTrailingCommas removes commas that directly precede } or ], leaving
// string contents untouched.
func FixTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

// Candidates lists the distinct parse candidates for raw in strategy order.
func Candidates(raw string) []string {
	var out []string
	seen := make(map[string]struct{}, len(Strategies))
	for _, strategy := range Strategies {
		c, ok := strategy(raw)
		if !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ParseObject returns the first candidate that decodes to a JSON object,
// trying each one as-is and then with trailing commas removed.
func ParseObject(raw string) (map[string]interface{}, error) {
	for _, c := range Candidates(raw) {
		if obj, ok := decodeObject(c); ok {
			return obj, nil
		}
		if fixed := FixTrailingCommas(c); fixed != c {
			if obj, ok := decodeObject(fixed); ok {
				return obj, nil
			}
		}
	}
	return nil, ErrNoJSON
}

// Decode parses raw with ParseObject and re-decodes the object into dest.
func Decode(raw string, dest interface{}) error {
	obj, err := ParseObject(raw)
	if err != nil {
		return err
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

func decodeObject(s string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
