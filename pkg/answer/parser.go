// Package answer salvages a clean answer string from unreliable model output.
//
// Backends are instructed to reply with a strict single-field JSON object
// {"answer": "..."}, but in practice the reply is free text that only
// nominally contains it. The parser is a deterministic multi-step repair
// pipeline, not a general JSON5 parser: each step runs only if the previous
// one failed, and total failure is a valid outcome rather than an error.
package answer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Delimiter joins multiple answers of a multi-select or fill-in question.
const Delimiter = "###"

var (
	bareKeyAfterBrace = regexp.MustCompile(`\{(\s*)(\w+)(\s*):`)
	bareKeyAfterComma = regexp.MustCompile(`,(\s*)(\w+)(\s*):`)
	whitespaceRun     = regexp.MustCompile(`\s+`)

	// The misspelled key shows up often enough in model replies to be worth
	// handling on both the structured and the regex paths.
	answerPattern   = regexp.MustCompile(`"answer"\s*:\s*"([^"]+)"`)
	misspellPattern = regexp.MustCompile(`"anwser"\s*:\s*"([^"]+)"`)
)

// Extract attempts to pull an answer string out of raw model text.
// It returns the answer and true on success, or "" and false when no
// answer could be salvaged. It never fails with an error: callers treat
// a false result the same as a provider returning no text.
func Extract(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	if candidate, ok := sliceCandidate(raw); ok {
		normalized := normalizeCandidate(candidate)
		if value, ok := parseStructured(normalized); ok {
			return value, true
		}
	}

	// Structured parsing failed; fall back to a direct regex search over
	// the original text.
	if match := answerPattern.FindStringSubmatch(raw); match != nil {
		return match[1], true
	}
	if match := misspellPattern.FindStringSubmatch(raw); match != nil {
		return match[1], true
	}

	return "", false
}

// sliceCandidate extracts the substring between the first '{' and the last
// '}' as a JSON candidate.
func sliceCandidate(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// normalizeCandidate repairs the most common JSON malformations in model
// replies: single quotes instead of double quotes, unquoted keys, and
// arbitrary whitespace runs.
func normalizeCandidate(candidate string) string {
	s := strings.ReplaceAll(candidate, "'", `"`)
	s = bareKeyAfterBrace.ReplaceAllString(s, `{$1"$2"$3:`)
	s = bareKeyAfterComma.ReplaceAllString(s, `,$1"$2"$3:`)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// parseStructured parses the normalized candidate and looks up the answer
// key, tolerating the known misspelling.
func parseStructured(candidate string) (string, bool) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return "", false
	}

	for _, key := range []string{"answer", "anwser"} {
		if value, ok := parsed[key]; ok {
			return stringify(value), true
		}
	}
	return "", false
}

// stringify renders a parsed JSON value as an answer string. Models
// occasionally emit a bare number or boolean instead of a string.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
