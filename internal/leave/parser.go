package leave

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRequest means the message text or reference date is unusable.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMalformedOutput means no JSON value could be located in the model output.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrSchemaViolation means the model output is JSON but not a valid leave record.
	ErrSchemaViolation = errors.New("model output violates leave schema")
)

var codeFenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n?(.*?)```")

// ParseOutput locates the JSON object or array in a model response. The
// response may wrap it in prose or markdown code fences.
func ParseOutput(output string) (json.RawMessage, error) {
	text := strings.TrimSpace(strings.TrimPrefix(output, "\xef\xbb\xbf"))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	// A bare empty array is a real answer; validation rejects it as such.
	if isRecordJSON(text) || isEmptyArray(text) {
		return json.RawMessage(text), nil
	}

	for _, m := range codeFenceRe.FindAllStringSubmatch(text, -1) {
		if block := strings.TrimSpace(m[1]); isRecordJSON(block) {
			return json.RawMessage(block), nil
		}
	}

	if candidate := scanJSON(text); candidate != "" {
		return json.RawMessage(candidate), nil
	}

	return nil, fmt.Errorf("%w: no JSON object or array found in response", ErrMalformedOutput)
}

// isRecordJSON reports whether s is a JSON object or a non-empty array of
// objects. Bracketed prose such as "[1]" or "[]" does not qualify.
func isRecordJSON(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '{':
		return json.Valid([]byte(s))
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(s), &items); err != nil || len(items) == 0 {
			return false
		}
		for _, item := range items {
			if !strings.HasPrefix(strings.TrimSpace(string(item)), "{") {
				return false
			}
		}
		return true
	}
	return false
}

func isEmptyArray(s string) bool {
	var items []json.RawMessage
	return strings.HasPrefix(s, "[") && json.Unmarshal([]byte(s), &items) == nil && len(items) == 0
}

// scanJSON returns the first balanced {...} or [...] span holding records.
func scanJSON(text string) string {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' && text[start] != '[' {
			continue
		}
		end := findContainerEnd(text, start)
		if end < 0 {
			continue
		}
		if candidate := text[start : end+1]; isRecordJSON(candidate) {
			return candidate
		}
	}
	return ""
}

// findContainerEnd finds the index closing the bracket at start, skipping
// brackets inside string literals. Returns -1 if unbalanced.
func findContainerEnd(text string, start int) int {
	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
