package reply

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("missing json object")

// decodeJSON unmarshals the first candidate that decodes: the whole reply,
// the body of a Markdown code fence, then the span between the first "{"
// and the last "}". Each attempt starts from a zero value.
func decodeJSON[T any](raw string) (T, error) {
	var firstErr error
	for _, candidate := range jsonCandidates(raw) {
		var v T
		err := json.Unmarshal([]byte(candidate), &v)
		if err == nil {
			return v, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	var zero T
	if firstErr == nil {
		return zero, errNoJSONObject
	}
	return zero, firstErr
}

func jsonCandidates(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	candidates := []string{trimmed}
	if fenced, ok := stripCodeFence(trimmed); ok {
		candidates = append(candidates, fenced)
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start != -1 && end > start {
		span := trimmed[start : end+1]
		if span != trimmed {
			candidates = append(candidates, span)
		}
	}
	return candidates
}

func stripCodeFence(text string) (string, bool) {
	if !strings.HasPrefix(text, "```") {
		return "", false
	}
	body := strings.TrimPrefix(text, "```")
	if newline := strings.Index(body, "\n"); newline != -1 {
		// drop the language tag, e.g. ```json
		body = body[newline+1:]
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body), true
}
