package pipeline

import (
	"encoding/json"
	"strings"
)

// decodeLoose unmarshals JSON from model output, tolerating surrounding
// prose: strict parse first, then the first {...} span in the text.
func decodeLoose(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return &parseError{text: trimmed}
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return &parseError{text: trimmed, cause: err}
	}
	return nil
}

type parseError struct {
	text  string
	cause error
}

func (e *parseError) Error() string {
	if e.cause != nil {
		return "pipeline: no parseable JSON object in model output: " + e.cause.Error()
	}
	return "pipeline: no JSON object in model output"
}

func (e *parseError) Unwrap() error {
	return e.cause
}
