package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseError reports a reply that could not be read as the requested JSON
// object. Content keeps the reply for callers that can fall back to text.
type ParseError struct {
	Content string
	Err     error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractJSON strips markdown fences and surrounding prose from a model
// response, returning the outermost JSON object or array it contains.
func ExtractJSON(response string) string {
	s := strings.TrimSpace(response)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// drop a language tag such as ```json
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(s, closer); end > start {
		return s[start : end+1]
	}
	// truncated output, let the repair step close it
	return s[start:]
}

// RepairJSON extracts JSON from a model response and repairs common defects
// such as single quotes, trailing commas and truncation.
func RepairJSON(response string) (json.RawMessage, error) {
	candidate := ExtractJSON(response)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}
	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to repair JSON: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return nil, fmt.Errorf("repaired response is not valid JSON")
	}
	return json.RawMessage(repaired), nil
}

// ParseJSONResponse repairs response and unmarshals it into target.
func ParseJSONResponse(response string, target any) error {
	raw, err := RepairJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return nil
}
