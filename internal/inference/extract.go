package inference

import (
	"encoding/json"
	"strings"
)

// ExtractJSON pulls the first JSON object out of a model response. Reasoning
// models may prefix output with a <think> block; anything before the closing
// tag is discarded. Returns false when no object is present.
func ExtractJSON(response string) (json.RawMessage, bool) {
	text := response
	if idx := strings.LastIndex(text, "</think>"); idx != -1 {
		text = text[idx+len("</think>"):]
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	return json.RawMessage(strings.TrimSpace(text[start : end+1])), true
}

// FallbackPayload wraps a non-JSON model response into a degraded but
// well-formed comparison result so the job can still complete.
func FallbackPayload(response string) json.RawMessage {
	payload := map[string]any{
		"summary":            "Analysis completed but the model did not return structured JSON",
		"raw_analysis":       response,
		"similarities":       []string{},
		"differences":        []any{},
		"recommendations":    []string{},
		"overall_assessment": "Result requires manual review",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage(`{"summary":"","similarities":[],"differences":[],"recommendations":[],"overall_assessment":""}`)
	}
	return raw
}
