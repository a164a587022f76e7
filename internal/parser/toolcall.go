package parser

import (
	"encoding/json"
	"log/slog"
)

// ToolCall is a single extracted tool invocation request, in document order.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type rawToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ExtractToolCalls scans fully-accumulated text for <tool_call> blocks
// (optionally wrapped in a ```xml fenced code block), decodes each body as
// JSON {name, arguments}, and returns the text with matches removed along
// with the calls in document order. A malformed match is logged and
// skipped rather than failing the whole extraction.
func ExtractToolCalls(text string) (string, []ToolCall) {
	matches := toolCallPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var calls []ToolCall
	var out []byte
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		bodyStart, bodyEnd := m[2], m[3]

		out = append(out, text[last:start]...)
		last = end

		var raw rawToolCall
		if err := json.Unmarshal([]byte(text[bodyStart:bodyEnd]), &raw); err != nil {
			slog.Warn("skipping malformed tool_call block", "error", err)
			continue
		}
		calls = append(calls, ToolCall{Name: raw.Name, Arguments: raw.Arguments})
	}
	out = append(out, text[last:]...)
	return string(out), calls
}
