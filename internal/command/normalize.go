package command

import "encoding/json"

// FormatJSON asks for the task's output to be stored in structured form.
const FormatJSON = "json"

// NormalizeData shapes a task payload for cataloging according to its
// declared format. JSON payloads decode to structured form; everything
// else is kept as the literal text. A payload that fails to decode falls
// back to its raw bytes rather than being dropped.
func NormalizeData(format string, data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}

	switch format {
	case FormatJSON:
		var v any
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	default:
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
	}
	return string(data)
}
