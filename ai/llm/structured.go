package llm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/teranos/shopper/errors"
)

// JSONSchema returns a JSON Schema object requiring every field as a string
func JSONSchema(fields []string) map[string]any {
	properties := make(map[string]any, len(fields))
	for _, f := range fields {
		properties[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             fields,
		"additionalProperties": false,
	}
}

// FieldsInstruction is appended to the system prompt for providers without native structured output
func FieldsInstruction(fields []string) string {
	return "Respond with only a JSON object with these string fields: " + strings.Join(fields, ", ") + "."
}

// WithFieldsInstruction appends FieldsInstruction to system when fields are requested
func WithFieldsInstruction(system string, fields []string) string {
	if len(fields) == 0 {
		return system
	}
	if system == "" {
		return FieldsInstruction(fields)
	}
	return system + "\n\n" + FieldsInstruction(fields)
}

// ParseFields extracts the requested string fields from a model's JSON answer.
// Markdown code fences and text around the object are ignored.
// Non-string values are kept as their JSON text. A null or blank field counts as missing.
func ParseFields(content string, fields []string) (map[string]string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return nil, errors.NewMalformedResponseError("no JSON object in response: %q", truncate(content, 120))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "invalid JSON object: %v", err)
	}

	out := make(map[string]string, len(fields))
	var missing []string
	for _, f := range fields {
		v, ok := raw[f]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, f)
			continue
		}
		value := strings.TrimSpace(string(v))
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			value = strings.TrimSpace(s)
		}
		if value == "" {
			missing = append(missing, f)
			continue
		}
		out[f] = value
	}
	if len(missing) > 0 {
		return nil, errors.NewMalformedResponseError("response missing fields %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(" + strconv.Itoa(len(s)) + " bytes)"
}
