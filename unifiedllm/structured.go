package unifiedllm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// outputSchema is a ResponseFormat prepared for parsing model output.
type outputSchema struct {
	format   *ResponseFormat
	resolved *jsonschema.Resolved
}

// compileFormat resolves the schema of a structured ResponseFormat. It
// returns nil for plain-text formats.
func compileFormat(f *ResponseFormat) (*outputSchema, error) {
	if !f.structured() {
		return nil, nil
	}
	switch f.Type {
	case ResponseFormatJSONObject:
		return &outputSchema{format: f}, nil
	case ResponseFormatJSONSchema:
	default:
		return nil, invalidInput("unsupported response_format type %q", f.Type)
	}
	if len(f.Schema) == 0 {
		return nil, invalidInput("response_format %q requires a schema", f.Type)
	}

	raw, err := json.Marshal(f.Schema)
	if err != nil {
		return nil, &InvalidInputError{SDKError{Message: "response_format schema is not valid JSON", Cause: err}}
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, &InvalidInputError{SDKError{Message: "response_format schema is not a JSON Schema", Cause: err}}
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, &InvalidInputError{SDKError{Message: "response_format schema does not resolve", Cause: err}}
	}
	return &outputSchema{format: f, resolved: resolved}, nil
}

// parse decodes text and checks it against the schema. It returns nil when
// the text holds no JSON or the value does not validate.
func (s *outputSchema) parse(text string) interface{} {
	if s == nil {
		return nil
	}
	var value interface{}
	if err := json.Unmarshal([]byte(stripFence(text)), &value); err == nil {
		return s.check(value)
	}
	candidate := extractJSON(text)
	if candidate == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return nil
	}
	return s.check(value)
}

// check validates an already decoded value.
func (s *outputSchema) check(value interface{}) interface{} {
	if s.format.Type == ResponseFormatJSONObject {
		if _, ok := value.(map[string]interface{}); !ok {
			return nil
		}
	}
	if s.resolved != nil {
		if err := s.resolved.Validate(value); err != nil {
			return nil
		}
	}
	return value
}

// stripFence returns the body of the first markdown code fence in text, or
// the trimmed text when there is none.
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	i := strings.Index(s, "```")
	if i < 0 {
		return s
	}
	rest := s[i+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// extractJSON pulls the JSON document out of model text that may be wrapped
// in a markdown code fence or surrounded by prose.
func extractJSON(text string) string {
	s := stripFence(text)

	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')
	start, closer := objStart, byte('}')
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		start, closer = arrStart, ']'
	}
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// structuredInstruction is the system directive used by providers without a
// native structured-output mode.
func structuredInstruction(f *ResponseFormat) string {
	if f.Type == ResponseFormatJSONSchema && len(f.Schema) > 0 {
		schemaJSON, _ := json.MarshalIndent(f.Schema, "", "  ")
		return fmt.Sprintf(
			"You must respond with valid JSON matching this schema:\n```json\n%s\n```\nRespond ONLY with the JSON object, no other text.",
			string(schemaJSON),
		)
	}
	return "You must respond with a valid JSON object.\nRespond ONLY with the JSON object, no other text."
}

// withStructuredInstruction returns a copy of messages whose first system
// message carries the structured-output directive.
func withStructuredInstruction(messages []Message, f *ResponseFormat) []Message {
	instruction := structuredInstruction(f)
	out := make([]Message, 0, len(messages)+1)
	added := false
	for _, m := range messages {
		if !added && m.Role == RoleSystem {
			m.Content = strings.TrimRight(m.Content, "\n") + "\n\n" + instruction
			added = true
		}
		out = append(out, m)
	}
	if !added {
		out = append([]Message{SystemMessage(instruction)}, out...)
	}
	return out
}

// SchemaFor derives a JSON Schema from the Go type T.
func SchemaFor[T any]() (map[string]interface{}, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("derive schema: %w", err)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return out, nil
}
