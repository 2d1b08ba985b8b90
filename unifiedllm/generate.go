package unifiedllm

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
)

// ParseInto runs a structured-output request and decodes the result into T.
// When req has no ResponseFormat, a json_schema format is derived from T.
//
//	type Weather struct {
//	    City        string  `json:"city"`
//	    Temperature float64 `json:"temperature"`
//	}
//	w, resp, err := unifiedllm.ParseInto[Weather](ctx, client, req)
func ParseInto[T any](ctx context.Context, c *Client, req Request) (*T, *Response, error) {
	if req.ResponseFormat == nil {
		schema, err := SchemaFor[T]()
		if err != nil {
			return nil, nil, &InvalidInputError{SDKError{Message: "cannot derive response schema", Cause: err}}
		}
		req.ResponseFormat = JSONSchemaFormat(schemaName[T](), schema)
	}

	resp, err := c.Beta.Chat.Completions.Parse(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	parsed := resp.Parsed()
	if parsed == nil {
		return nil, resp, &NoObjectGeneratedError{
			SDKError: SDKError{Message: "provider output did not match the response schema"},
			Text:     resp.Text(),
		}
	}
	raw, err := json.Marshal(parsed)
	if err != nil {
		return nil, resp, &NoObjectGeneratedError{SDKError: SDKError{Message: "re-encode parsed output", Cause: err}, Text: resp.Text()}
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, resp, &NoObjectGeneratedError{SDKError: SDKError{Message: "decode parsed output", Cause: err}, Text: resp.Text()}
	}
	return &out, resp, nil
}

func schemaName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return strings.ToLower(name)
	}
	return "result"
}
