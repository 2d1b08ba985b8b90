package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatAPI struct {
	resp      openai.ChatCompletionResponse
	err       error
	models    []string
	listErr   error
	listCalls int
	last      openai.ChatCompletionRequest
}

func (f *fakeChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.last = req
	return f.resp, f.err
}

func (f *fakeChatAPI) ListModels(ctx context.Context) (openai.ModelsList, error) {
	f.listCalls++
	if f.listErr != nil {
		return openai.ModelsList{}, f.listErr
	}
	list := openai.ModelsList{}
	for _, id := range f.models {
		list.Models = append(list.Models, openai.Model{ID: id})
	}
	return list, nil
}

func textCompletion(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: "assistant", Content: text},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}
}

func TestOpenAIAdapterTranslatesRequest(t *testing.T) {
	api := &fakeChatAPI{resp: textCompletion("ok")}
	a := NewOpenAIAdapter("sk-test", "gpt-4o-mini", WithChatCompletionAPI(api))

	_, err := a.CreateChatCompletion(context.Background(), Request{
		Model: "auto",
		Messages: []Message{
			SystemMessage("sys"),
			UserMessage("weather?"),
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Paris"}`}}},
			ToolResultMessage("call_1", "sunny"),
		},
		MaxTokens:   Int(64),
		Temperature: Float64(0.5),
		Stop:        []string{"END"},
		Tools:       []Tool{{Name: "get_weather", Description: "Get weather"}},
		ToolChoice:  "get_weather",
	})
	require.NoError(t, err)

	req := api.last
	assert.Equal(t, "gpt-4o-mini", req.Model, "auto resolves to the bound model")
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "call_1", req.Messages[2].ToolCalls[0].ID)
	assert.Equal(t, "call_1", req.Messages[3].ToolCallID)
	assert.Equal(t, 64, req.MaxTokens)
	assert.InDelta(t, 0.5, req.Temperature, 1e-6)
	assert.Equal(t, []string{"END"}, req.Stop)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "get_weather", req.Tools[0].Function.Name)
	assert.Equal(t, openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: "get_weather"}}, req.ToolChoice)
	assert.Nil(t, req.ResponseFormat)
}

func TestOpenAIAdapterNamedModelPassesThrough(t *testing.T) {
	api := &fakeChatAPI{resp: textCompletion("ok")}
	a := NewOpenAIAdapter("sk-test", "gpt-4o-mini", WithChatCompletionAPI(api))

	_, err := a.CreateChatCompletion(context.Background(), Request{Model: "gpt-4o", Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", api.last.Model)
}

func TestOpenAIAdapterNativeJSONSchema(t *testing.T) {
	api := &fakeChatAPI{resp: textCompletion(`{"name":"Ada","age":36}`)}
	a := NewOpenAIAdapter("sk-test", "gpt-4o-mini", WithChatCompletionAPI(api))

	resp, err := a.CreateChatCompletion(context.Background(), Request{
		Messages:       []Message{UserMessage("Who wrote the first program?")},
		ResponseFormat: JSONSchemaFormat("person record", personSchema),
	})
	require.NoError(t, err)

	rf := api.last.ResponseFormat
	require.NotNil(t, rf)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, rf.Type)
	require.NotNil(t, rf.JSONSchema)
	assert.Equal(t, "person_record", rf.JSONSchema.Name)
	assert.Len(t, api.last.Messages, 1, "native structured output needs no directive")
	assert.Equal(t, map[string]interface{}{"name": "Ada", "age": 36.0}, resp.Parsed())
}

func TestOpenAIAdapterEmulatesSchemaForOlderModels(t *testing.T) {
	api := &fakeChatAPI{resp: textCompletion(`{"name":"Ada","age":36}`)}
	a := NewOpenAIAdapter("sk-test", "gpt-4o-mini", WithChatCompletionAPI(api))

	resp, err := a.CreateChatCompletion(context.Background(), Request{
		Model:          "gpt-3.5-turbo",
		Messages:       []Message{UserMessage("Who wrote the first program?")},
		ResponseFormat: JSONSchemaFormat("person", personSchema),
	})
	require.NoError(t, err)

	rf := api.last.ResponseFormat
	require.NotNil(t, rf)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, rf.Type)
	require.Len(t, api.last.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, api.last.Messages[0].Role)
	assert.Equal(t, map[string]interface{}{"name": "Ada", "age": 36.0}, resp.Parsed())

	assert.True(t, a.nativeSchema("gpt-4o"))
	assert.True(t, a.nativeSchema("gpt-5-preview"), "models missing from the catalog are assumed current")
	assert.False(t, a.nativeSchema("gpt-3.5-turbo"))
}

func TestOpenAIAdapterReturnsErrorUnmodified(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached"}
	a := NewOpenAIAdapter("sk-test", "gpt-4o-mini", WithChatCompletionAPI(&fakeChatAPI{err: apiErr}))

	_, err := a.CreateChatCompletion(context.Background(), helloRequest())
	assert.Same(t, apiErr, err)
}

func TestOpenAIAdapterListModelsCached(t *testing.T) {
	api := &fakeChatAPI{models: []string{"gpt-4o-mini", "gpt-4o"}}
	a := NewOpenAIAdapter("sk-test", "gpt-4o-mini", WithChatCompletionAPI(api))

	ids, err := a.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o"}, ids)

	ids[0] = "mutated"
	ids, err = a.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", ids[0])
	assert.Equal(t, 1, api.listCalls)
}

func TestNewLocalAdapterDetectsModel(t *testing.T) {
	a, err := NewLocalAdapter(context.Background(), "", "", WithChatCompletionAPI(&fakeChatAPI{models: []string{"qwen2.5-7b", "llama"}}))
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, a.Provider())
	assert.Equal(t, "qwen2.5-7b", a.Model())

	a, err = NewLocalAdapter(context.Background(), "", "", WithChatCompletionAPI(&fakeChatAPI{}))
	require.NoError(t, err)
	assert.Equal(t, DefaultLocalModel, a.Model(), "an empty model list falls back to the default")

	_, err = NewLocalAdapter(context.Background(), "", "", WithChatCompletionAPI(&fakeChatAPI{listErr: errors.New("connection refused")}))
	require.Error(t, err)
}

// localServer is a minimal OpenAI-compatible server.
func localServer(t *testing.T, reply string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var lastBody atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"local-llama","object":"model","owned_by":"me"}]}`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		lastBody.Store(body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "cmpl-local",
			"object":  "chat.completion",
			"model":   body["model"],
			"choices": []interface{}{map[string]interface{}{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": reply}, "finish_reason": "stop"}},
			"usage":   map[string]interface{}{"prompt_tokens": 7, "completion_tokens": 4, "total_tokens": 11},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lastBody
}

func TestLocalAdapterEndToEnd(t *testing.T) {
	srv, lastBody := localServer(t, "```json\n{\"name\": \"Ada\", \"age\": 36}\n```")

	a, err := NewLocalAdapter(context.Background(), srv.URL+"/v1", "")
	require.NoError(t, err)
	assert.Equal(t, "local-llama", a.Model())

	resp, err := a.CreateChatCompletion(context.Background(), Request{
		Model:          "local",
		Messages:       []Message{UserMessage("Who?")},
		ResponseFormat: JSONSchemaFormat("person", personSchema),
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, resp.Provider)
	assert.Equal(t, "local-llama", resp.Model)
	assert.Equal(t, Usage{PromptTokens: 7, CompletionTokens: 4, TotalTokens: 11}, resp.Usage)
	assert.Equal(t, map[string]interface{}{"name": "Ada", "age": 36.0}, resp.Parsed())

	body := lastBody.Load().(map[string]interface{})
	assert.Equal(t, "local-llama", body["model"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2, "structured output is emulated with a system directive")
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
}

func TestLocalAdapterUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewLocalAdapter(context.Background(), url+"/v1", "")
	require.Error(t, err)
	assert.Equal(t, KindNetwork, ClassifyError(err))
}
