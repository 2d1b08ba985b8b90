package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/martinemde/unifai/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter answers with a fixed text, or fails while down is set. While
// silent is set it answers with empty text.
type stubAdapter struct {
	provider unifiedllm.ProviderIdentity
	model    string
	down     bool
	silent   bool
}

func (a *stubAdapter) Provider() unifiedllm.ProviderIdentity { return a.provider }
func (a *stubAdapter) Model() string                         { return a.model }
func (a *stubAdapter) Native() interface{}                   { return nil }

func (a *stubAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{a.model}, nil
}

func (a *stubAdapter) CreateChatCompletion(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	if a.down {
		return nil, errors.New("connection refused")
	}
	if a.silent {
		return reply(a.provider, a.model, "", 2), nil
	}
	return reply(a.provider, a.model, "answer from "+a.model, 2), nil
}

func TestSessionOverClientRecordsServingModel(t *testing.T) {
	local := &stubAdapter{provider: unifiedllm.ProviderLocal, model: "qwen2.5-7b"}
	cloud := &stubAdapter{provider: unifiedllm.ProviderOpenAI, model: "gpt-4o-mini"}
	router, err := unifiedllm.NewRouter([]unifiedllm.Adapter{local, cloud})
	require.NoError(t, err)
	client := unifiedllm.NewWithRouter(router)

	s := NewSession(client.Chat.Completions, nil)
	defer s.Close()

	resp, err := s.Submit(context.Background(), "first question")
	require.NoError(t, err)
	assert.Equal(t, "answer from qwen2.5-7b", resp.Text())

	local.down = true
	resp, err = s.Submit(context.Background(), "second question")
	require.NoError(t, err)
	assert.Equal(t, "answer from gpt-4o-mini", resp.Text())
	assert.Equal(t, "gpt-4o-mini", client.GetActiveModel())

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, "qwen2.5-7b", history[1].Assistant.Model)
	assert.Equal(t, "gpt-4o-mini", history[3].Assistant.Model)
	assert.Equal(t, 8, s.Usage().TotalTokens)
}

func TestSessionOverClientSurvivesEmptyReply(t *testing.T) {
	cloud := &stubAdapter{provider: unifiedllm.ProviderOpenAI, model: "gpt-4o-mini", silent: true}
	router, err := unifiedllm.NewRouter([]unifiedllm.Adapter{cloud})
	require.NoError(t, err)
	client := unifiedllm.NewWithRouter(router)

	s := NewSession(client.Chat.Completions, nil)
	defer s.Close()

	resp, err := s.Submit(context.Background(), "first question")
	require.NoError(t, err)
	assert.Equal(t, "", resp.Text())

	cloud.silent = false
	resp, err = s.Submit(context.Background(), "second question")
	require.NoError(t, err)
	assert.Equal(t, "answer from gpt-4o-mini", resp.Text())

	resp, err = s.Submit(context.Background(), "third question")
	require.NoError(t, err)
	assert.Equal(t, "answer from gpt-4o-mini", resp.Text())
	assert.Len(t, s.History(), 6)
}
