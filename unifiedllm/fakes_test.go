package unifiedllm

import (
	"context"
	"errors"
	"sync"
)

// fakeAdapter is a test double for Adapter. It fails with err when set,
// otherwise it answers with a text response naming itself.
type fakeAdapter struct {
	provider ProviderIdentity
	model    string
	err      error
	models   []string

	mu       sync.Mutex
	calls    int
	requests []Request
}

func newFakeAdapter(provider ProviderIdentity, model string) *fakeAdapter {
	return &fakeAdapter{provider: provider, model: model, models: []string{model}}
}

func failingAdapter(provider ProviderIdentity, model string, err error) *fakeAdapter {
	a := newFakeAdapter(provider, model)
	a.err = err
	return a
}

func (f *fakeAdapter) Provider() ProviderIdentity { return f.provider }
func (f *fakeAdapter) Model() string              { return f.model }
func (f *fakeAdapter) Native() interface{}        { return f }

func (f *fakeAdapter) CreateChatCompletion(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.calls++
	f.requests = append(f.requests, req)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return normalizeText("reply from "+f.model, nil, f.provider, resolveModel(req.Model, f.model), nil), nil
}

func (f *fakeAdapter) ListModels(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	f.calls++
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return append([]string(nil), f.models...), nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

var errRateLimited = errors.New("429 rate limit exceeded")

func helloRequest() Request {
	return Request{Messages: []Message{UserMessage("hello")}}
}
