package unifiedllm

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	opCreateChatCompletion = "create_chat_completion"
	opListModels           = "list_models"
)

var errNoResponse = errors.New("adapter returned no response")

// Middleware wraps one provider attempt. It receives the request and a next
// function that calls the adapter, and returns the response. The attempt
// being made is available through AttemptFromContext.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Attempt identifies one try against one adapter during a fallback sequence.
type Attempt struct {
	Index    int
	Provider ProviderIdentity
	Model    string
}

type attemptKey struct{}

// AttemptFromContext returns the attempt a middleware is running for.
func AttemptFromContext(ctx context.Context) (Attempt, bool) {
	a, ok := ctx.Value(attemptKey{}).(Attempt)
	return a, ok
}

// Router tries adapters in priority order until one succeeds. It remembers
// the last adapter that succeeded, but every call starts again from the
// first adapter.
type Router struct {
	adapters   []Adapter
	active     atomic.Int64
	middleware []Middleware
	logger     *zap.Logger
	metrics    *Metrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithMiddleware adds middleware around every attempt.
func WithMiddleware(mw ...Middleware) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, mw...)
	}
}

// WithLogger sets the router logger.
func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the collectors the router records into.
func WithMetrics(m *Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// NewRouter creates a router over adapters, which are tried in the given
// order. At least one adapter is required.
func NewRouter(adapters []Adapter, opts ...RouterOption) (*Router, error) {
	if len(adapters) == 0 {
		return nil, &ConfigurationError{SDKError{Message: "router requires at least one adapter"}}
	}
	r := &Router{
		adapters: append([]Adapter(nil), adapters...),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Adapters returns the adapters in priority order.
func (r *Router) Adapters() []Adapter {
	return append([]Adapter(nil), r.adapters...)
}

// Active returns the adapter that served the last successful call, or the
// first adapter before any success.
func (r *Router) Active() Adapter {
	return r.adapters[r.active.Load()]
}

// ActiveNative returns the vendor client of the active adapter.
func (r *Router) ActiveNative() interface{} {
	return r.Active().Native()
}

// CreateChatCompletion sends req to each adapter in turn and returns the
// first success.
func (r *Router) CreateChatCompletion(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := r.run(ctx, opCreateChatCompletion, func(ctx context.Context, a Adapter) error {
		out, err := r.chain(a)(ctx, req)
		if err != nil {
			return err
		}
		if out == nil {
			return errNoResponse
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.recordUsage(resp.Provider, resp.Usage)
	return resp, nil
}

// ListModels returns the model list of the first adapter that answers.
func (r *Router) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.run(ctx, opListModels, func(ctx context.Context, a Adapter) error {
		out, err := a.ListModels(ctx)
		if err != nil {
			return err
		}
		ids = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// chain builds the middleware stack for one adapter. Middleware is applied in
// reverse order so the first registered runs first.
func (r *Router) chain(a Adapter) func(context.Context, Request) (*Response, error) {
	handler := a.CreateChatCompletion
	for i := len(r.middleware) - 1; i >= 0; i-- {
		mw := r.middleware[i]
		next := handler
		handler = func(ctx context.Context, req Request) (*Response, error) {
			return mw(ctx, req, next)
		}
	}
	return handler
}

// run executes attempt against each adapter until one returns nil.
func (r *Router) run(ctx context.Context, operation string, attempt func(context.Context, Adapter) error) error {
	failed := &AllProvidersFailedError{Operation: operation}

	for i, a := range r.adapters {
		if err := ctx.Err(); err != nil {
			failed.Interrupted = err
			break
		}

		provider, model := a.Provider(), a.Model()
		attemptCtx := context.WithValue(ctx, attemptKey{}, Attempt{Index: i, Provider: provider, Model: model})

		start := time.Now()
		err := attempt(attemptCtx, a)
		elapsed := time.Since(start)

		if err == nil {
			r.metrics.recordAttempt(provider, operation, "", elapsed)
			r.active.Store(int64(i))
			if i > 0 {
				r.metrics.recordFallback(provider, operation)
				r.logger.Info("fallback provider succeeded",
					zap.String("operation", operation),
					zap.String("provider", string(provider)),
					zap.String("model", model),
					zap.Int("attempt", i+1),
				)
			}
			return nil
		}

		kind := ClassifyError(err)
		r.metrics.recordAttempt(provider, operation, kind, elapsed)
		failed.Failures = append(failed.Failures, ProviderFailure{
			Provider: provider,
			Model:    model,
			Kind:     kind,
			Err:      err,
		})

		fields := []zap.Field{
			zap.String("operation", operation),
			zap.String("provider", string(provider)),
			zap.String("model", model),
			zap.String("kind", string(kind)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		}
		if kind.Transient() {
			r.logger.Warn("provider attempt failed", fields...)
		} else {
			r.logger.Warn("provider attempt failed permanently", fields...)
		}
	}

	r.metrics.recordExhausted(operation)
	r.logger.Error("all providers failed",
		zap.String("operation", operation),
		zap.Int("attempts", len(failed.Failures)),
		zap.Error(failed),
	)
	return failed
}
