package unifiedllm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Client is the unified chat-completion client. It holds one adapter per
// usable model specifier and falls back through them in priority order.
//
// The surface mirrors the OpenAI SDK shape:
//
//	resp, err := client.Chat.Completions.Create(ctx, req)
//	resp, err := client.Beta.Chat.Completions.Parse(ctx, req)
//	ids, err := client.Models.List(ctx)
type Client struct {
	Chat   *ChatService
	Beta   *BetaService
	Models *ModelsService

	router  *Router
	logger  *zap.Logger
	skipped []SkippedProvider
}

// ChatService groups the chat endpoints.
type ChatService struct {
	Completions *CompletionsService
}

// CompletionsService creates chat completions.
type CompletionsService struct {
	client *Client
}

// Create sends req through the fallback chain.
func (s *CompletionsService) Create(ctx context.Context, req Request) (*Response, error) {
	return s.client.complete(ctx, req, false)
}

// BetaService groups the structured-output endpoints.
type BetaService struct {
	Chat *BetaChatService
}

// BetaChatService groups the structured-output chat endpoints.
type BetaChatService struct {
	Completions *BetaCompletionsService
}

// BetaCompletionsService creates chat completions with parsed output.
type BetaCompletionsService struct {
	client *Client
}

// Parse is Create for requests with a structured ResponseFormat. The first
// choice carries the decoded value in Parsed when the output validated.
func (s *BetaCompletionsService) Parse(ctx context.Context, req Request) (*Response, error) {
	return s.client.complete(ctx, req, true)
}

// ModelsService lists models.
type ModelsService struct {
	client *Client
}

// List returns the models of the first provider that answers.
func (s *ModelsService) List(ctx context.Context) ([]string, error) {
	return s.client.router.ListModels(ctx)
}

// New builds a Client from cfg. Specifiers whose provider has no credentials
// are skipped, as is the local server when it cannot be reached. When nothing
// is left New returns *NoUsableProvidersError.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger

	var adapters []Adapter
	var skipped []SkippedProvider
	for _, specifier := range cfg.Priority {
		provider := InferProvider(specifier)
		adapter, err := buildAdapter(ctx, cfg, specifier, provider)
		if err != nil {
			skipped = append(skipped, SkippedProvider{Specifier: specifier, Provider: provider, Reason: err.Error()})
			logger.Warn("skipping provider",
				zap.String("specifier", specifier),
				zap.String("provider", string(provider)),
				zap.Error(err),
			)
			continue
		}
		adapters = append(adapters, adapter)
		logger.Info("provider initialized",
			zap.String("specifier", specifier),
			zap.String("provider", string(provider)),
			zap.String("model", adapter.Model()),
		)
	}
	if len(adapters) == 0 {
		return nil, newNoUsableProvidersError(skipped)
	}

	router, err := NewRouter(adapters,
		WithLogger(logger),
		WithMetrics(NewMetrics(cfg.Registerer)),
		WithMiddleware(cfg.Middleware...),
	)
	if err != nil {
		return nil, err
	}
	return newClient(router, logger, skipped), nil
}

// NewFromEnv builds a Client from the process environment.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, ConfigFromEnv(nil))
}

// NewWithRouter builds a Client over an existing router.
func NewWithRouter(router *Router) *Client {
	return newClient(router, router.logger, nil)
}

func newClient(router *Router, logger *zap.Logger, skipped []SkippedProvider) *Client {
	c := &Client{router: router, logger: logger, skipped: skipped}
	c.Chat = &ChatService{Completions: &CompletionsService{client: c}}
	c.Beta = &BetaService{Chat: &BetaChatService{Completions: &BetaCompletionsService{client: c}}}
	c.Models = &ModelsService{client: c}
	return c
}

var errMissingCredentials = errors.New("missing credentials")

func buildAdapter(ctx context.Context, cfg Config, specifier string, provider ProviderIdentity) (Adapter, error) {
	model := specifier
	if info := GetModelInfo(specifier); info != nil {
		model = info.ID
	}

	apiKey := cfg.LocalAPIKey
	if provider == ProviderLocal {
		model = ""
	} else {
		apiKey = cfg.Credentials[provider]
		if apiKey == "" {
			if name, ok := CredentialEnvVars[provider]; ok {
				return nil, fmt.Errorf("%w: %s is not set", errMissingCredentials, name)
			}
			return nil, errMissingCredentials
		}
	}

	if provider == ProviderLocal {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.LocalProbeTimeout)
		defer cancel()
	}

	if cfg.NewAdapter != nil {
		return cfg.NewAdapter(ctx, provider, model, apiKey)
	}

	switch provider {
	case ProviderLocal:
		a, err := NewLocalAdapter(ctx, cfg.LocalBaseURL, apiKey)
		if err != nil {
			return nil, fmt.Errorf("local server at %s unreachable: %w", cfg.LocalBaseURL, err)
		}
		return a, nil
	case ProviderOpenAI:
		return NewOpenAIAdapter(apiKey, model), nil
	case ProviderAnthropic:
		return NewAnthropicAdapter(apiKey, model), nil
	default:
		return NewGollmAdapter(provider, apiKey, model)
	}
}

func (c *Client) complete(ctx context.Context, req Request, requireFormat bool) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if requireFormat && !req.ResponseFormat.structured() {
		return nil, invalidInput("parse requires a json_object or json_schema response_format")
	}
	return c.router.CreateChatCompletion(ctx, req)
}

// ValidateRequest checks req against the calling contract without contacting
// any provider.
func ValidateRequest(req Request) error {
	if len(req.Messages) == 0 {
		return invalidInput("messages must contain at least one message")
	}
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return invalidInput("messages[%d]: unknown role %q", i, m.Role)
		}
		if m.Content == "" && !(m.Role == RoleAssistant && len(m.ToolCalls) > 0) {
			return invalidInput("messages[%d]: content is required for role %q", i, m.Role)
		}
		if m.Role == RoleTool && m.ToolCallID == "" {
			return invalidInput("messages[%d]: tool messages require tool_call_id", i)
		}
	}
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return invalidInput("max_tokens must be positive, got %d", *req.MaxTokens)
	}
	for i, t := range req.Tools {
		if t.Name == "" {
			return invalidInput("tools[%d]: name is required", i)
		}
	}
	if _, err := compileFormat(req.ResponseFormat); err != nil {
		return err
	}
	return nil
}

// GetActiveModel returns the model id of the adapter that served the last
// successful call, or of the first adapter before any success. It does not
// guarantee the next call will be served by that adapter.
func (c *Client) GetActiveModel() string {
	return c.router.Active().Model()
}

// ActiveProvider returns the identity of the active adapter.
func (c *Client) ActiveProvider() ProviderIdentity {
	return c.router.Active().Provider()
}

// ActiveNative returns the vendor client of the active adapter.
func (c *Client) ActiveNative() interface{} {
	return c.router.ActiveNative()
}

// Providers returns the identities of the constructed adapters in priority
// order.
func (c *Client) Providers() []ProviderIdentity {
	adapters := c.router.Adapters()
	out := make([]ProviderIdentity, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, a.Provider())
	}
	return out
}

// Skipped returns the specifiers New could not build an adapter for.
func (c *Client) Skipped() []SkippedProvider {
	return append([]SkippedProvider(nil), c.skipped...)
}

// Close closes every adapter that implements Closer and joins their errors.
func (c *Client) Close() error {
	var errs []error
	for _, a := range c.router.Adapters() {
		if closer, ok := a.(Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
