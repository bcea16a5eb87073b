package ai

import (
	"context"
	"fmt"
	"sync"

	"backstage/internal/models"
	"backstage/shared/apperror"
)

// BaseURLs overrides vendor endpoints; empty fields keep the SDK defaults.
type BaseURLs struct {
	OpenAI    string `yaml:"openai"`
	Anthropic string `yaml:"anthropic"`
	Google    string `yaml:"google"`
	DeepSeek  string `yaml:"deepseek"`
}

func (b BaseURLs) get(provider string) string {
	switch provider {
	case models.ProviderOpenAI:
		return b.OpenAI
	case models.ProviderAnthropic:
		return b.Anthropic
	case models.ProviderGoogle:
		return b.Google
	case models.ProviderDeepSeek:
		return b.DeepSeek
	}
	return ""
}

// AdapterFactory builds the provider for one model.
type AdapterFactory func(ctx context.Context, apiKey, model, baseURL string) (Provider, error)

var defaultFactories = map[string]AdapterFactory{
	models.ProviderOpenAI: func(_ context.Context, apiKey, model, baseURL string) (Provider, error) {
		return NewOpenAI(apiKey, model, baseURL), nil
	},
	models.ProviderAnthropic: func(_ context.Context, apiKey, model, baseURL string) (Provider, error) {
		return NewAnthropic(apiKey, model, baseURL), nil
	},
	models.ProviderGoogle: func(ctx context.Context, apiKey, model, baseURL string) (Provider, error) {
		return NewGoogle(ctx, apiKey, model, baseURL)
	},
	models.ProviderDeepSeek: func(_ context.Context, apiKey, model, baseURL string) (Provider, error) {
		return NewDeepSeek(apiKey, model, baseURL), nil
	},
}

type Option func(*Client)

func WithBaseURLs(urls BaseURLs) Option {
	return func(c *Client) { c.baseURLs = urls }
}

// WithAdapterFactory replaces how adapters for provider are built.
func WithAdapterFactory(provider string, f AdapterFactory) Option {
	return func(c *Client) { c.factories[provider] = f }
}

// Client is the unified chat client. It builds one adapter per model on first
// use and keeps it for its own lifetime; nothing is shared between clients.
type Client struct {
	keys      models.APIKeys
	baseURLs  BaseURLs
	factories map[string]AdapterFactory

	mu       sync.Mutex
	adapters map[string]Provider
}

func NewClient(keys models.APIKeys, opts ...Option) *Client {
	c := &Client{
		keys:      keys,
		factories: make(map[string]AdapterFactory, len(defaultFactories)),
		adapters:  make(map[string]Provider),
	}
	for name, f := range defaultFactories {
		c.factories[name] = f
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFactory returns a constructor for per-request clients sharing opts.
func NewFactory(opts ...Option) func(models.APIKeys) ChatClient {
	return func(keys models.APIKeys) ChatClient {
		return NewClient(keys, opts...)
	}
}

func (c *Client) Send(ctx context.Context, model string, messages []Message, systemPrompt string) (string, error) {
	p, err := c.adapter(ctx, model)
	if err != nil {
		return "", err
	}
	return p.Send(ctx, messages, systemPrompt)
}

func (c *Client) Stream(ctx context.Context, model string, messages []Message, systemPrompt string) (Stream, error) {
	p, err := c.adapter(ctx, model)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, messages, systemPrompt)
}

func (c *Client) adapter(ctx context.Context, model string) (Provider, error) {
	const op = "Client.adapter"

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.adapters[model]; ok {
		return p, nil
	}

	provider, ok := ResolveProvider(model)
	if !ok {
		return nil, apperror.E(apperror.CodeUnknownModel, op, fmt.Sprintf("Unknown model: %s", model), nil)
	}

	key := c.keys.Get(provider)
	if key == "" {
		msg := fmt.Sprintf("%s API key not configured", providerDisplayName(provider))
		return nil, apperror.E(apperror.CodeMissingCredential, op, msg, nil)
	}

	factory, ok := c.factories[provider]
	if !ok {
		return nil, apperror.E(apperror.CodeInternal, op, fmt.Sprintf("Unsupported provider: %s", provider), nil)
	}

	p, err := factory(ctx, key, model, c.baseURLs.get(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", provider, err)
	}
	c.adapters[model] = p
	return p, nil
}
