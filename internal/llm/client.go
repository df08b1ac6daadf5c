// Package llm provides an OpenAI-compatible chat-completion client with a
// primary provider and an optional fallback. Any gateway that speaks the
// OpenAI chat API (OpenAI itself, DeepSeek, Qwen-compatible endpoints, a
// local proxy) can be configured through BaseURL.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

var (
	// ErrNoProvider is returned by NewClient when no API key is configured.
	ErrNoProvider = errors.New("llm: no provider configured")
	// ErrEmptyCompletion is returned when the provider answers without choices.
	ErrEmptyCompletion = errors.New("llm: empty completion")
)

// Provider identifies one OpenAI-compatible endpoint.
type Provider struct {
	APIKey  string
	BaseURL string // empty means the public OpenAI endpoint
	Model   string // empty means gpt-4o-mini
}

func (p Provider) configured() bool { return strings.TrimSpace(p.APIKey) != "" }

// Config configures a Client.
type Config struct {
	Primary     Provider
	Fallback    Provider
	MaxTokens   int
	Temperature float32
}

type endpoint struct {
	client *openai.Client
	model  string
	name   string
}

// Client sends chat completions to the primary provider and retries once on
// the fallback when the primary fails.
type Client struct {
	primary     *endpoint
	fallback    *endpoint
	maxTokens   int
	temperature float32
}

// NewClient builds a Client. When only the fallback is configured it is
// promoted to primary.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{maxTokens: cfg.MaxTokens, temperature: cfg.Temperature}
	if c.maxTokens <= 0 {
		c.maxTokens = 800
	}

	if cfg.Primary.configured() {
		c.primary = newEndpoint(cfg.Primary, "primary")
	}
	if cfg.Fallback.configured() {
		fb := newEndpoint(cfg.Fallback, "fallback")
		if c.primary == nil {
			c.primary = fb
		} else {
			c.fallback = fb
		}
	}
	if c.primary == nil {
		return nil, ErrNoProvider
	}
	return c, nil
}

func newEndpoint(p Provider, name string) *endpoint {
	oc := openai.DefaultConfig(p.APIKey)
	if u := strings.TrimSpace(p.BaseURL); u != "" {
		oc.BaseURL = strings.TrimRight(u, "/")
	}
	model := p.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &endpoint{client: openai.NewClientWithConfig(oc), model: model, name: name}
}

// Model returns the primary model name.
func (c *Client) Model() string { return c.primary.model }

// HasFallback reports whether a fallback provider is configured.
func (c *Client) HasFallback() bool { return c.fallback != nil }

// Complete sends a system + user exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}

	out, err := c.complete(ctx, c.primary, msgs)
	if err == nil || c.fallback == nil || ctx.Err() != nil {
		return out, err
	}

	log.Warn().Err(err).Str("model", c.primary.model).Msg("llm primary failed, trying fallback")
	out, ferr := c.complete(ctx, c.fallback, msgs)
	if ferr != nil {
		return "", fmt.Errorf("both providers failed: primary: %v; fallback: %w", err, ferr)
	}
	return out, nil
}

func (c *Client) complete(ctx context.Context, ep *endpoint, msgs []openai.ChatCompletionMessage) (string, error) {
	resp, err := ep.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       ep.model,
		Messages:    msgs,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", ep.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
