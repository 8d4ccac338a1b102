// Package llm adapts a chat-completion model to the small Completer
// interface the AI endpoints depend on.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultMaxTokens = 2048

var (
	ErrNotConfigured = errors.New("llm: not configured")
	ErrEmptyResponse = errors.New("llm: empty response")
)

type Options struct {
	Temperature float64
	MaxTokens   int
}

type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// RequestsPerMinute caps outbound calls across all users. Zero disables the cap.
	RequestsPerMinute int
}

type Client struct {
	model   llms.Model
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.Logger
}

// New returns ErrNotConfigured when no API key is set; callers keep a nil
// Completer in that case and answer 503.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm.New: %w", err)
	}
	return newClient(model, cfg, log), nil
}

func newClient(model llms.Model, cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{model: model, timeout: cfg.Timeout, log: log}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), cfg.RequestsPerMinute)
	}
	return c
}

func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("llm.Complete: rate limit: %w", err)
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(opts.Temperature),
		llms.WithMaxTokens(opts.MaxTokens),
	)
	if err != nil {
		c.log.Warn("llm completion failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return "", fmt.Errorf("llm.Complete: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", ErrEmptyResponse
	}
	c.log.Debug("llm completion", zap.Int("chars", len(out)), zap.Duration("elapsed", time.Since(start)))
	return out, nil
}
