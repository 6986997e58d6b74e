// Package llm turns a system/user prompt pair into a decoded JSON object using
// a remote language model, with a bounded retry policy and tolerant parsing of
// the model's reply.
package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"docverify/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultTemperature  = 0.1
	DefaultMaxTokens    = 2000
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 500 * time.Millisecond
)

type Config struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string
	Temperature       float64
	MaxTokens         int
	MaxRetries        int
	RetryBackoff      time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Result is a successfully decoded model reply.
type Result struct {
	Fields   map[string]any
	Raw      string
	Attempts int
	Usage    Usage
	Provider string
	Model    string
}

type Client struct {
	provider     Provider
	temperature  float64
	maxTokens    int
	maxRetries   int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// New builds a client from cfg. Without an API key the client is disabled:
// no provider is constructed and every call fails with MissingCredential.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.APIKey == "" {
		return newClient(cfg, nil, logger, m), nil
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, provider, logger, m), nil
}

// NewWithProvider wraps an already-built provider in the retry policy.
func NewWithProvider(cfg Config, provider Provider, logger *zap.Logger, m *metrics.Metrics) *Client {
	return newClient(cfg, provider, logger, m)
}

func newClient(cfg Config, provider Provider, logger *zap.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		provider:     provider,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		limiter:      rate.NewLimiter(rate.Inf, 1),
		logger:       logger,
		metrics:      m,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.retryBackoff < 0 {
		c.retryBackoff = 0
	}
	if rpm := cfg.RequestsPerMinute; rpm > 0 {
		burst := rpm
		if burst > 5 {
			burst = 5
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), burst)
	}
	return c
}

func (c *Client) Enabled() bool {
	return c.provider != nil
}

// ExtractJSON sends the prompts and returns the decoded JSON object from the
// reply. Transport errors and unparseable replies are retried up to the
// configured number of attempts; each attempt is a fresh, independent call.
func (c *Client) ExtractJSON(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	if c.provider == nil {
		c.logger.Error("llm extraction skipped: no api credential configured")
		return Result{}, &ExtractionFailure{Kind: MissingCredential, Err: ErrMissingCredential}
	}

	providerName := c.provider.Name()
	prompt := Prompt{
		System:      systemPrompt,
		User:        userPrompt,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var (
		usage    Usage
		lastErr  error
		lastKind FailureKind
		attempt  int
	)
	for attempt = 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 && c.retryBackoff > 0 {
			backoff := c.retryBackoff * time.Duration(1<<(attempt-2))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, &ExtractionFailure{Kind: lastKind, Attempts: attempt - 1, Err: errors.Join(lastErr, ctx.Err())}
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, &ExtractionFailure{Kind: TransportFailure, Attempts: attempt - 1, Err: err}
		}

		requestID := uuid.NewString()
		log := c.logger.With(
			zap.String("provider", providerName),
			zap.String("model", c.provider.Model()),
			zap.String("request_id", requestID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxRetries),
		)

		start := time.Now()
		text, callUsage, err := c.provider.Complete(ctx, prompt)
		elapsed := time.Since(start)
		usage.Add(callUsage)
		if err != nil {
			lastErr, lastKind = err, TransportFailure
			c.metrics.LLMAttempt(providerName, string(TransportFailure), elapsed)
			log.Warn("llm call failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		fields, raw, err := ParseJSONObject(text)
		if err != nil {
			lastErr, lastKind = err, MalformedResponse
			c.metrics.LLMAttempt(providerName, string(MalformedResponse), elapsed)
			log.Warn("llm response not parseable", zap.Error(err), zap.Int("size", len(text)))
			continue
		}

		c.metrics.LLMAttempt(providerName, "ok", elapsed)
		log.Info("llm response",
			zap.Int("size", len(text)),
			zap.Int64("tokens_in", callUsage.InputTokens),
			zap.Int64("tokens_out", callUsage.OutputTokens),
			zap.Duration("elapsed", elapsed),
		)
		return Result{
			Fields:   fields,
			Raw:      raw,
			Attempts: attempt,
			Usage:    usage,
			Provider: providerName,
			Model:    c.provider.Model(),
		}, nil
	}

	attempts := attempt
	if attempts > c.maxRetries {
		attempts = c.maxRetries
	}
	c.logger.Error("llm extraction exhausted retries",
		zap.String("provider", providerName),
		zap.String("kind", string(lastKind)),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return Result{}, &ExtractionFailure{Kind: lastKind, Attempts: attempts, Err: lastErr}
}
