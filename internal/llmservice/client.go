package llmservice

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/models"
)

// Options tune a single completion.
type Options struct {
	Temperature float64
	MaxTokens   int
	// Stream receives partial output as it arrives. Retried attempts stream again.
	Stream func(ctx context.Context, chunk []byte) error
}

// Client wraps a langchaingo model with rate limiting and retries.
type Client struct {
	llm     llms.Model
	model   string
	limiter *rate.Limiter
	retry   helper.RetryConfig
	logger  zerolog.Logger
}

// NewClient builds a chat client against an OpenAI compatible endpoint.
func NewClient(llmConfig *config.LLMConfig) (*Client, error) {
	llm, err := openai.New(
		openai.WithBaseURL(llmConfig.BaseURL),
		openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
		openai.WithModel(llmConfig.Model),
		openai.WithHTTPClient(&http.Client{Timeout: llmConfig.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("init llm %s: %w", llmConfig.Model, err)
	}

	retry := helper.DefaultRetryConfig()
	retry.MaxRetries = llmConfig.MaxRetries
	retry.Retryable = helper.IsRetryableAPIError

	return NewClientWithModel(llm, llmConfig.Model, rate.NewLimiter(rate.Limit(llmConfig.RequestsPerSec), 1), retry), nil
}

// NewClientWithModel wraps an existing model. A nil limiter disables rate limiting.
func NewClientWithModel(llm llms.Model, model string, limiter *rate.Limiter, retry helper.RetryConfig) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		llm:     llm,
		model:   model,
		limiter: limiter,
		retry:   retry,
		logger:  log.With().Str("component", "llm").Str("model", model).Logger(),
	}
}

// Complete sends a single user prompt and returns the text of the first choice.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	return c.GenerateContent(ctx, msgContent, opts)
}

// GenerateContent sends arbitrary message parts, including images.
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent, opts Options) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Stream != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(opts.Stream))
	}

	var out string
	err := helper.Retry(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		res, err := c.llm.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Generation attempt failed")
			return err
		}
		if len(res.Choices) == 0 {
			return models.ErrEmptyResponse
		}
		out = res.Choices[0].Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return out, nil
}
