package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/metrics"
	"helpcenter-rag/internal/models"
)

// Provider turns texts into vectors, one per input and in order.
type Provider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is the embedding outcome of a single text.
type Result struct {
	Vector []float32
	Err    error
}

// Service batches texts through a provider and checks vector dimensions.
type Service struct {
	provider   Provider
	model      string
	dimensions int
	batchSize  int
	retry      helper.RetryConfig
	logger     zerolog.Logger
}

type Option func(*Service)

// WithRetry replaces the retry policy applied to every provider call.
func WithRetry(cfg helper.RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

func NewService(provider Provider, model string, dimensions, batchSize int, opts ...Option) *Service {
	if batchSize <= 0 {
		batchSize = 1
	}
	retry := helper.DefaultRetryConfig()
	retry.Retryable = helper.IsRetryableAPIError

	s := &Service{
		provider:   provider,
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
		retry:      retry,
		logger:     log.With().Str("component", "embedding").Str("model", model).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Model() string   { return s.model }
func (s *Service) Dimensions() int { return s.dimensions }

// EmbedBatch returns one result per text. A failed batch is retried item by
// item so a single bad text only fails itself.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := s.embed(ctx, batch)
		if err == nil && len(vectors) != len(batch) {
			err = fmt.Errorf("%w: got %d vectors for %d texts", models.ErrMalformedResponse, len(vectors), len(batch))
		}
		if err != nil {
			if len(batch) == 1 {
				results[start] = Result{Err: fmt.Errorf("embed text: %w", err)}
				continue
			}
			s.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("Batch embedding failed, retrying one by one")
			for i, text := range batch {
				vec, err := s.embedOne(ctx, text)
				results[start+i] = Result{Vector: vec, Err: err}
			}
			continue
		}
		for i, vec := range vectors {
			results[start+i] = Result{Vector: vec, Err: s.checkDimensions(vec)}
		}
	}

	for _, r := range results {
		if r.Err != nil {
			metrics.StageFallbacks.WithLabelValues(metrics.StageEmbed).Inc()
		}
	}
	return results
}

// EmbedQuery embeds a single search query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embedOne(ctx, text)
}

// embed calls the provider, retrying rate limits and server errors.
func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := helper.Retry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		vectors, err = s.provider.EmbedDocuments(ctx, texts)
		if err != nil {
			s.logger.Debug().Err(err).Int("texts", len(texts)).Msg("Embedding attempt failed")
		}
		return err
	})
	return vectors, err
}

func (s *Service) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for 1 text", models.ErrMalformedResponse, len(vectors))
	}
	if err := s.checkDimensions(vectors[0]); err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *Service) checkDimensions(vec []float32) error {
	if len(vec) != s.dimensions {
		return fmt.Errorf("%w: want %d, got %d", models.ErrDimensionMismatch, s.dimensions, len(vec))
	}
	return nil
}
