package rag

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"helpcenter-rag/internal/llmservice"
	"helpcenter-rag/internal/models"
)

const (
	answerTemperature = 0.2
	answerMaxTokens   = 600
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, k int, language string) ([]models.SearchResult, error)
}

type Generator interface {
	Complete(ctx context.Context, prompt string, opts llmservice.Options) (string, error)
}

// RAG answers questions from the stored help center documents.
type RAG struct {
	embedder QueryEmbedder
	searcher Searcher
	gen      Generator
	topK     int
	logger   zerolog.Logger
}

func NewRAG(embedder QueryEmbedder, searcher Searcher, gen Generator, topK int) *RAG {
	return &RAG{
		embedder: embedder,
		searcher: searcher,
		gen:      gen,
		topK:     topK,
		logger:   log.With().Str("component", "rag").Logger(),
	}
}

// Retrieve returns the documents closest to the query. An empty language searches all.
func (r *RAG) Retrieve(ctx context.Context, query, language string) ([]models.SearchResult, error) {
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	docs, err := r.searcher.Search(ctx, queryEmbedding, r.topK, language)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	r.logger.Debug().Str("language", language).Int("results", len(docs)).Msg("Retrieved documents")
	return docs, nil
}

// Query retrieves context and asks the generator for an answer. When out is
// not nil the answer is streamed to it as well.
func (r *RAG) Query(ctx context.Context, query, language string, out io.Writer) (*models.PromptResponse, error) {
	docs, err := r.Retrieve(ctx, query, language)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents for query: %w", models.ErrNotFound)
	}

	var excerpts strings.Builder
	var sources []string
	seen := make(map[string]bool)
	for i, doc := range docs {
		fmt.Fprintf(&excerpts, "[%d] %s\n%s\n\n", i+1, doc.Title, doc.Content)
		src := doc.MetaData.IntercomURL
		if src == "" {
			src = doc.Title
		}
		if !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}

	opts := llmservice.Options{Temperature: answerTemperature, MaxTokens: answerMaxTokens}
	if out != nil {
		opts.Stream = func(_ context.Context, chunk []byte) error {
			_, err := out.Write(chunk)
			return err
		}
	}

	prompt := fmt.Sprintf(models.QueryPromptTemplate, excerpts.String(), query)
	answer, err := r.gen.Complete(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &models.PromptResponse{
		Query:   query,
		Source:  strings.Join(sources, "\n"),
		Content: strings.TrimSpace(answer),
	}, nil
}
