package enricher

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/llmservice"
	"helpcenter-rag/internal/metrics"
	"helpcenter-rag/internal/models"
)

const enrichTemperature = 0.1

var (
	thinkTagRe     = regexp.MustCompile(models.ThinkTag)
	contextLabelRe = regexp.MustCompile(`(?i)^\s*(context|contexto)\s*:\s*`)
)

// Generator produces a completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string, opts llmservice.Options) (string, error)
}

// Enricher prepends a short situating context to each chunk.
type Enricher struct {
	gen             Generator
	maxDocChars     int
	maxPrefaceChars int
	maxTokens       int
	logger          zerolog.Logger
}

func New(gen Generator, maxDocChars, maxPrefaceChars, maxTokens int) *Enricher {
	return &Enricher{
		gen:             gen,
		maxDocChars:     maxDocChars,
		maxPrefaceChars: maxPrefaceChars,
		maxTokens:       maxTokens,
		logger:          log.With().Str("component", "enricher").Logger(),
	}
}

// Enrich returns one enriched chunk per input chunk, in order. A chunk whose
// context cannot be generated keeps its original text and an empty preface.
func (e *Enricher) Enrich(ctx context.Context, document string, chunks []models.Chunk, language string) []models.EnrichedChunk {
	doc := helper.TruncateRunes(document, e.maxDocChars)

	out := make([]models.EnrichedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		preface, err := e.generateContext(ctx, doc, chunk.Content, language)
		if err != nil {
			e.logger.Warn().Err(err).Str("article_id", chunk.ArticleID).Int("chunk_index", chunk.Index).Msg("Enrichment failed, keeping chunk without context")
			metrics.StageFallbacks.WithLabelValues(metrics.StageEnrich).Inc()
			preface = ""
		}
		out = append(out, models.EnrichedChunk{Chunk: chunk, Preface: preface})
	}
	return out
}

func (e *Enricher) generateContext(ctx context.Context, document, chunk, language string) (string, error) {
	prompt := fmt.Sprintf(models.ContextPromptTemplate, document, chunk, language)

	res, err := e.gen.Complete(ctx, prompt, llmservice.Options{Temperature: enrichTemperature, MaxTokens: e.maxTokens})
	if err != nil {
		return "", err
	}
	preface := CleanPreface(res, e.maxPrefaceChars)
	if preface == "" {
		return "", models.ErrEmptyResponse
	}
	return preface, nil
}

// CleanPreface strips reasoning blocks and context labels, flattens the text
// to one line and caps it at maxChars on a word boundary.
func CleanPreface(s string, maxChars int) string {
	s = thinkTagRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = contextLabelRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(strings.ReplaceAll(s, "---", ""))
	return helper.TruncateWords(s, maxChars)
}
