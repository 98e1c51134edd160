package categorizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/llmservice"
	"helpcenter-rag/internal/metrics"
	"helpcenter-rag/internal/models"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string, opts llmservice.Options) (string, error)
}

// Categorizer assigns exactly one category to an article.
type Categorizer struct {
	gen      Generator
	maxChars int
	fallback models.Category
	logger   zerolog.Logger
}

// New creates a categorizer. The body sent to the model is capped at maxChars
// and fallback is returned whenever the model cannot give a valid label.
func New(gen Generator, maxChars int, fallback models.Category) *Categorizer {
	if _, ok := models.ParseCategory(string(fallback)); !ok {
		fallback = models.CategoryTechnicalSupport
	}
	return &Categorizer{
		gen:      gen,
		maxChars: maxChars,
		fallback: fallback,
		logger:   log.With().Str("component", "categorizer").Logger(),
	}
}

// Categorize never fails: generator errors and unknown labels yield the fallback.
func (c *Categorizer) Categorize(ctx context.Context, title, body string) models.Category {
	var defs strings.Builder
	for _, cat := range models.Categories {
		fmt.Fprintf(&defs, "- %s: %s\n", cat.Name, cat.Description)
	}
	prompt := fmt.Sprintf(models.CategoryPromptTemplate, defs.String(), title, helper.TruncateRunes(body, c.maxChars))

	res, err := c.gen.Complete(ctx, prompt, llmservice.Options{Temperature: 0, MaxTokens: 20})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Categorization failed, using fallback")
		metrics.StageFallbacks.WithLabelValues(metrics.StageCategorize).Inc()
		return c.fallback
	}

	label := NormalizeLabel(res)
	cat, ok := models.ParseCategory(label)
	if !ok {
		c.logger.Warn().Str("label", label).Msg("Unknown category, using fallback")
		metrics.StageFallbacks.WithLabelValues(metrics.StageCategorize).Inc()
		return c.fallback
	}
	return cat
}

// NormalizeLabel lowercases the first line of a model reply and strips
// quotes, backticks, punctuation and separators.
func NormalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "category:")
	s = strings.Trim(s, " \t\"'`.,;:!*")
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "-", " ")), "_")
}
