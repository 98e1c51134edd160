package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"helpcenter-rag/internal/cleaner"
	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/embedding"
	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/metrics"
	"helpcenter-rag/internal/models"
)

type Normalizer interface {
	Normalize(ctx context.Context, rawHTML string) (string, error)
}

type Categorizer interface {
	Categorize(ctx context.Context, title, body string) models.Category
}

type Chunker interface {
	Chunk(ctx context.Context, articleID, body string) []models.Chunk
}

type Enricher interface {
	Enrich(ctx context.Context, document string, chunks []models.Chunk, language string) []models.EnrichedChunk
}

// Embedder returns one result per input text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) []embedding.Result
	Model() string
	Dimensions() int
}

// Store persists documents keyed by {article_id, language, chunk_index}.
type Store interface {
	Upsert(ctx context.Context, key models.DocumentKey, doc models.Document) error
	DeleteStale(ctx context.Context, articleID, language string, valid []int) (int64, error)
	Find(ctx context.Context, key models.DocumentKey) (*models.Document, error)
	SaveArticle(ctx context.Context, articleID string, docsByLanguage map[string][]models.Document) (int64, error)
}

// Status is the terminal state of an article.
type Status string

const (
	StatusPersisted Status = "persisted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is the result of processing one article.
type Outcome struct {
	ArticleID    string
	Status       Status
	Reason       string
	Languages    []string
	Multilingual bool
	Documents    int
	Deleted      int64
}

type Failure struct {
	ArticleID string
	Reason    string
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	RunID            string
	Processed        int
	Skipped          int
	Failed           int
	DocumentsWritten int
	StaleDeleted     int64
	Multilingual     int
	SingleLanguage   int
	Failures         []Failure
	Duration         time.Duration
}

func (s *Summary) record(o Outcome) {
	switch o.Status {
	case StatusPersisted:
		s.Processed++
		s.DocumentsWritten += o.Documents
		s.StaleDeleted += o.Deleted
		if o.Multilingual {
			s.Multilingual++
		} else {
			s.SingleLanguage++
		}
	case StatusSkipped:
		s.Skipped++
		s.StaleDeleted += o.Deleted
	case StatusFailed:
		s.Failed++
		s.Failures = append(s.Failures, Failure{ArticleID: o.ArticleID, Reason: o.Reason})
	}
}

// Deps are the collaborators a pipeline drives.
type Deps struct {
	Normalizer  Normalizer
	Categorizer Categorizer
	Chunker     Chunker
	Enricher    Enricher
	Embedder    Embedder
	Store       Store
}

// Pipeline turns articles into embedded, uniquely keyed documents.
type Pipeline struct {
	deps           Deps
	policy         *Policy
	embedWithTitle bool
	workers        int
	logger         zerolog.Logger
}

func New(cfg *config.RAGConfig, deps Deps) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		deps:           deps,
		policy:         NewPolicy(cfg),
		embedWithTitle: cfg.EmbedWithTitle,
		workers:        workers,
		logger:         log.With().Str("component", "pipeline").Logger(),
	}
}

// Run processes every article and returns the summary. A failing article
// never stops the run; a cancelled context stops scheduling new ones.
func (p *Pipeline) Run(ctx context.Context, articles []models.Article) (*Summary, error) {
	runID, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	logger := p.logger.With().Str("run_id", runID).Logger()
	logger.Info().Int("articles", len(articles)).Int("workers", p.workers).Msg("Starting run")

	summary := &Summary{RunID: runID}
	var mu sync.Mutex
	record := func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		summary.record(o)
	}

	if p.workers == 1 {
		for i := range articles {
			if ctx.Err() != nil {
				break
			}
			record(p.ProcessArticle(ctx, &articles[i]))
		}
	} else {
		pool, err := ants.NewPool(p.workers)
		if err != nil {
			return nil, fmt.Errorf("create worker pool: %w", err)
		}
		defer pool.Release()

		var wg sync.WaitGroup
		for i := range articles {
			if ctx.Err() != nil {
				break
			}
			a := &articles[i]
			wg.Add(1)
			if err := pool.Submit(func() {
				defer wg.Done()
				record(p.ProcessArticle(ctx, a))
			}); err != nil {
				wg.Done()
				record(Outcome{ArticleID: a.ID.String(), Status: StatusFailed, Reason: err.Error()})
			}
		}
		wg.Wait()
	}

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].ArticleID < summary.Failures[j].ArticleID
	})
	summary.Duration = time.Since(start)

	logger.Info().
		Int("processed", summary.Processed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("documents", summary.DocumentsWritten).
		Int64("stale_deleted", summary.StaleDeleted).
		Int("multilingual", summary.Multilingual).
		Int("single_language", summary.SingleLanguage).
		Dur("duration", summary.Duration).
		Msg("Run finished")

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// ProcessArticle builds every document of the article and saves them in one
// SaveArticle call.
func (p *Pipeline) ProcessArticle(ctx context.Context, a *models.Article) (o Outcome) {
	defer func() {
		metrics.ArticlesProcessed.WithLabelValues(string(o.Status)).Inc()
	}()

	o, docsByLanguage := p.Prepare(ctx, a)
	if o.Status != "" {
		return o
	}

	logger := p.logger.With().Str("article_id", o.ArticleID).Logger()
	if err := ctx.Err(); err != nil {
		return p.fail(o, fmt.Errorf("cancelled before persistence: %w", err))
	}

	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(metrics.StagePersist))
	deleted, err := p.deps.Store.SaveArticle(ctx, o.ArticleID, docsByLanguage)
	timer.ObserveDuration()
	if err != nil {
		return p.fail(o, fmt.Errorf("save article: %w", err))
	}

	for lang, docs := range docsByLanguage {
		o.Documents += len(docs)
		metrics.DocumentsWritten.WithLabelValues(lang).Add(float64(len(docs)))
	}
	o.Deleted = deleted
	metrics.StaleDocumentsDeleted.Add(float64(deleted))

	if o.Documents == 0 {
		logger.Info().Str("reason", ReasonNoContent).Int64("deleted", deleted).Msg("Article skipped")
		o.Status = StatusSkipped
		o.Reason = ReasonNoContent
		return o
	}
	o.Status = StatusPersisted

	logger.Info().Strs("languages", o.Languages).Int("documents", o.Documents).Int64("deleted", deleted).Msg("Article persisted")
	return o
}

// Prepare runs every stage up to persistence. A non-empty Status on the
// returned outcome means the article ends there as skipped or failed.
func (p *Pipeline) Prepare(ctx context.Context, a *models.Article) (Outcome, map[string][]models.Document) {
	o := Outcome{ArticleID: a.ID.String()}
	logger := p.logger.With().Str("article_id", o.ArticleID).Logger()

	d := p.policy.Evaluate(a)
	o.Multilingual = d.Multilingual
	if !d.Eligible {
		logger.Info().Str("reason", d.Reason).Msg("Article skipped")
		o.Status = StatusSkipped
		o.Reason = d.Reason
		return o, nil
	}

	docsByLanguage := make(map[string][]models.Document, len(d.Languages))
	for _, lang := range d.Languages {
		docs, err := p.processLanguage(ctx, a, lang, d.Multilingual)
		if err != nil {
			o = p.fail(o, fmt.Errorf("language %s: %w", lang, err))
			return o, nil
		}
		// An emptied language is kept with no documents so its old chunks are removed.
		docsByLanguage[lang] = docs
		if len(docs) > 0 {
			o.Languages = append(o.Languages, lang)
		}
	}
	return o, docsByLanguage
}

func (p *Pipeline) fail(o Outcome, err error) Outcome {
	p.logger.Error().Err(err).Str("article_id", o.ArticleID).Msg("Article failed")
	o.Status = StatusFailed
	o.Reason = err.Error()
	o.Documents = 0
	return o
}

// processLanguage returns no documents and no error when the language has
// nothing left after normalization.
func (p *Pipeline) processLanguage(ctx context.Context, a *models.Article, lang string, multilingual bool) ([]models.Document, error) {
	logger := p.logger.With().Str("article_id", a.ID.String()).Str("language", lang).Logger()
	tr, _ := a.Content(lang)
	title := ArticleTitle(a, tr)

	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(metrics.StageNormalize))
	body, err := p.deps.Normalizer.Normalize(ctx, tr.Body)
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	if body == "" {
		logger.Info().Msg("Empty body after normalization, skipping language")
		return nil, nil
	}

	timer = prometheus.NewTimer(metrics.StageDuration.WithLabelValues(metrics.StageCategorize))
	category := p.deps.Categorizer.Categorize(ctx, title, body)
	timer.ObserveDuration()

	timer = prometheus.NewTimer(metrics.StageDuration.WithLabelValues(metrics.StageChunk))
	chunks := p.deps.Chunker.Chunk(ctx, a.ID.String(), body)
	timer.ObserveDuration()
	if len(chunks) == 0 {
		logger.Info().Msg("No chunks produced, skipping language")
		return nil, nil
	}

	timer = prometheus.NewTimer(metrics.StageDuration.WithLabelValues(metrics.StageEnrich))
	enriched := p.deps.Enricher.Enrich(ctx, body, chunks, lang)
	timer.ObserveDuration()

	timer = prometheus.NewTimer(metrics.StageDuration.WithLabelValues(metrics.StageClean))
	contents := make([]string, 0, len(enriched))
	inputs := make([]string, 0, len(enriched))
	for _, ec := range enriched {
		content := cleaner.Clean(ec.Text())
		if content == "" {
			logger.Debug().Int("chunk", ec.Index).Msg("Chunk empty after cleaning, dropped")
			continue
		}
		contents = append(contents, content)
		inputs = append(inputs, p.embeddingInput(title, content))
	}

	timer.ObserveDuration()

	timer = prometheus.NewTimer(metrics.StageDuration.WithLabelValues(metrics.StageEmbed))
	results := p.deps.Embedder.EmbedBatch(ctx, inputs)
	timer.ObserveDuration()

	type survivor struct {
		content string
		vector  []float32
	}
	var kept []survivor
	for i, res := range results {
		if res.Err != nil {
			logger.Warn().Err(res.Err).Int("chunk", i).Msg("Embedding failed, chunk dropped")
			continue
		}
		kept = append(kept, survivor{content: contents[i], vector: res.Vector})
	}
	if len(kept) == 0 {
		return nil, errors.New("no chunk survived cleaning and embedding")
	}
	metrics.ChunksPerArticle.Observe(float64(len(kept)))

	inputKind := EmbeddingInputContent
	if p.embedWithTitle {
		inputKind = EmbeddingInputTitleContent
	}

	docs := make([]models.Document, 0, len(kept))
	for i, s := range kept {
		docs = append(docs, BuildDocument(DocumentInput{
			Article:        a,
			Translation:    tr,
			Language:       lang,
			Category:       category,
			Content:        s.content,
			Embedding:      s.vector,
			ChunkIndex:     i,
			TotalChunks:    len(kept),
			Multilingual:   multilingual,
			CollectionID:   p.policy.CollectionID(),
			EmbeddingModel: p.deps.Embedder.Model(),
			Dimensions:     p.deps.Embedder.Dimensions(),
			EmbeddingInput: inputKind,
		}))
	}
	return docs, nil
}

func (p *Pipeline) embeddingInput(title, content string) string {
	if p.embedWithTitle {
		return title + "\n\n" + content
	}
	return content
}
