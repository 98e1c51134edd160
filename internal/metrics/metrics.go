package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage names used as label values.
const (
	StageNormalize  = "normalize"
	StageCategorize = "categorize"
	StageChunk      = "chunk"
	StageEnrich     = "enrich"
	StageClean      = "clean"
	StageEmbed      = "embed"
	StagePersist    = "persist"
)

var (
	ArticlesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpcenter_rag_articles_total",
		Help: "Articles handled by the ingestion pipeline by outcome",
	}, []string{"status"})

	DocumentsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpcenter_rag_documents_written_total",
		Help: "Documents upserted into the document store",
	}, []string{"language"})

	StaleDocumentsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpcenter_rag_stale_documents_deleted_total",
		Help: "Documents removed because their chunk index fell out of range",
	})

	StageFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpcenter_rag_stage_fallbacks_total",
		Help: "Times a pipeline stage fell back to its degraded behaviour",
	}, []string{"stage"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "helpcenter_rag_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	ChunksPerArticle = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "helpcenter_rag_chunks_per_language",
		Help:    "Chunks produced per article language",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 24, 32},
	})
)
