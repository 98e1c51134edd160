package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"helpcenter-rag/internal/categorizer"
	"helpcenter-rag/internal/chromemdb"
	"helpcenter-rag/internal/chunker"
	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/db"
	"helpcenter-rag/internal/embedding"
	"helpcenter-rag/internal/enricher"
	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/llmservice"
	"helpcenter-rag/internal/memstore"
	"helpcenter-rag/internal/models"
	"helpcenter-rag/internal/mongodb"
	"helpcenter-rag/internal/parser"
	"helpcenter-rag/internal/pipeline"
	"helpcenter-rag/internal/rag"
)

// documentStore is what every backend offers to the pipeline and to search.
type documentStore interface {
	pipeline.Store
	rag.Searcher
}

type openedStore struct {
	documentStore
	// prepare creates tables or indexes, dropping existing documents when asked.
	prepare func(ctx context.Context, drop bool) error
	close   func() error
}

// loadConfig reads the configuration and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if s := c.String("store"); s != "" {
		cfg.Store = s
	}
	if c.Bool("dry-run") {
		cfg.Store = config.StoreMemory
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	dims := cfg.EmbedLLM.Dimensions

	switch cfg.Store {
	case config.StorePostgres:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		return &openedStore{
			documentStore: db.NewStore(bunDB, dims),
			prepare: func(ctx context.Context, drop bool) error {
				if drop {
					if err := db.DropDocuments(ctx, bunDB); err != nil {
						return err
					}
				}
				return db.InitDB(ctx, bunDB, dims)
			},
			close: bunDB.Close,
		}, nil

	case config.StoreChroma:
		if !cfg.Chroma.InMemory {
			if err := helper.CreateFolder(cfg.Chroma.Path); err != nil {
				return nil, err
			}
		}
		s, err := chromemdb.NewStore(&cfg.Chroma, dims)
		if err != nil {
			return nil, err
		}
		return &openedStore{
			documentStore: s,
			prepare: func(_ context.Context, drop bool) error {
				if drop {
					return s.Drop()
				}
				return nil
			},
			close: func() error { return nil },
		}, nil

	case config.StoreMongo:
		s, err := mongodb.Connect(ctx, &cfg.Mongo, dims)
		if err != nil {
			return nil, err
		}
		return &openedStore{
			documentStore: s,
			prepare: func(ctx context.Context, drop bool) error {
				if drop {
					if err := s.Drop(ctx); err != nil {
						return err
					}
				}
				return s.EnsureIndexes(ctx)
			},
			close: func() error { return s.Close(context.Background()) },
		}, nil

	case config.StoreMemory:
		return &openedStore{
			documentStore: memstore.New(),
			prepare:       func(context.Context, bool) error { return nil },
			close:         func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func newEmbeddingService(cfg *config.EmbedConfig) (*embedding.Service, error) {
	provider, err := embedding.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	retry := helper.DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	retry.Retryable = helper.IsRetryableAPIError
	return embedding.NewService(provider, cfg.Model, cfg.Dimensions, cfg.BatchSize, embedding.WithRetry(retry)), nil
}

func newPipeline(cfg *config.Config, store pipeline.Store) (*pipeline.Pipeline, error) {
	gen, err := llmservice.NewClient(&cfg.LLM)
	if err != nil {
		return nil, err
	}

	var describer parser.ImageDescriber
	if cfg.RAG.DescribeImages {
		vision, err := llmservice.NewClient(&cfg.VisionLLM)
		if err != nil {
			return nil, err
		}
		describer = llmservice.NewVisionDescriber(vision, &http.Client{Timeout: cfg.VisionLLM.Timeout}, cfg.RAG.MaxImageBytes, cfg.RAG.MinImagePixels)
	}

	embedder, err := newEmbeddingService(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}

	fallback, ok := models.ParseCategory(cfg.RAG.DefaultCategory)
	if !ok {
		log.Warn().Str("category", cfg.RAG.DefaultCategory).Msg("Unknown default category, using technical_support")
		fallback = models.CategoryTechnicalSupport
	}

	return pipeline.New(&cfg.RAG, pipeline.Deps{
		Normalizer:  parser.NewNormalizer(describer, parser.WithDecorativePredicate(parser.DefaultDecorative(cfg.RAG.MinImagePixels))),
		Categorizer: categorizer.New(gen, cfg.RAG.MaxCategorizeChars, fallback),
		Chunker:     chunker.New(gen, cfg.RAG.MaxChunkSize, cfg.RAG.MinChunkSize),
		Enricher:    enricher.New(gen, cfg.RAG.MaxContextChars, cfg.RAG.MaxPrefaceChars, cfg.RAG.EnrichMaxTokens),
		Embedder:    embedder,
		Store:       store,
	}), nil
}
