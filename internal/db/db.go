package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/models"
)

const DriverPQ = "pq"

type Document struct {
	bun.BaseModel `bun:"table:help_center_documents,alias:d"`
	ID            int64           `bun:"id,pk,autoincrement"`
	ArticleID     string          `bun:"article_id,notnull,unique:doc_key"`
	Language      string          `bun:"language,notnull,unique:doc_key"`
	ChunkIndex    int             `bun:"chunk_index,notnull,unique:doc_key"`
	Title         string          `bun:"title,notnull"`
	Content       string          `bun:"content,notnull"`
	Category      string          `bun:"category,notnull"`
	MetaData      models.Metadata `bun:"meta_data,type:jsonb,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

func fromModel(doc models.Document) *Document {
	key := doc.Key()
	return &Document{
		ArticleID:  key.ArticleID,
		Language:   key.Language,
		ChunkIndex: key.ChunkIndex,
		Title:      doc.Title,
		Content:    doc.Content,
		Category:   string(doc.Category),
		MetaData:   doc.MetaData,
		Embedding:  pgvector.NewVector(doc.Embedding),
		UpdatedAt:  time.Now().UTC(),
	}
}

func (d *Document) toModel() models.Document {
	return models.Document{
		Title:     d.Title,
		Content:   d.Content,
		Category:  models.Category(d.Category),
		Language:  d.Language,
		Embedding: d.Embedding.Slice(),
		MetaData:  d.MetaData,
	}
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is empty")
	}
	if cfg.Driver == DriverPQ {
		return sql.Open("postgres", cfg.URL)
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

// InitDB creates the vector extension, the documents table and an HNSW index
// over the embedding column cast to dims.
func InitDB(ctx context.Context, db *bun.DB, dims int) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Document)(nil)).
		Index("help_center_documents_embedding_idx").
		IfNotExists().
		ColumnExpr(fmt.Sprintf("(embedding::vector(%d)) vector_cosine_ops", dims)).
		Using("hnsw").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	return nil
}

func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

// Store persists documents in Postgres with pgvector.
type Store struct {
	db     *bun.DB
	dims   int
	logger zerolog.Logger
}

func NewStore(db *bun.DB, dims int) *Store {
	return &Store{
		db:     db,
		dims:   dims,
		logger: log.With().Str("component", "pgstore").Logger(),
	}
}

func (s *Store) Upsert(ctx context.Context, key models.DocumentKey, doc models.Document) error {
	if doc.Key() != key {
		return fmt.Errorf("%w: key %s does not match document %s", models.ErrStoreFailure, key, doc.Key())
	}
	if _, err := upsertQuery(s.db, fromModel(doc)).Exec(ctx); err != nil {
		return fmt.Errorf("%w: upsert %s: %v", models.ErrStoreFailure, key, err)
	}
	return nil
}

func (s *Store) DeleteStale(ctx context.Context, articleID, language string, valid []int) (int64, error) {
	res, err := deleteStaleQuery(s.db, articleID, language, valid).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: delete stale %s/%s: %v", models.ErrStoreFailure, articleID, language, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Find(ctx context.Context, key models.DocumentKey) (*models.Document, error) {
	row := new(Document)
	err := s.db.NewSelect().
		Model(row).
		Where("article_id = ?", key.ArticleID).
		Where("language = ?", key.Language).
		Where("chunk_index = ?", key.ChunkIndex).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %v", models.ErrStoreFailure, key, err)
	}
	doc := row.toModel()
	return &doc, nil
}

// SaveArticle upserts every document and removes stale chunks in a single
// transaction so a failure leaves the previous state in place.
func (s *Store) SaveArticle(ctx context.Context, articleID string, docsByLanguage map[string][]models.Document) (int64, error) {
	var deleted int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for lang, docs := range docsByLanguage {
			valid := make([]int, 0, len(docs))
			for _, doc := range docs {
				if _, err := upsertQuery(tx, fromModel(doc)).Exec(ctx); err != nil {
					return fmt.Errorf("upsert %s: %w", doc.Key(), err)
				}
				valid = append(valid, doc.MetaData.ChunkIndex)
			}
			res, err := deleteStaleQuery(tx, articleID, lang, valid).Exec(ctx)
			if err != nil {
				return fmt.Errorf("delete stale %s/%s: %w", articleID, lang, err)
			}
			n, _ := res.RowsAffected()
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	return deleted, nil
}

// Search returns the k nearest documents by cosine distance. Score is 1 - distance.
func (s *Store) Search(ctx context.Context, vector []float32, k int, language string) ([]models.SearchResult, error) {
	var rows []struct {
		Document
		Distance float64 `bun:"distance"`
	}
	if err := searchQuery(s.db, s.dims, vector, k, language).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: search: %v", models.ErrStoreFailure, err)
	}

	results := make([]models.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, models.SearchResult{
			Document: r.Document.toModel(),
			Score:    float32(1 - r.Distance),
		})
	}
	return results, nil
}

func upsertQuery(db bun.IDB, row *Document) *bun.InsertQuery {
	return db.NewInsert().
		Model(row).
		On("CONFLICT (article_id, language, chunk_index) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("content = EXCLUDED.content").
		Set("category = EXCLUDED.category").
		Set("meta_data = EXCLUDED.meta_data").
		Set("embedding = EXCLUDED.embedding").
		Set("updated_at = EXCLUDED.updated_at")
}

func deleteStaleQuery(db bun.IDB, articleID, language string, valid []int) *bun.DeleteQuery {
	q := db.NewDelete().
		Model((*Document)(nil)).
		Where("article_id = ?", articleID).
		Where("language = ?", language)
	if len(valid) > 0 {
		q = q.Where("chunk_index NOT IN (?)", bun.In(valid))
	}
	return q
}

func searchQuery(db bun.IDB, dims int, vector []float32, k int, language string) *bun.SelectQuery {
	expr := fmt.Sprintf("embedding::vector(%d) <=> ?", dims)
	q := db.NewSelect().
		Model((*Document)(nil)).
		ColumnExpr("d.*").
		ColumnExpr(expr+" AS distance", pgvector.NewVector(vector)).
		OrderExpr(expr, pgvector.NewVector(vector)).
		Limit(k)
	if language != "" {
		q = q.Where("language = ?", language)
	}
	return q
}
