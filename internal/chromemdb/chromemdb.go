package chromemdb

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/models"
)

const (
	metaArticleID  = "article_id"
	metaLanguage   = "language"
	metaChunkIndex = "chunk_index"
	metaTitle      = "title"
	metaCategory   = "category"
	metaData       = "meta_data"
)

// Store keeps documents in a chromem-go collection, optionally persisted to disk.
type Store struct {
	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
	dims       int
	dbPath     string
	compress   bool
	logger     zerolog.Logger
}

// NewStore opens the database described by cfg and gets or creates its collection.
func NewStore(cfg *config.ChromaConfig, dims int) (*Store, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}
	return newStore(db, cfg.Collection, dims, cfg.Path, cfg.Compress)
}

func newStore(db *chromem.DB, collectionName string, dims int, dbPath string, compress bool) (*Store, error) {
	c, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &Store{
		db:         db,
		collection: c,
		dims:       dims,
		dbPath:     dbPath,
		compress:   compress,
		logger:     log.With().Str("component", "chromem").Str("collection", collectionName).Logger(),
	}, nil
}

func docID(key models.DocumentKey) string {
	return key.String()
}

func toChromem(doc models.Document) (chromem.Document, error) {
	meta, err := json.Marshal(doc.MetaData)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("encode metadata: %w", err)
	}
	key := doc.Key()
	return chromem.Document{
		ID:      docID(key),
		Content: doc.Content,
		Metadata: map[string]string{
			metaArticleID:  key.ArticleID,
			metaLanguage:   key.Language,
			metaChunkIndex: strconv.Itoa(key.ChunkIndex),
			metaTitle:      doc.Title,
			metaCategory:   string(doc.Category),
			metaData:       string(meta),
		},
		Embedding: doc.Embedding,
	}, nil
}

func fromChromem(id, content string, metadata map[string]string, embedding []float32) (models.Document, error) {
	doc := models.Document{
		Title:     metadata[metaTitle],
		Content:   content,
		Category:  models.Category(metadata[metaCategory]),
		Language:  metadata[metaLanguage],
		Embedding: embedding,
	}
	if err := json.Unmarshal([]byte(metadata[metaData]), &doc.MetaData); err != nil {
		return models.Document{}, fmt.Errorf("decode metadata of %s: %w", id, err)
	}
	return doc, nil
}

// Upsert adds the document, replacing any previous one with the same key.
func (s *Store) Upsert(ctx context.Context, key models.DocumentKey, doc models.Document) error {
	if doc.Key() != key {
		return fmt.Errorf("%w: key %s does not match document %s", models.ErrStoreFailure, key, doc.Key())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(ctx, doc)
}

func (s *Store) upsert(ctx context.Context, doc models.Document) error {
	cdoc, err := toChromem(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	if err := s.collection.AddDocument(ctx, cdoc); err != nil {
		return fmt.Errorf("%w: add %s: %v", models.ErrStoreFailure, cdoc.ID, err)
	}
	return nil
}

func (s *Store) DeleteStale(ctx context.Context, articleID, language string, valid []int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.staleIDs(ctx, articleID, language, valid)
	if err != nil {
		return 0, err
	}
	return s.delete(ctx, ids)
}

// staleIDs lists documents of the article language whose chunk index is not in valid.
// chromem has no metadata scan, so a filtered query with a unit vector stands in for one.
func (s *Store) staleIDs(ctx context.Context, articleID, language string, valid []int) ([]string, error) {
	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	anchor := make([]float32, s.dims)
	anchor[0] = 1
	where := map[string]string{metaArticleID: articleID, metaLanguage: language}
	results, err := s.collection.QueryEmbedding(ctx, anchor, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s/%s: %v", models.ErrStoreFailure, articleID, language, err)
	}

	keep := make(map[string]bool, len(valid))
	for _, i := range valid {
		keep[strconv.Itoa(i)] = true
	}
	var ids []string
	for _, r := range results {
		if !keep[r.Metadata[metaChunkIndex]] {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (s *Store) delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("%w: delete %s: %v", models.ErrStoreFailure, strings.Join(ids, ","), err)
	}
	return int64(len(ids)), nil
}

func (s *Store) Find(ctx context.Context, key models.DocumentKey) (*models.Document, error) {
	cdoc, err := s.collection.GetByID(ctx, docID(key))
	if err != nil {
		return nil, models.ErrNotFound
	}
	doc, err := fromChromem(cdoc.ID, cdoc.Content, cdoc.Metadata, cdoc.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
	}
	return &doc, nil
}

// SaveArticle computes stale documents for every language before writing,
// then upserts and finally deletes. chromem has no transactions, so an
// interrupted save can leave extra chunks but never loses current ones.
func (s *Store) SaveArticle(ctx context.Context, articleID string, docsByLanguage map[string][]models.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for lang, docs := range docsByLanguage {
		valid := make([]int, 0, len(docs))
		for _, doc := range docs {
			valid = append(valid, doc.MetaData.ChunkIndex)
		}
		ids, err := s.staleIDs(ctx, articleID, lang, valid)
		if err != nil {
			return 0, err
		}
		stale = append(stale, ids...)
	}

	for _, docs := range docsByLanguage {
		for _, doc := range docs {
			if err := s.upsert(ctx, doc); err != nil {
				return 0, err
			}
		}
	}

	deleted, err := s.delete(ctx, stale)
	if err != nil {
		return 0, err
	}
	s.logger.Debug().Str("article_id", articleID).Int64("deleted", deleted).Msg("Article saved")
	return deleted, nil
}

// Search ranks documents by cosine similarity. An empty language matches all.
func (s *Store) Search(ctx context.Context, vector []float32, k int, language string) ([]models.SearchResult, error) {
	n := s.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if k <= 0 || k > n {
		k = n
	}
	var where map[string]string
	if language != "" {
		where = map[string]string{metaLanguage: language}
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", models.ErrStoreFailure, err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		doc, err := fromChromem(r.ID, r.Content, r.Metadata, r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreFailure, err)
		}
		out = append(out, models.SearchResult{Document: doc, Score: r.Similarity})
	}
	return out, nil
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Drop removes the collection and recreates it empty.
func (s *Store) Drop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.collection.Name
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	c, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}
	s.collection = c
	return nil
}

// Export writes the collection to a single file next to the database,
// encrypted when encryptionKey is set. It returns the file path.
func (s *Store) Export(encryptionKey string) (string, error) {
	if s.dbPath == "" {
		return "", fmt.Errorf("db path is required")
	}
	ext := ".gob"
	if s.compress {
		ext += ".gz"
	}
	if encryptionKey != "" {
		ext += ".enc"
	}
	filePath := filepath.Join(s.dbPath, s.collection.Name+ext)

	s.logger.Debug().Str("file", filePath).Bool("compress", s.compress).Msg("Exporting collection")
	if err := s.db.ExportToFile(filePath, s.compress, encryptionKey, s.collection.Name); err != nil {
		return "", fmt.Errorf("failed to export database: %w", err)
	}
	return filePath, nil
}

// Import loads a file written by Export and reattaches the collection.
func (s *Store) Import(filePath, encryptionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.collection.Name
	if err := s.db.ImportFromFile(filePath, encryptionKey, name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	c := s.db.GetCollection(name, nil)
	if c == nil {
		return fmt.Errorf("collection %s missing after import", name)
	}
	s.collection = c
	return nil
}
