package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/models"
)

const (
	keyIndexName   = "doc_key"
	numCandidatesX = 10
)

// Store writes documents to a MongoDB collection and queries them through
// an Atlas vector search index.
type Store struct {
	coll         *mongo.Collection
	vectorIndex  string
	dims         int
	transactions bool
	logger       zerolog.Logger
}

// Connect opens a client for cfg and returns a store over its collection.
// Call Close on the store when done.
func Connect(ctx context.Context, cfg *config.MongoConfig, dims int) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb uri is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	return NewStore(coll, cfg.VectorIndex, dims, !cfg.DisableTransactions), nil
}

func NewStore(coll *mongo.Collection, vectorIndex string, dims int, transactions bool) *Store {
	return &Store{
		coll:         coll,
		vectorIndex:  vectorIndex,
		dims:         dims,
		transactions: transactions,
		logger:       log.With().Str("component", "mongodb").Str("collection", coll.Name()).Logger(),
	}
}

func (s *Store) Close(ctx context.Context) error {
	return s.coll.Database().Client().Disconnect(ctx)
}

// EnsureIndexes creates the unique key index. The vector search index is
// attempted as well; deployments without Atlas Search only get a warning.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "meta_data.article_id", Value: 1},
			{Key: "meta_data.language", Value: 1},
			{Key: "meta_data.chunk_index", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(keyIndexName),
	})
	if err != nil {
		return fmt.Errorf("%w: create key index: %v", models.ErrStoreFailure, err)
	}

	_, err = s.coll.SearchIndexes().CreateOne(ctx, mongo.SearchIndexModel{
		Definition: vectorIndexDefinition(s.dims),
		Options:    options.SearchIndexes().SetName(s.vectorIndex).SetType("vectorSearch"),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("index", s.vectorIndex).Msg("Vector search index not created")
	}
	return nil
}

func vectorIndexDefinition(dims int) bson.D {
	return bson.D{{Key: "fields", Value: bson.A{
		bson.D{
			{Key: "type", Value: "vector"},
			{Key: "path", Value: "embedding"},
			{Key: "numDimensions", Value: dims},
			{Key: "similarity", Value: "cosine"},
		},
		bson.D{{Key: "type", Value: "filter"}, {Key: "path", Value: "language"}},
	}}}
}

func keyFilter(key models.DocumentKey) bson.D {
	return bson.D{
		{Key: "meta_data.article_id", Value: key.ArticleID},
		{Key: "meta_data.language", Value: key.Language},
		{Key: "meta_data.chunk_index", Value: key.ChunkIndex},
	}
}

func staleFilter(articleID, language string, valid []int) bson.D {
	f := bson.D{
		{Key: "meta_data.article_id", Value: articleID},
		{Key: "meta_data.language", Value: language},
	}
	if len(valid) > 0 {
		f = append(f, bson.E{Key: "meta_data.chunk_index", Value: bson.D{{Key: "$nin", Value: valid}}})
	}
	return f
}

func (s *Store) Upsert(ctx context.Context, key models.DocumentKey, doc models.Document) error {
	if doc.Key() != key {
		return fmt.Errorf("%w: key %s does not match document %s", models.ErrStoreFailure, key, doc.Key())
	}
	return s.upsert(ctx, doc)
}

func (s *Store) upsert(ctx context.Context, doc models.Document) error {
	_, err := s.coll.UpdateOne(ctx, keyFilter(doc.Key()), bson.D{{Key: "$set", Value: doc}}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", models.ErrStoreFailure, doc.Key(), err)
	}
	return nil
}

func (s *Store) DeleteStale(ctx context.Context, articleID, language string, valid []int) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, staleFilter(articleID, language, valid))
	if err != nil {
		return 0, fmt.Errorf("%w: delete stale %s/%s: %v", models.ErrStoreFailure, articleID, language, err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Find(ctx context.Context, key models.DocumentKey) (*models.Document, error) {
	var doc models.Document
	err := s.coll.FindOne(ctx, keyFilter(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %v", models.ErrStoreFailure, key, err)
	}
	return &doc, nil
}

// SaveArticle upserts the article's documents and deletes stale chunks. With
// transactions enabled the whole save commits or aborts together.
func (s *Store) SaveArticle(ctx context.Context, articleID string, docsByLanguage map[string][]models.Document) (int64, error) {
	if !s.transactions {
		return s.saveArticle(ctx, articleID, docsByLanguage)
	}

	session, err := s.coll.Database().Client().StartSession()
	if err != nil {
		return 0, fmt.Errorf("%w: start session: %v", models.ErrStoreFailure, err)
	}
	defer session.EndSession(ctx)

	res, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.saveArticle(sc, articleID, docsByLanguage)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

func (s *Store) saveArticle(ctx context.Context, articleID string, docsByLanguage map[string][]models.Document) (int64, error) {
	var deleted int64
	for lang, docs := range docsByLanguage {
		valid := make([]int, 0, len(docs))
		for _, doc := range docs {
			if err := s.upsert(ctx, doc); err != nil {
				return 0, err
			}
			valid = append(valid, doc.MetaData.ChunkIndex)
		}
		n, err := s.DeleteStale(ctx, articleID, lang, valid)
		if err != nil {
			return 0, err
		}
		deleted += n
	}
	return deleted, nil
}

func searchPipeline(index string, vector []float32, k int, language string) mongo.Pipeline {
	search := bson.D{
		{Key: "index", Value: index},
		{Key: "path", Value: "embedding"},
		{Key: "queryVector", Value: vector},
		{Key: "numCandidates", Value: k * numCandidatesX},
		{Key: "limit", Value: k},
	}
	if language != "" {
		search = append(search, bson.E{Key: "filter", Value: bson.D{{Key: "language", Value: language}}})
	}
	return mongo.Pipeline{
		{{Key: "$vectorSearch", Value: search}},
		{{Key: "$addFields", Value: bson.D{{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}}}}},
	}
}

// Search runs a $vectorSearch aggregation. It needs an Atlas deployment.
func (s *Store) Search(ctx context.Context, vector []float32, k int, language string) ([]models.SearchResult, error) {
	cursor, err := s.coll.Aggregate(ctx, searchPipeline(s.vectorIndex, vector, k, language))
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", models.ErrStoreFailure, err)
	}
	var results []models.SearchResult
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("%w: decode search results: %v", models.ErrStoreFailure, err)
	}
	return results, nil
}

// Drop removes every document from the collection.
func (s *Store) Drop(ctx context.Context) error {
	if err := s.coll.Drop(ctx); err != nil {
		return fmt.Errorf("%w: drop collection: %v", models.ErrStoreFailure, err)
	}
	return nil
}
