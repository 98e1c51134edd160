package memstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"helpcenter-rag/internal/models"
)

// Store keeps documents in memory. It backs dry runs and tests.
type Store struct {
	mu   sync.RWMutex
	docs map[models.DocumentKey]models.Document
}

func New() *Store {
	return &Store{docs: make(map[models.DocumentKey]models.Document)}
}

func (s *Store) Upsert(_ context.Context, key models.DocumentKey, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = doc
	return nil
}

// DeleteStale removes documents of the article language whose chunk index is not in valid.
func (s *Store) DeleteStale(_ context.Context, articleID, language string, valid []int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteStale(articleID, language, valid), nil
}

func (s *Store) deleteStale(articleID, language string, valid []int) int64 {
	keep := make(map[int]bool, len(valid))
	for _, i := range valid {
		keep[i] = true
	}
	var deleted int64
	for key := range s.docs {
		if key.ArticleID == articleID && key.Language == language && !keep[key.ChunkIndex] {
			delete(s.docs, key)
			deleted++
		}
	}
	return deleted
}

func (s *Store) Find(_ context.Context, key models.DocumentKey) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &doc, nil
}

// SaveArticle applies every language of the article under one lock.
func (s *Store) SaveArticle(_ context.Context, articleID string, docsByLanguage map[string][]models.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for lang, docs := range docsByLanguage {
		valid := make([]int, 0, len(docs))
		for _, doc := range docs {
			s.docs[doc.Key()] = doc
			valid = append(valid, doc.MetaData.ChunkIndex)
		}
		deleted += s.deleteStale(articleID, lang, valid)
	}
	return deleted, nil
}

// Documents returns every stored document ordered by key.
func (s *Store) Documents() []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.ArticleID != b.ArticleID {
			return a.ArticleID < b.ArticleID
		}
		if a.Language != b.Language {
			return a.Language < b.Language
		}
		return a.ChunkIndex < b.ChunkIndex
	})
	return out
}

// Search ranks documents by cosine similarity. An empty language matches all.
func (s *Store) Search(_ context.Context, vector []float32, k int, language string) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.SearchResult
	for _, doc := range s.docs {
		if language != "" && doc.Language != language {
			continue
		}
		results = append(results, models.SearchResult{Document: doc, Score: cosine(vector, doc.Embedding)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
