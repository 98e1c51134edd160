package rag

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpcenter-rag/internal/llmservice"
	"helpcenter-rag/internal/memstore"
	"helpcenter-rag/internal/models"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

type fakeGenerator struct {
	answer string
	prompt string
}

func (f *fakeGenerator) Complete(ctx context.Context, prompt string, opts llmservice.Options) (string, error) {
	f.prompt = prompt
	if opts.Stream != nil {
		if err := opts.Stream(ctx, []byte(f.answer)); err != nil {
			return "", err
		}
	}
	return f.answer, nil
}

func seed(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New()
	docs := []models.Document{
		{Title: "Printers", Content: "Open Settings > Printers.", Language: "pt", Embedding: []float32{1, 0},
			MetaData: models.Metadata{ArticleID: "1", Language: "pt", IntercomURL: "https://help/1"}},
		{Title: "Printers", Content: "Pair over bluetooth.", Language: "pt", Embedding: []float32{0.9, 0.1},
			MetaData: models.Metadata{ArticleID: "1", Language: "pt", ChunkIndex: 1, IntercomURL: "https://help/1"}},
		{Title: "Plans", Content: "Pro costs more.", Language: "en", Embedding: []float32{0, 1},
			MetaData: models.Metadata{ArticleID: "2", Language: "en", IntercomURL: "https://help/2"}},
	}
	for _, d := range docs {
		require.NoError(t, s.Upsert(context.Background(), d.Key(), d))
	}
	return s
}

func TestQuery(t *testing.T) {
	gen := &fakeGenerator{answer: " Go to Settings. "}
	r := NewRAG(fakeEmbedder{vec: []float32{1, 0}}, seed(t), gen, 2)

	var streamed bytes.Buffer
	res, err := r.Query(context.Background(), "How do I add a printer?", "pt", &streamed)
	require.NoError(t, err)

	assert.Equal(t, "Go to Settings.", res.Content)
	assert.Equal(t, "https://help/1", res.Source)
	assert.Equal(t, " Go to Settings. ", streamed.String())
	assert.Contains(t, gen.prompt, "[1] Printers\nOpen Settings > Printers.")
	assert.Contains(t, gen.prompt, "Question: How do I add a printer?")
	assert.NotContains(t, gen.prompt, "Pro costs more.")
}

func TestQueryWithoutResults(t *testing.T) {
	r := NewRAG(fakeEmbedder{vec: []float32{1, 0}}, memstore.New(), &fakeGenerator{}, 3)

	_, err := r.Query(context.Background(), "anything", "", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRetrieveEmbedError(t *testing.T) {
	r := NewRAG(fakeEmbedder{err: errors.New("quota")}, memstore.New(), &fakeGenerator{}, 3)

	_, err := r.Retrieve(context.Background(), "anything", "")
	assert.ErrorContains(t, err, "quota")
}
