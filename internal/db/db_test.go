package db

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/models"
)

// queryDB formats queries without ever opening a connection.
func queryDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN("postgres://rag@localhost:5432/rag?sslmode=disable")))
	t.Cleanup(func() { _ = sqldb.Close() })
	return bun.NewDB(sqldb, pgdialect.New())
}

func sampleDoc() models.Document {
	return models.Document{
		Title:     "Printers",
		Content:   "Open settings",
		Category:  models.CategoryHowTo,
		Language:  "pt",
		Embedding: []float32{1, 0, 0},
		MetaData: models.Metadata{
			ArticleID:  "42",
			Language:   "pt",
			ChunkIndex: 1,
		},
	}
}

func TestRowConversion(t *testing.T) {
	row := fromModel(sampleDoc())

	assert.Equal(t, "42", row.ArticleID)
	assert.Equal(t, "pt", row.Language)
	assert.Equal(t, 1, row.ChunkIndex)
	assert.Equal(t, "how_to", row.Category)
	assert.Equal(t, sampleDoc(), row.toModel())
}

func TestUpsertQuery(t *testing.T) {
	q := upsertQuery(queryDB(t), fromModel(sampleDoc())).String()

	assert.Contains(t, q, `INSERT INTO "help_center_documents"`)
	assert.Contains(t, q, "ON CONFLICT (article_id, language, chunk_index) DO UPDATE")
	assert.Contains(t, q, "embedding = EXCLUDED.embedding")
	assert.Contains(t, q, "'[1,0,0]'")
}

func TestDeleteStaleQuery(t *testing.T) {
	db := queryDB(t)

	q := deleteStaleQuery(db, "42", "pt", []int{0, 1}).String()
	assert.Contains(t, q, "article_id = '42'")
	assert.Contains(t, q, "language = 'pt'")
	assert.Contains(t, q, "chunk_index NOT IN (0, 1)")

	all := deleteStaleQuery(db, "42", "pt", nil).String()
	assert.NotContains(t, all, "NOT IN")
}

func TestSearchQuery(t *testing.T) {
	db := queryDB(t)

	q := searchQuery(db, 3, []float32{0, 1, 0}, 5, "es").String()
	assert.Contains(t, q, "embedding::vector(3) <=> '[0,1,0]' AS distance")
	assert.Contains(t, q, "ORDER BY embedding::vector(3) <=> '[0,1,0]'")
	assert.Contains(t, q, "language = 'es'")
	assert.Contains(t, q, "LIMIT 5")

	assert.NotContains(t, searchQuery(db, 3, []float32{0, 1, 0}, 5, "").String(), "WHERE")
}

func TestConnectDB(t *testing.T) {
	_, err := ConnectDB(&config.DatabaseConfig{})
	assert.Error(t, err)

	sqldb, err := ConnectDB(&config.DatabaseConfig{URL: "postgres://rag@localhost:5432/rag?sslmode=disable", Password: "secret"})
	require.NoError(t, err)
	assert.NoError(t, sqldb.Close())
}
