package pipeline

import (
	"fmt"

	"helpcenter-rag/internal/models"
)

// Embedding input markers stored in meta_data.embedding_input.
const (
	EmbeddingInputContent      = "content"
	EmbeddingInputTitleContent = "title+content"
)

// DocumentInput carries everything BuildDocument needs for one chunk.
type DocumentInput struct {
	Article        *models.Article
	Translation    models.Translation
	Language       string
	Category       models.Category
	Content        string
	Embedding      []float32
	ChunkIndex     int
	TotalChunks    int
	Multilingual   bool
	CollectionID   string
	EmbeddingModel string
	Dimensions     int
	EmbeddingInput string
}

// ArticleTitle returns the translation title or a placeholder built from the id.
func ArticleTitle(a *models.Article, tr models.Translation) string {
	if tr.Title != "" {
		return tr.Title
	}
	if a.Title != "" {
		return a.Title
	}
	return fmt.Sprintf("Article %s", a.ID)
}

// BuildDocument assembles the persisted form of one chunk.
func BuildDocument(in DocumentInput) models.Document {
	url := in.Translation.URL
	if url == "" {
		url = in.Article.URL
	}
	state := in.Translation.State
	if state == "" {
		state = in.Article.State
	}

	return models.Document{
		Title:     ArticleTitle(in.Article, in.Translation),
		Content:   in.Content,
		Category:  in.Category,
		Language:  in.Language,
		Embedding: in.Embedding,
		MetaData: models.Metadata{
			SourceType:            models.SourceTypeIntercomArticle,
			ArticleID:             in.Article.ID.String(),
			Language:              in.Language,
			IntercomURL:           url,
			IntercomCreatedAt:     in.Article.CreatedAt,
			IntercomUpdatedAt:     in.Article.UpdatedAt,
			ArticleState:          state,
			RAGCollectionID:       in.CollectionID,
			IsChunked:             in.TotalChunks > 1,
			ChunkIndex:            in.ChunkIndex,
			TotalChunks:           in.TotalChunks,
			EmbeddingModel:        in.EmbeddingModel,
			Dimensions:            in.Dimensions,
			IsMultilingualArticle: in.Multilingual,
			EmbeddingInput:        in.EmbeddingInput,
		},
	}
}
