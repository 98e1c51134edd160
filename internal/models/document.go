package models

import "fmt"

// Category is the closed set of article classifications.
type Category string

const (
	CategoryTechnicalSupport Category = "technical_support"
	CategoryFeatures         Category = "features"
	CategoryBillingPricing   Category = "billing_plans_and_pricing"
	CategoryTroubleshooting  Category = "troubleshooting"
	CategoryHowTo            Category = "how_to"
)

// Categories lists every category with the definition shown to the model.
var Categories = []struct {
	Name        Category
	Description string
}{
	{CategoryHowTo, "tutorials and step by step guides on how to use a feature"},
	{CategoryFeatures, "descriptions of features, what they are and what they are for"},
	{CategoryTroubleshooting, "articles that help solve problems, errors or unexpected behaviour"},
	{CategoryBillingPricing, "prices, plans, subscriptions and billing"},
	{CategoryTechnicalSupport, "general support information such as announcements, maintenance notices or how to get in touch"},
}

// ParseCategory returns the category for a label and whether it is known.
func ParseCategory(label string) (Category, bool) {
	for _, c := range Categories {
		if string(c.Name) == label {
			return c.Name, true
		}
	}
	return "", false
}

// DocumentKey identifies a stored document.
type DocumentKey struct {
	ArticleID  string
	Language   string
	ChunkIndex int
}

func (k DocumentKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.ArticleID, k.Language, k.ChunkIndex)
}

// Metadata is stored alongside every document under meta_data.
type Metadata struct {
	SourceType            string `json:"source_type" bson:"source_type"`
	ArticleID             string `json:"article_id" bson:"article_id"`
	Language              string `json:"language" bson:"language"`
	IntercomURL           string `json:"intercom_url" bson:"intercom_url"`
	IntercomCreatedAt     int64  `json:"intercomCreatedAt" bson:"intercomCreatedAt"`
	IntercomUpdatedAt     int64  `json:"intercomUpdatedAt" bson:"intercomUpdatedAt"`
	ArticleState          string `json:"article_state" bson:"article_state"`
	RAGCollectionID       string `json:"rag_collection_id,omitempty" bson:"rag_collection_id,omitempty"`
	IsChunked             bool   `json:"is_chunked" bson:"is_chunked"`
	ChunkIndex            int    `json:"chunk_index" bson:"chunk_index"`
	TotalChunks           int    `json:"total_chunks" bson:"total_chunks"`
	EmbeddingModel        string `json:"embedding_model" bson:"embedding_model"`
	Dimensions            int    `json:"dimensions" bson:"dimensions"`
	IsMultilingualArticle bool   `json:"is_multilingual_article" bson:"is_multilingual_article"`
	EmbeddingInput        string `json:"embedding_input" bson:"embedding_input"`
}

// Document is the unit persisted in a document store.
type Document struct {
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	Category  Category  `json:"category" bson:"category"`
	Language  string    `json:"language" bson:"language"`
	Embedding []float32 `json:"embedding" bson:"embedding"`
	MetaData  Metadata  `json:"meta_data" bson:"meta_data"`
}

// Key returns the identity of the document.
func (d Document) Key() DocumentKey {
	return DocumentKey{
		ArticleID:  d.MetaData.ArticleID,
		Language:   d.MetaData.Language,
		ChunkIndex: d.MetaData.ChunkIndex,
	}
}

// SearchResult is a document returned by a similarity query.
type SearchResult struct {
	Document `bson:",inline"`
	Score    float32 `json:"score" bson:"score"`
}
