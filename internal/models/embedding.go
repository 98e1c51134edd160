package models

// Chunk is one contiguous slice of a normalized article body.
type Chunk struct {
	Index     int
	Content   string
	ArticleID string
}

// EnrichedChunk carries the chunk together with its contextual preface.
// Preface is empty when enrichment failed or was skipped.
type EnrichedChunk struct {
	Chunk
	Preface string
}

// Text returns the content that goes on to cleaning and embedding.
func (c EnrichedChunk) Text() string {
	if c.Preface == "" {
		return c.Content
	}
	return ContextPrefix + c.Preface + ContextSeparator + c.Content
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
}
