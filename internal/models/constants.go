package models

const (
	// ContextSeparator divides an enrichment preface from the chunk it situates.
	ContextSeparator = "\n---\n"
	// ContextPrefix leads every enriched chunk.
	ContextPrefix = "Context: "
	ThinkTag      = `(?s)<think>.*?</think>`

	SourceTypeIntercomArticle = "intercom_article"
)

var (
	ContextPromptTemplate = `<document>
%s
</document>
Here is the chunk we want to situate within the whole document
<chunk>
%s
</chunk>
Please give a short succinct context to situate this chunk within the overall document for the purposes of improving search retrieval of the chunk. Write the context in the language "%s". Answer only with the succinct context and nothing else.
`

	CategoryPromptTemplate = `You classify help center articles. Choose exactly one category from the list below.

%s
Article title: %s

Article content:
%s

Answer only with the category identifier and nothing else.
`

	ChunkPromptTemplate = `You are splitting a help center article into self-contained chunks for semantic search.
The article is divided into numbered sections, each framed by "start N" and "end N" markers.

Rules:
- Keep instructions for different platforms or products in different chunks.
- Isolate sections that cover distinct topics.
- Never split a numbered list or a step-by-step procedure.
- Keep each chunk under %d characters when possible.

Reply only with the section numbers AFTER which a split should happen, separated by commas (for example "1, 3").
Reply "none" if the article should stay a single chunk.

%s
`

	QueryPromptTemplate = `You are a helpful support assistant. Use only the provided help center excerpts to answer the question.

Excerpts:
%s

Question: %s
`
)
