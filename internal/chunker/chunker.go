package chunker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"helpcenter-rag/internal/llmservice"
	"helpcenter-rag/internal/metrics"
	"helpcenter-rag/internal/models"
)

var (
	tokenSplitRe = regexp.MustCompile(`[,;\s]+`)
	codeFenceRe  = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")
)

// Generator produces a completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string, opts llmservice.Options) (string, error)
}

// Chunker splits a markdown body into semantically coherent chunks.
type Chunker struct {
	gen     Generator
	md      goldmark.Markdown
	maxSize int
	minSize int
	logger  zerolog.Logger
}

// New creates a chunker. Bodies shorter than minSize stay whole and no
// chunk exceeds maxSize characters.
func New(gen Generator, maxSize, minSize int) *Chunker {
	return &Chunker{
		gen:     gen,
		md:      goldmark.New(),
		maxSize: maxSize,
		minSize: minSize,
		logger:  log.With().Str("component", "chunker").Logger(),
	}
}

// Chunk never fails. When the model cannot help the whole body becomes one
// chunk, still subject to the size cap.
func (c *Chunker) Chunk(ctx context.Context, articleID, body string) []models.Chunk {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	if utf8.RuneCountInString(body) < c.minSize {
		return toChunks(articleID, []string{strings.TrimSpace(body)})
	}

	sections := c.Sections(body)
	if len(sections) <= 1 {
		return toChunks(articleID, c.capSize([]string{body}))
	}

	splits, err := c.planSplits(ctx, sections)
	if err != nil {
		c.logger.Warn().Err(err).Str("article_id", articleID).Msg("Semantic chunking failed, keeping whole document")
		metrics.StageFallbacks.WithLabelValues(metrics.StageChunk).Inc()
		return toChunks(articleID, c.capSize([]string{body}))
	}

	var groups []string
	var current strings.Builder
	for i, section := range sections {
		current.WriteString(section)
		if splits[i] {
			groups = append(groups, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		groups = append(groups, current.String())
	}

	chunks := toChunks(articleID, c.capSize(groups))
	if len(chunks) == 0 {
		return toChunks(articleID, c.capSize([]string{body}))
	}
	return chunks
}

// Sections slices body at every top level heading. The slices cover the body
// exactly, so joining them gives back the input.
func (c *Chunker) Sections(body string) []string {
	src := []byte(body)
	doc := c.md.Parser().Parse(text.NewReader(src))

	bounds := []int{0}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() != ast.KindHeading || n.Lines().Len() == 0 {
			continue
		}
		start := n.Lines().At(0).Start
		for start > 0 && src[start-1] != '\n' {
			start--
		}
		if start > bounds[len(bounds)-1] {
			bounds = append(bounds, start)
		}
	}
	bounds = append(bounds, len(src))

	var sections []string
	for i := 0; i < len(bounds)-1; i++ {
		s := body[bounds[i]:bounds[i+1]]
		// leading whitespace before the first heading joins that heading
		if len(sections) == 0 && strings.TrimSpace(s) == "" && i < len(bounds)-2 {
			bounds[i+1] = bounds[i]
			continue
		}
		sections = append(sections, s)
	}
	return sections
}

func (c *Chunker) planSplits(ctx context.Context, sections []string) (map[int]bool, error) {
	var sb strings.Builder
	for i, s := range sections {
		fmt.Fprintf(&sb, "start %d\n%s\nend %d\n\n", i, strings.TrimSpace(s), i)
	}
	prompt := fmt.Sprintf(models.ChunkPromptTemplate, c.maxSize, sb.String())

	res, err := c.gen.Complete(ctx, prompt, llmservice.Options{Temperature: 0, MaxTokens: 100})
	if err != nil {
		return nil, fmt.Errorf("request split points: %w", err)
	}
	return ParseSplitResponse(res, len(sections))
}

// ParseSplitResponse accepts "none" or a list of section indices in [0, n).
// Anything else is ErrMalformedResponse.
func ParseSplitResponse(res string, n int) (map[int]bool, error) {
	res = codeFenceRe.ReplaceAllString(res, "")
	res = strings.TrimSpace(res)

	splits := make(map[int]bool)
	if res == "" || strings.EqualFold(strings.Trim(res, ".\"'`"), "none") {
		return splits, nil
	}

	for _, tok := range tokenSplitRe.Split(res, -1) {
		tok = strings.Trim(tok, ".[]")
		if tok == "" {
			continue
		}
		idx, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: unexpected token %q", models.ErrMalformedResponse, tok)
		}
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("%w: section %d out of range [0, %d)", models.ErrMalformedResponse, idx, n)
		}
		splits[idx] = true
	}
	return splits, nil
}

func (c *Chunker) capSize(parts []string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, SplitOversize(p, c.maxSize)...)
	}
	return out
}

// SplitOversize cuts s into pieces of at most max runes, preferring paragraph
// breaks, then line or sentence ends, then spaces. Joining the pieces gives s back.
func SplitOversize(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	var pieces []string
	for utf8.RuneCountInString(s) > max {
		cut := cutPoint(s, max)
		pieces = append(pieces, s[:cut])
		s = s[cut:]
	}
	return append(pieces, s)
}

// cutPoint returns a byte offset no further than max runes into s.
func cutPoint(s string, max int) int {
	limit := len(s)
	count := 0
	for i := range s {
		if count == max {
			limit = i
			break
		}
		count++
	}
	window := s[:limit]
	half := len(window) / 2

	if i := strings.LastIndex(window, "\n\n"); i >= half {
		return i + 2
	}
	if i := strings.LastIndexByte(window, '\n'); i >= half {
		return i + 1
	}
	if i := strings.LastIndex(window, ". "); i >= half {
		return i + 2
	}
	if i := strings.LastIndexByte(window, ' '); i > 0 {
		return i + 1
	}
	return limit
}

func toChunks(articleID string, parts []string) []models.Chunk {
	var chunks []models.Chunk
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Index:     len(chunks),
			Content:   p,
			ArticleID: articleID,
		})
	}
	return chunks
}
