package chunker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpcenter-rag/internal/llmservice"
	"helpcenter-rag/internal/models"
)

type fakeGenerator struct {
	reply  string
	err    error
	calls  int
	prompt string
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string, _ llmservice.Options) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.reply, f.err
}

const article = `Intro paragraph explaining what this article covers in some detail.

## Kyte PDV

1. Open the app.
2. Tap Settings.
3. Choose Printers.

## Kyte Web

1. Open the dashboard.
2. Click Settings.

## Tips

Keep the printer close to the device.
`

func squash(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func joined(chunks []models.Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	return sb.String()
}

func TestSections(t *testing.T) {
	c := New(&fakeGenerator{}, 2000, 10)
	sections := c.Sections(article)

	require.Len(t, sections, 4)
	assert.Equal(t, article, strings.Join(sections, ""))
	assert.True(t, strings.HasPrefix(sections[1], "## Kyte PDV"))
	assert.True(t, strings.HasPrefix(sections[3], "## Tips"))
}

func TestSectionsIgnoresHeadingMarkersInCode(t *testing.T) {
	body := "# Title\n\ntext\n\n```\n# not a heading\n```\n\n## Next\n\nmore\n"
	c := New(&fakeGenerator{}, 2000, 10)
	sections := c.Sections(body)

	require.Len(t, sections, 2)
	assert.Equal(t, body, strings.Join(sections, ""))
}

func TestChunkFollowsSplitPlan(t *testing.T) {
	gen := &fakeGenerator{reply: "1, 2"}
	c := New(gen, 2000, 10)

	chunks := c.Chunk(context.Background(), "42", article)

	require.Len(t, chunks, 3)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.prompt, "start 0")
	assert.Contains(t, gen.prompt, "end 3")
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "42", ch.ArticleID)
	}
	assert.True(t, strings.HasPrefix(chunks[0].Content, "Intro"))
	assert.Contains(t, chunks[0].Content, "## Kyte PDV")
	assert.True(t, strings.HasPrefix(chunks[1].Content, "## Kyte Web"))
	assert.True(t, strings.HasPrefix(chunks[2].Content, "## Tips"))
	assert.Equal(t, squash(article), squash(joined(chunks)))
}

func TestChunkNoneKeepsSingleChunk(t *testing.T) {
	c := New(&fakeGenerator{reply: "none"}, 2000, 10)
	chunks := c.Chunk(context.Background(), "42", article)

	require.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimSpace(article), chunks[0].Content)
}

func TestChunkFallback(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "prose reply", reply: "I would split after the second section"},
		{name: "out of range", reply: "1, 9"},
		{name: "negative", reply: "-1"},
		{name: "generator error", err: errors.New("rate limited")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&fakeGenerator{reply: tt.reply, err: tt.err}, 2000, 10)
			chunks := c.Chunk(context.Background(), "42", article)

			require.Len(t, chunks, 1)
			assert.Equal(t, 0, chunks[0].Index)
			assert.Equal(t, strings.TrimSpace(article), chunks[0].Content)
		})
	}
}

func TestChunkShortBodySkipsModel(t *testing.T) {
	gen := &fakeGenerator{reply: "0"}
	c := New(gen, 2000, 100)

	chunks := c.Chunk(context.Background(), "7", "# Title\n\nShort.\n\n## Other\n\nAlso short.")

	require.Len(t, chunks, 1)
	assert.Zero(t, gen.calls)
}

func TestChunkSingleSectionSkipsModel(t *testing.T) {
	gen := &fakeGenerator{reply: "0"}
	c := New(gen, 2000, 10)

	body := strings.Repeat("Plain paragraph without headings. ", 10)
	chunks := c.Chunk(context.Background(), "7", body)

	require.Len(t, chunks, 1)
	assert.Zero(t, gen.calls)
}

func TestChunkEmpty(t *testing.T) {
	c := New(&fakeGenerator{}, 2000, 10)
	assert.Empty(t, c.Chunk(context.Background(), "7", "  \n "))
}

func TestChunkCapsSize(t *testing.T) {
	para := strings.Repeat("word ", 30)
	body := "# Long\n\n" + strings.Repeat(para+"\n\n", 10)
	c := New(&fakeGenerator{err: errors.New("down")}, 200, 10)

	chunks := c.Chunk(context.Background(), "9", body)

	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 200)
	}
	assert.Equal(t, squash(body), squash(joined(chunks)))
}

func TestParseSplitResponse(t *testing.T) {
	tests := []struct {
		name    string
		res     string
		want    []int
		wantErr bool
	}{
		{name: "comma list", res: "0, 2", want: []int{0, 2}},
		{name: "whitespace list", res: "1 2\n3", want: []int{1, 2, 3}},
		{name: "fenced", res: "```\n1,3\n```", want: []int{1, 3}},
		{name: "none", res: "None.", want: nil},
		{name: "empty", res: "", want: nil},
		{name: "words", res: "after 1", wantErr: true},
		{name: "out of range", res: "4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSplitResponse(tt.res, 4)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, len(tt.want))
			for _, i := range tt.want {
				assert.True(t, got[i], "expected split after %d", i)
			}
		})
	}
}

func TestSplitOversize(t *testing.T) {
	s := "Primeira frase com acentuação. Segunda frase também longa. Terceira."
	pieces := SplitOversize(s, 30)

	assert.Equal(t, s, strings.Join(pieces, ""))
	for _, p := range pieces {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 30)
	}
	assert.Equal(t, []string{"short"}, SplitOversize("short", 30))
}
