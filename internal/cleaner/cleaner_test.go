package cleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "enriched markdown chunk",
			in:   "Context: Printer setup on the POS app.\n---\n## Kyte PDV\n\n1. Open **Settings**.",
			want: "[Context: Printer setup on the POS app.] Kyte PDV\n\n1. Open Settings.",
		},
		{
			name: "plain text only normalized",
			in:   "Just text  with \t spaces\n\n\n\nnext line",
			want: "Just text with spaces\n\nnext line",
		},
		{
			name: "links and inline code",
			in:   "See [the guide](https://help.example.com/a) and run `sync` now",
			want: "See the guide and run sync now",
		},
		{
			name: "html tags removed",
			in:   "<b>Bold</b> text",
			want: "Bold text",
		},
		{
			name: "bullets normalized",
			in:   "## Steps\n\n* one\n• two",
			want: "Steps\n\n- one\n- two",
		},
		{
			name: "english learning heading",
			in:   "## What you'll learn\n\n- a\n- b",
			want: "- a\n- b",
		},
		{
			name: "portuguese learning heading",
			in:   "**O que você vai aprender:**\n\nTexto",
			want: "Texto",
		},
		{
			name: "emoji dropped from markup",
			in:   "## Tips 💡\n\nKeep **calm** ✅",
			want: "Tips\n\nKeep calm",
		},
		{
			name: "accents and currency kept",
			in:   "Plano anual por R$ 99,90 com acentuação",
			want: "Plano anual por R$ 99,90 com acentuação",
		},
		{
			name: "enriched with empty body",
			in:   "Context: Something.\n---\n   ",
			want: "",
		},
		{
			name: "zero width and control characters",
			in:   "a\u200bb\x07c",
			want: "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"Context: Printer setup.\n---\n## Kyte PDV\n\n1. Open **Settings**.\n\n---\n\n* tip",
		"plain   text",
		"## Title\n\nsnake_case_name and _italic_ and *star* and __under__",
		"[Image description: Settings screen] then [link](http://x)",
		"Context: a [b](c)\n---\n<p>para</p>\n```\ncode\n```\nafter",
		"***\n\n- a\n\n___\n",
		"Intro line\n\n" + strings.Repeat("*", 30) + "x" + strings.Repeat("*", 30),
		"__" + strings.Repeat("**", 12) + "deep" + strings.Repeat("**", 12) + "__ tail",
	}
	for _, in := range inputs {
		once := Clean(in)
		assert.Equal(t, once, Clean(once), "input %q", in)
	}
}

func TestCleanNestedEmphasis(t *testing.T) {
	in := "Intro line\n\n" + strings.Repeat("*", 30) + "x" + strings.Repeat("*", 30)
	assert.Equal(t, "Intro line\n\nx", Clean(in))
}

func TestLooksLikeMarkup(t *testing.T) {
	assert.True(t, LooksLikeMarkup("# Heading"))
	assert.True(t, LooksLikeMarkup("text with **bold**"))
	assert.True(t, LooksLikeMarkup("<div>x</div>"))
	assert.False(t, LooksLikeMarkup("1. plain numbered item"))
	assert.False(t, LooksLikeMarkup("price is 5 * 3"))
}
