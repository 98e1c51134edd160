package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDescriber struct {
	caption string
	err     error
	calls   []string
}

func (f *fakeDescriber) Describe(_ context.Context, imageURL, _ string) (string, error) {
	f.calls = append(f.calls, imageURL)
	return f.caption, f.err
}

func TestNormalizePreservesStructure(t *testing.T) {
	n := NewNormalizer(nil)
	raw := `<h2>Setup</h2><p>Click <strong>Save</strong> to finish 🚀.</p><hr><ul><li>One</li><li>Two</li></ul><p>See <a href="https://example.com/help">help</a>.</p>`

	md, err := n.Normalize(context.Background(), raw)
	require.NoError(t, err)

	assert.Contains(t, md, "## Setup")
	assert.Contains(t, md, "**Save**")
	assert.Contains(t, md, "- One")
	assert.Contains(t, md, "- Two")
	assert.Contains(t, md, "[help](https://example.com/help)")
	assert.NotContains(t, md, "🚀")
	assert.NotContains(t, md, "* * *")
	assert.NotContains(t, md, "\n\n\n")
}

func TestNormalizeEmpty(t *testing.T) {
	md, err := NewNormalizer(nil).Normalize(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, md)
}

func TestNormalizeImages(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		describer *fakeDescriber
		contains  string
		absent    string
		wantCalls int
	}{
		{
			name:      "described inline",
			html:      `<p>Open the menu <img src="https://cdn.example.com/articles/screen.png"></p>`,
			describer: &fakeDescriber{caption: "Menu with the Reports entry highlighted"},
			contains:  "[Image description: Menu with the Reports entry highlighted]",
			wantCalls: 1,
		},
		{
			name:      "alt text used without model",
			html:      `<p><img src="https://cdn.example.com/articles/screen.png" alt="Dashboard   overview"></p>`,
			describer: &fakeDescriber{caption: "unused"},
			contains:  "[Image description: Dashboard overview]",
			wantCalls: 0,
		},
		{
			name:      "short alt falls through to model",
			html:      `<p><img src="https://cdn.example.com/articles/screen.png" alt="img"></p>`,
			describer: &fakeDescriber{caption: "Checkout screen"},
			contains:  "[Image description: Checkout screen]",
			wantCalls: 1,
		},
		{
			name:      "heading image is decorative",
			html:      `<h1><img src="https://cdn.example.com/articles/banner.png">Title</h1>`,
			describer: &fakeDescriber{caption: "unused"},
			contains:  "# Title",
			absent:    "[Image",
			wantCalls: 0,
		},
		{
			name:      "logo url is decorative",
			html:      `<p>Text <img src="https://cdn.example.com/company-logo.png"></p>`,
			describer: &fakeDescriber{caption: "unused"},
			absent:    "[Image",
			wantCalls: 0,
		},
		{
			name:      "missing src dropped",
			html:      `<p>Text <img alt=""></p>`,
			describer: &fakeDescriber{caption: "unused"},
			absent:    "[Image",
			wantCalls: 0,
		},
		{
			name:      "empty description drops image",
			html:      `<p>Text <img src="https://cdn.example.com/articles/screen.png"></p>`,
			describer: &fakeDescriber{},
			contains:  "Text",
			absent:    "[Image",
			wantCalls: 1,
		},
		{
			name:      "describer failure leaves placeholder",
			html:      `<p>Text <img src="https://cdn.example.com/articles/screen.png"></p>`,
			describer: &fakeDescriber{err: errors.New("timeout")},
			contains:  "[Image]",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(tt.describer)
			md, err := n.Normalize(context.Background(), tt.html)
			require.NoError(t, err)

			if tt.contains != "" {
				assert.Contains(t, md, tt.contains)
			}
			if tt.absent != "" {
				assert.NotContains(t, md, tt.absent)
			}
			assert.Len(t, tt.describer.calls, tt.wantCalls)
		})
	}
}

func TestCustomDecorativePredicate(t *testing.T) {
	d := &fakeDescriber{caption: "A logo"}
	n := NewNormalizer(d, WithDecorativePredicate(func(Image) bool { return false }))

	md, err := n.Normalize(context.Background(), `<p><img src="https://cdn.example.com/logo.png"></p>`)
	require.NoError(t, err)
	assert.Contains(t, md, "[Image description: A logo]")
	assert.Len(t, d.calls, 1)
}

func TestDefaultDecorative(t *testing.T) {
	pred := DefaultDecorative(80)

	assert.True(t, pred(Image{Src: "https://x/a.png", Width: 16}))
	assert.True(t, pred(Image{Src: "https://x/anim.gif?v=2"}))
	assert.True(t, pred(Image{Src: "https://x/a.png", AriaHidden: true}))
	assert.True(t, pred(Image{Src: "https://x/a.png", Role: "presentation"}))
	assert.False(t, pred(Image{Src: "https://x/step-1.png", Width: 640, Height: 480}))
}
