package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"helpcenter-rag/internal/models"
)

func TestPolicyEvaluate(t *testing.T) {
	withState := func(a models.Article, lang, state string) models.Article {
		tr := a.TranslatedContent[lang]
		tr.State = state
		a.TranslatedContent[lang] = tr
		return a
	}
	inCollection := func(a models.Article) models.Article {
		a.ParentID = "10"
		return a
	}

	tests := []struct {
		name         string
		collection   string
		article      models.Article
		wantEligible bool
		wantReason   string
		wantLangs    []string
	}{
		{
			name:         "primary language only",
			article:      article("1", map[string]string{"en": "a", "pt": "b", "pt-BR": "c"}),
			wantEligible: true,
			wantLangs:    []string{"pt", "pt-BR"},
		},
		{
			name:         "multilingual keeps configured order",
			article:      article("7861149", map[string]string{"es": "a", "en": "b", "pt-BR": "c", "de": "d"}),
			wantEligible: true,
			wantLangs:    []string{"pt-BR", "en", "es"},
		},
		{
			name:       "excluded",
			article:    article("7861154", map[string]string{"pt": "a"}),
			wantReason: ReasonExcluded,
		},
		{
			name:       "no allowed language",
			article:    article("2", map[string]string{"en": "a"}),
			wantReason: ReasonNoLanguage,
		},
		{
			name:       "draft outside collection runs",
			article:    withState(article("3", map[string]string{"pt": "a"}), "pt", models.StateDraft),
			wantReason: ReasonNoLanguage,
		},
		{
			name:       "empty body",
			article:    article("4", map[string]string{"pt": ""}),
			wantReason: ReasonNoLanguage,
		},
		{
			name:       "not in collection",
			collection: "10",
			article:    article("5", map[string]string{"pt": "a"}),
			wantReason: ReasonNotInCollection,
		},
		{
			name:         "collection takes drafts and every language",
			collection:   "10",
			article:      inCollection(withState(article("6", map[string]string{"en": "a", "pt": "b"}), "en", models.StateDraft)),
			wantEligible: true,
			wantLangs:    []string{"en", "pt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CollectionID = tt.collection
			d := NewPolicy(cfg).Evaluate(&tt.article)

			assert.Equal(t, tt.wantEligible, d.Eligible)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantLangs, d.Languages)
		})
	}
}

func TestArticleTitleFallback(t *testing.T) {
	a := &models.Article{ID: "12"}
	assert.Equal(t, "Article 12", ArticleTitle(a, models.Translation{}))

	a.Title = "Top level"
	assert.Equal(t, "Top level", ArticleTitle(a, models.Translation{}))
	assert.Equal(t, "Translated", ArticleTitle(a, models.Translation{Title: "Translated"}))
}
