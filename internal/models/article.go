package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	StatePublished = "published"
	StateDraft     = "draft"
)

// FlexID decodes identifiers the help center sends either as numbers or strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id %s: %w", string(data), err)
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// Translation is the per-locale content of an article.
type Translation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Body        string `json:"body"`
	State       string `json:"state"`
	URL         string `json:"url"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Translations maps a locale code to its content. Non-object entries such as
// the "type" discriminator are ignored while decoding.
type Translations map[string]Translation

func (t *Translations) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Translations, len(raw))
	for lang, msg := range raw {
		msg = bytes.TrimSpace(msg)
		if len(msg) == 0 || msg[0] != '{' {
			continue
		}
		var tr Translation
		if err := json.Unmarshal(msg, &tr); err != nil {
			return fmt.Errorf("decode translation %q: %w", lang, err)
		}
		out[lang] = tr
	}
	*t = out
	return nil
}

// Languages returns the locale codes in a stable order.
func (t Translations) Languages() []string {
	langs := make([]string, 0, len(t))
	for lang := range t {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Article is a help center article as returned by the content source.
type Article struct {
	ID                FlexID       `json:"id"`
	Title             string       `json:"title"`
	Body              string       `json:"body"`
	State             string       `json:"state"`
	URL               string       `json:"url"`
	DefaultLocale     string       `json:"default_locale"`
	ParentID          FlexID       `json:"parent_id"`
	ParentIDs         []FlexID     `json:"parent_ids"`
	CreatedAt         int64        `json:"created_at"`
	UpdatedAt         int64        `json:"updated_at"`
	TranslatedContent Translations `json:"translated_content"`
}

// InCollection reports whether the article belongs to the given collection.
func (a *Article) InCollection(collectionID string) bool {
	if a.ParentID.String() == collectionID {
		return true
	}
	for _, id := range a.ParentIDs {
		if id.String() == collectionID {
			return true
		}
	}
	return false
}

// Content returns the translation for a language. Articles without
// translated content fall back to the top level fields for their default locale.
func (a *Article) Content(lang string) (Translation, bool) {
	if tr, ok := a.TranslatedContent[lang]; ok {
		return tr, true
	}
	if len(a.TranslatedContent) == 0 && lang == a.DefaultLocale && a.Body != "" {
		return Translation{
			Title:     a.Title,
			Body:      a.Body,
			State:     a.State,
			URL:       a.URL,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
		}, true
	}
	return Translation{}, false
}

// Languages lists every locale the article has content for.
func (a *Article) Languages() []string {
	if len(a.TranslatedContent) == 0 {
		if a.DefaultLocale != "" && a.Body != "" {
			return []string{a.DefaultLocale}
		}
		return nil
	}
	return a.TranslatedContent.Languages()
}

// Collection is a help center collection.
type Collection struct {
	ID          FlexID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	ParentID    FlexID `json:"parent_id"`
}
