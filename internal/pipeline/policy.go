package pipeline

import (
	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/models"
)

// Skip reasons reported in outcomes and the run summary.
const (
	ReasonExcluded        = "excluded"
	ReasonNotInCollection = "not in rag collection"
	ReasonNoLanguage      = "no applicable language"
	ReasonNoContent       = "no content after normalization"
)

// Decision is the policy verdict for one article.
type Decision struct {
	Eligible     bool
	Reason       string
	Languages    []string
	Multilingual bool
}

// Policy decides whether an article is ingested and in which languages.
type Policy struct {
	excluded     map[string]bool
	multilingual map[string]bool
	primary      []string
	extended     []string
	collectionID string
}

func NewPolicy(cfg *config.RAGConfig) *Policy {
	return &Policy{
		excluded:     toSet(cfg.ExcludedArticleIDs),
		multilingual: toSet(cfg.MultilingualArticleIDs),
		primary:      cfg.PrimaryLanguages,
		extended:     cfg.MultilingualLanguages,
		collectionID: cfg.CollectionID,
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// CollectionID is the RAG collection the policy is scoped to, if any.
func (p *Policy) CollectionID() string {
	return p.collectionID
}

// Evaluate applies the exclusion list, the collection filter and the
// language fan-out rules. Languages keep the order of the configured list.
func (p *Policy) Evaluate(a *models.Article) Decision {
	id := a.ID.String()
	if p.excluded[id] {
		return Decision{Reason: ReasonExcluded}
	}
	if p.collectionID != "" && !a.InCollection(p.collectionID) {
		return Decision{Reason: ReasonNotInCollection}
	}

	var available []string
	for _, lang := range a.Languages() {
		tr, ok := a.Content(lang)
		if ok && tr.Body != "" && p.eligibleState(tr.State) {
			available = append(available, lang)
		}
	}

	d := Decision{Multilingual: p.multilingual[id]}
	if p.collectionID != "" {
		d.Languages = available
	} else {
		allowed := p.primary
		if d.Multilingual {
			allowed = p.extended
		}
		for _, lang := range allowed {
			if helper.Contains(available, lang) && !helper.Contains(d.Languages, lang) {
				d.Languages = append(d.Languages, lang)
			}
		}
	}

	if len(d.Languages) == 0 {
		d.Reason = ReasonNoLanguage
		return d
	}
	d.Eligible = true
	return d
}

// eligibleState accepts published content, and drafts when scoped to a collection.
func (p *Policy) eligibleState(state string) bool {
	return state == models.StatePublished || (state == models.StateDraft && p.collectionID != "")
}
