package intercom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"helpcenter-rag/internal/config"
	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/models"
)

const (
	headerVersion   = "Intercom-Version"
	maxErrorBody    = 512
	defaultMaxPages = 1000
)

var errUnexpectedStatus = errors.New("intercom unexpected status")

// Filter narrows ListArticles. Zero values mean no filtering.
type Filter struct {
	// State keeps only articles in this state. Empty keeps all.
	State string
	// UpdatedSince keeps articles updated at or after this unix time.
	UpdatedSince int64
	// CollectionID keeps articles under this collection and asks for drafts too.
	CollectionID string
	// Limit stops listing after this many matches.
	Limit int
}

func (f Filter) match(a *models.Article) bool {
	if f.State != "" && a.State != f.State {
		return false
	}
	if f.UpdatedSince > 0 && a.UpdatedAt < f.UpdatedSince {
		return false
	}
	if f.CollectionID != "" && !a.InCollection(f.CollectionID) {
		return false
	}
	return true
}

type pages struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

type articleList struct {
	Data  []models.Article `json:"data"`
	Pages pages            `json:"pages"`
}

type collectionList struct {
	Data  []models.Collection `json:"data"`
	Pages pages               `json:"pages"`
}

// Admin is the identity behind the API token.
type Admin struct {
	ID    models.FlexID `json:"id"`
	Name  string        `json:"name"`
	Email string        `json:"email"`
	Type  string        `json:"type"`
}

// Client talks to the Intercom REST API.
type Client struct {
	baseURL    string
	token      string
	version    string
	perPage    int
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      helper.RetryConfig
	logger     zerolog.Logger
}

func NewClient(cfg *config.IntercomConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		version:    cfg.Version,
		perPage:    cfg.PerPage,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		retry:      helper.DefaultRetryConfig(),
		logger:     log.With().Str("component", "intercom").Logger(),
	}
}

// ListArticles walks every page of /articles and returns the matching articles.
func (c *Client) ListArticles(ctx context.Context, f Filter) ([]models.Article, error) {
	var out []models.Article
	for page := 1; page <= defaultMaxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))
		if f.CollectionID != "" || f.State == models.StateDraft {
			q.Set("include_draft_articles", "true")
		}

		var list articleList
		if err := c.get(ctx, "/articles", q, &list); err != nil {
			return nil, fmt.Errorf("list articles page %d: %w", page, err)
		}
		c.logger.Debug().Int("page", page).Int("total_pages", list.Pages.TotalPages).Int("articles", len(list.Data)).Msg("Fetched articles page")

		for i := range list.Data {
			if !f.match(&list.Data[i]) {
				continue
			}
			out = append(out, list.Data[i])
			if f.Limit > 0 && len(out) >= f.Limit {
				return out, nil
			}
		}
		if len(list.Data) == 0 || page >= list.Pages.TotalPages {
			break
		}
	}
	return out, nil
}

func (c *Client) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	var a models.Article
	if err := c.get(ctx, "/articles/"+url.PathEscape(id), nil, &a); err != nil {
		return nil, fmt.Errorf("get article %s: %w", id, err)
	}
	return &a, nil
}

// ListCollections returns every help center collection.
func (c *Client) ListCollections(ctx context.Context) ([]models.Collection, error) {
	var out []models.Collection
	for page := 1; page <= defaultMaxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))

		var list collectionList
		if err := c.get(ctx, "/help_center/collections", q, &list); err != nil {
			return nil, fmt.Errorf("list collections: %w", err)
		}
		out = append(out, list.Data...)
		if len(list.Data) == 0 || page >= list.Pages.TotalPages {
			break
		}
	}
	return out, nil
}

// Me checks the token by fetching the admin it belongs to.
func (c *Client) Me(ctx context.Context) (*Admin, error) {
	var a Admin
	if err := c.get(ctx, "/me", nil, &a); err != nil {
		return nil, fmt.Errorf("check connection: %w", err)
	}
	return &a, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return helper.Retry(ctx, c.retry, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("intercom rate limit: %w", err)
		}
		return c.do(ctx, endpoint, out)
	})
}

func (c *Client) do(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create intercom request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if c.version != "" {
		req.Header.Set(headerVersion, c.version)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: intercom request: %v", models.ErrTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := fmt.Errorf("%w %d: %s", errUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(body)))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %v", models.ErrNotFound, err)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			c.logger.Warn().Int("status", resp.StatusCode).Str("url", endpoint).Msg("Retryable intercom response")
			return fmt.Errorf("%w: %v", models.ErrTransient, err)
		default:
			return err
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode intercom response: %w", err)
	}
	return nil
}
