package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/avelio/prospect/internal/apifetch"
)

// NewsConfig configures the news search handler.
type NewsConfig struct {
	BaseURL string            // search endpoint
	Headers map[string]string // ${ENV_VAR} expanded
	Timeout time.Duration
	Limit   int // max articles kept after dedup
}

func (c *NewsConfig) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Limit == 0 {
		c.Limit = 10
	}
}

// Article is one news result.
type Article struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// NewsHandler searches recent news for the subject's company.
type NewsHandler struct {
	client *http.Client
	cfg    NewsConfig
}

// NewNewsHandler builds the news handler.
func NewNewsHandler(client *http.Client, cfg NewsConfig) *NewsHandler {
	cfg.defaults()
	return &NewsHandler{client: client, cfg: cfg}
}

func (h *NewsHandler) Source() string { return "news" }

// Fetch queries the news provider and returns deduplicated articles.
// Duplicate titles are common when the same wire story lands on several
// outlets; only the first occurrence is kept.
func (h *NewsHandler) Fetch(ctx context.Context, sub Subject) (json.RawMessage, error) {
	if sub.CompanyName == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	var resp struct {
		NewsResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"news_results"`
	}
	err := apifetch.Do(ctx, h.client, apifetch.Request{
		URL:     h.cfg.BaseURL + "?q=" + url.QueryEscape(sub.CompanyName),
		Headers: h.cfg.Headers,
	}, &resp)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var articles []Article
	for _, r := range resp.NewsResults {
		if r.Title == "" || seen[r.Title] {
			continue
		}
		seen[r.Title] = true
		articles = append(articles, Article{
			Title:       r.Title,
			URL:         r.Link,
			Snippet:     r.Snippet,
			PublishedAt: r.Date,
		})
		if len(articles) >= h.cfg.Limit {
			break
		}
	}
	if len(articles) == 0 {
		return nil, nil
	}

	return json.Marshal(struct {
		Articles []Article `json:"articles"`
	}{articles})
}
