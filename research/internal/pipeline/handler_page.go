package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"

	"github.com/avelio/prospect/internal/apifetch"
	"github.com/avelio/prospect/safeurl"
)

// PageConfig configures the article extraction handler.
type PageConfig struct {
	BaseURL string            // extraction endpoint
	Headers map[string]string // ${ENV_VAR} expanded
	Timeout time.Duration
}

func (c *PageConfig) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// PageHandler extracts the full text of the subject's lead article.
// The article URL comes from the previously stored news payload, so
// this source is one cycle behind news for a brand-new subject.
type PageHandler struct {
	client   *http.Client
	cfg      PageConfig
	sanitize *bluemonday.Policy
}

// NewPageHandler builds the article extraction handler.
func NewPageHandler(client *http.Client, cfg PageConfig) *PageHandler {
	cfg.defaults()
	return &PageHandler{
		client:   client,
		cfg:      cfg,
		sanitize: bluemonday.UGCPolicy(),
	}
}

func (h *PageHandler) Source() string { return "article" }

func (h *PageHandler) Fetch(ctx context.Context, sub Subject) (json.RawMessage, error) {
	if sub.ArticleURL == "" {
		return nil, nil
	}
	if err := safeurl.Validate(sub.ArticleURL); err != nil {
		return nil, fmt.Errorf("article url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	var resp struct {
		Objects []struct {
			Title string `json:"title"`
			HTML  string `json:"html"`
		} `json:"objects"`
	}
	err := apifetch.Do(ctx, h.client, apifetch.Request{
		URL:     h.cfg.BaseURL + "?url=" + url.QueryEscape(sub.ArticleURL),
		Headers: h.cfg.Headers,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Objects) == 0 || resp.Objects[0].HTML == "" {
		return nil, nil
	}

	clean := h.sanitize.Sanitize(resp.Objects[0].HTML)
	markdown, err := htmltomarkdown.ConvertString(clean)
	if err != nil {
		return nil, fmt.Errorf("convert article: %w", err)
	}
	if markdown == "" {
		return nil, nil
	}

	return json.Marshal(struct {
		URL      string `json:"url"`
		Title    string `json:"title,omitempty"`
		Markdown string `json:"markdown"`
	}{sub.ArticleURL, resp.Objects[0].Title, markdown})
}
