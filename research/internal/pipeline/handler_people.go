package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/avelio/prospect/internal/apifetch"
)

// PeopleConfig configures the executive lookup handler.
type PeopleConfig struct {
	BaseURL string            // people search endpoint
	Headers map[string]string // ${ENV_VAR} expanded
	Timeout time.Duration
	Title   string // searched job title, default "CEO"
}

func (c *PeopleConfig) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Title == "" {
		c.Title = "CEO"
	}
}

// PeopleHandler looks up at most one senior executive for the company.
type PeopleHandler struct {
	client *http.Client
	cfg    PeopleConfig
}

// NewPeopleHandler builds the executive lookup handler.
func NewPeopleHandler(client *http.Client, cfg PeopleConfig) *PeopleHandler {
	cfg.defaults()
	return &PeopleHandler{client: client, cfg: cfg}
}

func (h *PeopleHandler) Source() string { return "executive" }

func (h *PeopleHandler) Fetch(ctx context.Context, sub Subject) (json.RawMessage, error) {
	if sub.CompanyName == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("company", sub.CompanyName)
	q.Set("title", h.cfg.Title)

	var resp struct {
		Data []struct {
			FullName    string `json:"full_name"`
			Title       string `json:"title"`
			LinkedinURL string `json:"linkedin_url"`
		} `json:"data"`
	}
	err := apifetch.Do(ctx, h.client, apifetch.Request{
		Method:  http.MethodGet,
		URL:     h.cfg.BaseURL + "?" + q.Encode(),
		Headers: h.cfg.Headers,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].FullName == "" {
		return nil, nil
	}

	// Zero or one: only the top match is kept.
	top := resp.Data[0]
	return json.Marshal(struct {
		FullName    string `json:"full_name"`
		Title       string `json:"title,omitempty"`
		LinkedinURL string `json:"linkedin_url,omitempty"`
	}{top.FullName, top.Title, top.LinkedinURL})
}
