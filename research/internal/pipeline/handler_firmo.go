package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/avelio/prospect/internal/apifetch"
)

// FirmoConfig configures the firmographics handler.
type FirmoConfig struct {
	BaseURL string            // firmographics endpoint
	Headers map[string]string // ${ENV_VAR} expanded
	Timeout time.Duration
}

func (c *FirmoConfig) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// FirmoHandler fetches firmographics: industry, size band, founding
// year, and headquarters location. A second enrichment provider is kept
// separate from the company profile because the two disagree often
// enough to be worth storing side by side.
type FirmoHandler struct {
	client *http.Client
	cfg    FirmoConfig
}

// NewFirmoHandler builds the firmographics handler.
func NewFirmoHandler(client *http.Client, cfg FirmoConfig) *FirmoHandler {
	cfg.defaults()
	return &FirmoHandler{client: client, cfg: cfg}
}

func (h *FirmoHandler) Source() string { return "firmographics" }

func (h *FirmoHandler) Fetch(ctx context.Context, sub Subject) (json.RawMessage, error) {
	if sub.CompanyName == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	var resp struct {
		Status   int    `json:"status"`
		Name     string `json:"name"`
		Industry string `json:"industry"`
		Size     string `json:"size"`
		Founded  int    `json:"founded"`
		Location *struct {
			Locality string `json:"locality"`
			Region   string `json:"region"`
			Country  string `json:"country"`
		} `json:"location"`
	}
	err := apifetch.Do(ctx, h.client, apifetch.Request{
		URL:     h.cfg.BaseURL + "?name=" + url.QueryEscape(sub.CompanyName),
		Headers: h.cfg.Headers,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Status != 0 && resp.Status != http.StatusOK {
		return nil, nil
	}
	if resp.Name == "" {
		return nil, nil
	}

	out := struct {
		Name     string `json:"name"`
		Industry string `json:"industry,omitempty"`
		Size     string `json:"size,omitempty"`
		Founded  int    `json:"founded,omitempty"`
		Location string `json:"location,omitempty"`
	}{resp.Name, resp.Industry, resp.Size, resp.Founded, ""}
	if loc := resp.Location; loc != nil {
		out.Location = joinNonEmpty(loc.Locality, loc.Region, loc.Country)
	}
	return json.Marshal(out)
}

func joinNonEmpty(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}
