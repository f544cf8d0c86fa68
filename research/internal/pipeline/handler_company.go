package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/avelio/prospect/internal/apifetch"
)

// CompanyConfig configures the company enrichment handler.
type CompanyConfig struct {
	BaseURL string            // enrichment endpoint
	Headers map[string]string // ${ENV_VAR} expanded
	Timeout time.Duration
}

func (c *CompanyConfig) defaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// CompanyHandler enriches the subject's company profile: description,
// website, and headcount.
type CompanyHandler struct {
	client *http.Client
	cfg    CompanyConfig
}

// NewCompanyHandler builds the company enrichment handler.
func NewCompanyHandler(client *http.Client, cfg CompanyConfig) *CompanyHandler {
	cfg.defaults()
	return &CompanyHandler{client: client, cfg: cfg}
}

func (h *CompanyHandler) Source() string { return "company" }

func (h *CompanyHandler) Fetch(ctx context.Context, sub Subject) (json.RawMessage, error) {
	if sub.CompanyName == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	var resp struct {
		Organization *struct {
			Name        string `json:"name"`
			Description string `json:"short_description"`
			WebsiteURL  string `json:"website_url"`
			Employees   int    `json:"estimated_num_employees"`
			LinkedinURL string `json:"linkedin_url"`
		} `json:"organization"`
	}
	err := apifetch.Do(ctx, h.client, apifetch.Request{
		Method:  http.MethodPost,
		URL:     h.cfg.BaseURL,
		Headers: h.cfg.Headers,
		Body:    map[string]string{"organization_name": sub.CompanyName},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Organization == nil || resp.Organization.Name == "" {
		return nil, nil
	}

	org := resp.Organization
	return json.Marshal(struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Website     string `json:"website,omitempty"`
		Employees   int    `json:"employees,omitempty"`
		LinkedinURL string `json:"linkedin_url,omitempty"`
	}{org.Name, org.Description, org.WebsiteURL, org.Employees, org.LinkedinURL})
}
