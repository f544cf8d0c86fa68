// Package apifetch calls JSON provider APIs and decodes typed responses.
//
// It supports configurable HTTP method, headers (with ${ENV_VAR}
// expansion), a response size cap, and non-2xx rejection. Each research
// handler owns its provider response types and passes a pointer here.
package apifetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// MaxResponseBody caps how much of a provider response is read.
const MaxResponseBody = 10 * 1024 * 1024

// Request describes one JSON API call.
type Request struct {
	Method  string            // default GET
	URL     string
	Headers map[string]string // values are ${ENV_VAR} expanded
	Body    any               // marshalled as JSON when non-nil
}

// Do performs the request and decodes the JSON response into out.
// Non-2xx statuses are errors; the body is read through a size cap.
func Do(ctx context.Context, client *http.Client, req Request, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("apifetch: marshal body: %w", err)
		}
		body = strings.NewReader(string(b))
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return fmt.Errorf("apifetch: new request: %w", err)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, expandEnv(v))
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("apifetch: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("apifetch: http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBody))
	if err != nil {
		return fmt.Errorf("apifetch: read body: %w", err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("apifetch: json decode: %w", err)
	}
	return nil
}

// expandEnv replaces ${ENV_VAR} patterns with their values.
func expandEnv(s string) string {
	return os.Expand(s, os.Getenv)
}
