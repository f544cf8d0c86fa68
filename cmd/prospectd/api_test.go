// WHAT: Route-level tests for the prospectd API: the CRM surface, the
// research trigger, insight generation, and flight gating by user flag.
// WHY: Handlers glue five services together; status codes and error
// mapping are contracts the frontend depends on.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avelio/prospect/crm"
	"github.com/avelio/prospect/dbopen"
	"github.com/avelio/prospect/flight"
	"github.com/avelio/prospect/insight"
	"github.com/avelio/prospect/observability"
	"github.com/avelio/prospect/research"
	_ "modernc.org/sqlite"
)

type stubFlightProvider struct {
	status *flight.Status
	err    error
}

func (p *stubFlightProvider) Lookup(ctx context.Context, iata string) (*flight.Status, error) {
	if p.err != nil {
		return nil, p.err
	}
	st := *p.status
	st.FlightIATA = iata
	return &st, nil
}

type stubGenerator struct {
	text string
	err  error
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.text, g.err
}

func newTestAPI(t *testing.T) (*api, *httptest.Server) {
	t.Helper()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"news_results":[{"title":"Acme expands","link":"https://203.0.113.10/story"}]}`))
	}))
	t.Cleanup(provider.Close)

	db := dbopen.OpenMemory(t, dbopen.WithSchema(crm.Schema))
	if err := research.ApplySchema(db); err != nil {
		t.Fatalf("research schema: %v", err)
	}

	crmStore := crm.NewStore(db)
	researchSvc, err := research.New(db, nil, http.DefaultClient, research.Config{
		News: research.NewsConfig{BaseURL: provider.URL},
	})
	if err != nil {
		t.Fatalf("research service: %v", err)
	}

	flightSvc := flight.NewService(
		&stubFlightProvider{status: &flight.Status{Status: flight.StatusActive}},
		flight.Config{})

	if err := observability.Init(db); err != nil {
		t.Fatalf("events schema: %v", err)
	}

	a := &api{
		crm:      crmStore,
		research: researchSvc,
		flight:   flightSvc,
		insight:  insight.NewService(&stubGenerator{text: "Approach: lead with the news."}),
		events:   observability.NewEventLogger(db),
		logger:   slog.Default(),
	}
	srv := httptest.NewServer(a.routes())
	t.Cleanup(srv.Close)
	return a, srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func seedUserAndClient(t *testing.T, srv *httptest.Server) (userID, clientID string) {
	t.Helper()
	resp, user := doJSON(t, "POST", srv.URL+"/api/users", map[string]any{
		"name": "Rep", "email": "rep@example.com",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create user: %d %v", resp.StatusCode, user)
	}
	userID = user["id"].(string)

	resp, client := doJSON(t, "POST", srv.URL+"/api/clients", map[string]any{
		"user_id": userID, "name": "Ada", "company_name": "Acme Corp",
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create client: %d %v", resp.StatusCode, client)
	}
	return userID, client["id"].(string)
}

func TestClientLifecycle(t *testing.T) {
	_, srv := newTestAPI(t)
	userID, clientID := seedUserAndClient(t, srv)

	resp, got := doJSON(t, "GET", srv.URL+"/api/clients/"+clientID, nil)
	if resp.StatusCode != 200 || got["company_name"] != "Acme Corp" {
		t.Errorf("get client: %d %v", resp.StatusCode, got)
	}
	if got["status"] != "lead" {
		t.Errorf("default status = %v", got["status"])
	}

	resp, _ = doJSON(t, "PUT", srv.URL+"/api/clients/"+clientID, map[string]any{
		"name": "Ada", "company_name": "Acme Corp", "status": "active",
	})
	if resp.StatusCode != 200 {
		t.Errorf("update client: %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "GET", srv.URL+"/api/clients?user_id="+userID, nil)
	if resp.StatusCode != 200 {
		t.Errorf("list clients: %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, "DELETE", srv.URL+"/api/clients/"+clientID, nil)
	if resp.StatusCode != 200 {
		t.Errorf("delete client: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, "GET", srv.URL+"/api/clients/"+clientID, nil)
	if resp.StatusCode != 404 {
		t.Errorf("get after delete: %d, want 404", resp.StatusCode)
	}
}

func TestCreateClientValidation(t *testing.T) {
	_, srv := newTestAPI(t)
	resp, _ := doJSON(t, "POST", srv.URL+"/api/clients", map[string]any{"name": "Ada"})
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDealInheritsUserFromClient(t *testing.T) {
	_, srv := newTestAPI(t)
	userID, clientID := seedUserAndClient(t, srv)

	resp, deal := doJSON(t, "POST", srv.URL+"/api/deals", map[string]any{
		"client_id": clientID, "title": "Renewal", "amount": 25000000,
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create deal: %d %v", resp.StatusCode, deal)
	}
	if deal["user_id"] != userID {
		t.Errorf("deal user_id = %v, want inherited %s", deal["user_id"], userID)
	}
	if deal["stage"] != "prospecting" {
		t.Errorf("default stage = %v", deal["stage"])
	}

	resp, _ = doJSON(t, "POST", srv.URL+"/api/deals", map[string]any{
		"client_id": "nope", "title": "Ghost",
	})
	if resp.StatusCode != 400 {
		t.Errorf("deal for unknown client: %d, want 400", resp.StatusCode)
	}
}

func TestResearchTriggerAndFetch(t *testing.T) {
	_, srv := newTestAPI(t)
	_, clientID := seedUserAndClient(t, srv)

	resp, body := doJSON(t, "POST", srv.URL+"/api/clients/"+clientID+"/research", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("trigger research: %d %v", resp.StatusCode, body)
	}
	sources, ok := body["sources"].([]any)
	if !ok || len(sources) == 0 {
		t.Fatalf("sources = %v", body["sources"])
	}

	resp, body = doJSON(t, "GET", srv.URL+"/api/clients/"+clientID+"/research", nil)
	if resp.StatusCode != 200 || body["record"] == nil {
		t.Errorf("get research: %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, "GET", srv.URL+"/api/clients/nope/research", nil)
	if resp.StatusCode != 404 {
		t.Errorf("research for unknown client: %d, want 404", resp.StatusCode)
	}
}

func TestInsightsEndpointStoresSummary(t *testing.T) {
	_, srv := newTestAPI(t)
	_, clientID := seedUserAndClient(t, srv)

	resp, body := doJSON(t, "POST", srv.URL+"/api/clients/"+clientID+"/insights", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("insights: %d %v", resp.StatusCode, body)
	}
	text, _ := body["insights"].(string)
	if !strings.Contains(text, "Approach") {
		t.Errorf("insights = %q", text)
	}

	resp, researchBody := doJSON(t, "GET", srv.URL+"/api/clients/"+clientID+"/research", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("get research: %d", resp.StatusCode)
	}
	record, _ := researchBody["record"].(map[string]any)
	if record == nil || record["summary"] != text {
		t.Errorf("summary not stored on record: %v", record)
	}
}

func TestInsightsFallbackOnGeneratorError(t *testing.T) {
	a, _ := newTestAPI(t)
	a.insight = insight.NewService(&stubGenerator{err: context.DeadlineExceeded})
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	_, clientID := seedUserAndClient(t, srv)
	resp, body := doJSON(t, "POST", srv.URL+"/api/clients/"+clientID+"/insights", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("insights: %d", resp.StatusCode)
	}
	if body["insights"] != insight.Fallback {
		t.Errorf("insights = %v, want fallback", body["insights"])
	}
}

func TestFlightEndpointGatedByUserFlag(t *testing.T) {
	_, srv := newTestAPI(t)
	userID, _ := seedUserAndClient(t, srv)

	// Disabled by default.
	resp, _ := doJSON(t, "GET", srv.URL+"/api/flights/AF1234?user_id="+userID, nil)
	if resp.StatusCode != 403 {
		t.Fatalf("disabled user: %d, want 403", resp.StatusCode)
	}

	resp, _ = doJSON(t, "PUT", srv.URL+"/api/users/"+userID+"/flight-tracking", map[string]any{
		"enabled": true, "quota": 100,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("enable tracking: %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "GET", srv.URL+"/api/flights/AF1234?user_id="+userID, nil)
	if resp.StatusCode != 200 || body["status"] != flight.StatusActive {
		t.Errorf("flight lookup: %d %v", resp.StatusCode, body)
	}

	// Second distinct flight within the limiter window: 429.
	resp, _ = doJSON(t, "GET", srv.URL+"/api/flights/BA42?user_id="+userID, nil)
	if resp.StatusCode != 429 {
		t.Errorf("rate limited lookup: %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// Cached flight still served while limited.
	resp, _ = doJSON(t, "GET", srv.URL+"/api/flights/AF1234?user_id="+userID, nil)
	if resp.StatusCode != 200 {
		t.Errorf("cached lookup under limit: %d", resp.StatusCode)
	}
}

func TestFlightEndpointEnforcesQuota(t *testing.T) {
	_, srv := newTestAPI(t)
	userID, _ := seedUserAndClient(t, srv)

	// Enabled but with no quota: exhausted from the start.
	doJSON(t, "PUT", srv.URL+"/api/users/"+userID+"/flight-tracking", map[string]any{
		"enabled": true, "quota": 0,
	})
	resp, _ := doJSON(t, "GET", srv.URL+"/api/flights/AF1234?user_id="+userID, nil)
	if resp.StatusCode != 403 {
		t.Fatalf("zero quota lookup: %d, want 403", resp.StatusCode)
	}

	doJSON(t, "PUT", srv.URL+"/api/users/"+userID+"/flight-tracking", map[string]any{
		"enabled": true, "quota": 1,
	})
	resp, _ = doJSON(t, "GET", srv.URL+"/api/flights/AF1234?user_id="+userID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("lookup within quota: %d, want 200", resp.StatusCode)
	}

	// Quota consumed before the cache is consulted, so even a cached
	// flight is refused once the allowance is spent.
	resp, body := doJSON(t, "GET", srv.URL+"/api/flights/AF1234?user_id="+userID, nil)
	if resp.StatusCode != 403 {
		t.Fatalf("lookup past quota: %d %v, want 403", resp.StatusCode, body)
	}
}

func TestFlightEndpointMapsProviderErrors(t *testing.T) {
	a, _ := newTestAPI(t)
	a.flight = flight.NewService(&stubFlightProvider{err: flight.ErrNotFound}, flight.Config{})
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	userID, _ := seedUserAndClient(t, srv)
	doJSON(t, "PUT", srv.URL+"/api/users/"+userID+"/flight-tracking", map[string]any{"enabled": true, "quota": 5})

	resp, _ := doJSON(t, "GET", srv.URL+"/api/flights/XX999?user_id="+userID, nil)
	if resp.StatusCode != 404 {
		t.Errorf("not found flight: %d, want 404", resp.StatusCode)
	}
}

func TestMutationsAreRecordedAsEvents(t *testing.T) {
	_, srv := newTestAPI(t)
	_, clientID := seedUserAndClient(t, srv)
	doJSON(t, "DELETE", srv.URL+"/api/clients/"+clientID, nil)

	resp, err := http.Get(srv.URL + "/api/events?limit=10")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()
	var events []map[string]any
	json.NewDecoder(resp.Body).Decode(&events)
	// user create, client create, client delete
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3: %v", len(events), events)
	}
	if events[0]["action"] != "delete" || events[0]["entity_type"] != "client" {
		t.Errorf("newest event = %v", events[0])
	}
}

func TestHealthBypassesRateLimit(t *testing.T) {
	_, srv := newTestAPI(t)
	for i := 0; i < 150; i++ {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("health: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Fatalf("health request %d: %d", i, resp.StatusCode)
		}
	}
}
