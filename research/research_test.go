// WHAT: End-to-end research service test: a fresh subject, five fake
// providers, one cycle, five stored source rows.
// WHY: This is the integration seam between the scheduler, the cooldown
// gate, the handlers, and the store; a wiring mistake anywhere shows up
// here as a missing row.
package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avelio/prospect/dbopen"
	"github.com/avelio/prospect/research/internal/pipeline"
	"github.com/avelio/prospect/research/internal/store"
	_ "modernc.org/sqlite"
)

func fakeProvider(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunCycleStoresAllFiveSources(t *testing.T) {
	news := fakeProvider(t, `{"news_results":[{"title":"Acme expands","link":"https://203.0.113.10/story"}]}`)
	page := fakeProvider(t, `{"objects":[{"title":"Acme expands","html":"<p>Full story.</p>"}]}`)
	company := fakeProvider(t, `{"organization":{"name":"Acme Corp","estimated_num_employees":420}}`)
	firmo := fakeProvider(t, `{"status":200,"name":"acme corp","industry":"robotics"}`)
	people := fakeProvider(t, `{"data":[{"full_name":"Jo Martin","title":"CEO"}]}`)

	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))

	subjects := func(ctx context.Context) ([]Subject, error) {
		return []Subject{{ClientID: "c1", UserID: "u1", CompanyName: "Acme Corp"}}, nil
	}

	svc, err := New(db, subjects, http.DefaultClient, Config{
		News:    pipeline.NewsConfig{BaseURL: news.URL},
		Page:    pipeline.PageConfig{BaseURL: page.URL},
		Company: pipeline.CompanyConfig{BaseURL: company.URL},
		Firmo:   pipeline.FirmoConfig{BaseURL: firmo.URL},
		People:  pipeline.PeopleConfig{BaseURL: people.URL},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()

	// First cycle: everything but article lands (article needs a stored
	// news payload to know which URL to extract).
	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	results, err := svc.ListSourceResults(ctx, "c1", "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("rows = %d, want 5", len(results))
	}
	byName := map[string]*SourceResult{}
	for _, r := range results {
		byName[r.Source] = r
	}
	for _, src := range []string{"news", "company", "firmographics", "executive"} {
		r := byName[src]
		if r == nil || r.Status != store.StatusOK || !r.HasData {
			t.Errorf("source %s: %+v", src, r)
		}
	}
	if r := byName["article"]; r == nil || r.Status != store.StatusEmpty {
		t.Errorf("article on first cycle: %+v, want empty (no URL yet)", byName["article"])
	}

	rec, err := svc.GetRecord(ctx, "c1", "u1")
	if err != nil || rec == nil || rec.CompanyName != "Acme Corp" {
		t.Fatalf("record = %+v err = %v", rec, err)
	}

	entries, err := svc.ListFetchLog(ctx, "c1", "u1", 20)
	if err != nil {
		t.Fatalf("fetch log: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("fetch log entries = %d, want 5", len(entries))
	}

	// Second cycle immediately after: everything is fresh, nothing due.
	if err := svc.RunCycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	entries, _ = svc.ListFetchLog(ctx, "c1", "u1", 20)
	if len(entries) != 5 {
		t.Errorf("fresh subject was refetched: %d log entries", len(entries))
	}
}

func TestRunCycleWithoutLister(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	svc, err := New(db, nil, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.RunCycle(context.Background()); err != ErrNoSubjects {
		t.Errorf("err = %v, want ErrNoSubjects", err)
	}
}

func TestSetSummaryRoundTrip(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	subjects := func(ctx context.Context) ([]Subject, error) { return nil, nil }
	svc, err := New(db, subjects, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := svc.RunSubject(ctx, Subject{ClientID: "c1", UserID: "u1", CompanyName: "Acme"}); err != nil {
		t.Fatalf("run subject: %v", err)
	}
	if err := svc.SetSummary(ctx, "c1", "u1", "Strong pipeline."); err != nil {
		t.Fatalf("set summary: %v", err)
	}
	rec, _ := svc.GetRecord(ctx, "c1", "u1")
	if rec.Summary != "Strong pipeline." {
		t.Errorf("summary = %q", rec.Summary)
	}
}
