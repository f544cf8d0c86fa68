package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/avelio/prospect/crm"
	"github.com/avelio/prospect/flight"
	"github.com/avelio/prospect/idgen"
	"github.com/avelio/prospect/insight"
	"github.com/avelio/prospect/observability"
	"github.com/avelio/prospect/research"
	"github.com/avelio/prospect/shield"
)

type api struct {
	crm      *crm.Store
	research *research.Service
	flight   *flight.Service
	insight  *insight.Service
	events   *observability.EventLogger
	logger   *slog.Logger
}

// record logs a domain event when an event logger is configured.
func (a *api) record(ctx context.Context, entityType, entityID, userID, action string) {
	if a.events == nil {
		return
	}
	a.events.Log(ctx, observability.Event{
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Action:     action,
		Success:    true,
	})
}

func (a *api) routes() chi.Router {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", a.createUser)
		r.Get("/users/{id}", a.getUser)
		r.Put("/users/{id}/flight-tracking", a.setFlightTracking)

		r.Post("/clients", a.createClient)
		r.Get("/clients", a.listClients)
		r.Get("/clients/{id}", a.getClient)
		r.Put("/clients/{id}", a.updateClient)
		r.Delete("/clients/{id}", a.deleteClient)

		r.Get("/clients/{id}/research", a.getResearch)
		r.Post("/clients/{id}/research", a.triggerResearch)
		r.Get("/clients/{id}/research/log", a.getResearchLog)
		r.Post("/clients/{id}/insights", a.generateInsights)

		r.Post("/deals", a.createDeal)
		r.Get("/deals", a.listDeals)
		r.Get("/deals/{id}", a.getDeal)
		r.Put("/deals/{id}", a.updateDeal)
		r.Delete("/deals/{id}", a.deleteDeal)

		r.Post("/tasks", a.createTask)
		r.Get("/tasks", a.listTasks)
		r.Get("/tasks/{id}", a.getTask)
		r.Put("/tasks/{id}", a.updateTask)
		r.Delete("/tasks/{id}", a.deleteTask)

		r.Get("/flights/{iata}", a.getFlight)

		r.Get("/events", a.listEvents)
	})

	return r
}

// --- Users ---

func (a *api) createUser(w http.ResponseWriter, r *http.Request) {
	var u crm.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, 400, err)
		return
	}
	if u.Name == "" || u.Email == "" {
		writeError(w, 400, fmt.Errorf("name and email are required"))
		return
	}
	if u.ID == "" {
		u.ID = "usr_" + idgen.New()
	}
	if err := a.crm.InsertUser(r.Context(), &u); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "user", u.ID, u.ID, "create")
	writeJSON(w, 201, u)
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.crm.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if u == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, 200, u)
}

func (a *api) setFlightTracking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
		Quota   int  `json:"quota"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	id := chi.URLParam(r, "id")
	u, err := a.crm.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if u == nil {
		writeNotFound(w)
		return
	}
	if err := a.crm.SetFlightTracking(r.Context(), id, req.Enabled, req.Quota); err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]any{"enabled": req.Enabled, "quota": req.Quota})
}

// --- Clients ---

func (a *api) createClient(w http.ResponseWriter, r *http.Request) {
	var c crm.Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, 400, err)
		return
	}
	if c.UserID == "" || c.Name == "" || c.CompanyName == "" {
		writeError(w, 400, fmt.Errorf("user_id, name and company_name are required"))
		return
	}
	if c.ID == "" {
		c.ID = "cli_" + idgen.New()
	}
	if err := a.crm.InsertClient(r.Context(), &c); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "client", c.ID, c.UserID, "create")
	writeJSON(w, 201, c)
}

func (a *api) listClients(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, 400, fmt.Errorf("user_id query parameter is required"))
		return
	}
	clients, err := a.crm.ListClients(r.Context(), userID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, orEmpty(clients))
}

func (a *api) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := a.crm.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if c == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, 200, c)
}

func (a *api) updateClient(w http.ResponseWriter, r *http.Request) {
	existing, err := a.crm.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if existing == nil {
		writeNotFound(w)
		return
	}
	var c crm.Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, 400, err)
		return
	}
	c.ID = existing.ID
	c.UserID = existing.UserID
	if err := a.crm.UpdateClient(r.Context(), &c); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "client", c.ID, c.UserID, "update")
	writeJSON(w, 200, c)
}

func (a *api) deleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.crm.DeleteClient(r.Context(), id); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "client", id, "", "delete")
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

// --- Research ---

func (a *api) getResearch(w http.ResponseWriter, r *http.Request) {
	c, err := a.crm.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if c == nil {
		writeNotFound(w)
		return
	}

	record, err := a.research.GetRecord(r.Context(), c.ID, c.UserID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	sources, err := a.research.ListSourceResults(r.Context(), c.ID, c.UserID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"record":  record,
		"sources": orEmpty(sources),
	})
}

func (a *api) triggerResearch(w http.ResponseWriter, r *http.Request) {
	c, err := a.crm.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if c == nil {
		writeNotFound(w)
		return
	}

	sub := research.Subject{ClientID: c.ID, UserID: c.UserID, CompanyName: c.CompanyName}
	if err := a.research.RunSubject(r.Context(), sub); err != nil {
		writeError(w, 500, err)
		return
	}
	sources, err := a.research.ListSourceResults(r.Context(), c.ID, c.UserID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]any{"sources": orEmpty(sources)})
}

func (a *api) getResearchLog(w http.ResponseWriter, r *http.Request) {
	c, err := a.crm.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if c == nil {
		writeNotFound(w)
		return
	}
	limit := queryInt(r, "limit", 50)
	entries, err := a.research.ListFetchLog(r.Context(), c.ID, c.UserID, limit)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, orEmpty(entries))
}

// --- Insights ---

func (a *api) generateInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := a.crm.GetClient(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if c == nil {
		writeNotFound(w)
		return
	}

	bundle, err := a.buildBundle(ctx, c)
	if err != nil {
		writeError(w, 500, err)
		return
	}

	text := a.insight.DealIntelligence(ctx, bundle)
	if text != insight.Fallback {
		if err := a.research.SetSummary(ctx, c.ID, c.UserID, text); err != nil {
			a.logger.Error("store summary", "client_id", c.ID, "error", err)
		}
	}
	writeJSON(w, 200, map[string]string{"insights": text})
}

// buildBundle assembles the prompt inputs from the CRM and the stored
// research payloads. Missing sources leave their field empty; the
// prompt builder omits empty sections.
func (a *api) buildBundle(ctx context.Context, c *crm.Client) (insight.Bundle, error) {
	b := insight.Bundle{
		ClientName:  c.Name,
		CompanyName: c.CompanyName,
		Notes:       c.Notes,
	}

	sources, err := a.research.ListSourceResults(ctx, c.ID, c.UserID)
	if err != nil {
		return b, err
	}
	for _, src := range sources {
		if !src.HasData {
			continue
		}
		switch src.Source {
		case "news":
			var np struct {
				Articles []struct {
					Title string `json:"title"`
				} `json:"articles"`
			}
			if json.Unmarshal(src.Payload, &np) == nil {
				for _, art := range np.Articles {
					if b.RecentNews != "" {
						b.RecentNews += "\n"
					}
					b.RecentNews += "- " + art.Title
				}
			}
		case "company", "firmographics":
			if b.CompanyProfile != "" {
				b.CompanyProfile += "\n"
			}
			b.CompanyProfile += string(src.Payload)
		case "executive":
			var exec struct {
				FullName string `json:"full_name"`
				Title    string `json:"title"`
			}
			if json.Unmarshal(src.Payload, &exec) == nil && exec.FullName != "" {
				b.ExecutiveName = exec.FullName
				if exec.Title != "" {
					b.ExecutiveName += " (" + exec.Title + ")"
				}
			}
		}
	}

	deals, err := a.crm.ListDealsByClient(ctx, c.ID)
	if err != nil {
		return b, err
	}
	if len(deals) > 0 {
		d := deals[0]
		b.DealTitle = d.Title
		b.DealStage = d.Stage
		if d.Amount > 0 {
			b.DealAmount = fmt.Sprintf("$%.2f", float64(d.Amount)/100)
		}
	}
	return b, nil
}

// --- Deals ---

func (a *api) createDeal(w http.ResponseWriter, r *http.Request) {
	var d crm.Deal
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, 400, err)
		return
	}
	if d.ClientID == "" || d.Title == "" {
		writeError(w, 400, fmt.Errorf("client_id and title are required"))
		return
	}
	c, err := a.crm.GetClient(r.Context(), d.ClientID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if c == nil {
		writeError(w, 400, fmt.Errorf("unknown client %s", d.ClientID))
		return
	}
	d.UserID = c.UserID
	if d.ID == "" {
		d.ID = "deal_" + idgen.New()
	}
	if err := a.crm.InsertDeal(r.Context(), &d); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "deal", d.ID, d.UserID, "create")
	writeJSON(w, 201, d)
}

func (a *api) listDeals(w http.ResponseWriter, r *http.Request) {
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		deals, err := a.crm.ListDealsByClient(r.Context(), clientID)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, orEmpty(deals))
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, 400, fmt.Errorf("client_id or user_id query parameter is required"))
		return
	}
	deals, err := a.crm.ListDealsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, orEmpty(deals))
}

func (a *api) getDeal(w http.ResponseWriter, r *http.Request) {
	d, err := a.crm.GetDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if d == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, 200, d)
}

func (a *api) updateDeal(w http.ResponseWriter, r *http.Request) {
	existing, err := a.crm.GetDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if existing == nil {
		writeNotFound(w)
		return
	}
	var d crm.Deal
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, 400, err)
		return
	}
	d.ID = existing.ID
	d.ClientID = existing.ClientID
	d.UserID = existing.UserID
	if err := a.crm.UpdateDeal(r.Context(), &d); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "deal", d.ID, d.UserID, "update")
	writeJSON(w, 200, d)
}

func (a *api) deleteDeal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.crm.DeleteDeal(r.Context(), id); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "deal", id, "", "delete")
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

// --- Tasks ---

func (a *api) createTask(w http.ResponseWriter, r *http.Request) {
	var t crm.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, 400, err)
		return
	}
	if t.ClientID == "" || t.Title == "" {
		writeError(w, 400, fmt.Errorf("client_id and title are required"))
		return
	}
	c, err := a.crm.GetClient(r.Context(), t.ClientID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if c == nil {
		writeError(w, 400, fmt.Errorf("unknown client %s", t.ClientID))
		return
	}
	t.UserID = c.UserID
	if t.ID == "" {
		t.ID = "task_" + idgen.New()
	}
	if err := a.crm.InsertTask(r.Context(), &t); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "task", t.ID, t.UserID, "create")
	writeJSON(w, 201, t)
}

func (a *api) listTasks(w http.ResponseWriter, r *http.Request) {
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		tasks, err := a.crm.ListTasksByClient(r.Context(), clientID)
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, orEmpty(tasks))
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, 400, fmt.Errorf("client_id or user_id query parameter is required"))
		return
	}
	tasks, err := a.crm.ListOpenTasks(r.Context(), userID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, orEmpty(tasks))
}

func (a *api) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.crm.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if t == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, 200, t)
}

func (a *api) updateTask(w http.ResponseWriter, r *http.Request) {
	existing, err := a.crm.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if existing == nil {
		writeNotFound(w)
		return
	}
	var t crm.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, 400, err)
		return
	}
	t.ID = existing.ID
	t.ClientID = existing.ClientID
	t.UserID = existing.UserID
	if err := a.crm.UpdateTask(r.Context(), &t); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "task", t.ID, t.UserID, "update")
	writeJSON(w, 200, t)
}

func (a *api) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.crm.DeleteTask(r.Context(), id); err != nil {
		writeError(w, 500, err)
		return
	}
	a.record(r.Context(), "task", id, "", "delete")
	writeJSON(w, 200, map[string]string{"status": "deleted"})
}

// --- Flights ---

func (a *api) getFlight(w http.ResponseWriter, r *http.Request) {
	if a.flight == nil {
		writeError(w, 503, fmt.Errorf("flight lookups are not configured"))
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, 400, fmt.Errorf("user_id query parameter is required"))
		return
	}
	u, err := a.crm.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if u == nil {
		writeNotFound(w)
		return
	}
	if !u.FlightTrackingEnabled {
		writeError(w, 403, fmt.Errorf("flight tracking is not enabled for this user"))
		return
	}
	ok, err := a.crm.ConsumeFlightLookup(r.Context(), userID)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if !ok {
		writeError(w, 403, fmt.Errorf("flight tracking quota exhausted for this user"))
		return
	}

	status, err := a.flight.Lookup(r.Context(), chi.URLParam(r, "iata"))
	switch {
	case errors.Is(err, flight.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, 429, err)
	case errors.Is(err, flight.ErrNotFound):
		writeError(w, 404, err)
	case errors.Is(err, flight.ErrProvider):
		writeError(w, 502, err)
	case err != nil:
		writeError(w, 500, err)
	default:
		writeJSON(w, 200, status)
	}
}

// --- Events ---

func (a *api) listEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeJSON(w, 200, []any{})
		return
	}
	events, err := a.events.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, orEmpty(events))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, 404, map[string]string{"error": "not found"})
}

// orEmpty turns a nil slice into an empty one so JSON renders [] rather
// than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
