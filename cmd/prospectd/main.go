// Command prospectd runs the prospect HTTP service: CRM CRUD, the
// background research loop, flight status lookups, and deal insight
// generation.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelio/prospect/crm"
	"github.com/avelio/prospect/dbopen"
	"github.com/avelio/prospect/flight"
	"github.com/avelio/prospect/insight"
	insightanthropic "github.com/avelio/prospect/insight/anthropic"
	insightopenai "github.com/avelio/prospect/insight/openai"
	"github.com/avelio/prospect/observability"
	"github.com/avelio/prospect/research"
	_ "modernc.org/sqlite"
)

func main() {
	cfg := DefaultConfig()
	if path := os.Getenv("CONFIG"); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Listen = ":" + v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Database.
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(crm.Schema))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := research.ApplySchema(db); err != nil {
		slog.Error("research schema", "error", err)
		os.Exit(1)
	}

	if err := observability.Init(db); err != nil {
		slog.Error("events schema", "error", err)
		os.Exit(1)
	}
	events := observability.NewEventLogger(db)

	crmStore := crm.NewStore(db)

	// Research service: subjects come straight from the client table.
	subjects := func(ctx context.Context) ([]research.Subject, error) {
		clients, err := crmStore.ListAllClients(ctx)
		if err != nil {
			return nil, err
		}
		subs := make([]research.Subject, 0, len(clients))
		for _, c := range clients {
			subs = append(subs, research.Subject{
				ClientID:    c.ID,
				UserID:      c.UserID,
				CompanyName: c.CompanyName,
			})
		}
		return subs, nil
	}

	researchSvc, err := research.New(db, subjects, http.DefaultClient,
		cfg.Research.serviceConfig(), research.WithLogger(logger))
	if err != nil {
		slog.Error("research service", "error", err)
		os.Exit(1)
	}
	go researchSvc.Run(ctx)

	// Flight service.
	var flightSvc *flight.Service
	if cfg.Flight.BaseURL != "" {
		provider := flight.NewClient(http.DefaultClient, cfg.Flight.client())
		flightSvc = flight.NewService(provider, flight.Config{}, flight.WithLogger(logger))
	}

	// Insight service.
	var gen insight.Generator
	switch cfg.Insight.Provider {
	case "openai":
		gen = insightopenai.NewGenerator(
			insight.WithAPIKey(expandEnv(cfg.Insight.APIKey)),
			insight.WithModel(cfg.Insight.Model),
		)
	case "anthropic":
		gen = insightanthropic.NewGenerator(
			insight.WithAPIKey(expandEnv(cfg.Insight.APIKey)),
			insight.WithModel(cfg.Insight.Model),
		)
	}
	insightSvc := insight.NewService(gen, insight.WithLogger(logger))

	// Router.
	a := &api{
		crm:      crmStore,
		research: researchSvc,
		flight:   flightSvc,
		insight:  insightSvc,
		events:   events,
		logger:   logger,
	}
	r := a.routes()

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func expandEnv(s string) string {
	return os.Expand(s, os.Getenv)
}
