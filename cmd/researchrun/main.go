// Command researchrun executes one research cycle and exits. Useful
// under cron or for backfilling after adding clients in bulk; the
// per-source cooldowns make repeated runs cheap.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelio/prospect/crm"
	"github.com/avelio/prospect/dbopen"
	"github.com/avelio/prospect/research"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// config mirrors the research slice of the prospectd config file.
type config struct {
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	Research struct {
		CooldownHours int            `yaml:"cooldown_hours"`
		News          providerConfig `yaml:"news"`
		Article       providerConfig `yaml:"article"`
		Company       providerConfig `yaml:"company"`
		Firmographics providerConfig `yaml:"firmographics"`
		Executive     providerConfig `yaml:"executive"`
	} `yaml:"research"`
}

type providerConfig struct {
	BaseURL string            `yaml:"base_url"`
	Headers map[string]string `yaml:"headers"`
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG"), "path to YAML config")
	dbPath := flag.String("db", "", "database path (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var cfg config
	cfg.DBPath = "db/prospect.db"
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			slog.Error("read config", "error", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			slog.Error("parse config", "error", err)
			os.Exit(1)
		}
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithSchema(crm.Schema))
	if err != nil {
		slog.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := research.ApplySchema(db); err != nil {
		slog.Error("research schema", "error", err)
		os.Exit(1)
	}

	crmStore := crm.NewStore(db)
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

	svcCfg := research.Config{
		News:    research.NewsConfig{BaseURL: cfg.Research.News.BaseURL, Headers: cfg.Research.News.Headers},
		Page:    research.PageConfig{BaseURL: cfg.Research.Article.BaseURL, Headers: cfg.Research.Article.Headers},
		Company: research.CompanyConfig{BaseURL: cfg.Research.Company.BaseURL, Headers: cfg.Research.Company.Headers},
		Firmo:   research.FirmoConfig{BaseURL: cfg.Research.Firmographics.BaseURL, Headers: cfg.Research.Firmographics.Headers},
		People:  research.PeopleConfig{BaseURL: cfg.Research.Executive.BaseURL, Headers: cfg.Research.Executive.Headers},
	}
	if cfg.Research.CooldownHours > 0 {
		svcCfg.Cooldown = time.Duration(cfg.Research.CooldownHours) * time.Hour
	}

	svc, err := research.New(db, subjects, http.DefaultClient, svcCfg, research.WithLogger(logger))
	if err != nil {
		slog.Error("research service", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	if err := svc.RunCycle(ctx); err != nil {
		slog.Error("research cycle", "error", err)
		os.Exit(1)
	}
	slog.Info("research cycle complete", "elapsed", time.Since(start).String())
}
