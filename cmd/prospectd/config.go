package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/avelio/prospect/flight"
	"github.com/avelio/prospect/research"
)

// Config holds the full prospectd configuration. Secret-bearing values
// (API keys, header values) may use ${ENV_VAR} placeholders, expanded
// at call time so the config file stays safe to commit.
type Config struct {
	Listen   string `yaml:"listen"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	Research ResearchConfig `yaml:"research"`
	Flight   FlightConfig   `yaml:"flight"`
	Insight  InsightConfig  `yaml:"insight"`
}

// ProviderConfig is one research provider endpoint.
type ProviderConfig struct {
	BaseURL string            `yaml:"base_url"`
	Headers map[string]string `yaml:"headers"` // values ${ENV_VAR} expanded
}

// ResearchConfig configures the research pipeline providers.
type ResearchConfig struct {
	CheckIntervalMin int            `yaml:"check_interval_min"`
	CooldownHours    int            `yaml:"cooldown_hours"`
	News             ProviderConfig `yaml:"news"`
	Article          ProviderConfig `yaml:"article"`
	Company          ProviderConfig `yaml:"company"`
	Firmographics    ProviderConfig `yaml:"firmographics"`
	Executive        ProviderConfig `yaml:"executive"`
}

// FlightConfig configures the flight status provider.
type FlightConfig struct {
	BaseURL   string `yaml:"base_url"`
	AccessKey string `yaml:"access_key"` // ${ENV_VAR} expanded
}

// InsightConfig selects and configures the insight model backend.
type InsightConfig struct {
	Provider string `yaml:"provider"` // openai | anthropic | "" (disabled)
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"` // ${ENV_VAR} expanded
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8086",
		DBPath:   "db/prospect.db",
		LogLevel: "info",
	}
}

// LoadConfig reads and parses a YAML config file over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that configured sections are coherent.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch c.Insight.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("insight: unsupported provider %q (use openai or anthropic)", c.Insight.Provider)
	}
	if c.Insight.Provider != "" && c.Insight.APIKey == "" {
		return fmt.Errorf("insight: api_key is required when a provider is set")
	}
	return nil
}

func (c ResearchConfig) serviceConfig() research.Config {
	cfg := research.Config{
		News:    c.News.news(),
		Page:    c.Article.page(),
		Company: c.Company.company(),
		Firmo:   c.Firmographics.firmo(),
		People:  c.Executive.people(),
	}
	if c.CheckIntervalMin > 0 {
		cfg.CheckInterval = time.Duration(c.CheckIntervalMin) * time.Minute
	}
	if c.CooldownHours > 0 {
		cfg.Cooldown = time.Duration(c.CooldownHours) * time.Hour
	}
	return cfg
}

func (p ProviderConfig) news() research.NewsConfig {
	return research.NewsConfig{BaseURL: p.BaseURL, Headers: p.Headers}
}

func (p ProviderConfig) page() research.PageConfig {
	return research.PageConfig{BaseURL: p.BaseURL, Headers: p.Headers}
}

func (p ProviderConfig) company() research.CompanyConfig {
	return research.CompanyConfig{BaseURL: p.BaseURL, Headers: p.Headers}
}

func (p ProviderConfig) firmo() research.FirmoConfig {
	return research.FirmoConfig{BaseURL: p.BaseURL, Headers: p.Headers}
}

func (p ProviderConfig) people() research.PeopleConfig {
	return research.PeopleConfig{BaseURL: p.BaseURL, Headers: p.Headers}
}

func (c FlightConfig) client() flight.ClientConfig {
	return flight.ClientConfig{BaseURL: c.BaseURL, AccessKey: c.AccessKey}
}
