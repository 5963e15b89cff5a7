package app

import (
	"context"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/storygraph/internal/config"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cfg.AI.Adapter = "ollama"
	cfg.AI.BaseURL = "http://127.0.0.1:11434"
	cfg.AI.Model = "test-model"
	cfg.Cache.Backend = "fs"
	cfg.Cache.Dir = t.TempDir()
	cfg.Source.Backend = "fs"
	cfg.Source.Dir = t.TempDir()
	cfg.Postgres.URL = ""
	cfg.Extract.SchemaFile = ""
	return cfg
}

func TestNew_FilesystemBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.Optimize.Enabled = true

	a, err := New(context.Background(), cfg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if a.Pool != nil || a.Locker != nil || a.Timing != nil || a.Exporter != nil {
		t.Error("expected no database backends without DATABASE_URL")
	}
	if got := a.Client.Identity().Model; got != "test-model" {
		t.Errorf("Identity().Model = %q, want test-model", got)
	}
	if a.Scheduler() == nil {
		t.Error("Scheduler() returned nil")
	}

	c := a.ChapterConfig("pride", "ch01", "text", graph.MinimalSchema())
	if c.ChunkSize != cfg.Extract.ChunkSize || c.ChunkOverlap != cfg.Extract.ChunkOverlap {
		t.Errorf("ChapterConfig() chunking = %d/%d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.Optimize == nil || c.Optimize.MinHubDegree != cfg.Optimize.MinHubDegree {
		t.Errorf("ChapterConfig().Optimize = %+v", c.Optimize)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"remote without key", func(c *config.Config) {
			c.AI.Adapter = "openai"
			c.AI.APIKey = ""
		}},
		{"unknown cache", func(c *config.Config) { c.Cache.Backend = "memcached" }},
		{"postgres cache without url", func(c *config.Config) { c.Cache.Backend = "postgres" }},
		{"overlap too large", func(c *config.Config) { c.Extract.ChunkOverlap = c.Extract.ChunkSize }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.modify(cfg)
			_, err := New(context.Background(), cfg, Options{})
			var cfgErr *graph.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("New() error = %v, want ConfigurationError", err)
			}
		})
	}
}

func TestNewOptimizer(t *testing.T) {
	tests := []struct {
		name      string
		strategy  string
		reconnect bool
		adapter   string
		want      graph.GroupingStrategy
		wantErr   bool
	}{
		{"positional without model", "positional", false, "openai", graph.GroupPositional, false},
		{"unknown strategy", "bogus", false, "ollama", graph.GroupPositional, false},
		{"llm with local model", "llm", false, "ollama", graph.GroupLLM, false},
		{"llm with remote model and no key", "llm", false, "openai", "", true},
		{"reconnect with remote model and no key", "community", true, "openai", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.AI.Adapter = tc.adapter
			cfg.AI.APIKey = ""
			cfg.Optimize.Reconnect = tc.reconnect

			o, err := NewOptimizer(cfg, tc.strategy)
			if tc.wantErr {
				var cfgErr *graph.ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("err = %v, want configuration error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewOptimizer() error = %v", err)
			}
			if o.Strategy() != tc.want {
				t.Errorf("strategy = %q, want %q", o.Strategy(), tc.want)
			}
		})
	}
}
