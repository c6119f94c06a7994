package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Search.MaxLimit != 50 || cfg.Search.ScoreFloor != 0.3 {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
	if cfg.Embedder.Dims != 768 {
		t.Errorf("dims = %d", cfg.Embedder.Dims)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
vector:
  backend: memory
fetcher:
  timeout: 5s
search:
  maxLimit: 20
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)

	cfg := Load()
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Vector.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Vector.Backend)
	}
	if cfg.Search.MaxLimit != 20 {
		t.Errorf("maxLimit = %d", cfg.Search.MaxLimit)
	}
	if cfg.Fetcher.Timeout.Std() != 5*time.Second {
		t.Errorf("fetch timeout = %s", cfg.Fetcher.Timeout.Std())
	}
	// Untouched sections keep defaults.
	if cfg.Summarizer.Model != "gpt-4o-mini" {
		t.Errorf("summarizer model = %q", cfg.Summarizer.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(portEnv, "7070")
	t.Setenv(qdrantURLEnv, "qdrant:6334")
	t.Setenv(summarizerKeyEnv, "sk-test")

	cfg := Load()
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Vector.QdrantURL != "qdrant:6334" || cfg.Vector.Backend != "qdrant" {
		t.Errorf("vector = %+v", cfg.Vector)
	}
	if cfg.Summarizer.APIKey != "sk-test" {
		t.Errorf("api key not applied")
	}
}
