// Package config loads engine configuration from an optional YAML file with
// environment-variable overrides for deploy-time secrets and endpoints.
package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "BRIEFLY_CONFIG"
	databasePathEnv  = "BRIEFLY_DB_PATH"
	qdrantURLEnv     = "QDRANT_URL"
	natsURLEnv       = "NATS_URL"
	ollamaURLEnv     = "OLLAMA_URL"
	summarizerKeyEnv = "SUMMARIZER_API_KEY"
	summarizerURLEnv = "SUMMARIZER_ENDPOINT"
	portEnv          = "PORT"
)

// Duration wraps time.Duration so YAML values like "20s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds high-level settings required across the application.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Vector     VectorConfig     `yaml:"vector"`
	Fetcher    FetcherConfig    `yaml:"fetcher"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Search     SearchConfig     `yaml:"search"`
	NATS       NATSConfig       `yaml:"nats"`
}

// ServerConfig describes the HTTP API listener.
type ServerConfig struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"corsOrigin"`
}

// DatabaseConfig describes the SQLite article store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// VectorConfig selects and configures the vector index backend.
type VectorConfig struct {
	// Backend is "qdrant" or "memory".
	Backend    string `yaml:"backend"`
	QdrantURL  string `yaml:"qdrantUrl"`
	Collection string `yaml:"collection"`
}

// FetcherConfig bounds the content fetch stage.
type FetcherConfig struct {
	Timeout      Duration `yaml:"timeout"`
	MaxBodyBytes int64    `yaml:"maxBodyBytes"`
	RatePerSec   float64  `yaml:"ratePerSec"`
	UserAgent    string   `yaml:"userAgent"`
}

// SummarizerConfig defines how to contact the generative backend.
type SummarizerConfig struct {
	Endpoint      string   `yaml:"endpoint"`
	Model         string   `yaml:"model"`
	APIKey        string   `yaml:"apiKey"`
	Timeout       Duration `yaml:"timeout"`
	MaxInputChars int      `yaml:"maxInputChars"`
}

// EmbedderConfig defines the embedding backend and its declared dimensions.
type EmbedderConfig struct {
	OllamaURL     string   `yaml:"ollamaUrl"`
	Model         string   `yaml:"model"`
	Dims          int      `yaml:"dims"`
	Timeout       Duration `yaml:"timeout"`
	MaxInputChars int      `yaml:"maxInputChars"`
}

// SearchConfig tunes result ranking.
type SearchConfig struct {
	MaxLimit   int     `yaml:"maxLimit"`
	ScoreFloor float32 `yaml:"scoreFloor"`
}

// NATSConfig wires optional lifecycle eventing; empty URL disables it.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(portEnv); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(qdrantURLEnv); v != "" {
		c.Vector.QdrantURL = v
		c.Vector.Backend = "qdrant"
	}
	if v := os.Getenv(natsURLEnv); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(ollamaURLEnv); v != "" {
		c.Embedder.OllamaURL = v
	}
	if v := os.Getenv(summarizerKeyEnv); v != "" {
		c.Summarizer.APIKey = v
	}
	if v := os.Getenv(summarizerURLEnv); v != "" {
		c.Summarizer.Endpoint = v
	}
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:       "8080",
			CORSOrigin: "*",
		},
		Database: DatabaseConfig{Path: "briefly.db"},
		Vector: VectorConfig{
			Backend:    "qdrant",
			QdrantURL:  "localhost:6334",
			Collection: "articles",
		},
		Fetcher: FetcherConfig{
			Timeout:      Duration(20 * time.Second),
			MaxBodyBytes: 5 << 20,
			RatePerSec:   2,
			UserAgent:    "briefly/1.0 (+https://github.com/briefly-ai/briefly)",
		},
		Summarizer: SummarizerConfig{
			Endpoint:      "https://api.openai.com/v1/chat/completions",
			Model:         "gpt-4o-mini",
			Timeout:       Duration(60 * time.Second),
			MaxInputChars: 100_000,
		},
		Embedder: EmbedderConfig{
			OllamaURL:     "http://localhost:11434",
			Model:         "nomic-embed-text",
			Dims:          768,
			Timeout:       Duration(30 * time.Second),
			MaxInputChars: 20_000,
		},
		Search: SearchConfig{
			MaxLimit:   50,
			ScoreFloor: 0.3,
		},
	}
}
