// Package config loads the realmsync YAML configuration.
package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/realmsync/internal/feed"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/realm"
	"github.com/roach88/realmsync/internal/syncer"
)

type Config struct {
	SchemasDir  string         `yaml:"schemas_dir"`
	Indexer     IndexerConfig  `yaml:"indexer"`
	Sync        SyncConfig     `yaml:"sync"`
	Patterns    []feed.Pattern `yaml:"patterns"`
	Devnet      DevnetConfig   `yaml:"devnet"`
	MetricsAddr string         `yaml:"metrics_addr"`
}

type IndexerConfig struct {
	PushURL      string         `yaml:"push_url"`
	PullURL      string         `yaml:"pull_url"`
	Resync       bool           `yaml:"resync"`
	ResyncFilter []queryir.Spec `yaml:"resync_filter"`
}

type SyncConfig struct {
	LogCapacity      int         `yaml:"log_capacity"`
	FetchConcurrency int         `yaml:"fetch_concurrency"`
	Retry            RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxTries        uint          `yaml:"max_tries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

type DevnetConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Seed     string `yaml:"seed"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	sc := syncer.DefaultConfig()
	return Config{
		SchemasDir: "schemas",
		Indexer: IndexerConfig{
			PushURL: "ws://localhost:8080/v1/subscribe",
			PullURL: "http://localhost:8080",
			Resync:  sc.Resync,
		},
		Sync: SyncConfig{
			LogCapacity:      feed.DefaultCapacity,
			FetchConcurrency: sc.FetchConcurrency,
			Retry: RetryConfig{
				MaxTries:        sc.Retry.MaxTries,
				InitialInterval: sc.Retry.InitialInterval,
				MaxInterval:     sc.Retry.MaxInterval,
			},
		},
		Devnet: DevnetConfig{
			Addr:     ":8080",
			Database: "devnet.db",
		},
	}
}

// Load reads a config file. Relative paths inside it resolve against the
// file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data), filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default, rejecting unknown keys, and validates.
func Parse(r io.Reader, baseDir string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, err
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = realm.DefaultPatterns()
	}
	cfg.SchemasDir = resolve(baseDir, cfg.SchemasDir)
	cfg.Devnet.Database = resolve(baseDir, cfg.Devnet.Database)
	cfg.Devnet.Seed = resolve(baseDir, cfg.Devnet.Seed)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolve(baseDir, p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

func validate(cfg *Config) error {
	if err := checkURL(cfg.Indexer.PushURL, "indexer.push_url", "ws", "wss"); err != nil {
		return err
	}
	if err := checkURL(cfg.Indexer.PullURL, "indexer.pull_url", "http", "https"); err != nil {
		return err
	}
	if cfg.Sync.LogCapacity < 1 {
		return fmt.Errorf("sync.log_capacity must be at least 1")
	}
	if _, err := cfg.SyncerConfig(); err != nil {
		return err
	}
	if _, err := feed.NewClassifier(cfg.Patterns...); err != nil {
		return fmt.Errorf("patterns: %w", err)
	}
	if strings.TrimSpace(cfg.Devnet.Database) == "" {
		return fmt.Errorf("devnet.database is required")
	}
	return nil
}

func checkURL(raw, key string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: want %s URL, got %q", key, strings.Join(schemes, " or "), raw)
}

// SyncerConfig converts the sync section into pipeline settings.
func (c *Config) SyncerConfig() (syncer.Config, error) {
	filter, err := queryir.FromSpecs(c.Indexer.ResyncFilter)
	if err != nil {
		return syncer.Config{}, fmt.Errorf("indexer.resync_filter: %w", err)
	}
	sc := syncer.Config{
		Resync:           c.Indexer.Resync,
		ResyncFilter:     filter,
		FetchConcurrency: c.Sync.FetchConcurrency,
		Retry: syncer.RetryPolicy{
			MaxTries:        c.Sync.Retry.MaxTries,
			InitialInterval: c.Sync.Retry.InitialInterval,
			MaxInterval:     c.Sync.Retry.MaxInterval,
		},
	}
	if err := sc.Validate(); err != nil {
		return syncer.Config{}, fmt.Errorf("sync: %w", err)
	}
	return sc, nil
}

// Classifier builds the relevance classifier from the configured patterns.
func (c *Config) Classifier() (*feed.Classifier, error) {
	return feed.NewClassifier(c.Patterns...)
}
