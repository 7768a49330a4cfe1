package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/feed"
	"github.com/roach88/realmsync/internal/realm"
)

func TestParse_EmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""), "")
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/v1/subscribe", cfg.Indexer.PushURL)
	assert.True(t, cfg.Indexer.Resync)
	assert.Equal(t, feed.DefaultCapacity, cfg.Sync.LogCapacity)
	assert.Equal(t, realm.DefaultPatterns(), cfg.Patterns)

	sc, err := cfg.SyncerConfig()
	require.NoError(t, err)
	assert.Equal(t, uint(4), sc.Retry.MaxTries)
}

func TestParse_Overrides(t *testing.T) {
	doc := `
schemas_dir: ./defs
indexer:
  push_url: wss://indexer.example/v1/subscribe
  pull_url: https://indexer.example
  resync: false
  resync_filter:
    - has: Trade
sync:
  log_capacity: 10
  fetch_concurrency: 2
  retry: {max_tries: 6, initial_interval: 50ms, max_interval: 1s}
patterns:
  - {name: balance_changed, mode: exact, components: [Balance]}
devnet: {addr: ":9090", database: data/devnet.db}
metrics_addr: ":2112"
`
	cfg, err := Parse(strings.NewReader(doc), "/etc/realmsync")
	require.NoError(t, err)

	assert.Equal(t, "/etc/realmsync/defs", cfg.SchemasDir)
	assert.Equal(t, "/etc/realmsync/data/devnet.db", cfg.Devnet.Database)
	assert.False(t, cfg.Indexer.Resync)
	assert.Equal(t, 10, cfg.Sync.LogCapacity)
	assert.Equal(t, 50*time.Millisecond, cfg.Sync.Retry.InitialInterval)
	assert.Equal(t, ":2112", cfg.MetricsAddr)
	require.Len(t, cfg.Patterns, 1)
	assert.Equal(t, feed.ModeExact, cfg.Patterns[0].Mode)

	sc, err := cfg.SyncerConfig()
	require.NoError(t, err)
	assert.Len(t, sc.ResyncFilter, 1)
	assert.Equal(t, 2, sc.FetchConcurrency)

	c, err := cfg.Classifier()
	require.NoError(t, err)
	assert.Len(t, c.Patterns(), 1)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "indexr: {}\n", "indexr"},
		{"push scheme", "indexer: {push_url: http://x}\n", "indexer.push_url"},
		{"pull scheme", "indexer: {pull_url: ws://x}\n", "indexer.pull_url"},
		{"log capacity", "sync: {log_capacity: 0}\n", "log_capacity"},
		{"concurrency", "sync: {fetch_concurrency: 0}\n", "fetch concurrency"},
		{"retry", "sync: {retry: {max_tries: 0}}\n", "max tries"},
		{"bad filter", "indexer: {resync_filter: [{not: Trade}]}\n", "resync filter"},
		{"duplicate pattern", "patterns: [{name: a, mode: exact, components: [X]}, {name: a, mode: exact, components: [Y]}]\n", "duplicate"},
		{"bad duration", "sync: {retry: {initial_interval: fast}}\n", "time.Duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "realmsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devnet: {database: ledger.db}\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.Devnet.Database)
	assert.Equal(t, filepath.Join(dir, "schemas"), cfg.SchemasDir)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
