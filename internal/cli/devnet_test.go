package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/realm"
)

func TestDevnet_ServesSeededLedger(t *testing.T) {
	dir := t.TempDir()
	alice := realm.BalanceID("0xa11ce", 1)
	seed := "- entity: \"" + string(alice) + "\"\n" +
		"  components:\n" +
		"    Balance: {holder: \"0xa11ce\", kind: 1, amount: 100}\n"
	seedPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seed), 0644))

	ready := make(chan string, 1)
	opts := &DevnetOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    ":memory:",
		Addr:        "127.0.0.1:0",
		Seed:        seedPath,
		ready:       func(addr string) { ready <- addr },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	done := make(chan error, 1)
	go func() { done <- runDevnet(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("devnet exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("devnet did not start")
	}

	comps, err := indexclient.NewHTTPFetcher("http://"+addr).Fetch(ctx, alice, []string{realm.Balance})
	require.NoError(t, err)
	assert.Equal(t, realm.BalanceValue("0xa11ce", 1, 100), comps[realm.Balance])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("devnet did not stop")
	}
	assert.Contains(t, out.String(), "Devnet listening on")
}

func TestDevnet_BadSeed(t *testing.T) {
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("- entity: x\n  bogus: 1\n"), 0644))

	opts := &DevnetOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    ":memory:",
		Addr:        "127.0.0.1:0",
		Seed:        seedPath,
	}
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := runDevnet(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to apply seed")
}

func TestDevnetConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "realmsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devnet:\n  addr: \":9000\"\n  database: ledger.db\n"), 0644))

	cfg, schemas, err := devnetConfig(&DevnetOptions{Config: path, Addr: ":9100"}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.Database)
	assert.Contains(t, schemas.Names(), realm.Balance)
}

func TestDevnetConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "realmsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devnet:\n  port: 1\n"), 0644))

	_, _, err := devnetConfig(&DevnetOptions{Config: path}, discardLogger())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDevnetConfig_SchemasDirIsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defs"), []byte("not a directory"), 0644))
	path := filepath.Join(dir, "realmsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schemas_dir: defs\n"), 0644))

	_, _, err := devnetConfig(&DevnetOptions{Config: path}, discardLogger())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load schemas")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
