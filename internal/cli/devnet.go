package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/realmsync/internal/config"
	"github.com/roach88/realmsync/internal/indexer"
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/realm"
)

// DevnetOptions holds flags for the devnet command.
type DevnetOptions struct {
	*RootOptions
	Config   string
	Database string
	Addr     string
	Seed     string

	// ready, when set, receives the bound address once the server listens.
	ready func(addr string)
}

// NewDevnetCommand creates the devnet command.
func NewDevnetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DevnetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Serve a local indexer backed by SQLite",
		Long: `Serve a development indexer: a SQLite ledger of component values with
the push (websocket) and pull (HTTP) endpoints the sync pipeline reads.

Flags override the devnet section of --config.

Example:
  realmsync devnet --db ./devnet.db --seed ./seed.yaml
  realmsync devnet --config ./realmsync.yaml --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevnet(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to realmsync.yaml")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (\":memory:\" for a throwaway ledger)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "YAML seed file applied at startup")

	return cmd
}

func runDevnet(opts *DevnetOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, schemas, err := devnetConfig(opts, logger)
	if err != nil {
		return err
	}

	logger.Info("opening ledger", "path", cfg.Database)
	x, err := indexer.Open(cfg.Database, indexer.WithSchemas(schemas), indexer.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer func() {
		if closeErr := x.Close(); closeErr != nil {
			logger.Error("error closing ledger", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Seed != "" {
		if err := applySeedFile(ctx, x, cfg.Seed); err != nil {
			return WrapExitError(ExitCommandError, "failed to apply seed", err)
		}
		logger.Info("seed applied", "path", cfg.Seed)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           x.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := listen(ctx, cfg.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	logger.Info("devnet listening", "addr", addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Devnet listening on %s. Press Ctrl-C to stop.\n", addr)
	if opts.ready != nil {
		opts.ready(addr)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Hijacked websocket connections are not tracked by Shutdown;
		// closing the indexer disconnects them.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return WrapExitError(ExitFailure, "shutdown failed", err)
		}
	}

	logger.Info("devnet stopped gracefully")
	return nil
}

// devnetConfig merges --config with explicitly set flags and picks the
// component schemas the ledger validates against.
func devnetConfig(opts *DevnetOptions, logger *slog.Logger) (config.DevnetConfig, ir.Schemas, error) {
	cfg := config.Default().Devnet
	schemas := realm.Schemas()

	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return cfg, nil, WrapExitError(ExitCommandError, "invalid config", err)
		}
		cfg = loaded.Devnet
		res, err := loadConfigSchemas(loaded.SchemasDir, logger)
		if err != nil {
			return cfg, nil, err
		}
		if res != nil {
			schemas = res.Schemas
		}
	}

	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}
	if opts.Seed != "" {
		cfg.Seed = opts.Seed
	}
	return cfg, schemas, nil
}

func applySeedFile(ctx context.Context, x *indexer.Indexer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := indexer.ReadSeed(f)
	if err != nil {
		return err
	}
	_, err = x.ApplySeed(ctx, entries)
	return err
}

func listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
