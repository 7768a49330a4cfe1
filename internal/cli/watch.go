package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roach88/realmsync/internal/config"
	"github.com/roach88/realmsync/internal/engine"
	"github.com/roach88/realmsync/internal/feed"
	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/realm"
	"github.com/roach88/realmsync/internal/store"
	"github.com/roach88/realmsync/internal/syncer"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Config string
	Query  string

	// dialer and fetcher replace the configured transports (for testing).
	dialer  syncer.Dialer
	fetcher syncer.Fetcher
}

// builtinQueries are available without a schemas directory.
var builtinQueries = map[string]func() []queryir.Fragment{
	"open-trades":   realm.OpenTrades,
	"funded-trades": realm.FundedTrades,
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync from an indexer and print query and feed events",
		Long: `Run the sync pipeline against an indexer, printing every event of one
registered query and every entry accepted into the rolling log.

--query names a query declared in the schemas directory, a built-in
query (open-trades, funded-trades), or an inline YAML fragment list.

Example:
  realmsync watch --query open-trades
  realmsync watch --config ./realmsync.yaml --query FundedTrades
  realmsync watch --query '[{has: Balance}]' --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to realmsync.yaml")
	cmd.Flags().StringVar(&opts.Query, "query", "open-trades", "query name or inline YAML fragment list")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	cfg, schemas, named, err := watchConfig(opts, logger)
	if err != nil {
		return err
	}
	chain, err := resolveQuery(opts.Query, named)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}
	sc, err := cfg.SyncerConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	classifier, err := cfg.Classifier()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	clock := engine.NewClock()
	st := store.New(store.WithSchemas(schemas), store.WithLogger(logger))
	eng := engine.New(st, engine.WithLogger(logger), engine.WithClock(clock))
	defer eng.Close()

	sub, err := eng.Register(chain)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	out := &eventPrinter{out: newFormatter(opts.RootOptions, cmd)}

	reg := prometheus.NewRegistry()
	dialer := opts.dialer
	if dialer == nil {
		dialer = syncer.WebsocketDialer(cfg.Indexer.PushURL, logger)
	}
	fetcher := opts.fetcher
	if fetcher == nil {
		fetcher = indexclient.NewHTTPFetcher(cfg.Indexer.PullURL)
	}
	p, err := syncer.New(st, dialer, fetcher,
		syncer.WithConfig(sc),
		syncer.WithClassifier(classifier),
		syncer.WithLog(feed.NewLog(cfg.Sync.LogCapacity)),
		syncer.WithClock(clock),
		syncer.WithLogger(logger),
		syncer.WithMetrics(syncer.NewMetrics(reg)),
		syncer.WithEntryHandler(out.entry),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	defer p.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		startMetrics(ctx, g, cfg.MetricsAddr, reg, logger)
	}
	g.Go(func() error {
		err := sub.Run(ctx, out.query)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer sub.Close()
		return p.Run(ctx)
	})

	logger.Info("watching", "push", cfg.Indexer.PushURL, "pull", cfg.Indexer.PullURL, "initial", len(sub.Initial()))
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "sync stopped", err)
	}
	return nil
}

// watchConfig loads --config (or defaults) with the schemas and named
// queries it points at.
func watchConfig(opts *WatchOptions, logger *slog.Logger) (*config.Config, ir.Schemas, map[string][]queryir.Fragment, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.Config != "" {
		cfg, err = config.Load(opts.Config)
	} else {
		cfg, err = config.Parse(strings.NewReader(""), "")
	}
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	named := make(map[string][]queryir.Fragment, len(builtinQueries))
	for name, fn := range builtinQueries {
		named[name] = fn()
	}
	schemas := realm.Schemas()
	if opts.Config == "" {
		return cfg, schemas, named, nil
	}
	res, err := loadConfigSchemas(cfg.SchemasDir, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if res == nil {
		return cfg, schemas, named, nil
	}
	for _, q := range res.Queries {
		named[q.Name] = q.Chain
	}
	return cfg, res.Schemas, named, nil
}

// resolveQuery looks query up by name, falling back to parsing it as a
// YAML fragment list.
func resolveQuery(query string, named map[string][]queryir.Fragment) ([]queryir.Fragment, error) {
	if chain, ok := named[query]; ok {
		return chain, nil
	}
	if !strings.HasPrefix(strings.TrimSpace(query), "[") && !strings.HasPrefix(strings.TrimSpace(query), "-") {
		return nil, fmt.Errorf("unknown query %q", query)
	}
	var specs []queryir.Spec
	dec := yaml.NewDecoder(strings.NewReader(query))
	dec.KnownFields(true)
	if err := dec.Decode(&specs); err != nil {
		return nil, fmt.Errorf("parse %q: %w", query, err)
	}
	return queryir.FromSpecs(specs)
}

func startMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// eventPrinter writes query events and feed entries as they arrive, one
// line each. Entry handlers run on pipeline goroutines; the formatter
// serialises the writes.
type eventPrinter struct {
	out *OutputFormatter
}

type watchLine struct {
	Type  string             `json:"type"`
	Query *engine.QueryEvent `json:"query,omitempty"`
	Entry *feed.Entry        `json:"entry,omitempty"`
}

func (p *eventPrinter) query(ev engine.QueryEvent) {
	p.out.Line(watchLine{Type: "query", Query: &ev}, func(w io.Writer) {
		override := ""
		if ev.Override != "" {
			override = " (override " + ev.Override + ")"
		}
		fmt.Fprintf(w, "#%d %-6s %s via %s%s\n", ev.Seq, ev.Kind, ev.Entity, ev.Component, override)
	})
}

func (p *eventPrinter) entry(e feed.Entry) {
	p.out.Line(watchLine{Type: "entry", Entry: &e}, func(w io.Writer) {
		fmt.Fprintf(w, "#%d %s %s [%s]\n", e.Seq, e.Pattern, e.Entity, strings.Join(e.Components, ", "))
	})
}
