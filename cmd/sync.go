package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spacenotes/spacenotes-sync/pkg/config"
	"github.com/spacenotes/spacenotes-sync/pkg/facade"
	"github.com/spacenotes/spacenotes-sync/pkg/logging"
	"github.com/spacenotes/spacenotes-sync/pkg/metrics"
	"github.com/spacenotes/spacenotes-sync/pkg/reconcile"
	"github.com/spacenotes/spacenotes-sync/pkg/router"
	"github.com/spacenotes/spacenotes-sync/pkg/store"
	"github.com/spacenotes/spacenotes-sync/pkg/tracker"
	"github.com/spacenotes/spacenotes-sync/pkg/watcher"
)

var (
	syncVaultPath   string
	syncNodeID      string
	syncMCPAddr     string
	syncLogLevel    string
	syncMetricsAddr string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the sync daemon: watch the vault, replicate to the table store, and serve the MCP façade",
	Long: `Run the sync daemon.

On startup it reconciles every note and folder already in the vault against
the replicated table store, then watches the vault for filesystem changes
and applies them to the store while routing every store-side change back to
disk, keeping both sides in sync until interrupted.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncVaultPath, "vault-path", "", "path to the Markdown vault (overrides VAULT_PATH / config)")
	syncCmd.Flags().StringVar(&syncNodeID, "node-id", "", "raft node id for this replica (overrides config)")
	syncCmd.Flags().StringVar(&syncMCPAddr, "mcp-addr", "", "address for the MCP façade's streamable-HTTP listener (overrides config)")
	syncCmd.Flags().StringVar(&syncLogLevel, "log-level", "", "zerolog level: trace, debug, info, warn, error (overrides config)")
	syncCmd.Flags().StringVar(&syncMetricsAddr, "metrics", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled unless set)")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	vaultPath := syncVaultPath
	if vaultPath == "" {
		vaultPath = os.Getenv("SPACENOTES_VAULT_PATH")
	}
	if vaultPath == "" {
		vaultPath = os.Getenv("VAULT_PATH")
	}
	if vaultPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("sync: resolve working directory: %w", err)
		}
		vaultPath = wd
	}

	cfg, err := config.Load(vaultPath)
	if err != nil {
		return fmt.Errorf("sync: load config: %w", err)
	}
	if syncVaultPath != "" {
		cfg.VaultPath = syncVaultPath
	}
	if syncNodeID != "" {
		cfg.NodeID = syncNodeID
	}
	if syncMCPAddr != "" {
		cfg.MCPAddr = syncMCPAddr
	}
	if syncLogLevel != "" {
		cfg.LogLevel = syncLogLevel
	}
	if syncMetricsAddr != "" {
		cfg.MetricsAddr = syncMetricsAddr
	}

	logging.Setup(cfg.LogLevel)

	rt, err := store.NewRuntime(store.RuntimeConfig{NodeID: cfg.NodeID, DataDir: cfg.DataDir})
	if err != nil {
		return fmt.Errorf("sync: start replicated table store: %w", err)
	}
	defer rt.Close()

	t := tracker.New()
	rtr := router.New(cfg.VaultPath, t)
	adapter := store.NewAdapter(rt, rtr.Callbacks())
	defer adapter.Close()

	if err := reconcile.Run(cfg.VaultPath, adapter, t); err != nil {
		return fmt.Errorf("sync: initial reconcile: %w", err)
	}

	w, err := watcher.New(cfg.VaultPath, adapter, t)
	if err != nil {
		return fmt.Errorf("sync: start watcher: %w", err)
	}
	defer w.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f := facade.New(adapter, cfg.MCPAddr)
		return f.Serve(gctx)
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr) })
		g.Go(func() error { refreshMetricsLoop(gctx, rt, t); return nil })
	}

	<-gctx.Done()
	return g.Wait()
}

// serveMetrics runs the Prometheus scrape endpoint until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics: serve: %w", err)
		}
		return nil
	}
}

// refreshMetricsLoop periodically samples row and tracker counts into the
// metrics gauges. It never returns an error: a failed sample is logged and
// skipped rather than bringing down the daemon.
func refreshMetricsLoop(ctx context.Context, rt *store.Runtime, t *tracker.Tracker) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	sample := func() {
		notes, err := rt.Rows().ListNotes()
		if err != nil {
			log.Warn().Err(err).Msg("metrics: sample notes failed")
			return
		}
		folders, err := rt.Rows().ListFolders()
		if err != nil {
			log.Warn().Err(err).Msg("metrics: sample folders failed")
			return
		}
		metrics.NotesTotal.Set(float64(len(notes)))
		metrics.FoldersTotal.Set(float64(len(folders)))
		metrics.TrackerEntriesTotal.Set(float64(t.Len()))
	}

	sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}
