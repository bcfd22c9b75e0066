package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nexusbbs/nexusd/internal/access"
	"github.com/nexusbbs/nexusd/internal/config"
	"github.com/nexusbbs/nexusd/internal/fileindex"
	"github.com/nexusbbs/nexusd/internal/httpapi"
	"github.com/nexusbbs/nexusd/internal/logging"
	"github.com/nexusbbs/nexusd/internal/metrics"
	"github.com/nexusbbs/nexusd/internal/server"
	"github.com/nexusbbs/nexusd/internal/servertls"
	"github.com/nexusbbs/nexusd/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the nexusd daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgFile)
		},
	}
}

func runServe(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.Init(cfg.LogLevel)
	logging.For("main").WithField("config", configFile).Info("nexusd starting")

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return fmt.Errorf("create data root: %w", err)
	}

	gate := access.New()
	idx := fileindex.New(cfg.FileIndexPath, cfg.DataRoot, cfg.ReindexInterval)
	if err := idx.Load(); err != nil {
		logging.For("main").WithError(err).Warn("file index load failed, starting empty")
	}

	tlsConfig, fingerprint, err := servertls.Load(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	logging.For("main").WithField("fingerprint", fingerprint).Info("TLS certificate ready (shared by BBS and transfer ports)")

	srv := server.New(cfg, st, gate, idx, tlsConfig)
	if err := srv.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopHousekeeping := make(chan struct{})
	go idx.RunHousekeeping(stopHousekeeping)
	go func() {
		if err := idx.Rebuild(); err != nil {
			logging.For("fileindex").WithError(err).Warn("startup reindex failed")
		}
	}()

	go runPeriodicHousekeeping(ctx, st)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	ready := true
	opsServer := httpapi.New(reg, func() bool { return ready })
	go func() {
		if err := opsServer.Start(cfg.OpsAddr); err != nil {
			logging.For("httpapi").WithError(err).Warn("ops server stopped")
		}
	}()

	errCh := make(chan error, 3)
	go func() { errCh <- srv.Serve(cfg.BBSAddr) }()
	go func() { errCh <- srv.ServeTransfer(cfg.TransferAddr) }()
	go func() { errCh <- srv.ServeVoice(cfg.BBSAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.For("main").WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		logging.For("main").WithError(err).Error("listener failed")
	}

	close(stopHousekeeping)
	cancel()
	srv.Shutdown()
	_ = opsServer.Close()
	log.Info("nexusd stopped")
	return nil
}

// runPeriodicHousekeeping mirrors the teacher's hourly SQLite optimize and
// expired-ban/trust purge sweep (SPEC_FULL §C "Supplemented features").
func runPeriodicHousekeeping(ctx context.Context, st *store.Store) {
	purgeTicker := time.NewTicker(10 * time.Minute)
	defer purgeTicker.Stop()
	optimizeTicker := time.NewTicker(time.Hour)
	defer optimizeTicker.Stop()

	log := logging.For("housekeeping")
	for {
		select {
		case <-ctx.Done():
			return
		case <-purgeTicker.C:
			for _, list := range []string{"ban", "trust"} {
				if n, err := st.PurgeExpired(list); err != nil {
					log.WithError(err).WithField("list", list).Warn("purge expired entries failed")
				} else if n > 0 {
					log.WithField("list", list).WithField("count", n).Info("purged expired entries")
				}
			}
		case <-optimizeTicker.C:
			if err := st.Optimize(); err != nil {
				log.WithError(err).Warn("sqlite optimize failed")
			}
		}
	}
}
