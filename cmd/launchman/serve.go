package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akozyrev/launchman/internal/account"
	"github.com/akozyrev/launchman/internal/history"
	"github.com/akozyrev/launchman/internal/launcher"
	"github.com/akozyrev/launchman/internal/metrics"
	"github.com/akozyrev/launchman/internal/procscan"
	"github.com/akozyrev/launchman/internal/server"
	"github.com/akozyrev/launchman/internal/settings"
)

const shutdownTimeout = 10 * time.Second

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the launcher daemon and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags.ConfigPath)
		},
	}
}

func runServe(configPath string) error {
	cfg, err := settings.Load(configPath)
	if err != nil {
		return err
	}
	log := cfg.Log.Setup()

	accounts, err := account.Open(cfg.AccountsPath)
	if err != nil {
		return err
	}
	sink, err := history.NewSinkFromDSN(cfg.HistoryDSN)
	if err != nil {
		return fmt.Errorf("open history sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	if err := metrics.RegisterDefault(); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	orch := launcher.New(launcher.Config{
		Scanner:          procscan.New(cfg.ClientNames...),
		Spawner:          &launcher.ExecSpawner{Log: cfg.Log},
		Sink:             sink,
		Logger:           log,
		SettleDelay:      cfg.Settle(),
		InterLaunchDelay: cfg.LaunchInterval(),
		TerminateGrace:   cfg.TerminateGrace(),
	})
	orch.Start()

	srv := server.NewServer(cfg.Listen, "/api", orch, accounts, cfg, sink)
	log.Info("api listening", "addr", cfg.Listen)

	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() { _ = metricsSrv.ListenAndServe() }()
		log.Info("metrics listening", "addr", cfg.MetricsListen)
	}

	// Periodically drop tracked clients whose process died behind our back.
	reconcileStop := make(chan struct{})
	go func() {
		t := time.NewTicker(cfg.ReconcileEvery())
		defer t.Stop()
		for {
			select {
			case <-t.C:
				orch.Reconcile()
			case <-reconcileStop:
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	close(reconcileStop)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(ctx)
	}

	if cfg.TerminateOnExit {
		n, err := orch.TerminateAll()
		if err != nil {
			log.Warn("terminate-all during shutdown", "terminated", n, "error", err)
		} else {
			log.Info("terminated tracked clients", "count", n)
		}
	}
	if err := orch.Shutdown(shutdownTimeout); err != nil {
		log.Warn("orchestrator shutdown", "error", err)
	}
	log.Info("bye")
	return nil
}
