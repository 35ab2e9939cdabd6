// Package launchman manages a roster of game accounts and the client
// processes launched for them.
package launchman

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akozyrev/launchman/internal/account"
	"github.com/akozyrev/launchman/internal/history"
	"github.com/akozyrev/launchman/internal/launcher"
	"github.com/akozyrev/launchman/internal/metrics"
	"github.com/akozyrev/launchman/internal/procscan"
	iapi "github.com/akozyrev/launchman/internal/server"
	"github.com/akozyrev/launchman/internal/settings"
	"github.com/akozyrev/launchman/internal/tracker"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Account = account.Account

type Request = launcher.Request

type TrackedProcess = tracker.TrackedProcess

type Settings = settings.Settings

type HistoryEvent = history.Event

type HistorySink = history.Sink

// Orchestrator is a thin facade over internal/launcher.Orchestrator,
// providing a stable public API for embedding.
type Orchestrator struct{ inner *launcher.Orchestrator }

// Config mirrors launcher.Config for external construction.
type Config = launcher.Config

// New builds an orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{inner: launcher.New(cfg)}
}

// NewScanner builds a process scanner matching the given name substrings.
func NewScanner(names ...string) launcher.Scanner { return procscan.New(names...) }

func (o *Orchestrator) Start()                               { o.inner.Start() }
func (o *Orchestrator) Shutdown(timeout time.Duration) error { return o.inner.Shutdown(timeout) }
func (o *Orchestrator) LaunchNow(ctx context.Context, req Request) (int32, error) {
	return o.inner.LaunchNow(ctx, req)
}
func (o *Orchestrator) Enqueue(req Request) error { return o.inner.Enqueue(req) }
func (o *Orchestrator) Running(key string) bool   { return o.inner.Running(key) }
func (o *Orchestrator) SetInterLaunchDelay(d time.Duration) { o.inner.SetInterLaunchDelay(d) }
func (o *Orchestrator) InterLaunchDelay() time.Duration     { return o.inner.InterLaunchDelay() }
func (o *Orchestrator) TerminateTracked(key string) (bool, error) {
	return o.inner.TerminateTracked(key)
}
func (o *Orchestrator) TerminateAll() (int, error)    { return o.inner.TerminateAll() }
func (o *Orchestrator) Reconcile() []TrackedProcess   { return o.inner.Reconcile() }
func (o *Orchestrator) Tracked() []TrackedProcess     { return o.inner.Tracked() }
func (o *Orchestrator) Lookup(key string) (int32, bool) { return o.inner.Lookup(key) }
func (o *Orchestrator) QueueLen() int                 { return o.inner.QueueLen() }

// OpenRoster loads (or creates) the account roster at path.
func OpenRoster(path string) (*account.Store, error) { return account.Open(path) }

// LoadSettings reads settings from path, applying defaults for missing keys.
func LoadSettings(path string) (*Settings, error) { return settings.Load(path) }

// NewHistorySink builds an event sink from a DSN. See history.NewSinkFromDSN.
func NewHistorySink(dsn string) (HistorySink, error) { return history.NewSinkFromDSN(dsn) }

// NewHTTPServer starts the HTTP API on addr using the given components.
func NewHTTPServer(addr, basePath string, o *Orchestrator, roster *account.Store, cfg *Settings, sink HistorySink) *http.Server {
	return iapi.NewServer(addr, basePath, o.inner, roster, cfg, sink)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.RegisterDefault() }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
