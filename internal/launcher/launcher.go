// Package launcher queues and executes client launches one at a time,
// binding each new process to the account that requested it.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akozyrev/launchman/internal/history"
	"github.com/akozyrev/launchman/internal/metrics"
	"github.com/akozyrev/launchman/internal/prochandle"
	"github.com/akozyrev/launchman/internal/tracker"
)

// Scanner reports the pids of processes that look like game clients.
type Scanner interface {
	Snapshot() map[int32]struct{}
}

const (
	// DefaultSettleDelay is how long a freshly spawned wrapper is given to
	// bring the real client process up before the follow-up scan.
	DefaultSettleDelay = 3 * time.Second
	// DefaultInterLaunchDelay spaces out consecutive queued launches.
	DefaultInterLaunchDelay = 3 * time.Second
	// DefaultTerminateGrace is the SIGTERM-to-SIGKILL escalation window.
	DefaultTerminateGrace = 5 * time.Second

	// MinInterLaunchDelay and MaxInterLaunchDelay bound SetInterLaunchDelay.
	MinInterLaunchDelay = 1 * time.Second
	MaxInterLaunchDelay = 30 * time.Second
)

// Config wires an Orchestrator. Scanner and Spawner are required; the rest
// fall back to working defaults.
type Config struct {
	Scanner          Scanner
	Spawner          Spawner
	Tracker          *tracker.Tracker
	Sink             history.Sink
	Logger           *slog.Logger
	SettleDelay      time.Duration
	InterLaunchDelay time.Duration
	TerminateGrace   time.Duration
	// Alive overrides the process liveness probe. Nil means the real one.
	Alive func(pid int32) bool
}

// Orchestrator serializes launches through a FIFO queue drained by a single
// worker goroutine, so two clients never race through the snapshot-diff
// discovery window at once.
type Orchestrator struct {
	scanner Scanner
	spawner Spawner
	tracked *tracker.Tracker
	sink    history.Sink
	log     *slog.Logger

	settle time.Duration
	grace  time.Duration
	delay  atomic.Int64

	alive      func(int32) bool
	terminate  func(pid int32, grace time.Duration) error
	statTarget func(path string) error

	mu      sync.Mutex
	queue   []Request
	started bool
	stopped bool

	wake       chan struct{}
	done       chan struct{}
	workerDone chan struct{}
}

// New builds an Orchestrator from cfg, applying defaults for any zero field.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		scanner:   cfg.Scanner,
		spawner:   cfg.Spawner,
		tracked:   cfg.Tracker,
		sink:      cfg.Sink,
		log:       cfg.Logger,
		settle:    cfg.SettleDelay,
		grace:     cfg.TerminateGrace,
		alive:     prochandle.Alive,
		terminate: prochandle.Terminate,
		statTarget: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}
	if o.tracked == nil {
		o.tracked = tracker.New()
	}
	if o.sink == nil {
		o.sink = history.NopSink{}
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if cfg.Alive != nil {
		o.alive = cfg.Alive
	}
	if o.settle <= 0 {
		o.settle = DefaultSettleDelay
	}
	if o.grace <= 0 {
		o.grace = DefaultTerminateGrace
	}
	d := cfg.InterLaunchDelay
	if d <= 0 {
		d = DefaultInterLaunchDelay
	}
	o.SetInterLaunchDelay(d)
	return o
}

// SetInterLaunchDelay updates the pause between consecutive queued launches,
// clamped to [MinInterLaunchDelay, MaxInterLaunchDelay]. Takes effect from
// the next launch.
func (o *Orchestrator) SetInterLaunchDelay(d time.Duration) {
	if d < MinInterLaunchDelay {
		d = MinInterLaunchDelay
	}
	if d > MaxInterLaunchDelay {
		d = MaxInterLaunchDelay
	}
	o.delay.Store(int64(d))
}

// InterLaunchDelay returns the currently effective delay.
func (o *Orchestrator) InterLaunchDelay() time.Duration {
	return time.Duration(o.delay.Load())
}

// Start launches the queue worker. Calling Start twice is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true
	go o.run()
}

// Shutdown stops accepting work and waits up to timeout for the worker to
// finish its current launch. Queued requests that never ran are dropped.
// Tracked clients keep running; terminating them is a separate decision.
func (o *Orchestrator) Shutdown(timeout time.Duration) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	started := o.started
	dropped := len(o.queue)
	o.queue = nil
	close(o.done)
	o.mu.Unlock()

	metrics.SetQueueDepth(0)
	if dropped > 0 {
		o.log.Info("dropping queued launches on shutdown", "count", dropped)
	}
	if !started {
		return nil
	}
	select {
	case <-o.workerDone:
		return nil
	case <-time.After(timeout):
		o.log.Warn("launch worker did not stop in time", "timeout", timeout)
		return fmt.Errorf("launch worker did not stop within %s", timeout)
	}
}

// Enqueue appends a launch request to the queue. The request runs when the
// worker reaches it; completion is reported through req.OnComplete.
func (o *Orchestrator) Enqueue(req Request) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return ErrShuttingDown
	}
	o.queue = append(o.queue, req)
	depth := len(o.queue)
	o.mu.Unlock()

	metrics.SetQueueDepth(depth)
	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// LaunchNow executes a launch synchronously on the caller's goroutine,
// bypassing the queue, and returns the pid the account was bound to.
// OnComplete is not invoked; the returns carry the outcome.
func (o *Orchestrator) LaunchNow(ctx context.Context, req Request) (int32, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return 0, ErrShuttingDown
	}
	o.mu.Unlock()
	return o.execute(ctx, req)
}

// Running reports whether key is tracked and its process is still alive.
// Surfaces use it as the precondition behind ErrAlreadyRunning.
func (o *Orchestrator) Running(key string) bool {
	pid, ok := o.tracked.Lookup(key)
	return ok && o.alive(pid)
}

// QueueLen returns the number of requests waiting in the queue.
func (o *Orchestrator) QueueLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Tracked returns a snapshot of all tracked account-to-pid bindings.
func (o *Orchestrator) Tracked() []tracker.TrackedProcess {
	return o.tracked.Entries()
}

// Lookup reports the tracked pid for an account key.
func (o *Orchestrator) Lookup(key string) (int32, bool) {
	return o.tracked.Lookup(key)
}

func (o *Orchestrator) run() {
	defer close(o.workerDone)
	for {
		req, ok := o.pop()
		if !ok {
			select {
			case <-o.wake:
				continue
			case <-o.done:
				return
			}
		}

		pid, err := o.execute(context.Background(), req)
		if req.OnComplete != nil {
			req.OnComplete(req.Key, pid, err)
		}

		// Pause before the next launch only if one is actually waiting.
		if o.QueueLen() > 0 {
			if !o.sleep(context.Background(), o.InterLaunchDelay()) {
				return
			}
		}
	}
}

func (o *Orchestrator) pop() (Request, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return Request{}, false
	}
	req := o.queue[0]
	o.queue = o.queue[1:]
	metrics.SetQueueDepth(len(o.queue))
	return req, true
}

// sleep waits for d unless ctx is canceled or shutdown begins first.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-o.done:
		return false
	}
}

// execute runs one launch end to end: verify the target, snapshot candidate
// processes, spawn, wait for the client to come up, then bind the account to
// the lowest pid that appeared.
func (o *Orchestrator) execute(ctx context.Context, req Request) (int32, error) {
	start := time.Now()

	if err := o.statTarget(req.Target); err != nil {
		metrics.IncLaunch("target_not_found")
		o.log.Error("launch target missing", "account", req.Key, "target", req.Target)
		return 0, fmt.Errorf("%w: %s", ErrTargetNotFound, req.Target)
	}

	before := o.scanner.Snapshot()

	if err := o.spawner.Spawn(req); err != nil {
		metrics.IncLaunch("spawn_failed")
		o.log.Error("spawn failed", "account", req.Key, "target", req.Target, "error", err)
		if errors.Is(err, ErrSpawnFailed) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	o.sleep(ctx, o.settle)

	after := o.scanner.Snapshot()
	pid, found := lowestNew(before, after)
	if !found {
		metrics.IncLaunch("not_detected")
		o.log.Warn("no new client process after settle window",
			"account", req.Key, "settle", o.settle)
		return 0, fmt.Errorf("%w: %s", ErrProcessNotDetected, req.Key)
	}

	o.tracked.Record(req.Key, pid)
	metrics.IncLaunch("attached")
	metrics.ObserveLaunchDuration(time.Since(start).Seconds())
	metrics.SetTrackedClients(o.tracked.Len())

	now := time.Now()
	o.emit(history.Event{
		Type: history.EventLaunch, OccurredAt: now,
		Account: req.Key, PID: pid, LaunchedAt: now,
	})
	o.log.Info("client attached", "account", req.Key, "pid", pid,
		"took", time.Since(start).Round(time.Millisecond))
	return pid, nil
}

// lowestNew returns the smallest pid present in after but not in before.
func lowestNew(before, after map[int32]struct{}) (int32, bool) {
	var (
		best  int32
		found bool
	)
	for pid := range after {
		if _, seen := before[pid]; seen {
			continue
		}
		if !found || pid < best {
			best, found = pid, true
		}
	}
	return best, found
}

// TerminateTracked stops the client bound to key. The bool reports whether
// the key was tracked at all; an untracked key is not an error.
func (o *Orchestrator) TerminateTracked(key string) (bool, error) {
	pid, ok := o.tracked.Lookup(key)
	if !ok {
		return false, nil
	}
	entry, _ := o.entry(key)
	if err := o.terminate(pid, o.grace); err != nil {
		metrics.IncTermination("failed")
		return true, fmt.Errorf("terminate %s (pid %d): %w", key, pid, err)
	}
	o.tracked.Remove(key)
	metrics.IncTermination("ok")
	metrics.SetTrackedClients(o.tracked.Len())
	o.emit(history.Event{
		Type: history.EventTerminate, OccurredAt: time.Now(),
		Account: key, PID: pid, LaunchedAt: entry.LaunchedAt,
	})
	o.log.Info("client terminated", "account", key, "pid", pid)
	return true, nil
}

// TerminateAll stops every tracked client and returns how many terminations
// succeeded. Errors are joined; entries that fail to terminate stay tracked.
func (o *Orchestrator) TerminateAll() (int, error) {
	var (
		count int
		errs  []error
	)
	for _, e := range o.tracked.Entries() {
		ok, err := o.TerminateTracked(e.Key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			count++
		}
	}
	return count, errors.Join(errs...)
}

// Reconcile drops tracked entries whose process has died and returns them.
func (o *Orchestrator) Reconcile() []tracker.TrackedProcess {
	removed := o.tracked.Reconcile()
	if len(removed) == 0 {
		return removed
	}
	metrics.SetTrackedClients(o.tracked.Len())
	for _, e := range removed {
		o.emit(history.Event{
			Type: history.EventLost, OccurredAt: time.Now(),
			Account: e.Key, PID: e.PID, LaunchedAt: e.LaunchedAt,
			Detail: "process gone during reconcile",
		})
		o.log.Warn("tracked client disappeared", "account", e.Key, "pid", e.PID)
	}
	return removed
}

func (o *Orchestrator) entry(key string) (tracker.TrackedProcess, bool) {
	for _, e := range o.tracked.Entries() {
		if e.Key == key {
			return e, true
		}
	}
	return tracker.TrackedProcess{}, false
}

func (o *Orchestrator) emit(ev history.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.sink.Emit(ctx, ev); err != nil {
		o.log.Warn("history emit failed", "type", ev.Type, "account", ev.Account, "error", err)
	}
}
