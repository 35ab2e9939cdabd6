// Package tracker maintains the account-key to OS-process mapping.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/akozyrev/launchman/internal/prochandle"
)

// TrackedProcess binds one account key to the OS process believed to
// represent it. Entries are replaced wholesale on relaunch, never mutated.
type TrackedProcess struct {
	Key        string    `json:"key"`
	PID        int32     `json:"pid"`
	LaunchedAt time.Time `json:"launched_at"`
}

// Tracker owns the key->process map. It is the only structure in the core
// mutated from multiple goroutines, so every operation takes the lock.
type Tracker struct {
	mu    sync.Mutex
	procs map[string]TrackedProcess
	alive func(int32) bool
}

// New returns a Tracker probing liveness via prochandle.
func New() *Tracker {
	return NewWithProbe(prochandle.Alive)
}

// NewWithProbe returns a Tracker with an injected liveness probe.
func NewWithProbe(alive func(int32) bool) *Tracker {
	return &Tracker{procs: make(map[string]TrackedProcess), alive: alive}
}

// Record associates key with pid, replacing any prior mapping for the key.
// Last write wins; the previous pid is not terminated here.
func (t *Tracker) Record(key string, pid int32) {
	t.mu.Lock()
	t.procs[key] = TrackedProcess{Key: key, PID: pid, LaunchedAt: time.Now()}
	t.mu.Unlock()
}

// Lookup returns the pid tracked for key.
func (t *Tracker) Lookup(key string) (int32, bool) {
	t.mu.Lock()
	e, ok := t.procs[key]
	t.mu.Unlock()
	return e.PID, ok
}

// Remove drops the mapping for key if present.
func (t *Tracker) Remove(key string) {
	t.mu.Lock()
	delete(t.procs, key)
	t.mu.Unlock()
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	n := len(t.procs)
	t.mu.Unlock()
	return n
}

// Entries returns a copy of all tracked entries, sorted by key.
func (t *Tracker) Entries() []TrackedProcess {
	t.mu.Lock()
	out := make([]TrackedProcess, 0, len(t.procs))
	for _, e := range t.procs {
		out = append(out, e)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Reconcile drops every entry whose process is no longer alive and returns
// the removed entries. It never errors and a second immediate call removes
// nothing further.
func (t *Tracker) Reconcile() []TrackedProcess {
	t.mu.Lock()
	var dead []TrackedProcess
	for key, e := range t.procs {
		if !t.alive(e.PID) {
			dead = append(dead, e)
			delete(t.procs, key)
		}
	}
	t.mu.Unlock()
	sort.Slice(dead, func(i, j int) bool { return dead[i].Key < dead[j].Key })
	return dead
}
