// Package prochandle wraps liveness and termination of a single OS process.
package prochandle

import (
	"errors"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ErrTerminateFailed means the process survived both the graceful signal and
// the forced kill. Rare; surfaced to the caller, never retried here.
var ErrTerminateFailed = errors.New("process did not exit after forced kill")

const killSettle = 500 * time.Millisecond

// Alive reports whether pid resolves to a running, non-zombie process.
// A pid that cannot be resolved is simply not alive; this is never an error.
func Alive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	p, err := gopsproc.NewProcess(pid)
	if err != nil {
		return false
	}
	if statuses, err := p.Status(); err == nil {
		for _, st := range statuses {
			if st == gopsproc.Zombie {
				return false
			}
		}
	}
	running, err := p.IsRunning()
	if err != nil {
		return false
	}
	return running
}

// Terminate requests graceful termination and waits up to grace for the
// process to exit; if it is still alive a forced kill follows. The result is
// success whenever the process ends up not running, including when it was
// already gone before the first signal.
func Terminate(pid int32, grace time.Duration) error {
	p, err := gopsproc.NewProcess(pid)
	if err != nil {
		return nil // already gone
	}
	if err := p.Terminate(); err != nil && !Alive(pid) {
		return nil
	}
	if waitGone(pid, grace) {
		return nil
	}
	_ = p.Kill()
	if waitGone(pid, killSettle) {
		return nil
	}
	return ErrTerminateFailed
}

// waitGone polls until the process is no longer alive or the window elapses.
func waitGone(pid int32, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for {
		if !Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}
