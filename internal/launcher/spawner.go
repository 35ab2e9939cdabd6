package launcher

import (
	"fmt"

	"github.com/akozyrev/launchman/internal/logger"
)

// Request describes one launch of a client for an account.
type Request struct {
	// Key is the account key the resulting process will be tracked under.
	Key string
	// Target is the absolute path of the executable or script to run.
	Target string
	// WorkDir is the working directory for the spawned process.
	WorkDir string
	// Args are passed to the target verbatim.
	Args []string
	// OnComplete, when set, is invoked after the launch attempt finishes,
	// successfully or not. It runs on the worker goroutine. pid is zero
	// when err is non-nil.
	OnComplete func(key string, pid int32, err error)
}

// Spawner starts the target process. The spawned process must outlive the
// spawner; discovery of the real client pid happens elsewhere.
type Spawner interface {
	Spawn(req Request) error
}

// ExecSpawner starts targets via os/exec, detached from this process so a
// crash here never takes the clients down. Output is captured per account
// when a log directory is configured.
type ExecSpawner struct {
	Log logger.Config
}

func (s *ExecSpawner) Spawn(req Request) error {
	cmd := newCommand(req)
	cmd.Dir = req.WorkDir

	stdout, stderr := s.Log.ClientWriters(req.Key)
	if stdout != nil {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		if stdout != nil {
			_ = stdout.Close()
			_ = stderr.Close()
		}
		return fmt.Errorf("%w: %s: %v", ErrSpawnFailed, req.Target, err)
	}

	// The target is usually a wrapper script that exits once the real
	// client is up. Reap it in the background and release the writers.
	go func() {
		_ = cmd.Wait()
		if stdout != nil {
			_ = stdout.Close()
			_ = stderr.Close()
		}
	}()
	return nil
}
