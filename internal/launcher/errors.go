package launcher

import "errors"

var (
	// ErrTargetNotFound means the executable path does not exist on disk.
	ErrTargetNotFound = errors.New("launch target not found")
	// ErrSpawnFailed means the OS refused to start the wrapper process.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrProcessNotDetected means no new client process appeared after the
	// settle window, so no pid could be bound to the account.
	ErrProcessNotDetected = errors.New("client process not detected")
	// ErrAlreadyRunning means the account already has a live tracked client.
	ErrAlreadyRunning = errors.New("account already running")
	// ErrShuttingDown means the orchestrator no longer accepts work.
	ErrShuttingDown = errors.New("orchestrator shutting down")
)
