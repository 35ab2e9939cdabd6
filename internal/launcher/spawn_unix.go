//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// newCommand builds the launch command. The child gets its own process
// group so signals delivered to this process do not reach spawned clients.
func newCommand(req Request) *exec.Cmd {
	cmd := exec.Command(req.Target, req.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}
