//go:build windows

package launcher

import (
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// newCommand builds the launch command. Batch files cannot be started by
// CreateProcess directly, so they go through the command interpreter. The
// child is detached from this console so Ctrl+C here does not reach it.
func newCommand(req Request) *exec.Cmd {
	var cmd *exec.Cmd
	if strings.EqualFold(filepath.Ext(req.Target), ".bat") {
		args := append([]string{"/C", req.Target}, req.Args...)
		cmd = exec.Command("cmd", args...)
	} else {
		cmd = exec.Command(req.Target, req.Args...)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
	return cmd
}
