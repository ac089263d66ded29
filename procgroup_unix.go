//go:build unix

package warden

import (
	"os/exec"
	"syscall"
	"time"
)

// configureProcessGroup places the child in its own session so the whole
// process tree can be signalled at once. Cancellation kills the group, not
// just the direct child; a shell's grandchildren die with it.
func configureProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true

	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative PID signals the whole group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// Bound the wait after kill in case a zombie reaper is slow.
	cmd.WaitDelay = 5 * time.Second
}
