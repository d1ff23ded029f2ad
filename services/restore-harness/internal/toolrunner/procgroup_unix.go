//go:build !windows

package toolrunner

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the tool in its own process group so a timeout kills
// everything it spawned (docker compose, shell wrappers), not just the direct child.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
