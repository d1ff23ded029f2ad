//go:build windows

package toolrunner

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
