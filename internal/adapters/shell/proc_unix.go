//go:build unix

package shell

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the driver in a new process group so that the compiler
// processes it spawns can be terminated together.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
