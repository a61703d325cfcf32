//go:build unix

package checks

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the shell in its own process group so a timeout kills
// the whole test run, not just sh.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
