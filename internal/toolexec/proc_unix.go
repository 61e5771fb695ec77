//go:build unix

package toolexec

import (
	"os/exec"
	"syscall"
)

// The child gets its own process group: a terminal interrupt reaches only
// this process, while a timeout kill reaches the whole child tree.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = processAttr()
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
