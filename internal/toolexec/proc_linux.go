package toolexec

import "syscall"

// Pdeathsig kills the tool when this process dies without cleaning up, for
// example after a second interrupt.
func processAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}
