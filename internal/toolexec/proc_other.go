//go:build !unix

package toolexec

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}
