package toolexec

import (
	"os/exec"
	"syscall"
	"testing"
)

func TestConfigureProcess_KillsToolWithParent(t *testing.T) {
	cmd := exec.Command("true")
	configureProcess(cmd)
	attr := cmd.SysProcAttr
	if attr == nil || !attr.Setpgid {
		t.Fatalf("tool must run in its own process group: %+v", attr)
	}
	if attr.Pdeathsig != syscall.SIGKILL {
		t.Fatalf("tool must be killed when the parent dies, got %v", attr.Pdeathsig)
	}
	if cmd.Cancel == nil {
		t.Fatal("cancel must kill the process group")
	}
}
