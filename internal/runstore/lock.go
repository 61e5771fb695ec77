package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	runLockDirName   = ".run.lock"
	runLockOwnerFile = "owner.json"
)

type RunLock struct {
	lockDir string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
	Command   string `json:"command,omitempty"`
}

// AcquireRunLock takes exclusive ownership of an output root. A lock left
// behind by a process that no longer exists on this host is reclaimed.
func AcquireRunLock(root, command string) (RunLock, error) {
	target := strings.TrimSpace(root)
	if target == "" {
		return RunLock{}, fmt.Errorf("output root is required")
	}
	if err := Mkdir(target); err != nil {
		return RunLock{}, err
	}

	lockDir := filepath.Join(target, runLockDirName)
	for attempt := 0; ; attempt++ {
		err := os.Mkdir(lockDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return RunLock{}, fmt.Errorf("acquire run lock for %s: %w", target, err)
		}

		ownerPath := filepath.Join(lockDir, runLockOwnerFile)
		var owner runLockOwner
		readErr := ReadJSON(ownerPath, &owner)
		if readErr == nil && attempt == 0 && isStaleOwner(owner) {
			_ = os.Remove(ownerPath)
			if rmErr := os.Remove(lockDir); rmErr != nil && !os.IsNotExist(rmErr) {
				return RunLock{}, fmt.Errorf("reclaim stale run lock %s: %w", lockDir, rmErr)
			}
			continue
		}
		if readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
			return RunLock{}, fmt.Errorf(
				"output root is locked: %s (pid=%d created_at=%s host=%s command=%s)",
				target, owner.PID, owner.CreatedAt, owner.Hostname, owner.Command,
			)
		}
		return RunLock{}, fmt.Errorf("output root is locked: %s", target)
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
		Command:   command,
	}
	ownerPath := filepath.Join(lockDir, runLockOwnerFile)
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = os.Remove(lockDir)
		return RunLock{}, fmt.Errorf("write run lock owner for %s: %w", target, err)
	}

	return RunLock{lockDir: lockDir}, nil
}

func (l RunLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, runLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock %s: %w", l.lockDir, err)
	}
	return nil
}

func isStaleOwner(owner runLockOwner) bool {
	if owner.PID <= 0 {
		return false
	}
	if owner.Hostname != hostnameOrUnknown() {
		return false
	}
	return !processAlive(owner.PID)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
