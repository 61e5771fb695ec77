package runstore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Checkpoint persists the next frame index a job should attempt.
// Load never fails: anything it cannot read or use is logged and reads as 1.
type Checkpoint interface {
	Load() int
	Save(next int) error
}

// CheckpointStore hands out per-job checkpoints.
type CheckpointStore interface {
	For(layout JobLayout) Checkpoint
	Reset(layout JobLayout) error
	Close() error
}

const (
	CheckpointStoreFile   = "file"
	CheckpointStoreSQLite = "sqlite"
)

// OpenCheckpointStore selects the storage backend by name.
func OpenCheckpointStore(kind, outputRoot string, log *slog.Logger) (CheckpointStore, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", CheckpointStoreFile:
		return FileCheckpoints{Log: log}, nil
	case CheckpointStoreSQLite:
		if err := Mkdir(outputRoot); err != nil {
			return nil, err
		}
		return OpenSQLiteCheckpoints(filepath.Join(outputRoot, CheckpointDBFileName), log)
	default:
		return nil, fmt.Errorf("unknown checkpoint store %q (expected file or sqlite)", kind)
	}
}

type FileCheckpoints struct {
	Log *slog.Logger
}

func (s FileCheckpoints) For(layout JobLayout) Checkpoint {
	return FileCheckpoint{Path: layout.CheckpointPath(), Log: s.Log}
}

func (FileCheckpoints) Reset(layout JobLayout) error {
	if err := os.Remove(layout.CheckpointPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint %s: %w", layout.CheckpointPath(), err)
	}
	return nil
}

func (FileCheckpoints) Close() error { return nil }

// FileCheckpoint is the plain-text progress.txt checkpoint.
type FileCheckpoint struct {
	Path string
	Log  *slog.Logger
}

func (c FileCheckpoint) Load() int {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			loggerOrDefault(c.Log).Warn("checkpoint unreadable, starting from the first frame", "path", c.Path, "error", err)
		}
		return 1
	}
	return ParseCheckpoint(string(data))
}

func (c FileCheckpoint) Save(next int) error {
	if next < 1 {
		next = 1
	}
	return WriteBytes(c.Path, []byte(strconv.Itoa(next)))
}

func ParseCheckpoint(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 1 {
		return 1
	}
	return v
}

func loggerOrDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

// ClampStart keeps a loaded checkpoint inside [1, total].
func ClampStart(start, total int) int {
	if start < 1 {
		return 1
	}
	if total > 0 && start > total {
		return total
	}
	return start
}
