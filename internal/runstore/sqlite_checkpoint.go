package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	job        TEXT PRIMARY KEY,
	next_index INTEGER NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteCheckpoints keeps every job's checkpoint as one row of a single
// database under the output root.
type SQLiteCheckpoints struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

func OpenSQLiteCheckpoints(path string, log *slog.Logger) (*SQLiteCheckpoints, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		checkpointSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init checkpoint db %s: %w", path, err)
		}
	}
	return &SQLiteCheckpoints{db: db, path: path, log: loggerOrDefault(log)}, nil
}

func (s *SQLiteCheckpoints) For(layout JobLayout) Checkpoint {
	return sqliteCheckpoint{db: s.db, job: layout.Name, log: s.log}
}

func (s *SQLiteCheckpoints) Reset(layout JobLayout) error {
	if _, err := s.db.Exec(`DELETE FROM checkpoints WHERE job = ?`, layout.Name); err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", layout.Name, err)
	}
	return nil
}

func (s *SQLiteCheckpoints) Close() error {
	return s.db.Close()
}

type sqliteCheckpoint struct {
	db  *sql.DB
	job string
	log *slog.Logger
}

func (c sqliteCheckpoint) Load() int {
	var next int
	err := c.db.QueryRow(`SELECT next_index FROM checkpoints WHERE job = ?`, c.job).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 1
	}
	if err != nil {
		c.log.Warn("checkpoint unreadable, starting from the first frame", "job", c.job, "error", err)
		return 1
	}
	if next < 1 {
		return 1
	}
	return next
}

func (c sqliteCheckpoint) Save(next int) error {
	if next < 1 {
		next = 1
	}
	_, err := c.db.Exec(`
INSERT INTO checkpoints (job, next_index, updated_at) VALUES (?, ?, ?)
ON CONFLICT(job) DO UPDATE SET next_index = excluded.next_index, updated_at = excluded.updated_at`,
		c.job, next, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", c.job, err)
	}
	return nil
}
