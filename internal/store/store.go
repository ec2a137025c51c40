// Package store persists completed task runs so the history endpoints can
// serve them. The attempt loop itself never touches the store; its
// entities live only for the request.
package store

import (
	"database/sql"
	"errors"

	"github.com/throw-if-null/rexec/internal/api"
)

type Store struct {
	db *sql.DB
}

var ErrNotFound = errors.New("not found")

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init runs migrations using PRAGMA user_version.
func (s *Store) Init() error {
	var ver int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&ver); err != nil {
		return err
	}
	if ver >= 1 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// v1 schema
	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  prompt TEXT NOT NULL,
  success INTEGER NOT NULL,
  code TEXT NOT NULL,
  output TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  attempts INTEGER NOT NULL,
  execution_time REAL NOT NULL,
  created_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertRun(r *api.Run) error {
	_, err := s.db.Exec(`
INSERT INTO runs (run_id, prompt, success, code, output, error, attempts, execution_time, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Prompt, boolToInt(r.Success), r.Code, r.Output, r.Error, r.Attempts, r.ExecutionTime, r.CreatedAt)
	return err
}

func (s *Store) GetRun(runID string) (*api.Run, error) {
	row := s.db.QueryRow(`
SELECT run_id, prompt, success, code, output, error, attempts, execution_time, created_at
FROM runs WHERE run_id = ?`, runID)
	return scanRun(row)
}

// ListRuns returns runs newest first. limit <= 0 means no limit.
func (s *Store) ListRuns(limit int) ([]*api.Run, error) {
	q := `
SELECT run_id, prompt, success, code, output, error, attempts, execution_time, created_at
FROM runs ORDER BY created_at DESC, run_id DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*api.Run, error) {
	var r api.Run
	var success int
	err := row.Scan(&r.RunID, &r.Prompt, &success, &r.Code, &r.Output, &r.Error, &r.Attempts, &r.ExecutionTime, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Success = success != 0
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
