package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mathlabs/evaluator/internal/model"
)

// UpsertRun writes a run record keyed by run id. A second write with the
// same id replaces the first.
func (s *Store) UpsertRun(r model.RunRecord) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", r.RunID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO evaluations (run_id, evaluated_at, doc) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET evaluated_at = excluded.evaluated_at, doc = excluded.doc`,
		r.RunID, r.EvaluatedAt, string(doc),
	)
	return err
}

// GetRun returns the run with the given id, or nil if absent.
func (s *Store) GetRun(runID string) (*model.RunRecord, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM evaluations WHERE run_id = ?`, runID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r model.RunRecord
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &r, nil
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns() ([]model.RunRecord, error) {
	rows, err := s.db.Query(`SELECT doc FROM evaluations ORDER BY evaluated_at DESC, run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []model.RunRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r model.RunRecord
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run, or nil if none is stored.
func (s *Store) LatestRun() (*model.RunRecord, error) {
	var id string
	err := s.db.QueryRow(`SELECT run_id FROM evaluations ORDER BY evaluated_at DESC, run_id DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetRun(id)
}

// RunCount returns the number of stored runs.
func (s *Store) RunCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM evaluations`).Scan(&n)
	return n, err
}
