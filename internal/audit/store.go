// Package audit persists gate audit records in SQLite.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sprite-ai/impactgate/internal/model"
)

var openDB = sql.Open

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 50

// Store is an append-only audit log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("audit: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_log (
			seq               INTEGER PRIMARY KEY AUTOINCREMENT,
			id                TEXT NOT NULL UNIQUE,
			analysis_id       TEXT NOT NULL DEFAULT '',
			action            TEXT NOT NULL,
			approver          TEXT NOT NULL,
			reason            TEXT NOT NULL,
			blockers_bypassed TEXT NOT NULL DEFAULT '[]',
			previous_status   TEXT NOT NULL,
			new_status        TEXT NOT NULL,
			created_at        TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_analysis ON audit_log(analysis_id);
		CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends log.
func (s *Store) Record(ctx context.Context, log model.GateAuditLog) error {
	bypassed := log.BlockersBypassed
	if bypassed == nil {
		bypassed = []string{}
	}
	blob, err := json.Marshal(bypassed)
	if err != nil {
		return fmt.Errorf("audit: encode blockers: %w", err)
	}
	ts := log.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, analysis_id, action, approver, reason, blockers_bypassed, previous_status, new_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.AnalysisID, log.Action, log.Approver, log.Reason, string(blob),
		string(log.PreviousStatus), string(log.NewStatus), ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", log.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.GateAuditLog, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analysis_id, action, approver, reason, blockers_bypassed, previous_status, new_status, created_at
		 FROM audit_log ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return scanLogs(rows)
}

// ForAnalysis returns every record of one analysis, oldest first.
func (s *Store) ForAnalysis(ctx context.Context, analysisID string) ([]model.GateAuditLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analysis_id, action, approver, reason, blockers_bypassed, previous_status, new_status, created_at
		 FROM audit_log WHERE analysis_id = ? ORDER BY seq ASC`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("audit: for analysis %s: %w", analysisID, err)
	}
	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]model.GateAuditLog, error) {
	defer rows.Close()

	logs := []model.GateAuditLog{}
	for rows.Next() {
		var (
			l                model.GateAuditLog
			blob, prev, next string
			createdAt        string
		)
		if err := rows.Scan(&l.ID, &l.AnalysisID, &l.Action, &l.Approver, &l.Reason, &blob, &prev, &next, &createdAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(blob), &l.BlockersBypassed); err != nil {
			return nil, fmt.Errorf("audit: decode blockers of %s: %w", l.ID, err)
		}
		l.PreviousStatus = model.GateStatus(prev)
		l.NewStatus = model.GateStatus(next)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			l.Timestamp = ts
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
