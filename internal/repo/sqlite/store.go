package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
	"github.com/hamed0406/uptimeadvisor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store implements repo.Store on a single SQLite file.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and migrates it.
func New(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir data dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps RecordCheck transactions from racing into SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS targets (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL DEFAULT '',
			url             TEXT NOT NULL UNIQUE,
			last_status     INTEGER NOT NULL DEFAULT 0,
			last_checked_at TEXT,
			created_at      TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			target_id   TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			latency_ms  REAL NOT NULL DEFAULT 0,
			advisory    TEXT,
			checked_at  TEXT NOT NULL,
			FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_target_id ON history(target_id, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---- TargetStore ----

func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO targets (id, name, url, last_status, last_checked_at, created_at) VALUES (?,?,?,?,?,?)`,
		string(t.ID), t.Name, t.URL, t.LastStatus, formatTimePtr(t.LastCheckedAt), formatTime(t.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrDuplicateURL
		}
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

const targetCols = `id, name, url, last_status, last_checked_at, created_at`

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetCols+` FROM targets ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()
	var out []*domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) FindByID(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetCols+` FROM targets WHERE id = ?`, string(id))
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTargetNotFound
	}
	return t, err
}

func (s *Store) GetByURL(ctx context.Context, url string) (*domain.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+targetCols+` FROM targets WHERE url = ?`, url)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *Store) Save(ctx context.Context, t *domain.Target) error {
	return saveTarget(ctx, s.db, t)
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTargetNotFound
	}
	return nil
}

// ---- HistoryLedger ----

const historyCols = `id, target_id, status_code, latency_ms, advisory, checked_at`

func (s *Store) FindLatest(ctx context.Context, id domain.TargetID) (*domain.HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+historyCols+` FROM history WHERE target_id = ? ORDER BY id DESC LIMIT 1`, string(id))
	r, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *Store) Append(ctx context.Context, r *domain.HistoryRecord) error {
	return appendHistory(ctx, s.db, r)
}

func (s *Store) ListByTarget(ctx context.Context, id domain.TargetID, limit int) ([]*domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyCols+` FROM history WHERE target_id = ? ORDER BY id DESC LIMIT ?`,
		string(id), repo.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var out []*domain.HistoryRecord
	for rows.Next() {
		r, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- CheckRecorder ----

func (s *Store) RecordCheck(ctx context.Context, rec *domain.HistoryRecord, t *domain.Target) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := appendHistory(ctx, tx, rec); err != nil {
		return err
	}
	if err := saveTarget(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendHistory(ctx context.Context, db execer, r *domain.HistoryRecord) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	var advisory *string
	if r.Advisory != "" {
		advisory = &r.Advisory
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO history (target_id, status_code, latency_ms, advisory, checked_at) VALUES (?,?,?,?,?)`,
		string(r.TargetID), r.StatusCode, r.LatencyMS, advisory, formatTime(r.CheckedAt))
	if err != nil {
		// the target was deleted between the tick's read and this write
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return domain.ErrTargetNotFound
		}
		return fmt.Errorf("insert history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

func saveTarget(ctx context.Context, db execer, t *domain.Target) error {
	res, err := db.ExecContext(ctx,
		`UPDATE targets SET name = ?, url = ?, last_status = ?, last_checked_at = ? WHERE id = ?`,
		t.Name, t.URL, t.LastStatus, formatTimePtr(t.LastCheckedAt), string(t.ID))
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTargetNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(row scanner) (*domain.Target, error) {
	var (
		t         domain.Target
		id        string
		checkedAt sql.NullString
		createdAt string
	)
	if err := row.Scan(&id, &t.Name, &t.URL, &t.LastStatus, &checkedAt, &createdAt); err != nil {
		return nil, err
	}
	t.ID = domain.TargetID(id)
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if checkedAt.Valid {
		at, err := parseTime(checkedAt.String)
		if err != nil {
			return nil, err
		}
		t.LastCheckedAt = &at
	}
	return &t, nil
}

func scanHistory(row scanner) (*domain.HistoryRecord, error) {
	var (
		r         domain.HistoryRecord
		targetID  string
		advisory  sql.NullString
		checkedAt string
	)
	if err := row.Scan(&r.ID, &targetID, &r.StatusCode, &r.LatencyMS, &advisory, &checkedAt); err != nil {
		return nil, err
	}
	r.TargetID = domain.TargetID(targetID)
	r.Advisory = advisory.String
	var err error
	if r.CheckedAt, err = parseTime(checkedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
