package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
	"github.com/hamed0406/uptimeadvisor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS targets (
  id              TEXT PRIMARY KEY,
  name            TEXT NOT NULL DEFAULT '',
  url             TEXT NOT NULL UNIQUE,
  last_status     INTEGER NOT NULL DEFAULT 0,
  last_checked_at TIMESTAMPTZ NULL,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS history (
  id          BIGSERIAL PRIMARY KEY,
  target_id   TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
  status_code INTEGER NOT NULL,
  latency_ms  DOUBLE PRECISION NOT NULL DEFAULT 0,
  advisory    TEXT NULL,
  checked_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_target_id ON history (target_id, id DESC);
`

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- TargetStore ----

func (s *Store) Add(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO targets (id, name, url, last_status, last_checked_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(t.ID), t.Name, t.URL, t.LastStatus, t.LastCheckedAt, t.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateURL
		}
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

const targetCols = `id, name, url, last_status, last_checked_at, created_at`

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+targetCols+`
		   FROM targets
		  ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) FindByID(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	t, err := scanTarget(s.pool.QueryRow(ctx,
		`SELECT `+targetCols+` FROM targets WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTargetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find target: %w", err)
	}
	return t, nil
}

func (s *Store) GetByURL(ctx context.Context, url string) (*domain.Target, error) {
	t, err := scanTarget(s.pool.QueryRow(ctx,
		`SELECT `+targetCols+` FROM targets WHERE url = $1`, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get target by url: %w", err)
	}
	return t, nil
}

func (s *Store) Save(ctx context.Context, t *domain.Target) error {
	return saveTarget(ctx, s.pool, t)
}

func (s *Store) Delete(ctx context.Context, id domain.TargetID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTargetNotFound
	}
	return nil
}

// ---- HistoryLedger ----

const historyCols = `id, target_id, status_code, latency_ms, advisory, checked_at`

func (s *Store) FindLatest(ctx context.Context, id domain.TargetID) (*domain.HistoryRecord, error) {
	r, err := scanHistory(s.pool.QueryRow(ctx,
		`SELECT `+historyCols+`
		   FROM history
		  WHERE target_id = $1
		  ORDER BY id DESC
		  LIMIT 1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest history: %w", err)
	}
	return r, nil
}

func (s *Store) Append(ctx context.Context, r *domain.HistoryRecord) error {
	return appendHistory(ctx, s.pool, r)
}

func (s *Store) ListByTarget(ctx context.Context, id domain.TargetID, limit int) ([]*domain.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+historyCols+`
		   FROM history
		  WHERE target_id = $1
		  ORDER BY id DESC
		  LIMIT $2`, string(id), repo.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*domain.HistoryRecord
	for rows.Next() {
		r, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- CheckRecorder ----

func (s *Store) RecordCheck(ctx context.Context, rec *domain.HistoryRecord, t *domain.Target) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := appendHistory(ctx, tx, rec); err != nil {
			return err
		}
		return saveTarget(ctx, tx, t)
	})
	if err != nil && s.log != nil {
		s.log.Warn("record check rolled back", zap.String("target_id", string(t.ID)), zap.Error(err))
	}
	return err
}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func appendHistory(ctx context.Context, q querier, r *domain.HistoryRecord) error {
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	var advisory *string
	if r.Advisory != "" {
		advisory = &r.Advisory
	}
	err := q.QueryRow(ctx,
		`INSERT INTO history (target_id, status_code, latency_ms, advisory, checked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		string(r.TargetID), r.StatusCode, r.LatencyMS, advisory, r.CheckedAt,
	).Scan(&r.ID)
	if err != nil {
		// foreign_key_violation: the target was deleted mid-tick
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return domain.ErrTargetNotFound
		}
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func saveTarget(ctx context.Context, q querier, t *domain.Target) error {
	tag, err := q.Exec(ctx,
		`UPDATE targets
		    SET name = $2, url = $3, last_status = $4, last_checked_at = $5
		  WHERE id = $1`,
		string(t.ID), t.Name, t.URL, t.LastStatus, t.LastCheckedAt,
	)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTargetNotFound
	}
	return nil
}

func scanTarget(row pgx.Row) (*domain.Target, error) {
	var (
		t         domain.Target
		id        string
		checkedAt *time.Time
	)
	if err := row.Scan(&id, &t.Name, &t.URL, &t.LastStatus, &checkedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = domain.TargetID(id)
	t.LastCheckedAt = checkedAt
	return &t, nil
}

func scanHistory(row pgx.Row) (*domain.HistoryRecord, error) {
	var (
		r        domain.HistoryRecord
		targetID string
		advisory *string
	)
	if err := row.Scan(&r.ID, &targetID, &r.StatusCode, &r.LatencyMS, &advisory, &r.CheckedAt); err != nil {
		return nil, err
	}
	r.TargetID = domain.TargetID(targetID)
	if advisory != nil {
		r.Advisory = *advisory
	}
	return &r, nil
}
