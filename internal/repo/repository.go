package repo

import (
	"context"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
)

// Ports implemented by the memory, sqlite and postgres adapters.
type TargetStore interface {
	// Add assigns an ID when empty; returns domain.ErrDuplicateURL on a URL clash.
	Add(ctx context.Context, t *domain.Target) error
	List(ctx context.Context) ([]*domain.Target, error)
	// FindByID returns domain.ErrTargetNotFound when absent.
	FindByID(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	// GetByURL returns nil, nil when absent.
	GetByURL(ctx context.Context, url string) (*domain.Target, error)
	Save(ctx context.Context, t *domain.Target) error
	// Delete removes the target and its history.
	Delete(ctx context.Context, id domain.TargetID) error
}

type HistoryLedger interface {
	// FindLatest returns nil, nil when the target has no history yet.
	FindLatest(ctx context.Context, id domain.TargetID) (*domain.HistoryRecord, error)
	Append(ctx context.Context, r *domain.HistoryRecord) error
	// ListByTarget returns newest first.
	ListByTarget(ctx context.Context, id domain.TargetID, limit int) ([]*domain.HistoryRecord, error)
}

// CheckRecorder persists one tick: the history append and the target's
// last status/time, both or neither.
type CheckRecorder interface {
	RecordCheck(ctx context.Context, rec *domain.HistoryRecord, t *domain.Target) error
}

type Store interface {
	TargetStore
	HistoryLedger
	CheckRecorder
}

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 200
)

// ClampLimit normalizes a caller supplied history page size.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultHistoryLimit
	case n > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return n
	}
}
