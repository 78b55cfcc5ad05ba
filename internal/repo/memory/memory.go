package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
	"github.com/hamed0406/uptimeadvisor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps targets and history in process memory. One lock guards both so
// RecordCheck is observed atomically by readers.
type Store struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]*domain.Target
	history map[domain.TargetID][]*domain.HistoryRecord
	nextID  int64
}

func New() *Store {
	return &Store{
		targets: make(map[domain.TargetID]*domain.Target),
		history: make(map[domain.TargetID][]*domain.HistoryRecord),
	}
}

// ---- TargetStore ----

func (m *Store) Add(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.targets {
		if existing.URL == t.URL {
			return domain.ErrDuplicateURL
		}
	}
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.targets[t.ID] = cloneTarget(t)
	return nil
}

func (m *Store) List(ctx context.Context) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		out = append(out, cloneTarget(t))
	}
	sortTargets(out)
	return out, nil
}

func (m *Store) FindByID(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return cloneTarget(t), nil
}

func (m *Store) GetByURL(ctx context.Context, url string) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.targets {
		if t.URL == url {
			return cloneTarget(t), nil
		}
	}
	return nil, nil
}

func (m *Store) Save(ctx context.Context, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[t.ID]; !ok {
		return domain.ErrTargetNotFound
	}
	m.targets[t.ID] = cloneTarget(t)
	return nil
}

func (m *Store) Delete(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return domain.ErrTargetNotFound
	}
	delete(m.targets, id)
	delete(m.history, id)
	return nil
}

// ---- HistoryLedger ----

func (m *Store) FindLatest(ctx context.Context, id domain.TargetID) (*domain.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[id]
	if len(h) == 0 {
		return nil, nil
	}
	cp := *h[len(h)-1]
	return &cp, nil
}

func (m *Store) Append(ctx context.Context, r *domain.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(r)
	return nil
}

func (m *Store) ListByTarget(ctx context.Context, id domain.TargetID, limit int) ([]*domain.HistoryRecord, error) {
	limit = repo.ClampLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[id]
	out := make([]*domain.HistoryRecord, 0, min(limit, len(h)))
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *h[i]
		out = append(out, &cp)
	}
	return out, nil
}

// ---- CheckRecorder ----

func (m *Store) RecordCheck(ctx context.Context, rec *domain.HistoryRecord, t *domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[t.ID]; !ok {
		return domain.ErrTargetNotFound
	}
	m.appendLocked(rec)
	m.targets[t.ID] = cloneTarget(t)
	return nil
}

func (m *Store) appendLocked(r *domain.HistoryRecord) {
	m.nextID++
	r.ID = m.nextID
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	cp := *r
	m.history[r.TargetID] = append(m.history[r.TargetID], &cp)
}

func cloneTarget(t *domain.Target) *domain.Target {
	cp := *t
	if t.LastCheckedAt != nil {
		at := *t.LastCheckedAt
		cp.LastCheckedAt = &at
	}
	return &cp
}
