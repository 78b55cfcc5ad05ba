// Package scheduler owns the per-target monitoring jobs. Each started target
// gets one cancellable job that checks it every interval; ticks of the same
// target never overlap and the number of ticks running at once is bounded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hamed0406/uptimeadvisor/internal/detector"
	"github.com/hamed0406/uptimeadvisor/internal/domain"
	"github.com/hamed0406/uptimeadvisor/internal/probe"
	"github.com/hamed0406/uptimeadvisor/internal/repo"
)

var ErrClosed = errors.New("scheduler: registry closed")

const (
	DefaultInterval      = 5 * time.Minute
	DefaultMaxConcurrent = 64
)

type Options struct {
	Interval      time.Duration
	MaxConcurrent int
	Logger        *zap.Logger
	// Alerter is optional; nil disables transition notifications.
	Alerter *Alerter
}

type Registry struct {
	store    repo.Store
	prober   probe.Prober
	detector *detector.Detector
	alerter  *Alerter
	log      *zap.Logger
	interval time.Duration

	sem   *semaphore.Weighted
	locks *targetLock

	// ticks run on base, not on their job's context, so Stop never
	// interrupts a tick that already began. Shutdown cancels base last.
	base    context.Context
	abandon context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	jobs   map[domain.TargetID]*job
	closed bool
}

type job struct {
	cancel context.CancelFunc
}

func New(store repo.Store, prober probe.Prober, det *detector.Detector, opts Options) *Registry {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	base, abandon := context.WithCancel(context.Background())
	return &Registry{
		store:    store,
		prober:   prober,
		detector: det,
		alerter:  opts.Alerter,
		log:      opts.Logger,
		interval: opts.Interval,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		locks:    newTargetLock(),
		base:     base,
		abandon:  abandon,
		jobs:     make(map[domain.TargetID]*job),
	}
}

// Start begins periodic checks of id. The first check fires after one full
// interval. Starting an already active target is a no-op.
func (r *Registry) Start(ctx context.Context, id domain.TargetID) error {
	if _, err := r.store.FindByID(ctx, id); err != nil {
		return fmt.Errorf("start %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.jobs[id]; ok {
		return nil
	}

	jctx, cancel := context.WithCancel(r.base)
	j := &job{cancel: cancel}
	r.jobs[id] = j
	activeJobs.Inc()
	r.wg.Add(1)
	go r.run(jctx, id, j)

	r.log.Info("monitor_started", zap.String("target_id", string(id)), zap.Duration("interval", r.interval))
	return nil
}

// Stop cancels future checks of id. A tick already running completes.
func (r *Registry) Stop(id domain.TargetID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removeLocked(id, nil) {
		r.log.Info("monitor_stopped", zap.String("target_id", string(id)))
	}
}

// removeLocked cancels and forgets id's job. With want set, only that exact
// job is removed, so a stale job cannot drop its replacement.
func (r *Registry) removeLocked(id domain.TargetID, want *job) bool {
	j, ok := r.jobs[id]
	if !ok || (want != nil && j != want) {
		return false
	}
	j.cancel()
	delete(r.jobs, id)
	activeJobs.Dec()
	return true
}

func (r *Registry) IsActive(id domain.TargetID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

// Active lists ids with a live job, sorted.
func (r *Registry) Active() []domain.TargetID {
	r.mu.Lock()
	out := make([]domain.TargetID, 0, len(r.jobs))
	for id := range r.jobs {
		out = append(out, id)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Remove stops id's job and then deletes the target and its history.
func (r *Registry) Remove(ctx context.Context, id domain.TargetID) error {
	r.Stop(id)
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

// LatestResult returns the newest history record for id, or the
// "no data yet" sentinel when the target was never checked.
func (r *Registry) LatestResult(ctx context.Context, id domain.TargetID) (domain.LatestResult, error) {
	rec, err := r.store.FindLatest(ctx, id)
	if err != nil {
		return domain.LatestResult{}, fmt.Errorf("latest result %s: %w", id, err)
	}
	return domain.ResultFrom(rec), nil
}

func (r *Registry) History(ctx context.Context, id domain.TargetID, limit int) ([]*domain.HistoryRecord, error) {
	return r.store.ListByTarget(ctx, id, limit)
}

// CheckNow runs one check of id immediately, waiting for any tick of the
// same target that is in flight. It does not require an active job.
func (r *Registry) CheckNow(ctx context.Context, id domain.TargetID) (*domain.HistoryRecord, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()
	defer r.wg.Done()

	if err := r.acquire(ctx, id); err != nil {
		return nil, err
	}
	defer r.release(id)
	return r.tick(r.base, id)
}

// Shutdown refuses new work, cancels every job and waits for in-flight
// ticks until ctx ends. Whatever is still running then is abandoned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	n := len(r.jobs)
	for id := range r.jobs {
		r.removeLocked(id, nil)
	}
	r.mu.Unlock()
	r.log.Info("scheduler_shutdown", zap.Int("jobs", n))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	defer r.abandon()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.log.Warn("scheduler_shutdown_abandoned", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// acquire takes id's lock before a pool slot, so callers queued behind a
// busy target do not hold slots other targets could use.
func (r *Registry) acquire(ctx context.Context, id domain.TargetID) error {
	if err := r.locks.Lock(ctx, id); err != nil {
		return err
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.locks.Unlock(id)
		return err
	}
	return nil
}

func (r *Registry) release(id domain.TargetID) {
	r.sem.Release(1)
	r.locks.Unlock(id)
}
