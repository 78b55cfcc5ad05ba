package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeadvisor/internal/advisory"
	"github.com/hamed0406/uptimeadvisor/internal/detector"
	"github.com/hamed0406/uptimeadvisor/internal/domain"
	"github.com/hamed0406/uptimeadvisor/internal/probe"
	"github.com/hamed0406/uptimeadvisor/internal/repo/memory"
)

// ---- fakes ----

type probeFunc func(ctx context.Context, url string) probe.Result

func (f probeFunc) Probe(ctx context.Context, url string) probe.Result { return f(ctx, url) }

func constProber(status int) probe.Prober {
	return probeFunc(func(ctx context.Context, url string) probe.Result {
		return probe.Result{StatusCode: status, Observed: status, LatencyMS: 1}
	})
}

// seqProber returns statuses in order, repeating the last one.
type seqProber struct {
	mu       sync.Mutex
	statuses []int
	calls    int
}

func (p *seqProber) Probe(ctx context.Context, url string) probe.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	if i >= len(p.statuses) {
		i = len(p.statuses) - 1
	}
	p.calls++
	return probe.Result{StatusCode: p.statuses[i]}
}

func (p *seqProber) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type countingGenerator struct {
	calls atomic.Int32
	err   error
}

func (g *countingGenerator) Generate(ctx context.Context, statusCode int) (string, error) {
	g.calls.Add(1)
	if g.err != nil {
		return "", g.err
	}
	return "restart the upstream service", nil
}

func (g *countingGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return "hello", nil
}

// flakyStore fails RecordCheck while failing is set.
type flakyStore struct {
	*memory.Store
	failing atomic.Bool
}

func (s *flakyStore) RecordCheck(ctx context.Context, rec *domain.HistoryRecord, t *domain.Target) error {
	if s.failing.Load() {
		return errors.New("disk full")
	}
	return s.Store.RecordCheck(ctx, rec, t)
}

func setup(t *testing.T, p probe.Prober, gen advisory.Generator, interval time.Duration) (*Registry, *memory.Store, domain.TargetID) {
	t.Helper()
	store := memory.New()
	tgt := &domain.Target{Name: "svc", URL: "https://svc.example"}
	require.NoError(t, store.Add(context.Background(), tgt))
	det := detector.New(store, gen, detector.PolicyTransition, zap.NewNop())
	r := New(store, p, det, Options{Interval: interval, Logger: zap.NewNop()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r, store, tgt.ID
}

// ---- tests ----

func TestStart_IdempotentAndUnknownTarget(t *testing.T) {
	p := &seqProber{statuses: []int{200}}
	r, _, id := setup(t, p, &countingGenerator{}, time.Hour)
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, id))
	require.NoError(t, r.Start(ctx, id))
	assert.True(t, r.IsActive(id))
	assert.Equal(t, []domain.TargetID{id}, r.Active())

	err := r.Start(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
	assert.False(t, r.IsActive("nope"))

	// first tick waits a full interval
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, p.count())
}

func TestStop_Idempotent(t *testing.T) {
	r, _, id := setup(t, constProber(200), &countingGenerator{}, time.Hour)

	r.Stop("never-started")
	r.Stop(id)

	require.NoError(t, r.Start(context.Background(), id))
	r.Stop(id)
	r.Stop(id)
	assert.False(t, r.IsActive(id))
	assert.Empty(t, r.Active())
}

func TestStart_ConcurrentCallersCreateOneJob(t *testing.T) {
	r, _, id := setup(t, constProber(200), &countingGenerator{}, time.Hour)
	before := testutil.ToFloat64(activeJobs)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Start(context.Background(), id)
		}()
	}
	wg.Wait()

	assert.Len(t, r.Active(), 1)
	assert.Equal(t, before+1, testutil.ToFloat64(activeJobs))
	r.Stop(id)
	assert.Equal(t, before, testutil.ToFloat64(activeJobs))
}

func TestTicks_FireAfterInterval(t *testing.T) {
	p := &seqProber{statuses: []int{200}}
	r, store, id := setup(t, p, &countingGenerator{}, 20*time.Millisecond)

	require.NoError(t, r.Start(context.Background(), id))
	require.Eventually(t, func() bool { return p.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	r.Stop(id)

	tgt, err := store.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 200, tgt.LastStatus)
	require.NotNil(t, tgt.LastCheckedAt)
}

func TestTicks_NeverOverlapPerTarget(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	slow := probeFunc(func(ctx context.Context, url string) probe.Result {
		n := inFlight.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		inFlight.Add(-1)
		return probe.Result{StatusCode: 200}
	})
	r, _, id := setup(t, slow, &countingGenerator{}, time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	// restart the job repeatedly while manual checks run alongside
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = r.Start(ctx, id)
				time.Sleep(3 * time.Millisecond)
				r.Stop(id)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				_, _ = r.CheckNow(ctx, id)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestTicks_DifferentTargetsRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	var inFlight atomic.Int32
	blocking := probeFunc(func(ctx context.Context, url string) probe.Result {
		inFlight.Add(1)
		<-release
		return probe.Result{StatusCode: 200}
	})
	r, store, a := setup(t, blocking, &countingGenerator{}, time.Hour)
	b := &domain.Target{URL: "https://other.example"}
	require.NoError(t, store.Add(context.Background(), b))

	go func() { _, _ = r.CheckNow(context.Background(), a) }()
	go func() { _, _ = r.CheckNow(context.Background(), b.ID) }()

	require.Eventually(t, func() bool { return inFlight.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	close(release)
}

func TestCheckNow_TransitionGating(t *testing.T) {
	p := &seqProber{statuses: []int{200, 200, 500, 500, 200}}
	gen := &countingGenerator{}
	r, store, id := setup(t, p, gen, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.CheckNow(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), gen.calls.Load())

	hist, err := store.ListByTarget(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, hist, 5)
	// newest first: [200, 500, 500, 200, 200]
	assert.Equal(t, hist[2].Advisory, hist[1].Advisory)
	assert.Equal(t, hist[4].Advisory, hist[3].Advisory)
}

func TestCheckNow_RecordsProbeClassification(t *testing.T) {
	// the registry records whatever the prober classified
	r, store, id := setup(t, constProber(probe.FailureStatus), &countingGenerator{}, time.Hour)
	got, err := r.CheckNow(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 500, got.StatusCode)

	tgt, _ := store.FindByID(context.Background(), id)
	assert.Equal(t, 500, tgt.LastStatus)
}

func TestCheckNow_AdvisoryFailureUsesFallback(t *testing.T) {
	gen := &countingGenerator{err: advisory.ErrRateLimited}
	r, store, id := setup(t, constProber(503), gen, time.Hour)
	before := testutil.ToFloat64(advisoryCalls.WithLabelValues(advisoryFallback))

	got, err := r.CheckNow(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, advisory.FallbackText, got.Advisory)

	tgt, _ := store.FindByID(context.Background(), id)
	assert.Equal(t, 503, tgt.LastStatus)
	assert.Equal(t, before+1, testutil.ToFloat64(advisoryCalls.WithLabelValues(advisoryFallback)))
}

func TestTick_TargetDeletedSelfCancels(t *testing.T) {
	p := &seqProber{statuses: []int{200}}
	r, store, id := setup(t, p, &countingGenerator{}, 10*time.Millisecond)

	require.NoError(t, r.Start(context.Background(), id))
	require.NoError(t, store.Delete(context.Background(), id))

	require.Eventually(t, func() bool { return !r.IsActive(id) }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, p.count())
}

func TestTick_PersistenceFailureKeepsJob(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	tgt := &domain.Target{URL: "https://svc.example"}
	require.NoError(t, store.Add(context.Background(), tgt))
	store.failing.Store(true)

	p := &seqProber{statuses: []int{500}}
	det := detector.New(store, &countingGenerator{}, detector.PolicyTransition, zap.NewNop())
	r := New(store, p, det, Options{Interval: 10 * time.Millisecond, Logger: zap.NewNop()})
	defer func() { _ = r.Shutdown(context.Background()) }()

	require.NoError(t, r.Start(context.Background(), tgt.ID))
	require.Eventually(t, func() bool { return p.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, r.IsActive(tgt.ID))

	latest, err := store.FindLatest(context.Background(), tgt.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	store.failing.Store(false)
	require.Eventually(t, func() bool {
		latest, _ := store.FindLatest(context.Background(), tgt.ID)
		return latest != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRemove_StopsJobAndDeletes(t *testing.T) {
	r, store, id := setup(t, constProber(200), &countingGenerator{}, time.Hour)
	ctx := context.Background()
	require.NoError(t, r.Start(ctx, id))

	require.NoError(t, r.Remove(ctx, id))
	assert.False(t, r.IsActive(id))
	_, err := store.FindByID(ctx, id)
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)

	assert.ErrorIs(t, r.Remove(ctx, id), domain.ErrTargetNotFound)
}

func TestLatestResult_Sentinel(t *testing.T) {
	r, _, id := setup(t, constProber(404), &countingGenerator{}, time.Hour)
	ctx := context.Background()

	res, err := r.LatestResult(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.UnknownResult(), res)

	_, err = r.CheckNow(ctx, id)
	require.NoError(t, err)
	res, err = r.LatestResult(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Known)
	assert.Equal(t, 404, res.StatusCode)
}

func TestEndToEnd_UnreachableTarget(t *testing.T) {
	store := memory.New()
	tgt := &domain.Target{ID: "1", URL: "http://unreachable.invalid"}
	require.NoError(t, store.Add(context.Background(), tgt))

	prober := probe.NewHTTPProber(500*time.Millisecond, true)
	gen := &countingGenerator{}
	det := detector.New(store, gen, detector.PolicyTransition, zap.NewNop())
	nt := &memNotifier{}
	r := New(store, prober, det, Options{
		Interval: 20 * time.Millisecond,
		Logger:   zap.NewNop(),
		Alerter:  NewAlerter(nt, time.Second, zap.NewNop()),
	})
	ctx := context.Background()

	require.NoError(t, r.Start(ctx, "1"))
	require.NoError(t, r.Start(ctx, "1"))
	require.Eventually(t, func() bool {
		h, _ := store.ListByTarget(ctx, "1", 10)
		return len(h) >= 2
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Shutdown(ctx))

	hist, err := store.ListByTarget(ctx, "1", 50)
	require.NoError(t, err)
	first := hist[len(hist)-1]
	for _, h := range hist {
		assert.Equal(t, 500, h.StatusCode)
		assert.Equal(t, first.Advisory, h.Advisory)
	}
	assert.Equal(t, "restart the upstream service", first.Advisory)
	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Equal(t, 1, nt.count())

	latest, err := r.LatestResult(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, hist[0].CheckedAt, latest.CheckedAt)
	assert.Equal(t, 500, latest.StatusCode)
}

func TestShutdown_WaitsForInFlightTick(t *testing.T) {
	started := make(chan struct{})
	slow := probeFunc(func(ctx context.Context, url string) probe.Result {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return probe.Result{StatusCode: 200}
	})
	r, store, id := setup(t, slow, &countingGenerator{}, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.CheckNow(context.Background(), id)
		errCh <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	require.NoError(t, <-errCh)

	latest, _ := store.FindLatest(context.Background(), id)
	assert.NotNil(t, latest)

	assert.ErrorIs(t, r.Start(context.Background(), id), ErrClosed)
	_, err := r.CheckNow(context.Background(), id)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdown_AbandonsAfterGrace(t *testing.T) {
	started := make(chan struct{})
	stuck := probeFunc(func(ctx context.Context, url string) probe.Result {
		close(started)
		<-ctx.Done()
		return probe.Result{StatusCode: probe.FailureStatus, Err: ctx.Err().Error()}
	})
	r, store, id := setup(t, stuck, &countingGenerator{}, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		_, err := r.CheckNow(context.Background(), id)
		errCh <- err
	}()
	<-started
	before := testutil.ToFloat64(ticksTotal.WithLabelValues(outcomeAbandoned))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := r.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the abandoned tick must not record its cancellation as a 500
	assert.ErrorIs(t, <-errCh, context.Canceled)
	latest, err := store.FindLatest(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, latest)
	tgt, _ := store.FindByID(context.Background(), id)
	assert.Zero(t, tgt.LastStatus)
	assert.Equal(t, before+1, testutil.ToFloat64(ticksTotal.WithLabelValues(outcomeAbandoned)))
}

func TestStop_DoesNotInterruptInFlightTick(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	var calls atomic.Int32
	slow := probeFunc(func(ctx context.Context, url string) probe.Result {
		calls.Add(1)
		once.Do(func() { close(started) })
		select {
		case <-ctx.Done():
			return probe.Result{StatusCode: probe.FailureStatus, Err: ctx.Err().Error()}
		case <-time.After(60 * time.Millisecond):
			return probe.Result{StatusCode: 200, Observed: 200}
		}
	})
	r, store, id := setup(t, slow, &countingGenerator{}, 10*time.Millisecond)

	require.NoError(t, r.Start(context.Background(), id))
	<-started
	r.Stop(id)
	assert.False(t, r.IsActive(id))

	require.Eventually(t, func() bool {
		latest, _ := store.FindLatest(context.Background(), id)
		return latest != nil
	}, 2*time.Second, 5*time.Millisecond)
	latest, err := store.FindLatest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 200, latest.StatusCode)

	// no further ticks after stop
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCheckNow_QueuedCallersDoNotStarveOtherTargets(t *testing.T) {
	store := memory.New()
	busy := &domain.Target{URL: "https://busy.example"}
	idle := &domain.Target{URL: "https://idle.example"}
	require.NoError(t, store.Add(context.Background(), busy))
	require.NoError(t, store.Add(context.Background(), idle))

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	p := probeFunc(func(ctx context.Context, url string) probe.Result {
		if url == busy.URL {
			started <- struct{}{}
			<-release
		}
		return probe.Result{StatusCode: 200}
	})
	det := detector.New(store, &countingGenerator{}, detector.PolicyTransition, zap.NewNop())
	r := New(store, p, det, Options{Interval: time.Hour, MaxConcurrent: 2, Logger: zap.NewNop()})
	defer func() {
		close(release)
		_ = r.Shutdown(context.Background())
	}()

	go func() { _, _ = r.CheckNow(context.Background(), busy.ID) }()
	<-started
	// queued behind the busy target's lock
	go func() { _, _ = r.CheckNow(context.Background(), busy.ID) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rec, err := r.CheckNow(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.StatusCode)
}
