package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
)

// run fires a tick one interval after the previous one finished. A slow
// tick delays the next one instead of stacking up.
func (r *Registry) run(ctx context.Context, id domain.TargetID, j *job) {
	defer r.wg.Done()

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := r.acquire(ctx, id); err != nil {
			// stopped while waiting for a slot
			return
		}
		_, err := r.tick(r.base, id)
		r.release(id)

		if errors.Is(err, domain.ErrTargetNotFound) {
			r.mu.Lock()
			r.removeLocked(id, j)
			r.mu.Unlock()
			r.log.Info("monitor_self_cancelled", zap.String("target_id", string(id)))
			return
		}
		timer.Reset(r.interval)
	}
}

// tick probes the target, decides the advisory and records both the history
// entry and the target's last status in one store transaction. The caller
// holds id's lock.
func (r *Registry) tick(ctx context.Context, id domain.TargetID) (*domain.HistoryRecord, error) {
	start := time.Now()
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	t, err := r.store.FindByID(ctx, id)
	if err != nil {
		r.tickFailed(id, outcomeNotFound, err)
		return nil, err
	}

	res := r.prober.Probe(ctx, t.URL)

	dec, err := r.detector.Decide(ctx, id, res.StatusCode)
	if err != nil {
		r.tickFailed(id, outcomeHistoryError, err)
		return nil, err
	}
	switch {
	case dec.Fallback:
		advisoryCalls.WithLabelValues(advisoryFallback).Inc()
	case dec.Generated:
		advisoryCalls.WithLabelValues(advisoryGenerated).Inc()
	default:
		advisoryCalls.WithLabelValues(advisoryReused).Inc()
	}

	// abandoned by Shutdown; the probe outcome is not a real observation
	if err := ctx.Err(); err != nil {
		r.tickFailed(id, outcomeAbandoned, err)
		return nil, err
	}

	now := time.Now().UTC()
	rec := &domain.HistoryRecord{
		TargetID:   id,
		StatusCode: res.StatusCode,
		LatencyMS:  res.LatencyMS,
		Advisory:   dec.Advisory,
		CheckedAt:  now,
	}
	t.LastStatus = res.StatusCode
	t.LastCheckedAt = &now
	if err := r.store.RecordCheck(ctx, rec, t); err != nil {
		if errors.Is(err, domain.ErrTargetNotFound) {
			r.tickFailed(id, outcomeNotFound, err)
			return nil, err
		}
		err = fmt.Errorf("record check: %w", err)
		r.tickFailed(id, outcomePersistError, err)
		return nil, err
	}
	ticksTotal.WithLabelValues(outcomeRecorded).Inc()

	r.log.Debug("tick_recorded",
		zap.String("target_id", string(id)),
		zap.String("url", t.URL),
		zap.Int("status", res.StatusCode),
		zap.Int("observed", res.Observed),
		zap.Float64("latency_ms", res.LatencyMS),
		zap.Bool("transition", dec.Transition),
		zap.String("probe_error", res.Err),
	)

	if dec.Transition && r.alerter != nil {
		r.alerter.Notify(ctx, t, rec, dec.Previous)
	}
	return rec, nil
}

func (r *Registry) tickFailed(id domain.TargetID, outcome string, err error) {
	ticksTotal.WithLabelValues(outcome).Inc()
	r.log.Warn("tick_failed",
		zap.String("target_id", string(id)),
		zap.String("outcome", outcome),
		zap.Error(err),
	)
}
