// Package detector decides which advisory text goes on a new history record.
// The advisory generator is only consulted when the target's status changed
// since its latest record; otherwise the previous advisory is carried over.
package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeadvisor/internal/advisory"
	"github.com/hamed0406/uptimeadvisor/internal/domain"
)

type Policy string

const (
	// PolicyTransition generates only when the status differs from the
	// latest record (or there is none).
	PolicyTransition Policy = "transition"
	// PolicyEveryFailure also generates on every non-200 check.
	PolicyEveryFailure Policy = "every_failure"
)

const DefaultTimeout = 15 * time.Second

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyTransition:
		return PolicyTransition, nil
	case PolicyEveryFailure:
		return PolicyEveryFailure, nil
	default:
		return "", fmt.Errorf("unknown advisory policy %q", s)
	}
}

type LatestReader interface {
	FindLatest(ctx context.Context, id domain.TargetID) (*domain.HistoryRecord, error)
}

type Decision struct {
	Advisory   string
	Transition bool
	// Generated is true when the generator was called, Fallback when that
	// call failed and FallbackText was used.
	Generated bool
	Fallback  bool
	Err       error
	Previous  *domain.HistoryRecord
}

type Detector struct {
	History   LatestReader
	Generator advisory.Generator
	Policy    Policy
	Timeout   time.Duration
	Logger    *zap.Logger
}

func New(history LatestReader, gen advisory.Generator, policy Policy, logger *zap.Logger) *Detector {
	if policy == "" {
		policy = PolicyTransition
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		History:   history,
		Generator: gen,
		Policy:    policy,
		Timeout:   DefaultTimeout,
		Logger:    logger,
	}
}

// Decide reads the latest record for id and picks the advisory for status.
// Only a history read failure is returned as an error; generator failures
// become FallbackText.
func (d *Detector) Decide(ctx context.Context, id domain.TargetID, status int) (Decision, error) {
	prev, err := d.History.FindLatest(ctx, id)
	if err != nil {
		return Decision{}, fmt.Errorf("read latest history: %w", err)
	}

	dec := Decision{
		Previous:   prev,
		Transition: prev == nil || prev.StatusCode != status,
	}
	if !d.shouldGenerate(dec.Transition, status) {
		dec.Advisory = prev.Advisory
		return dec, nil
	}

	dec.Generated = true
	text, err := d.generate(ctx, status)
	if err != nil {
		d.Logger.Warn("advisory_fallback",
			zap.String("target_id", string(id)),
			zap.Int("status", status),
			zap.Error(err),
		)
		dec.Advisory = advisory.FallbackText
		dec.Fallback = true
		dec.Err = err
		return dec, nil
	}
	dec.Advisory = text
	return dec, nil
}

func (d *Detector) shouldGenerate(transition bool, status int) bool {
	if transition {
		return true
	}
	return d.Policy == PolicyEveryFailure && status != 200
}

type completion struct {
	text string
	err  error
}

// generate bounds the call even when the generator ignores ctx.
func (d *Detector) generate(ctx context.Context, status int) (string, error) {
	if d.Generator == nil {
		return "", advisory.ErrDisabled
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	ch := make(chan completion, 1)
	go func() {
		text, err := d.Generator.Generate(ctx, status)
		ch <- completion{text: text, err: err}
	}()

	select {
	case c := <-ch:
		if c.err != nil {
			return "", c.err
		}
		if strings.TrimSpace(c.text) == "" {
			return "", advisory.ErrEmpty
		}
		return strings.TrimSpace(c.text), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
