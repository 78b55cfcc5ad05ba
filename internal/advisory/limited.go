package advisory

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limited guards a Generator with a call-rate budget and a hard deadline.
// A call over budget fails immediately with ErrRateLimited instead of
// queueing, and a call that outlives Timeout is abandoned even if the inner
// generator ignores its context.
type Limited struct {
	Inner   Generator
	Limiter *rate.Limiter
	Timeout time.Duration
}

// NewLimited allows perMinute calls per minute with the given burst.
// perMinute <= 0 disables the budget.
func NewLimited(inner Generator, perMinute, burst int, timeout time.Duration) *Limited {
	l := &Limited{Inner: inner, Timeout: timeout}
	if perMinute > 0 {
		if burst < 1 {
			burst = 1
		}
		l.Limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
	}
	return l
}

func (l *Limited) Generate(ctx context.Context, statusCode int) (string, error) {
	return l.call(ctx, func(ctx context.Context) (string, error) {
		return l.Inner.Generate(ctx, statusCode)
	})
}

func (l *Limited) Complete(ctx context.Context, prompt string) (string, error) {
	return l.call(ctx, func(ctx context.Context) (string, error) {
		return l.Inner.Complete(ctx, prompt)
	})
}

type completion struct {
	text string
	err  error
}

func (l *Limited) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	if l.Limiter != nil && !l.Limiter.Allow() {
		return "", ErrRateLimited
	}
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	ch := make(chan completion, 1)
	go func() {
		text, err := fn(ctx)
		ch <- completion{text: text, err: err}
	}()

	select {
	case c := <-ch:
		return c.text, c.err
	case <-ctx.Done():
		return "", fmt.Errorf("advisory: %w", ctx.Err())
	}
}
