package notify

import (
	"context"
	"errors"

	"go.uber.org/multierr"
)

// ErrDisabled is returned by a notifier that is missing its credentials.
var ErrDisabled = errors.New("notify: notifier not configured")

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi fans out to every notifier and reports all failures together.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}

// Join drops disabled notifiers and returns nil when none is left.
func Join(ns ...Notifier) Notifier {
	var m Multi
	for _, n := range ns {
		if n != nil {
			m = append(m, n)
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
