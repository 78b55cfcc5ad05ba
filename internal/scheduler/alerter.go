package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
	"github.com/hamed0406/uptimeadvisor/internal/notify"
)

const DefaultAlertTimeout = 10 * time.Second

// Alerter sends a best-effort notification when a target changes state.
type Alerter struct {
	notifier notify.Notifier
	timeout  time.Duration
	log      *zap.Logger
}

func NewAlerter(n notify.Notifier, timeout time.Duration, log *zap.Logger) *Alerter {
	if n == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultAlertTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Alerter{notifier: n, timeout: timeout, log: log}
}

// ShouldAlert: the first check of a target only alerts when it is down.
func ShouldAlert(prev *domain.HistoryRecord, rec *domain.HistoryRecord) bool {
	if prev == nil {
		return !domain.Healthy(rec.StatusCode)
	}
	return prev.StatusCode != rec.StatusCode
}

func (a *Alerter) Notify(ctx context.Context, t *domain.Target, rec, prev *domain.HistoryRecord) {
	if a == nil || !ShouldAlert(prev, rec) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	title, text := Message(t, rec, prev)
	if err := a.notifier.Send(ctx, title, text); err != nil {
		a.log.Warn("alert_send_failed",
			zap.String("target_id", string(t.ID)),
			zap.Error(err),
		)
		return
	}
	a.log.Info("alert_sent", zap.String("target_id", string(t.ID)), zap.Int("status", rec.StatusCode))
}

func Message(t *domain.Target, rec, prev *domain.HistoryRecord) (string, string) {
	title := "🔴 Target DOWN"
	if domain.Healthy(rec.StatusCode) {
		title = "🟢 Target RECOVERED"
		if prev != nil && domain.Healthy(prev.StatusCode) {
			title = "🟡 Target status changed"
		}
	}

	name := t.Name
	if name == "" {
		name = t.URL
	}
	prevTxt := "none"
	if prev != nil {
		prevTxt = fmt.Sprintf("%d", prev.StatusCode)
	}
	text := fmt.Sprintf(
		"Target: %s\nURL: %s\nHTTP: %d (was %s)\nLatency: %.0f ms\nAdvisory: %s\nChecked: %s",
		name, t.URL, rec.StatusCode, prevTxt, rec.LatencyMS, rec.Advisory, rec.CheckedAt.Format(time.RFC3339),
	)
	return title, text
}
