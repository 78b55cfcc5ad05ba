package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimeadvisor/internal/domain"
)

// ---- shared helpers ----

type memNotifier struct {
	mu     sync.Mutex
	titles []string
	texts  []string
	err    error
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
	m.texts = append(m.texts, text)
	return m.err
}

func (m *memNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.titles)
}

func rec(status int) *domain.HistoryRecord {
	return &domain.HistoryRecord{StatusCode: status, Advisory: "advice", CheckedAt: time.Now()}
}

// ---- tests ----

func TestShouldAlert(t *testing.T) {
	cases := []struct {
		name string
		prev *domain.HistoryRecord
		cur  *domain.HistoryRecord
		want bool
	}{
		{"first check healthy", nil, rec(200), false},
		{"first check down", nil, rec(500), true},
		{"still down", rec(500), rec(500), false},
		{"went down", rec(200), rec(503), true},
		{"recovered", rec(503), rec(200), true},
		{"down code changed", rec(500), rec(404), true},
	}
	for _, tc := range cases {
		if got := ShouldAlert(tc.prev, tc.cur); got != tc.want {
			t.Fatalf("%s: ShouldAlert=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestAlerter_Message(t *testing.T) {
	tgt := &domain.Target{ID: "a", Name: "shop", URL: "https://shop.example"}

	title, text := Message(tgt, rec(500), rec(200))
	if !strings.Contains(title, "DOWN") {
		t.Fatalf("unexpected title %q", title)
	}
	for _, want := range []string{"shop", "https://shop.example", "HTTP: 500 (was 200)", "Advisory: advice"} {
		if !strings.Contains(text, want) {
			t.Fatalf("text %q missing %q", text, want)
		}
	}

	title, _ = Message(tgt, rec(200), rec(500))
	if !strings.Contains(title, "RECOVERED") {
		t.Fatalf("unexpected title %q", title)
	}

	_, text = Message(&domain.Target{URL: "https://x.example"}, rec(500), nil)
	if !strings.Contains(text, "Target: https://x.example") || !strings.Contains(text, "(was none)") {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestAlerter_SendFailureIsSwallowed(t *testing.T) {
	nt := &memNotifier{err: errors.New("webhook down")}
	al := NewAlerter(nt, time.Second, zap.NewNop())
	al.Notify(context.Background(), &domain.Target{ID: "a"}, rec(500), nil)
	if nt.count() != 1 {
		t.Fatalf("expected one send attempt, got %d", nt.count())
	}
}

func TestNewAlerter_NilNotifier(t *testing.T) {
	if al := NewAlerter(nil, 0, nil); al != nil {
		t.Fatalf("expected nil alerter")
	}
	// nil alerter is safe to call
	var al *Alerter
	al.Notify(context.Background(), &domain.Target{}, rec(500), nil)
}
