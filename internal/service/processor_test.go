package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bracketline/notify-engine/internal/delivery"
	"github.com/bracketline/notify-engine/internal/domain"
)

type fakeHandler struct {
	outcome delivery.Outcome
	err     error
	panics  bool
	calls   int
	sent    []string
}

func (f *fakeHandler) Send(_ context.Context, user *domain.User, _ domain.EventType, _ map[string]any) (delivery.Outcome, error) {
	f.calls++
	if user != nil {
		f.sent = append(f.sent, user.ID)
	}
	if f.panics {
		panic("handler exploded")
	}
	return f.outcome, f.err
}

func newTestProcessor(t *testing.T, logs *fakeNotificationLogRepo, handlers delivery.Registry, cfg ProcessorConfig) *Processor {
	t.Helper()
	p, err := NewProcessor(logs, handlers, cfg, nil)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return p
}

func pendingRow(id string, method domain.DeliveryMethod, retryCount int) *domain.NotificationLog {
	return &domain.NotificationLog{
		ID:         id,
		UserID:     "user-1",
		EventType:  domain.EventMatchScheduled,
		Method:     method,
		Status:     domain.StatusPending,
		RetryCount: retryCount,
		User:       &domain.User{ID: "user-1", Username: "player-one"},
	}
}

func seedRows(t *testing.T, logs *fakeNotificationLogRepo, rows ...*domain.NotificationLog) {
	t.Helper()
	for _, row := range rows {
		if err := logs.Create(context.Background(), row); err != nil {
			t.Fatalf("seed row %s: %v", row.ID, err)
		}
	}
}

func TestProcessor_DeliversPendingRows(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusSent}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{})

	seedRows(t, logs, pendingRow("n-1", domain.MethodDiscord, 0), pendingRow("n-2", domain.MethodDiscord, 0))

	processed, err := p.processCycle(context.Background())
	if err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}
	if handler.calls != 2 {
		t.Fatalf("handler calls = %d, want 2", handler.calls)
	}

	for _, id := range []string{"n-1", "n-2"} {
		row := logs.rows[id]
		if row.Status != domain.StatusSent {
			t.Errorf("row %s status = %s, want SENT", id, row.Status)
		}
		if row.SentAt == nil {
			t.Errorf("row %s sentAt not set", id)
		}
		if row.RetryCount != 0 {
			t.Errorf("row %s retryCount = %d, want 0", id, row.RetryCount)
		}
	}
}

func TestProcessor_DispatchesOldestRowsFirst(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusSent}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{})

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ages := map[string]time.Duration{
		"n-newest": 2 * time.Minute,
		"n-oldest": 0,
		"n-middle": time.Minute,
	}
	for _, id := range []string{"n-newest", "n-oldest", "n-middle"} {
		row := pendingRow(id, domain.MethodDiscord, 0)
		row.User = &domain.User{ID: id, Username: id}
		row.CreatedAt = base.Add(ages[id])
		seedRows(t, logs, row)
	}

	if _, err := p.processCycle(context.Background()); err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}

	want := []string{"n-oldest", "n-middle", "n-newest"}
	if len(handler.sent) != len(want) {
		t.Fatalf("dispatched %d rows, want %d", len(handler.sent), len(want))
	}
	for i, id := range want {
		if handler.sent[i] != id {
			t.Errorf("dispatch position %d = %s, want %s", i, handler.sent[i], id)
		}
	}
}

func TestProcessor_RetryOutcomeIncrementsCounter(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	message := "discord rate limit hit"
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusRetrying, ErrorMessage: message}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{})

	seedRows(t, logs, pendingRow("n-1", domain.MethodDiscord, 1))

	if _, err := p.processCycle(context.Background()); err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}

	row := logs.rows["n-1"]
	if row.Status != domain.StatusRetrying {
		t.Fatalf("status = %s, want RETRYING", row.Status)
	}
	if row.RetryCount != 2 {
		t.Errorf("retryCount = %d, want 2", row.RetryCount)
	}
	if row.ErrorMessage == nil || *row.ErrorMessage != message {
		t.Errorf("errorMessage = %v, want %q", row.ErrorMessage, message)
	}
	if row.SentAt == nil {
		t.Error("sentAt not stamped on dispatch attempt")
	}
}

func TestProcessor_MaxRetriesGuardRunsBeforeDispatch(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusSent}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{MaxRetries: 3})

	seedRows(t, logs, pendingRow("n-1", domain.MethodDiscord, 3))

	if _, err := p.processCycle(context.Background()); err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}

	if handler.calls != 0 {
		t.Fatalf("handler calls = %d, want 0: exhausted row must not reach transport", handler.calls)
	}
	row := logs.rows["n-1"]
	if row.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", row.Status)
	}
	if row.ErrorMessage == nil || *row.ErrorMessage != "exceeded max retries (3)" {
		t.Errorf("errorMessage = %v, want exceeded max retries (3)", row.ErrorMessage)
	}
	if row.SentAt == nil {
		t.Error("sentAt not stamped on the exhausted row")
	}
}

func TestProcessor_RetryingRowExhaustsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusRetrying, ErrorMessage: "still throttled"}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{MaxRetries: 3})

	seedRows(t, logs, pendingRow("n-1", domain.MethodDiscord, 0))

	// Three cycles each produce a retry outcome, the fourth trips the guard.
	for cycle := 0; cycle < 4; cycle++ {
		if _, err := p.processCycle(context.Background()); err != nil {
			t.Fatalf("cycle %d error = %v", cycle, err)
		}
	}

	if handler.calls != 3 {
		t.Fatalf("handler calls = %d, want 3", handler.calls)
	}
	row := logs.rows["n-1"]
	if row.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", row.Status)
	}
	if row.RetryCount != 3 {
		t.Errorf("retryCount = %d, want 3", row.RetryCount)
	}
}

func TestProcessor_UnknownMethodFailsWithoutRetryIncrement(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusSent}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{})

	seedRows(t, logs, pendingRow("n-1", domain.MethodEmail, 1))

	if _, err := p.processCycle(context.Background()); err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}

	row := logs.rows["n-1"]
	if row.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", row.Status)
	}
	if row.RetryCount != 1 {
		t.Errorf("retryCount = %d, want unchanged 1", row.RetryCount)
	}
	if row.ErrorMessage == nil || *row.ErrorMessage != "no delivery handler registered for method EMAIL" {
		t.Errorf("errorMessage = %v, want no delivery handler registered for method EMAIL", row.ErrorMessage)
	}
}

func TestProcessor_PanickingHandlerIsIsolatedPerRow(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	discord := &fakeHandler{panics: true}
	email := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusSent}}
	p := newTestProcessor(t, logs, delivery.Registry{
		domain.MethodDiscord: discord,
		domain.MethodEmail:   email,
	}, ProcessorConfig{})

	seedRows(t, logs, pendingRow("n-1", domain.MethodDiscord, 0), pendingRow("n-2", domain.MethodEmail, 0))

	processed, err := p.processCycle(context.Background())
	if err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}

	if got := logs.rows["n-1"].Status; got != domain.StatusFailed {
		t.Errorf("panicked row status = %s, want FAILED", got)
	}
	if logs.rows["n-1"].RetryCount != 1 {
		t.Errorf("panicked row retryCount = %d, want 1", logs.rows["n-1"].RetryCount)
	}
	if got := logs.rows["n-2"].Status; got != domain.StatusSent {
		t.Errorf("following row status = %s, want SENT", got)
	}
}

func TestProcessor_DispatchErrorIsTerminal(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{err: fmt.Errorf("connection reset")}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{})

	seedRows(t, logs, pendingRow("n-1", domain.MethodDiscord, 0))

	if _, err := p.processCycle(context.Background()); err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}

	row := logs.rows["n-1"]
	if row.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", row.Status)
	}
	if row.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", row.RetryCount)
	}
	if row.ErrorMessage == nil || *row.ErrorMessage != "connection reset" {
		t.Errorf("errorMessage = %v, want connection reset", row.ErrorMessage)
	}
}

func TestProcessor_InvalidHandlerStatusIsTerminal(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{outcome: delivery.Outcome{Status: "BOGUS"}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{})

	seedRows(t, logs, pendingRow("n-1", domain.MethodDiscord, 0))

	if _, err := p.processCycle(context.Background()); err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}

	if got := logs.rows["n-1"].Status; got != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got)
	}
}

func TestProcessor_BatchSizeCapsCycle(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusSent}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{BatchSize: 2})

	seedRows(t, logs,
		pendingRow("n-1", domain.MethodDiscord, 0),
		pendingRow("n-2", domain.MethodDiscord, 0),
		pendingRow("n-3", domain.MethodDiscord, 0),
	)

	processed, err := p.processCycle(context.Background())
	if err != nil {
		t.Fatalf("processCycle() error = %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}
	if got := logs.rows["n-3"].Status; got != domain.StatusPending {
		t.Errorf("overflow row status = %s, want PENDING", got)
	}

	processed, err = p.processCycle(context.Background())
	if err != nil {
		t.Fatalf("second processCycle() error = %v", err)
	}
	if processed != 1 {
		t.Fatalf("second cycle processed = %d, want 1", processed)
	}
}

func TestProcessor_FetchErrorDoesNotKillLoop(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	logs.fetchErr = fmt.Errorf("database unavailable")
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusSent}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{})

	// runCycle must swallow the cycle error.
	p.runCycle(context.Background())

	logs.fetchErr = nil
	seedRows(t, logs, pendingRow("n-1", domain.MethodDiscord, 0))
	p.runCycle(context.Background())

	if got := logs.rows["n-1"].Status; got != domain.StatusSent {
		t.Fatalf("status = %s, want SENT after recovery cycle", got)
	}
}

func TestProcessor_StartStopIdempotent(t *testing.T) {
	t.Parallel()

	logs := newFakeNotificationLogRepo()
	handler := &fakeHandler{outcome: delivery.Outcome{Status: domain.StatusSent}}
	p := newTestProcessor(t, logs, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{
		PollInterval: time.Hour,
	})

	p.Start()
	p.Start()

	p.Stop()
	p.Stop()

	// A fresh start after stop must work.
	p.Start()
	p.Stop()
}

func TestNewProcessor_Validation(t *testing.T) {
	t.Parallel()

	handler := &fakeHandler{}
	if _, err := NewProcessor(nil, delivery.Registry{domain.MethodDiscord: handler}, ProcessorConfig{}, nil); err == nil {
		t.Error("expected error for nil log repository")
	}
	if _, err := NewProcessor(newFakeNotificationLogRepo(), delivery.Registry{}, ProcessorConfig{}, nil); err == nil {
		t.Error("expected error for empty handler registry")
	}
}

func TestNewProcessor_Defaults(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, newFakeNotificationLogRepo(), delivery.Registry{domain.MethodDiscord: &fakeHandler{}}, ProcessorConfig{})

	if p.pollInterval != 30*time.Second {
		t.Errorf("pollInterval = %v, want 30s", p.pollInterval)
	}
	if p.batchSize != 100 {
		t.Errorf("batchSize = %d, want 100", p.batchSize)
	}
	if p.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", p.maxRetries)
	}
}
