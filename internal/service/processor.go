package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bracketline/notify-engine/internal/delivery"
	"github.com/bracketline/notify-engine/internal/domain"
	"github.com/bracketline/notify-engine/internal/observability"
	"github.com/bracketline/notify-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultBatchSize    = 100
	defaultMaxRetries   = 3
)

// Failure reasons used for metrics labels.
const (
	failureReasonMaxRetries = "max_retries"
	failureReasonNoHandler  = "no_handler"
	failureReasonDispatch   = "dispatch_error"
	failureReasonTransport  = "transport"
)

type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

// Processor is the single background consumer of the notification log. It
// polls for PENDING and RETRYING rows, enforces the retry state machine, and
// hands each row to the delivery handler for its method.
//
// Exactly one processor instance may run per deployment: there is no
// claim/lease step before dispatch, so two concurrent instances can fetch
// the same row and double-deliver it.
type Processor struct {
	logs     repository.NotificationLogRepository
	handlers delivery.Registry
	logger   *zap.Logger
	metrics  *observability.Metrics

	pollInterval time.Duration
	batchSize    int
	maxRetries   int
	now          func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewProcessor(
	logs repository.NotificationLogRepository,
	handlers delivery.Registry,
	cfg ProcessorConfig,
	logger *zap.Logger,
) (*Processor, error) {
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("at least one delivery handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Processor{
		logs:         logs,
		handlers:     handlers,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxRetries:   maxRetries,
		now:          time.Now,
	}, nil
}

func (p *Processor) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Start spawns the background loop. Calling it while already running is a
// logged no-op.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Info("notification processor already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.running = true

	go p.run(ctx, done)

	p.logger.Info("notification processor started",
		zap.Duration("pollInterval", p.pollInterval),
		zap.Int("batchSize", p.batchSize),
		zap.Int("maxRetries", p.maxRetries),
	)
}

// Stop cancels the loop, interrupting the poll sleep or an in-flight cycle,
// and waits for it to exit. It is a no-op when the processor is not running.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done

	p.mu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	p.logger.Info("notification processor stopped")
}

func (p *Processor) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		p.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.pollInterval):
		}
	}
}

// runCycle shields the loop from a failing cycle: errors and panics are
// logged and the loop keeps polling.
func (p *Processor) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("processing cycle panicked", zap.Any("panic", r))
		}
	}()

	start := p.now()
	processed, err := p.processCycle(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.Error("processing cycle failed", zap.Error(err))
		return
	}

	if p.metrics != nil {
		p.metrics.ObserveProcessorCycle(p.now().Sub(start), processed)
	}
}

func (p *Processor) processCycle(ctx context.Context) (int, error) {
	rows, err := p.logs.FetchDispatchable(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch dispatchable rows: %w", err)
	}

	// Strictly sequential: a slow transport call delays the rest of the
	// batch, which also self-throttles against transport rate limits.
	for i := range rows {
		p.dispatchRow(ctx, &rows[i])
	}

	return len(rows), nil
}

// dispatchRow drives one row through the state machine. Every exit persists
// the row; a failure to persist is logged and must not disturb rows already
// saved or still queued in the same cycle.
func (p *Processor) dispatchRow(ctx context.Context, row *domain.NotificationLog) {
	methodLabel := strings.ToLower(row.Method.String())

	// The max-retry guard runs before any dispatch so a permanently broken
	// row can never reach the transport again.
	if row.RetryCount >= p.maxRetries {
		p.finalizeRow(ctx, row, domain.StatusFailed, fmt.Sprintf("exceeded max retries (%d)", p.maxRetries))
		if p.metrics != nil {
			p.metrics.IncDeliveryFailed(methodLabel, failureReasonMaxRetries)
		}
		return
	}

	handler, ok := p.handlers[row.Method]
	if !ok {
		// Configuration error: terminal immediately, retry count untouched.
		p.finalizeRow(ctx, row, domain.StatusFailed, fmt.Sprintf("no delivery handler registered for method %s", row.Method))
		if p.metrics != nil {
			p.metrics.IncDeliveryFailed(methodLabel, failureReasonNoHandler)
		}
		return
	}

	outcome, err := p.send(ctx, handler, row)
	if err != nil {
		// Unexpected dispatch failure: terminal for this row, but the
		// retry counter still moves so the audit trail shows the attempt.
		row.RetryCount++
		p.logger.Error("notification dispatch failed unexpectedly",
			zap.String("notificationId", row.ID),
			zap.String("method", methodLabel),
			zap.Error(err),
		)
		p.finalizeRow(ctx, row, domain.StatusFailed, err.Error())
		if p.metrics != nil {
			p.metrics.IncDeliveryFailed(methodLabel, failureReasonDispatch)
		}
		return
	}

	if outcome.Status == domain.StatusRetrying {
		row.RetryCount++
	}
	p.finalizeRow(ctx, row, outcome.Status, outcome.ErrorMessage)

	if p.metrics == nil {
		return
	}
	switch outcome.Status {
	case domain.StatusSent:
		p.metrics.IncDelivered(methodLabel)
	case domain.StatusRetrying:
		p.metrics.IncRetryScheduled(methodLabel)
	case domain.StatusFailed:
		p.metrics.IncDeliveryFailed(methodLabel, failureReasonTransport)
	}
}

// send guards the handler call so a panicking handler is reduced to an error
// for this row only.
func (p *Processor) send(ctx context.Context, handler delivery.Handler, row *domain.NotificationLog) (outcome delivery.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()

	start := p.now()
	outcome, err = handler.Send(ctx, row.User, row.EventType, row.EventData)
	if p.metrics != nil {
		p.metrics.ObserveSendDuration(strings.ToLower(row.Method.String()), p.now().Sub(start))
	}

	if err == nil && !outcome.Status.IsValid() {
		err = fmt.Errorf("handler returned invalid status %q", outcome.Status)
	}
	return outcome, err
}

func (p *Processor) finalizeRow(ctx context.Context, row *domain.NotificationLog, status domain.DeliveryStatus, message string) {
	row.Status = status
	if trimmed := strings.TrimSpace(message); trimmed == "" {
		row.ErrorMessage = nil
	} else {
		row.ErrorMessage = &trimmed
	}
	sentAt := p.now().UTC()
	row.SentAt = &sentAt

	if err := p.logs.Update(ctx, row); err != nil {
		p.logger.Error("failed to persist delivery outcome",
			zap.String("notificationId", row.ID),
			zap.String("status", status.String()),
			zap.Error(err),
		)
	}
}
