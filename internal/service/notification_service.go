package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bracketline/notify-engine/internal/domain"
	"github.com/bracketline/notify-engine/internal/observability"
	"github.com/bracketline/notify-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationService owns subscription management and the two enqueue entry
// points. Enqueueing only creates PENDING log rows; delivery concerns never
// fail the caller and are observable later through the log.
type NotificationService struct {
	subscriptions repository.SubscriptionRepository
	logs          repository.NotificationLogRepository
	logger        *zap.Logger
}

func NewNotificationService(
	subscriptions repository.SubscriptionRepository,
	logs repository.NotificationLogRepository,
	logger *zap.Logger,
) (*NotificationService, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		subscriptions: subscriptions,
		logs:          logs,
		logger:        logger,
	}, nil
}

// Subscribe is idempotent: an existing subscription for the exact tuple is
// returned unchanged (reactivated if it had been toggled off), otherwise a
// new active row is created.
func (s *NotificationService) Subscribe(
	ctx context.Context,
	userID string,
	eventType domain.EventType,
	method domain.DeliveryMethod,
	organizationID *string,
) (*domain.Subscription, error) {
	subscription := &domain.Subscription{
		ID:             uuid.NewString(),
		UserID:         strings.TrimSpace(userID),
		EventType:      eventType,
		Method:         method,
		OrganizationID: normalizeOptionalID(organizationID),
		IsActive:       true,
	}
	if err := subscription.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.subscriptions.FindByTuple(ctx, subscription.UserID, eventType, method, subscription.OrganizationID)
	if err == nil {
		if !existing.IsActive {
			if err := s.subscriptions.SetActive(ctx, existing.ID, true); err != nil {
				return nil, err
			}
			existing.IsActive = true
		}
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if err := s.subscriptions.Create(ctx, subscription); err != nil {
		// Concurrent subscribe for the same tuple: the unique index wins
		// the race, the earlier row is the answer.
		if isUniqueViolationError(err) {
			return s.subscriptions.FindByTuple(ctx, subscription.UserID, eventType, method, subscription.OrganizationID)
		}
		return nil, err
	}

	return subscription, nil
}

// Unsubscribe removes the user's active subscription for the tuple and
// reports whether a match was found.
func (s *NotificationService) Unsubscribe(
	ctx context.Context,
	userID string,
	eventType domain.EventType,
	method domain.DeliveryMethod,
	organizationID *string,
) (bool, error) {
	existing, err := s.subscriptions.FindByTuple(ctx, strings.TrimSpace(userID), eventType, method, normalizeOptionalID(organizationID))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !existing.IsActive {
		return false, nil
	}

	if err := s.subscriptions.Delete(ctx, existing.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *NotificationService) GetUserSubscriptions(ctx context.Context, userID string, organizationID *string) ([]domain.Subscription, error) {
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.subscriptions.ListByUser(ctx, trimmedUserID, normalizeOptionalID(organizationID))
}

// ToggleSubscription flips the active flag. The subscription must belong to
// the calling user; anything else is ErrForbidden.
func (s *NotificationService) ToggleSubscription(ctx context.Context, id string, userID string) (*domain.Subscription, error) {
	subscription, err := s.subscriptions.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if subscription.UserID != strings.TrimSpace(userID) {
		return nil, fmt.Errorf("%w: subscription belongs to another user", domain.ErrForbidden)
	}

	if err := s.subscriptions.SetActive(ctx, subscription.ID, !subscription.IsActive); err != nil {
		return nil, err
	}
	subscription.IsActive = !subscription.IsActive

	return subscription, nil
}

// QueueNotification enqueues one delivery attempt per matching subscription
// of a single known user. Matching happens in memory after one single-user
// query: per-user subscription counts are small, so this beats a
// parameterized cross-user query.
func (s *NotificationService) QueueNotification(
	ctx context.Context,
	userID string,
	eventType domain.EventType,
	payload map[string]any,
	organizationID *string,
) ([]string, error) {
	trimmedUserID := strings.TrimSpace(userID)
	if trimmedUserID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: invalid event type %q", domain.ErrValidation, eventType)
	}

	subscriptions, err := s.subscriptions.ListByUser(ctx, trimmedUserID, nil)
	if err != nil {
		return nil, err
	}

	orgID := normalizeOptionalID(organizationID)
	rows := make([]*domain.NotificationLog, 0, len(subscriptions))
	for i := range subscriptions {
		subscription := subscriptions[i]
		if !subscription.Matches(eventType, orgID) {
			continue
		}
		rows = append(rows, newPendingLogRow(subscription.UserID, eventType, subscription.Method, payload))
	}

	return s.enqueue(ctx, eventType, rows)
}

// QueueBroadcastNotification fans an event out to every matching subscriber.
// Scoping happens at the storage layer here, but must agree row for row with
// the in-memory rule in Subscription.Matches.
func (s *NotificationService) QueueBroadcastNotification(
	ctx context.Context,
	eventType domain.EventType,
	payload map[string]any,
	organizationID *string,
) ([]string, error) {
	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: invalid event type %q", domain.ErrValidation, eventType)
	}

	subscriptions, err := s.subscriptions.ListActiveForEvent(ctx, eventType, normalizeOptionalID(organizationID))
	if err != nil {
		return nil, err
	}

	rows := make([]*domain.NotificationLog, 0, len(subscriptions))
	for i := range subscriptions {
		subscription := subscriptions[i]
		rows = append(rows, newPendingLogRow(subscription.UserID, eventType, subscription.Method, payload))
	}

	return s.enqueue(ctx, eventType, rows)
}

// MarkNotificationSent closes out a log row for callers that deliver
// out-of-band: SENT when no error message is given, FAILED otherwise. Rows
// already in a terminal state are left untouched.
func (s *NotificationService) MarkNotificationSent(ctx context.Context, id string, errorMessage *string) (bool, error) {
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return false, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	status := domain.StatusSent
	message := normalizeOptionalID(errorMessage)
	if message != nil {
		status = domain.StatusFailed
	}

	return s.logs.CloseOut(ctx, trimmedID, status, message, time.Now().UTC())
}

func (s *NotificationService) GetNotification(ctx context.Context, id string) (*domain.NotificationLog, error) {
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.logs.GetByID(ctx, trimmedID)
}

func (s *NotificationService) ListNotifications(ctx context.Context, params repository.ListParams) ([]domain.NotificationLog, int64, error) {
	return s.logs.List(ctx, params)
}

func (s *NotificationService) enqueue(ctx context.Context, eventType domain.EventType, rows []*domain.NotificationLog) ([]string, error) {
	if len(rows) == 0 {
		return []string{}, nil
	}

	if err := s.logs.CreateBatch(ctx, rows); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	observability.ContextLogger(s.logger, ctx).Debug("notifications enqueued",
		zap.String("eventType", eventType.String()),
		zap.Int("count", len(ids)),
	)

	return ids, nil
}

func newPendingLogRow(userID string, eventType domain.EventType, method domain.DeliveryMethod, payload map[string]any) *domain.NotificationLog {
	return &domain.NotificationLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		Method:    method,
		EventData: payload,
		Status:    domain.StatusPending,
	}
}

func normalizeOptionalID(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
