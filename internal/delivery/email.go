package delivery

import (
	"context"

	"github.com/bracketline/notify-engine/internal/domain"
)

// EmailHandler is registered for the EMAIL method but has no transport yet.
// It fails rows explicitly instead of silently succeeding, so email
// subscriptions surface as FAILED in the log rather than as ghost deliveries.
type EmailHandler struct{}

func NewEmailHandler() *EmailHandler {
	return &EmailHandler{}
}

func (h *EmailHandler) Send(ctx context.Context, user *domain.User, eventType domain.EventType, payload map[string]any) (Outcome, error) {
	return failed("email delivery is not implemented"), nil
}
