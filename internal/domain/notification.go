package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus represents the lifecycle state of a delivery attempt.
type DeliveryStatus string

const (
	StatusPending  DeliveryStatus = "PENDING"
	StatusSent     DeliveryStatus = "SENT"
	StatusFailed   DeliveryStatus = "FAILED"
	StatusRetrying DeliveryStatus = "RETRYING"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the row's lifecycle. Terminal
// rows are never mutated again.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// NotificationLog is one delivery attempt: a row created at enqueue time and
// owned by the processor from then on. Rows are never deleted; they double as
// the delivery audit trail.
type NotificationLog struct {
	ID           string
	UserID       string
	EventType    EventType
	Method       DeliveryMethod
	EventData    map[string]any
	Status       DeliveryStatus
	ErrorMessage *string
	RetryCount   int
	CreatedAt    time.Time
	SentAt       *time.Time
	UpdatedAt    time.Time

	// User is the owning user, preloaded for dispatch.
	User *User
}

func (n *NotificationLog) Validate() error {
	if strings.TrimSpace(n.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !n.EventType.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", ErrValidation, n.EventType)
	}
	if !n.Method.IsValid() {
		return fmt.Errorf("%w: invalid delivery method %q", ErrValidation, n.Method)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid delivery status %q", ErrValidation, n.Status)
	}
	return nil
}
