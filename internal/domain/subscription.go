package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventType identifies the domain event a user can subscribe to.
type EventType string

const (
	EventMatchScheduled      EventType = "MATCH_SCHEDULED"
	EventMatchCanceled       EventType = "MATCH_CANCELED"
	EventMatchResult         EventType = "MATCH_RESULT"
	EventTournamentStarted   EventType = "TOURNAMENT_STARTED"
	EventTournamentCompleted EventType = "TOURNAMENT_COMPLETED"
	EventOrgMemberJoined     EventType = "ORG_MEMBER_JOINED"
)

func (e EventType) String() string { return string(e) }

func (e EventType) IsValid() bool {
	switch e {
	case EventMatchScheduled, EventMatchCanceled, EventMatchResult,
		EventTournamentStarted, EventTournamentCompleted, EventOrgMemberJoined:
		return true
	}
	return false
}

func ParseEventTypeFromString(s string) (EventType, error) {
	e := EventType(strings.ToUpper(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("%w: invalid event type %q", ErrValidation, s)
	}
	return e, nil
}

// DeliveryMethod identifies the transport a subscription is delivered over.
type DeliveryMethod string

const (
	MethodDiscord DeliveryMethod = "DISCORD"
	MethodEmail   DeliveryMethod = "EMAIL"
)

func (m DeliveryMethod) String() string { return string(m) }

func (m DeliveryMethod) IsValid() bool {
	switch m {
	case MethodDiscord, MethodEmail:
		return true
	}
	return false
}

func ParseDeliveryMethodFromString(s string) (DeliveryMethod, error) {
	m := DeliveryMethod(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery method %q", ErrValidation, s)
	}
	return m, nil
}

// Subscription is a user's standing request to be notified about one event
// type over one delivery method. A nil OrganizationID means the subscription
// is global and matches the event regardless of which organization raised it;
// a non-nil OrganizationID restricts matching to that organization only.
// The tuple (user, event type, method, organization) is unique.
type Subscription struct {
	ID             string
	UserID         string
	EventType      EventType
	Method         DeliveryMethod
	OrganizationID *string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Subscription) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !s.EventType.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", ErrValidation, s.EventType)
	}
	if !s.Method.IsValid() {
		return fmt.Errorf("%w: invalid delivery method %q", ErrValidation, s.Method)
	}
	return nil
}

// Matches reports whether an event of the given type raised by the given
// organization falls inside this subscription's scope. Both enqueue paths
// (single-user and broadcast) must agree with this rule.
func (s *Subscription) Matches(eventType EventType, organizationID *string) bool {
	if !s.IsActive || s.EventType != eventType {
		return false
	}
	if s.OrganizationID == nil {
		return true
	}
	return organizationID != nil && *s.OrganizationID == *organizationID
}
