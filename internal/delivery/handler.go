package delivery

import (
	"context"

	"github.com/bracketline/notify-engine/internal/domain"
)

// Outcome is the normalized result of one delivery attempt. Handlers classify
// all transport failures into a status here and never let them escape as
// errors; a non-nil error from Send means something unexpected broke outside
// the transport-error taxonomy.
type Outcome struct {
	Status       domain.DeliveryStatus
	ErrorMessage string
}

// Handler turns an event into a transport-specific message and sends it to
// the given user.
type Handler interface {
	Send(ctx context.Context, user *domain.User, eventType domain.EventType, payload map[string]any) (Outcome, error)
}

// Registry maps each delivery method to its handler. Built once at
// construction; the processor fails rows whose method has no entry.
type Registry map[domain.DeliveryMethod]Handler

func NewRegistry(discord, email Handler) Registry {
	r := make(Registry, 2)
	if discord != nil {
		r[domain.MethodDiscord] = discord
	}
	if email != nil {
		r[domain.MethodEmail] = email
	}
	return r
}

func failed(message string) Outcome {
	return Outcome{Status: domain.StatusFailed, ErrorMessage: message}
}

func retrying(message string) Outcome {
	return Outcome{Status: domain.StatusRetrying, ErrorMessage: message}
}

func sent() Outcome {
	return Outcome{Status: domain.StatusSent}
}
