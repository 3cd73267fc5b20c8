package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bracketline/notify-engine/internal/domain"
)

type SubscriptionService interface {
	Subscribe(ctx context.Context, userID string, eventType domain.EventType, method domain.DeliveryMethod, organizationID *string) (*domain.Subscription, error)
	Unsubscribe(ctx context.Context, userID string, eventType domain.EventType, method domain.DeliveryMethod, organizationID *string) (bool, error)
	GetUserSubscriptions(ctx context.Context, userID string, organizationID *string) ([]domain.Subscription, error)
	ToggleSubscription(ctx context.Context, id string, userID string) (*domain.Subscription, error)
}

type SubscriptionHandler struct {
	service SubscriptionService
}

func NewSubscriptionHandler(service SubscriptionService) (*SubscriptionHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("subscription service is required")
	}
	return &SubscriptionHandler{service: service}, nil
}

func RegisterSubscriptionRoutes(router fiber.Router, service SubscriptionService) error {
	h, err := NewSubscriptionHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/subscriptions", h.Subscribe)
	v1.Delete("/subscriptions", h.Unsubscribe)
	v1.Get("/users/:userId/subscriptions", h.ListUserSubscriptions)
	v1.Post("/subscriptions/:id/toggle", h.ToggleSubscription)

	return nil
}

type subscriptionRequest struct {
	UserID         string  `json:"userId"`
	EventType      string  `json:"eventType"`
	Method         string  `json:"method"`
	OrganizationID *string `json:"organizationId"`
}

type toggleSubscriptionRequest struct {
	UserID string `json:"userId"`
}

type subscriptionResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	EventType      string    `json:"eventType"`
	Method         string    `json:"method"`
	OrganizationID *string   `json:"organizationId,omitempty"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

func (h *SubscriptionHandler) Subscribe(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType, method, err := parseSubscriptionTuple(req)
	if err != nil {
		return toHTTPError(err)
	}

	subscription, err := h.service.Subscribe(c.Context(), req.UserID, eventType, method, req.OrganizationID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toSubscriptionResponse(subscription))
}

func (h *SubscriptionHandler) Unsubscribe(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType, method, err := parseSubscriptionTuple(req)
	if err != nil {
		return toHTTPError(err)
	}

	removed, err := h.service.Unsubscribe(c.Context(), req.UserID, eventType, method, req.OrganizationID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"removed": removed,
	})
}

func (h *SubscriptionHandler) ListUserSubscriptions(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))

	var organizationID *string
	if rawOrgID := strings.TrimSpace(c.Query("organizationId")); rawOrgID != "" {
		organizationID = &rawOrgID
	}

	subscriptions, err := h.service.GetUserSubscriptions(c.Context(), userID, organizationID)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]subscriptionResponse, 0, len(subscriptions))
	for i := range subscriptions {
		responses = append(responses, toSubscriptionResponse(&subscriptions[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

func (h *SubscriptionHandler) ToggleSubscription(c *fiber.Ctx) error {
	var req toggleSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	subscription, err := h.service.ToggleSubscription(c.Context(), id, req.UserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toSubscriptionResponse(subscription))
}

func parseSubscriptionTuple(req subscriptionRequest) (domain.EventType, domain.DeliveryMethod, error) {
	eventType, err := domain.ParseEventTypeFromString(req.EventType)
	if err != nil {
		return "", "", err
	}

	method, err := domain.ParseDeliveryMethodFromString(req.Method)
	if err != nil {
		return "", "", err
	}

	return eventType, method, nil
}

func toSubscriptionResponse(s *domain.Subscription) subscriptionResponse {
	if s == nil {
		return subscriptionResponse{}
	}

	return subscriptionResponse{
		ID:             s.ID,
		UserID:         s.UserID,
		EventType:      s.EventType.String(),
		Method:         s.Method.String(),
		OrganizationID: s.OrganizationID,
		IsActive:       s.IsActive,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
