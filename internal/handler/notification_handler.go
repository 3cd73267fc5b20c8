package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bracketline/notify-engine/internal/domain"
	"github.com/bracketline/notify-engine/internal/observability"
	"github.com/bracketline/notify-engine/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type NotificationService interface {
	QueueNotification(ctx context.Context, userID string, eventType domain.EventType, payload map[string]any, organizationID *string) ([]string, error)
	QueueBroadcastNotification(ctx context.Context, eventType domain.EventType, payload map[string]any, organizationID *string) ([]string, error)
	MarkNotificationSent(ctx context.Context, id string, errorMessage *string) (bool, error)
	GetNotification(ctx context.Context, id string) (*domain.NotificationLog, error)
	ListNotifications(ctx context.Context, params repository.ListParams) ([]domain.NotificationLog, int64, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.QueueNotification)
	v1.Post("/notifications/broadcast", h.QueueBroadcast)
	v1.Post("/notifications/:id/sent", h.MarkSent)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Get("/notifications", h.ListNotifications)

	return nil
}

type queueNotificationRequest struct {
	UserID         string         `json:"userId"`
	EventType      string         `json:"eventType"`
	EventData      map[string]any `json:"eventData"`
	OrganizationID *string        `json:"organizationId"`
}

type queueBroadcastRequest struct {
	EventType      string         `json:"eventType"`
	EventData      map[string]any `json:"eventData"`
	OrganizationID *string        `json:"organizationId"`
}

type markSentRequest struct {
	ErrorMessage *string `json:"errorMessage"`
}

type queuedResponse struct {
	NotificationIDs []string `json:"notificationIds"`
	QueuedCount     int      `json:"queuedCount"`
}

type notificationResponse struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	EventType    string         `json:"eventType"`
	Method       string         `json:"method"`
	EventData    map[string]any `json:"eventData,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	RetryCount   int            `json:"retryCount"`
	SentAt       *time.Time     `json:"sentAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt,omitempty"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) QueueNotification(c *fiber.Ctx) error {
	var req queueNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType, err := domain.ParseEventTypeFromString(req.EventType)
	if err != nil {
		return toHTTPError(err)
	}

	ids, err := h.service.QueueNotification(requestContext(c), req.UserID, eventType, req.EventData, req.OrganizationID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(queuedResponse{
		NotificationIDs: ids,
		QueuedCount:     len(ids),
	})
}

func (h *NotificationHandler) QueueBroadcast(c *fiber.Ctx) error {
	var req queueBroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType, err := domain.ParseEventTypeFromString(req.EventType)
	if err != nil {
		return toHTTPError(err)
	}

	ids, err := h.service.QueueBroadcastNotification(requestContext(c), eventType, req.EventData, req.OrganizationID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(queuedResponse{
		NotificationIDs: ids,
		QueuedCount:     len(ids),
	})
}

func (h *NotificationHandler) MarkSent(c *fiber.Ctx) error {
	var req markSentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	id := strings.TrimSpace(c.Params("id"))
	updated, err := h.service.MarkNotificationSent(c.Context(), id, req.ErrorMessage)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"updated":        updated,
	})
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.service.GetNotification(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.service.ListNotifications(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toNotificationResponse(&notifications[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseDeliveryStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawEventType := strings.TrimSpace(c.Query("eventType")); rawEventType != "" {
		eventType, err := domain.ParseEventTypeFromString(rawEventType)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.EventType = &eventType
	}

	if rawUserID := strings.TrimSpace(c.Query("userId")); rawUserID != "" {
		params.UserID = &rawUserID
	}

	return params, nil
}

// requestContext carries the request id into the service layer so enqueue
// logs can be correlated with the producing API call.
func requestContext(c *fiber.Ctx) context.Context {
	correlationID := strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
	if correlationID == "" {
		if value, ok := c.Locals("requestid").(string); ok {
			correlationID = strings.TrimSpace(value)
		}
	}
	if correlationID == "" {
		return c.Context()
	}
	return observability.WithCorrelationID(c.Context(), correlationID)
}

func toNotificationResponse(n *domain.NotificationLog) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:           n.ID,
		UserID:       n.UserID,
		EventType:    n.EventType.String(),
		Method:       n.Method.String(),
		EventData:    n.EventData,
		Status:       n.Status.String(),
		ErrorMessage: n.ErrorMessage,
		RetryCount:   n.RetryCount,
		SentAt:       n.SentAt,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}
