package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/bracketline/notify-engine/internal/domain"
	"github.com/bracketline/notify-engine/internal/repository"
)

type fakeNotifyService struct {
	subscription *domain.Subscription
	subscribeErr error
	removed      bool
	toggleErr    error

	queuedIDs []string
	queueErr  error

	lastUserID    string
	lastEventType domain.EventType
	lastOrgID     *string

	markUpdated bool
	markErr     error

	notification *domain.NotificationLog
	list         []domain.NotificationLog
}

func (f *fakeNotifyService) Subscribe(_ context.Context, userID string, eventType domain.EventType, _ domain.DeliveryMethod, organizationID *string) (*domain.Subscription, error) {
	f.lastUserID = userID
	f.lastEventType = eventType
	f.lastOrgID = organizationID
	return f.subscription, f.subscribeErr
}

func (f *fakeNotifyService) Unsubscribe(_ context.Context, userID string, eventType domain.EventType, _ domain.DeliveryMethod, organizationID *string) (bool, error) {
	f.lastUserID = userID
	f.lastEventType = eventType
	f.lastOrgID = organizationID
	return f.removed, f.subscribeErr
}

func (f *fakeNotifyService) GetUserSubscriptions(_ context.Context, userID string, organizationID *string) ([]domain.Subscription, error) {
	f.lastUserID = userID
	f.lastOrgID = organizationID
	if f.subscription == nil {
		return []domain.Subscription{}, nil
	}
	return []domain.Subscription{*f.subscription}, nil
}

func (f *fakeNotifyService) ToggleSubscription(_ context.Context, id string, userID string) (*domain.Subscription, error) {
	f.lastUserID = userID
	return f.subscription, f.toggleErr
}

func (f *fakeNotifyService) QueueNotification(_ context.Context, userID string, eventType domain.EventType, _ map[string]any, organizationID *string) ([]string, error) {
	f.lastUserID = userID
	f.lastEventType = eventType
	f.lastOrgID = organizationID
	return f.queuedIDs, f.queueErr
}

func (f *fakeNotifyService) QueueBroadcastNotification(_ context.Context, eventType domain.EventType, _ map[string]any, organizationID *string) ([]string, error) {
	f.lastEventType = eventType
	f.lastOrgID = organizationID
	return f.queuedIDs, f.queueErr
}

func (f *fakeNotifyService) MarkNotificationSent(_ context.Context, id string, errorMessage *string) (bool, error) {
	return f.markUpdated, f.markErr
}

func (f *fakeNotifyService) GetNotification(_ context.Context, id string) (*domain.NotificationLog, error) {
	if f.notification == nil {
		return nil, fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
	}
	return f.notification, nil
}

func (f *fakeNotifyService) ListNotifications(_ context.Context, params repository.ListParams) ([]domain.NotificationLog, int64, error) {
	return f.list, int64(len(f.list)), nil
}

func newTestApp(t *testing.T, svc *fakeNotifyService) *fiber.App {
	t.Helper()

	app := fiber.New()
	if err := RegisterSubscriptionRoutes(app, svc); err != nil {
		t.Fatalf("RegisterSubscriptionRoutes() error = %v", err)
	}
	if err := RegisterNotificationRoutes(app, svc); err != nil {
		t.Fatalf("RegisterNotificationRoutes() error = %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	payload := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	// Error responses from the default error handler are plain text.
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("unmarshal response body %q: %v", raw, err)
		}
	}

	return resp.StatusCode, payload
}

func TestSubscribeEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeNotifyService{
		subscription: &domain.Subscription{
			ID:        "sub-1",
			UserID:    "user-1",
			EventType: domain.EventMatchScheduled,
			Method:    domain.MethodDiscord,
			IsActive:  true,
		},
	}
	app := newTestApp(t, svc)

	status, body := doJSON(t, app, "POST", "/v1/subscriptions", map[string]any{
		"userId":    "user-1",
		"eventType": "MATCH_SCHEDULED",
		"method":    "DISCORD",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201", status)
	}
	if body["id"] != "sub-1" {
		t.Errorf("id = %v, want sub-1", body["id"])
	}
	if body["isActive"] != true {
		t.Errorf("isActive = %v, want true", body["isActive"])
	}
}

func TestSubscribeEndpoint_InvalidEventType(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &fakeNotifyService{})

	status, _ := doJSON(t, app, "POST", "/v1/subscriptions", map[string]any{
		"userId":    "user-1",
		"eventType": "NOT_A_THING",
		"method":    "DISCORD",
	})
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestUnsubscribeEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeNotifyService{removed: true}
	app := newTestApp(t, svc)

	status, body := doJSON(t, app, "DELETE", "/v1/subscriptions", map[string]any{
		"userId":    "user-1",
		"eventType": "MATCH_SCHEDULED",
		"method":    "DISCORD",
	})
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["removed"] != true {
		t.Errorf("removed = %v, want true", body["removed"])
	}
}

func TestToggleEndpoint_ForbiddenMapsTo403(t *testing.T) {
	t.Parallel()

	svc := &fakeNotifyService{
		toggleErr: fmt.Errorf("%w: subscription belongs to another user", domain.ErrForbidden),
	}
	app := newTestApp(t, svc)

	status, _ := doJSON(t, app, "POST", "/v1/subscriptions/sub-1/toggle", map[string]any{
		"userId": "user-2",
	})
	if status != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403", status)
	}
}

func TestListUserSubscriptionsEndpoint_PassesOrgFilter(t *testing.T) {
	t.Parallel()

	svc := &fakeNotifyService{}
	app := newTestApp(t, svc)

	status, _ := doJSON(t, app, "GET", "/v1/users/user-1/subscriptions?organizationId=org-1", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if svc.lastUserID != "user-1" {
		t.Errorf("userID = %q, want user-1", svc.lastUserID)
	}
	if svc.lastOrgID == nil || *svc.lastOrgID != "org-1" {
		t.Errorf("organizationID = %v, want org-1", svc.lastOrgID)
	}
}

func TestQueueNotificationEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeNotifyService{queuedIDs: []string{"n-1", "n-2"}}
	app := newTestApp(t, svc)

	status, body := doJSON(t, app, "POST", "/v1/notifications", map[string]any{
		"userId":    "user-1",
		"eventType": "MATCH_RESULT",
		"eventData": map[string]any{"matchId": "m-1"},
	})
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	if body["queuedCount"] != float64(2) {
		t.Errorf("queuedCount = %v, want 2", body["queuedCount"])
	}
	if svc.lastEventType != domain.EventMatchResult {
		t.Errorf("eventType = %s, want MATCH_RESULT", svc.lastEventType)
	}
}

func TestQueueBroadcastEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeNotifyService{queuedIDs: []string{"n-1"}}
	app := newTestApp(t, svc)

	status, body := doJSON(t, app, "POST", "/v1/notifications/broadcast", map[string]any{
		"eventType":      "TOURNAMENT_STARTED",
		"organizationId": "org-1",
	})
	if status != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202", status)
	}
	if body["queuedCount"] != float64(1) {
		t.Errorf("queuedCount = %v, want 1", body["queuedCount"])
	}
	if svc.lastOrgID == nil || *svc.lastOrgID != "org-1" {
		t.Errorf("organizationID = %v, want org-1", svc.lastOrgID)
	}
}

func TestMarkSentEndpoint(t *testing.T) {
	t.Parallel()

	svc := &fakeNotifyService{markUpdated: true}
	app := newTestApp(t, svc)

	status, body := doJSON(t, app, "POST", "/v1/notifications/n-1/sent", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["updated"] != true {
		t.Errorf("updated = %v, want true", body["updated"])
	}
	if body["notificationId"] != "n-1" {
		t.Errorf("notificationId = %v, want n-1", body["notificationId"])
	}
}

func TestGetNotificationEndpoint_NotFound(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &fakeNotifyService{})

	status, _ := doJSON(t, app, "GET", "/v1/notifications/missing", nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestListNotificationsEndpoint_RejectsBadPagination(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, &fakeNotifyService{})

	status, _ := doJSON(t, app, "GET", "/v1/notifications?pageSize=5000", nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestListNotificationsEndpoint_FiltersParse(t *testing.T) {
	t.Parallel()

	svc := &fakeNotifyService{
		list: []domain.NotificationLog{{
			ID:        "n-1",
			UserID:    "user-1",
			EventType: domain.EventMatchResult,
			Method:    domain.MethodDiscord,
			Status:    domain.StatusSent,
		}},
	}
	app := newTestApp(t, svc)

	status, body := doJSON(t, app, "GET", "/v1/notifications?status=SENT&eventType=MATCH_RESULT&userId=user-1", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}

	meta, ok := body["meta"].(map[string]any)
	if !ok {
		t.Fatalf("meta missing in response: %v", body)
	}
	if meta["total"] != float64(1) {
		t.Errorf("total = %v, want 1", meta["total"])
	}
}
