package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/handler"
	"github.com/noah-isme/kpi-ops-api/internal/middleware"
	"github.com/noah-isme/kpi-ops-api/internal/service"
	"github.com/noah-isme/kpi-ops-api/internal/utils"
)

type mockNotificationService struct {
	listUser   uint
	listUnread bool
	published  dto.NotificationCreateRequest
	publishErr error
	markErr    error
	markedAll  uint
}

func (m *mockNotificationService) Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	m.published = payload
	if m.publishErr != nil {
		return dto.NotificationResponse{}, m.publishErr
	}
	return dto.NotificationResponse{ID: 30, UserID: payload.UserID, Title: payload.Title, Type: payload.Type}, nil
}

func (m *mockNotificationService) List(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]dto.NotificationResponse, dto.NotificationInboxMeta, error) {
	m.listUser = userID
	m.listUnread = unreadOnly
	return []dto.NotificationResponse{{ID: 2, UserID: userID}, {ID: 1, UserID: userID}}, dto.NotificationInboxMeta{Unread: 2, Limit: limit, Offset: offset}, nil
}

func (m *mockNotificationService) MarkRead(ctx context.Context, id uint, userID uint) (dto.NotificationResponse, error) {
	if m.markErr != nil {
		return dto.NotificationResponse{}, m.markErr
	}
	return dto.NotificationResponse{ID: id, UserID: userID, IsRead: true}, nil
}

func (m *mockNotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	m.markedAll = userID
	return 4, nil
}

func (m *mockNotificationService) Subscribe(userID uint) (<-chan dto.NotificationResponse, func()) {
	ch := make(chan dto.NotificationResponse)
	return ch, func() { close(ch) }
}

func (m *mockNotificationService) Start(ctx context.Context) {}

var _ service.NotificationService = (*mockNotificationService)(nil)

func newNotificationApp(svc service.NotificationService, userID uint, role string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUserID, userID)
		c.Locals(middleware.LocalUserRole, role)
		return c.Next()
	})
	h := handler.NewNotificationHandler(svc, zerolog.Nop(), time.Second)
	h.Register(app.Group("/notifications", middleware.RequireUser()), middleware.RequireRole("admin", "hod", "manager"))
	return app
}

func TestNotificationListReturnsInboxMeta(t *testing.T) {
	svc := &mockNotificationService{}
	app := newNotificationApp(svc, 11, "fe")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/notifications?unread=true&limit=5", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data []dto.NotificationResponse `json:"data"`
		Meta dto.NotificationInboxMeta  `json:"meta"`
	}
	decodeResponse(t, resp, &payload)
	require.Len(t, payload.Data, 2)
	require.Equal(t, int64(2), payload.Meta.Unread)
	require.Equal(t, 5, payload.Meta.Limit)
	require.Equal(t, uint(11), svc.listUser)
	require.True(t, svc.listUnread)
}

func TestNotificationMarkAllRead(t *testing.T) {
	svc := &mockNotificationService{}
	app := newNotificationApp(svc, 11, "fe")

	resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/notifications/read-all", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(11), svc.markedAll)

	var payload utils.APIResponse
	decodeResponse(t, resp, &payload)
	require.Equal(t, float64(4), payload.Data.(map[string]interface{})["updated"])
}

func TestNotificationMarkReadNotFound(t *testing.T) {
	app := newNotificationApp(&mockNotificationService{markErr: gorm.ErrRecordNotFound}, 11, "fe")

	resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/notifications/3/read", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestNotificationSendGuardsAndErrors(t *testing.T) {
	body := `{"user_id":4,"title":"Audit scheduled","message":"Audit Call on 2025-11-03","type":"audit"}`
	send := func(app *fiber.App) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	require.Equal(t, fiber.StatusForbidden, send(newNotificationApp(&mockNotificationService{}, 11, "fe")).StatusCode)

	svc := &mockNotificationService{}
	require.Equal(t, fiber.StatusCreated, send(newNotificationApp(svc, 2, "manager")).StatusCode)
	require.Equal(t, "user:2", svc.published.SentBy)

	resp := send(newNotificationApp(&mockNotificationService{publishErr: service.ErrEmptyNotification}, 2, "manager"))
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp = send(newNotificationApp(&mockNotificationService{publishErr: service.ErrDuplicateNotification}, 2, "manager"))
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestNotificationRoutesRequireUser(t *testing.T) {
	app := newNotificationApp(&mockNotificationService{}, 0, "fe")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/notifications", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
