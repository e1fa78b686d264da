package handler_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
	"github.com/noah-isme/kpi-ops-api/internal/handler"
	"github.com/noah-isme/kpi-ops-api/internal/service"
)

type mockTrainingService struct {
	completeErr  error
	lastComplete dto.TrainingCompleteRequest
	lastQuery    dto.TrainingListQuery
}

func (m *mockTrainingService) Assign(_ context.Context, req dto.TrainingAssignRequest, _ service.ActivityActor) (dto.TrainingAssignmentResponse, error) {
	return dto.TrainingAssignmentResponse{ID: 1, UserID: req.UserID, TrainingType: req.TrainingType}, nil
}

func (m *mockTrainingService) Get(context.Context, uint) (dto.TrainingAssignmentResponse, error) {
	return dto.TrainingAssignmentResponse{}, service.ErrTrainingNotFound
}

func (m *mockTrainingService) List(_ context.Context, query dto.TrainingListQuery) ([]dto.TrainingAssignmentResponse, dto.PaginationMeta, error) {
	m.lastQuery = query
	return []dto.TrainingAssignmentResponse{}, dto.PaginationMeta{Page: 1, PageSize: 20}, nil
}

func (m *mockTrainingService) Start(context.Context, uint, service.ActivityActor) (dto.TrainingAssignmentResponse, error) {
	return dto.TrainingAssignmentResponse{}, fmt.Errorf("%w: completed to in_progress", service.ErrInvalidTransition)
}

func (m *mockTrainingService) Complete(_ context.Context, id uint, req dto.TrainingCompleteRequest, _ service.ActivityActor) (dto.TrainingAssignmentResponse, error) {
	m.lastComplete = req
	if m.completeErr != nil {
		return dto.TrainingAssignmentResponse{}, m.completeErr
	}
	return dto.TrainingAssignmentResponse{ID: id, Status: "completed"}, nil
}

func (m *mockTrainingService) Cancel(context.Context, uint, service.ActivityActor) (dto.TrainingAssignmentResponse, error) {
	return dto.TrainingAssignmentResponse{}, nil
}

func (m *mockTrainingService) MarkOverdue(context.Context) (int64, error) {
	return 0, nil
}

func newTrainingApp(svc service.TrainingService) *fiber.App {
	app := fiber.New()
	handler.NewTrainingHandler(svc, validator.New(), zerolog.New(io.Discard)).Register(app.Group("/api/v1/trainings"), nil)
	return app
}

func TestTrainingHandler_ListParsesFilters(t *testing.T) {
	svc := &mockTrainingService{}
	app := newTrainingApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/trainings?user_id=4&status=overdue&page=2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(4), svc.lastQuery.UserID)
	require.Equal(t, "overdue", svc.lastQuery.Status)
	require.Equal(t, 2, svc.lastQuery.Page)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/trainings?status=finished", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTrainingHandler_WorkflowErrors(t *testing.T) {
	svc := &mockTrainingService{}
	app := newTrainingApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/trainings/3", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPatch, "/api/v1/trainings/3/start", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPatch, "/api/v1/trainings/abc/start", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTrainingHandler_CompleteAcceptsEmptyBody(t *testing.T) {
	svc := &mockTrainingService{}
	app := newTrainingApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/api/v1/trainings/3/complete", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/trainings/3/complete", strings.NewReader(`{"score": 84, "notes": "passed"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 84.0, *svc.lastComplete.Score)
	require.Equal(t, "passed", svc.lastComplete.Notes)
}
