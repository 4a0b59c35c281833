package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"labslot/internal/bookings/service"
	"labslot/internal/bookings/validator"
	apperrors "labslot/pkg/errors"
	"labslot/pkg/logger"
	"labslot/pkg/middleware"
	"labslot/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBookingService struct {
	requestFunc func(ctx context.Context, in service.RequestInput, actor model.Actor) (*model.Booking, error)
	approveFunc func(ctx context.Context, id string, actor model.Actor) (*model.Booking, error)
	rejectFunc  func(ctx context.Context, id string, actor model.Actor, reason string) (*model.Booking, error)
	cancelFunc  func(ctx context.Context, id string, actor model.Actor, reason string) (*model.Booking, error)
	getFunc     func(ctx context.Context, id string) (*model.Booking, error)
	listFunc    func(ctx context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error)
}

func (m *mockBookingService) Request(ctx context.Context, in service.RequestInput, actor model.Actor) (*model.Booking, error) {
	return m.requestFunc(ctx, in, actor)
}

func (m *mockBookingService) Approve(ctx context.Context, id string, actor model.Actor) (*model.Booking, error) {
	return m.approveFunc(ctx, id, actor)
}

func (m *mockBookingService) Reject(ctx context.Context, id string, actor model.Actor, reason string) (*model.Booking, error) {
	return m.rejectFunc(ctx, id, actor, reason)
}

func (m *mockBookingService) Cancel(ctx context.Context, id string, actor model.Actor, reason string) (*model.Booking, error) {
	return m.cancelFunc(ctx, id, actor, reason)
}

func (m *mockBookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return m.getFunc(ctx, id)
}

func (m *mockBookingService) ListByResource(ctx context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error) {
	return m.listFunc(ctx, resourceID, status, limit, offset)
}

var slotStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newRouter(svc service.BookingService) *httprouter.Router {
	log := logger.Discard()
	router := httprouter.New()
	NewBookingHandler(svc, validator.NewBookingValidator(log), log).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
		req.Header.Set(middleware.HeaderUserName, "Name of "+user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
	Retryable  bool            `json:"retryable"`
	TotalCount int64           `json:"total_count"`
	Limit      int             `json:"limit"`
	Offset     int64           `json:"offset"`
	Details    map[string]any  `json:"details"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestCreate_PassesValidatedRequestAndActor(t *testing.T) {
	var gotIn service.RequestInput
	var gotActor model.Actor
	svc := &mockBookingService{requestFunc: func(_ context.Context, in service.RequestInput, actor model.Actor) (*model.Booking, error) {
		gotIn, gotActor = in, actor
		return &model.Booking{ID: "b-1", ResourceID: in.ResourceID, Status: model.StatusPending}, nil
	}}

	rec := do(newRouter(svc), http.MethodPost, "/api/v1/bookings", "user-1",
		`{"resource_id":"res-1","start_time":"2026-03-02T12:00:00+02:00","end_time":"2026-03-02T13:00:00+02:00","notes":"xrd"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "res-1", gotIn.ResourceID)
	assert.Equal(t, "user-1", gotIn.UserID, "owner defaults to the caller")
	assert.True(t, gotIn.Interval.Start.Equal(slotStart))
	assert.Equal(t, time.UTC, gotIn.Interval.Start.Location())
	assert.Equal(t, model.ActorHuman, gotActor.Kind)
	assert.Equal(t, "Name of user-1", gotActor.Name)

	var b model.Booking
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &b))
	assert.Equal(t, model.StatusPending, b.Status)
}

func TestCreate_BoundaryErrors(t *testing.T) {
	svc := &mockBookingService{requestFunc: func(context.Context, service.RequestInput, model.Actor) (*model.Booking, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	router := newRouter(svc)

	tests := []struct {
		name   string
		user   string
		body   string
		status int
		code   string
	}{
		{"missing identity", "", `{"resource_id":"r","start_time":"2026-03-02T10:00:00Z","end_time":"2026-03-02T11:00:00Z"}`, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"malformed json", "u", `{"resource_id":`, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{"missing resource", "u", `{"start_time":"2026-03-02T10:00:00Z","end_time":"2026-03-02T11:00:00Z"}`, http.StatusUnprocessableEntity, apperrors.CodeValidation},
		{"inverted interval", "u", `{"resource_id":"r","start_time":"2026-03-02T11:00:00Z","end_time":"2026-03-02T10:00:00Z"}`, http.StatusUnprocessableEntity, apperrors.CodeInvalidInterval},
		{"empty interval", "u", `{"resource_id":"r","start_time":"2026-03-02T10:00:00Z","end_time":"2026-03-02T10:00:00Z"}`, http.StatusUnprocessableEntity, apperrors.CodeInvalidInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, http.MethodPost, "/api/v1/bookings", tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode(t, rec).Code)
		})
	}
}

func TestCreate_ServiceErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.SlotUnavailable("res-1"), http.StatusConflict},
		{apperrors.NotFoundWithID("Resource", "res-1"), http.StatusNotFound},
		{apperrors.StoreUnavailable("lock wait timed out", nil), http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		svc := &mockBookingService{requestFunc: func(context.Context, service.RequestInput, model.Actor) (*model.Booking, error) {
			return nil, tt.err
		}}
		rec := do(newRouter(svc), http.MethodPost, "/api/v1/bookings", "u",
			`{"resource_id":"res-1","start_time":"2026-03-02T10:00:00Z","end_time":"2026-03-02T11:00:00Z"}`)

		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}

func TestCreate_RetryableErrorCarriesRetryAfter(t *testing.T) {
	svc := &mockBookingService{requestFunc: func(context.Context, service.RequestInput, model.Actor) (*model.Booking, error) {
		return nil, apperrors.StoreUnavailable("lock wait timed out", nil)
	}}

	rec := do(newRouter(svc), http.MethodPost, "/api/v1/bookings", "u",
		`{"resource_id":"res-1","start_time":"2026-03-02T10:00:00Z","end_time":"2026-03-02T11:00:00Z"}`)

	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.True(t, decode(t, rec).Retryable)
}

func TestDecisions_RouteToService(t *testing.T) {
	var calls []string
	record := func(action, id, reason string, actor model.Actor) (*model.Booking, error) {
		calls = append(calls, action+":"+id+":"+reason+":"+actor.ID)
		return &model.Booking{ID: id}, nil
	}
	svc := &mockBookingService{
		approveFunc: func(_ context.Context, id string, actor model.Actor) (*model.Booking, error) {
			return record("approve", id, "", actor)
		},
		rejectFunc: func(_ context.Context, id string, actor model.Actor, reason string) (*model.Booking, error) {
			return record("reject", id, reason, actor)
		},
		cancelFunc: func(_ context.Context, id string, actor model.Actor, reason string) (*model.Booking, error) {
			return record("cancel", id, reason, actor)
		},
	}
	router := newRouter(svc)

	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/bookings/id/b-1/approve", "admin-1", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/bookings/id/b-2/reject", "admin-1", `{"reason":"maintenance"}`).Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/api/v1/bookings/id/b-3/cancel", "user-1", "").Code)

	assert.Equal(t, []string{
		"approve:b-1::admin-1",
		"reject:b-2:maintenance:admin-1",
		"cancel:b-3::user-1",
	}, calls)
}

func TestDecisions_Errors(t *testing.T) {
	svc := &mockBookingService{
		approveFunc: func(context.Context, string, model.Actor) (*model.Booking, error) {
			return nil, apperrors.InvalidTransition("b-1", "cancelled", "confirmed")
		},
		rejectFunc: func(context.Context, string, model.Actor, string) (*model.Booking, error) {
			return nil, apperrors.StaleConflict("b-1")
		},
	}
	router := newRouter(svc)

	rec := do(router, http.MethodPost, "/api/v1/bookings/id/b-1/approve", "admin-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeInvalidTransition, decode(t, rec).Code)

	rec = do(router, http.MethodPost, "/api/v1/bookings/id/b-1/reject", "admin-1", "")
	assert.Equal(t, apperrors.CodeStaleConflict, decode(t, rec).Code)

	rec = do(router, http.MethodPost, "/api/v1/bookings/id/b-1/reject", "admin-1", `{"reason":"`+strings.Repeat("x", 501)+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(router, http.MethodPost, "/api/v1/bookings/id/b-1/approve", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetByID(t *testing.T) {
	svc := &mockBookingService{getFunc: func(_ context.Context, id string) (*model.Booking, error) {
		if id == "missing" {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return &model.Booking{ID: id}, nil
	}}
	router := newRouter(svc)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/bookings/id/b-1", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/v1/bookings/id/missing", "", "").Code)
}

func TestListByResource(t *testing.T) {
	var gotStatus model.BookingStatus
	var gotLimit int
	var gotOffset int64
	svc := &mockBookingService{listFunc: func(_ context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, int64, error) {
		gotStatus, gotLimit, gotOffset = status, limit, offset
		return []*model.Booking{{ID: "b-1", ResourceID: resourceID}}, 7, nil
	}}
	router := newRouter(svc)

	rec := do(router, http.MethodGet, "/api/v1/resources/res-1/bookings?status=waitlisted&limit=5&offset=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, int64(7), env.TotalCount)
	assert.Equal(t, 5, env.Limit)
	assert.Equal(t, int64(2), env.Offset)
	assert.Equal(t, model.StatusWaitlisted, gotStatus)
	assert.Equal(t, 5, gotLimit)
	assert.Equal(t, int64(2), gotOffset)

	rec = do(router, http.MethodGet, "/api/v1/resources/res-1/bookings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.BookingStatus(""), gotStatus)
	assert.Equal(t, 10, gotLimit)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/resources/res-1/bookings?status=approved", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/resources/res-1/bookings?limit=x", "", "").Code)
}

func TestHealthHandler(t *testing.T) {
	router := httprouter.New()
	failing := false
	NewHealthHandler(map[string]ReadinessCheck{
		"store": func(context.Context) error {
			if failing {
				return errors.New("down")
			}
			return nil
		},
	}, logger.Discard()).RegisterRoutes(router)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ready", "", "").Code)

	failing = true
	rec := do(router, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"error"`)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "", "").Code, "liveness ignores dependencies")
}
