package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "labslot/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteError_UsesAppErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.InvalidInterval("start_time must be before end_time"), http.StatusUnprocessableEntity, apperrors.CodeInvalidInterval},
		{apperrors.SlotUnavailable("res-1"), http.StatusConflict, apperrors.CodeSlotUnavailable},
		{apperrors.InvalidTransition("b-1", "rejected", "approved"), http.StatusConflict, apperrors.CodeInvalidTransition},
		{apperrors.NotFoundWithID("Booking", "b-1"), http.StatusNotFound, apperrors.CodeNotFound},
		{apperrors.InvalidInput("bad"), http.StatusBadRequest, apperrors.CodeInvalidInput},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		require.NoError(t, WriteError(rec, tt.err))

		assert.Equal(t, tt.status, rec.Code, tt.code)
		assert.Equal(t, tt.code, decodeError(t, rec).Code)
		assert.Empty(t, rec.Header().Get("Retry-After"), tt.code)
	}
}

func TestWriteError_RetryableSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteError(rec, apperrors.StoreUnavailable("lock wait timed out", errors.New("deadline"))))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	body := decodeError(t, rec)
	assert.True(t, body.Retryable)
	assert.NotContains(t, rec.Body.String(), "deadline", "causes stay out of responses")
}

func TestWriteError_KeepsExistingRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Retry-After", "3600")

	require.NoError(t, WriteError(rec, apperrors.RateLimited()))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
}

func TestWriteError_PlainErrorsAreOpaque(t *testing.T) {
	rec := httptest.NewRecorder()

	require.NoError(t, WriteError(rec, errors.New("pq: password authentication failed")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeError(t, rec).Error)
}

func TestExtractLimitOffset(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=-3", nil)
	limit, offset, err := ExtractLimitOffset(r)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)
	assert.Equal(t, int64(0), offset)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	limit, offset, err = ExtractLimitOffset(r)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
	assert.Equal(t, int64(0), offset)

	r = httptest.NewRequest(http.MethodGet, "/?limit=ten", nil)
	_, _, err = ExtractLimitOffset(r)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}
