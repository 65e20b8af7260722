package controller

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-calendar-core/core/errors"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(errors.ErrInvalidFormat))
	assert.Equal(t, http.StatusForbidden, StatusFor(errors.ErrMissingCapability))
	assert.Equal(t, http.StatusNotFound, StatusFor(errors.ErrNotFound))
	assert.Equal(t, http.StatusConflict, StatusFor(errors.ErrConcurrentModification))
	assert.Equal(t, http.StatusConflict, StatusFor(errors.ErrMaxAccountsExceeded))
	assert.Equal(t, http.StatusMethodNotAllowed, StatusFor(errors.ErrUnsupportedOperation))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.ErrStorage))
}

func TestErrorResponse(t *testing.T) {
	e := echo.New()
	ctrl := NewBaseController()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := errors.NewConcurrentModificationError(3, time.UnixMilli(2000), time.UnixMilli(1000))
	require.NoError(t, ctrl.ErrorResponse(c, err))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrConcurrentModification, body.Code)
	assert.Equal(t, "error", body.Status)
	assert.NotNil(t, body.Details)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, ctrl.ErrorResponse(c, stderrors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errors.ErrInternalServer, body.Code)
	assert.Equal(t, "internal server error", body.Message)
}
