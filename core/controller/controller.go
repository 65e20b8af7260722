package controller

import (
	"net/http"
	"time"

	"go-calendar-core/core/errors"
	"go-calendar-core/core/logger"

	"github.com/labstack/echo/v4"
)

// Response types
type (
	SuccessResponse struct {
		Status    int       `json:"status"`
		Message   string    `json:"message"`
		Data      any       `json:"data,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	}

	ErrorResponse struct {
		Status    string           `json:"status"`
		Code      errors.ErrorCode `json:"code"`
		Message   string           `json:"message"`
		Details   any              `json:"details,omitempty"`
		Timestamp time.Time        `json:"timestamp"`
	}
)

type BaseController interface {
	SuccessResponse(c echo.Context, data any, message string) error
	// ErrorResponse writes err with the HTTP status matching its code.
	ErrorResponse(c echo.Context, err error) error
	Unavailable(c echo.Context, data any, message string) error
}

type responseHandler struct{}

func NewBaseController() BaseController {
	return &responseHandler{}
}

func NewSuccessResponse(httpStatusCode int, data any, message string) *SuccessResponse {
	return &SuccessResponse{
		Status:    httpStatusCode,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func NewErrorResponse(appErrCode errors.ErrorCode, message string, details any) *ErrorResponse {
	return &ErrorResponse{
		Status:    "error",
		Code:      appErrCode,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrInvalidInput, errors.ErrInvalidFormat, errors.ErrUnsupportedFolder:
		return http.StatusBadRequest
	case errors.ErrMissingCapability:
		return http.StatusForbidden
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrUnsupportedOperation:
		return http.StatusMethodNotAllowed
	case errors.ErrConcurrentModification, errors.ErrMaxAccountsExceeded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *responseHandler) SuccessResponse(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, NewSuccessResponse(http.StatusOK, data, message))
}

func (h *responseHandler) Unavailable(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusServiceUnavailable, NewSuccessResponse(http.StatusServiceUnavailable, data, message))
}

func (h *responseHandler) ErrorResponse(c echo.Context, err error) error {
	appCode := errors.ErrInternalServer
	msg := "internal server error"
	var details any

	if ae, ok := errors.As(err); ok {
		appCode = ae.Code
		if ae.Message != "" {
			msg = ae.Message
		}
		if len(ae.Details) > 0 {
			details = ae.Details
		}
	}
	httpStatus := StatusFor(appCode)

	logger.Error("BaseController:ErrorResponse",
		"status", httpStatus,
		"code", appCode,
		"message", msg,
		"error", err,
	)
	return c.JSON(httpStatus, NewErrorResponse(appCode, msg, details))
}
