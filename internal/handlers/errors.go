package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"snapify/internal/middleware"
	"snapify/internal/repository"
	"snapify/internal/rules"
	"snapify/internal/service"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// statusFor maps a service error to its HTTP status and error code. The
// order matters: the quota sub-kinds are checked before anything generic.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, rules.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, rules.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, rules.ErrOwnerEventQuota):
		return http.StatusForbidden, "EVENT_LIMIT_REACHED"
	case errors.Is(err, rules.ErrDeviceQuotaExceeded):
		return http.StatusTooManyRequests, "DEVICE_QUOTA_EXCEEDED"
	case errors.Is(err, rules.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "QUOTA_EXCEEDED"
	case errors.Is(err, rules.ErrEventFull):
		return http.StatusConflict, "EVENT_FULL"
	case errors.Is(err, rules.ErrEventExpired):
		return http.StatusGone, "EVENT_EXPIRED"
	case errors.Is(err, rules.ErrCodeTaken):
		return http.StatusConflict, "CODE_TAKEN"
	case errors.Is(err, rules.ErrUpstream):
		return http.StatusBadGateway, "UPSTREAM_FAILURE"
	case errors.Is(err, repository.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, service.ErrUserSuspended):
		return http.StatusForbidden, "ACCOUNT_SUSPENDED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeServiceError never echoes internal or image host failures to the
// client; their detail only goes to the log.
func writeServiceError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("request failed")
		message = "internal server error"
	case http.StatusBadGateway:
		log.Warn().Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("image host failed")
		message = "image host unavailable"
	}
	_ = c.Error(err)
	writeError(c, status, code, message)
}

func writeBindError(c *gin.Context, err error) {
	writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}
