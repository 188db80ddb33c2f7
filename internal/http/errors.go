package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doc-chat/internal/service"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

type errorMapping struct {
	target  error
	status  int
	message string
}

// Mensajes vacios devuelven err.Error() al cliente.
var serviceErrorMappings = []errorMapping{
	{service.ErrInvalidInput, http.StatusBadRequest, ""},
	{service.ErrInvalidEmail, http.StatusBadRequest, ""},
	{service.ErrInvalidName, http.StatusBadRequest, ""},
	{service.ErrWeakPassword, http.StatusBadRequest, ""},
	{service.ErrInvalidMode, http.StatusBadRequest, ""},
	{service.ErrEmptyFile, http.StatusBadRequest, ""},
	{service.ErrOTPInvalidOrExpired, http.StatusBadRequest, ""},
	{errMissingToken, http.StatusUnauthorized, ""},
	{errInvalidToken, http.StatusUnauthorized, ""},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{service.ErrEmailNotVerified, http.StatusForbidden, "email not verified"},
	{service.ErrUserNotFound, http.StatusNotFound, "user not found"},
	{service.ErrChatNotFound, http.StatusNotFound, "chat not found"},
	{service.ErrFileNotFound, http.StatusNotFound, "file not found"},
	{service.ErrEmailInUse, http.StatusConflict, "email already in use"},
	{service.ErrAlreadyVerified, http.StatusConflict, "email already verified"},
	{service.ErrDuplicateFile, http.StatusConflict, ""},
	{service.ErrUnsupportedFile, http.StatusUnsupportedMediaType, "unsupported file type"},
	{service.ErrRateLimited, http.StatusTooManyRequests, "too many requests"},
	{service.ErrOTPTooManyAttempts, http.StatusTooManyRequests, "too many otp attempts"},
	{service.ErrEmailSendFailure, http.StatusServiceUnavailable, "email delivery unavailable"},
	{service.ErrAssistantNotSet, http.StatusServiceUnavailable, "assistant not configured"},
	{service.ErrRemoteUnavailable, http.StatusServiceUnavailable, "assistant unavailable"},
	{service.ErrRunFailed, http.StatusBadGateway, ""},
	{service.ErrNoReply, http.StatusBadGateway, "no response from assistant"},
	{service.ErrInvalidQuiz, http.StatusBadGateway, "assistant returned an invalid quiz"},
	{service.ErrRunTimeout, http.StatusGatewayTimeout, "assistant timed out"},
}

// writeServiceError traduce errores de servicio a status HTTP. Lo que no se
// reconoce se loguea y se responde como 500.
func writeServiceError(c *gin.Context, logger *zap.Logger, err error, action string) {
	writeServiceErrorWith(c, logger, err, action, nil)
}

// writeServiceErrorWith agrega extra al cuerpo del error, para respuestas
// parciales donde algo ya quedo guardado.
func writeServiceErrorWith(c *gin.Context, logger *zap.Logger, err error, action string, extra gin.H) {
	for _, m := range serviceErrorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		body := gin.H{"error": m.message}
		if m.message == "" {
			body["error"] = m.target.Error()
		}
		var runErr *service.RunFailedError
		if errors.As(err, &runErr) {
			body["status"] = runErr.Status
			if runErr.Reason != "" {
				body["reason"] = runErr.Reason
			}
		}
		for k, v := range extra {
			body[k] = v
		}
		if m.status >= http.StatusInternalServerError {
			logger.Warn(action+" failed", zap.Error(err))
		}
		c.JSON(m.status, body)
		return
	}
	if errors.Is(err, context.Canceled) {
		c.Status(499)
		return
	}
	logger.Error(action+" failed", zap.Error(err))
	body := gin.H{"error": "could not " + action}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusInternalServerError, body)
}

func writeBindError(c *gin.Context, logger *zap.Logger, err error, action string) {
	logger.Warn("invalid "+action+" request", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}
