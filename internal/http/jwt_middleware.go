package http

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doc-chat/internal/service"
)

const ownerIDKey = "owner_id"

var errJWTNotConfigured = errors.New("jwt service not configured")

// JWTAuthMiddleware exige un access token valido y fija el dueño de los chats
// y archivos del request. Nada detras de este middleware toca el store sin
// un owner id.
func JWTAuthMiddleware(logger *zap.Logger, jwtSvc *service.JWTService) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if jwtSvc == nil {
			writeServiceError(c, logger, errJWTNotConfigured, "authenticate")
			c.Abort()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeServiceError(c, logger, errMissingToken, "authenticate")
			c.Abort()
			return
		}

		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil || strings.TrimSpace(claims.UserID) == "" {
			logger.Debug("access token rejected", zap.Error(err), zap.String("path", c.Request.URL.Path))
			writeServiceError(c, logger, errInvalidToken, "authenticate")
			c.Abort()
			return
		}

		c.Set(ownerIDKey, claims.UserID)
		c.Next()
	}
}

// bearerToken extrae el token de "Bearer <token>"; un token vacio no cuenta.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// OwnerID devuelve el usuario contra el que se comparan los registros.
func OwnerID(c *gin.Context) (string, bool) {
	id := c.GetString(ownerIDKey)
	return id, id != ""
}
