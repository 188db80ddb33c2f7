package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doc-chat/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	userH *UserHandler,
	chatH *ChatHandler,
	fileH *FileHandler,
	metricsHandler http.Handler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	auth := r.Group("/auth")
	auth.POST("/register", userH.Register)
	auth.POST("/otp/send", userH.SendOTP)
	auth.POST("/otp/verify", userH.VerifyOTP)
	auth.POST("/login", userH.Login)
	auth.POST("/refresh", userH.RefreshToken)
	auth.POST("/logout", userH.Logout)

	protected := r.Group("/", JWTAuthMiddleware(logger, jwtSvc))
	protected.GET("/me", userH.Me)

	chats := protected.Group("/chats")
	chats.GET("", chatH.ListChats)
	chats.POST("", chatH.CreateChat)
	chats.GET("/:id", chatH.GetChat)
	chats.PUT("/:id", chatH.UpdateChat)
	chats.DELETE("/:id", chatH.DeleteChat)
	chats.POST("/:id/messages", chatH.AppendMessage)
	chats.POST("/:id/ask", chatH.Ask)
	chats.POST("/:id/quiz", chatH.Quiz)
	chats.POST("/:id/mode", chatH.SwitchMode)
	chats.POST("/:id/files", chatH.UploadFile)

	files := protected.Group("/files")
	files.GET("", fileH.ListFiles)
	files.POST("", fileH.CreateFile)
	files.PUT("/:id", fileH.UpdateFile)
	files.DELETE("/:id", fileH.DeleteFile)
	files.GET("/:id/download", fileH.DownloadFile)

	protected.POST("/analyze-image", fileH.AnalyzeImage)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
