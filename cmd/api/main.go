package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"doc-chat/internal/config"
	"doc-chat/internal/db"
	"doc-chat/internal/email"
	"doc-chat/internal/extract"
	apihttp "doc-chat/internal/http"
	"doc-chat/internal/llm"
	"doc-chat/internal/metrics"
	"doc-chat/internal/repository"
	"doc-chat/internal/service"
	"doc-chat/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	m := metrics.New(nil)

	userRepo := repository.NewPgUserRepository(pool)
	chatRepo := repository.NewPgChatRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)
	fileRepo := repository.NewPgFileRepository(pool)

	emailSender := newEmailSender(cfg, logger)

	var (
		otpLimiter  service.OTPRateLimiter
		tokenStore  service.RefreshTokenStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, logger, cfg.OTPRequestWindow, cfg.OTPRequestMax)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	if otpLimiter == nil {
		otpLimiter = service.NewOTPRateLimiter(cfg.OTPRequestWindow, cfg.OTPRequestMax)
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	var blobs storage.BlobStore
	if cfg.S3Enabled() {
		store, err := storage.NewS3Store(ctx, storage.Options{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3BaseEndpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, logger)
		if err != nil {
			logger.Warn("s3 storage init failed", zap.Error(err))
		} else {
			blobs = store
		}
	}

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMVisionModel, logger)
	assistants := service.AssistantIDs{General: cfg.AssistantGeneralID, QA: cfg.AssistantQAID}
	if assistants.General == "" || assistants.QA == "" {
		logger.Warn("assistant ids not fully configured",
			zap.Bool("general", assistants.General != ""),
			zap.Bool("qa", assistants.QA != ""),
		)
	}

	otpMgr := service.NewOTPManager(logger, userRepo, cfg.OTPTTL, cfg.OTPMaxAttempts, service.WithOTPObserver(m))
	userSvc := service.NewUserService(logger, userRepo, otpMgr, emailSender, otpLimiter)
	assistantSvc := service.NewAssistantService(logger, llmClient, service.AssistantConfig{
		PollInterval:      cfg.RunPollInterval,
		Timeout:           cfg.RunTimeout,
		MaxReferenceChars: cfg.MaxReferenceChars,
	}, m)
	chatSvc := service.NewChatService(logger, chatRepo, messageRepo, fileRepo, assistantSvc, llmClient, assistants, llmClient)
	fileSvc := service.NewFileService(logger, chatRepo, messageRepo, fileRepo,
		extract.New(llmClient), blobs, assistantSvc, llmClient, assistants,
		service.FileConfig{PreviewChars: cfg.UploadPreviewChars},
	)

	userHandler := apihttp.NewUserHandler(logger, userSvc, jwtSvc)
	chatHandler := apihttp.NewChatHandler(logger, chatSvc, fileSvc, cfg.MaxUploadBytes)
	fileHandler := apihttp.NewFileHandler(logger, fileSvc)
	router := apihttp.NewRouter(logger, jwtSvc, userHandler, chatHandler, fileHandler, m.Handler())

	// WriteTimeout cubre el timeout del run mas el resto del request.
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RunTimeout + 30*time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}

// newEmailSender elige EmailJS, luego SMTP; sin configuracion todo envio falla.
func newEmailSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	if cfg.EmailJSEnabled() {
		sender, err := email.NewEmailJSSender(cfg.EmailJSBaseURL, cfg.EmailJSServiceID, cfg.EmailJSTemplateID,
			cfg.EmailJSPublicKey, cfg.EmailJSPrivateKey, nil)
		if err == nil {
			return sender
		}
		logger.Warn("emailjs sender init failed", zap.Error(err))
	}
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err == nil {
			return sender
		}
		logger.Warn("smtp sender init failed", zap.Error(err))
	}
	logger.Warn("email sender not configured")
	return email.NewDisabledSender("email sender not configured")
}
