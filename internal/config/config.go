package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	LLMAPIKey          string        `env:"LLM_API_KEY,required"`
	LLMBaseURL         string        `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMVisionModel     string        `env:"LLM_VISION_MODEL" envDefault:"gpt-4-turbo"`
	AssistantGeneralID string        `env:"ASSISTANT_GENERAL_ID"`
	AssistantQAID      string        `env:"ASSISTANT_QA_ID"`
	RunPollInterval    time.Duration `env:"ASSISTANT_RUN_POLL_INTERVAL" envDefault:"1s"`
	RunTimeout         time.Duration `env:"ASSISTANT_RUN_TIMEOUT" envDefault:"60s"`
	MaxReferenceChars  int           `env:"MAX_REFERENCE_CHARS" envDefault:"5000"`
	UploadPreviewChars int           `env:"UPLOAD_PREVIEW_CHARS" envDefault:"1000"`
	MaxUploadBytes     int64         `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`

	OTPTTL           time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPMaxAttempts   int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5"`
	OTPRequestWindow time.Duration `env:"OTP_REQUEST_WINDOW" envDefault:"10m"`
	OTPRequestMax    int           `env:"OTP_REQUEST_MAX" envDefault:"3"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	EmailJSServiceID  string `env:"EMAILJS_SERVICE_ID"`
	EmailJSTemplateID string `env:"EMAILJS_TEMPLATE_ID"`
	EmailJSPublicKey  string `env:"EMAILJS_PUBLIC_KEY"`
	EmailJSPrivateKey string `env:"EMAILJS_PRIVATE_KEY"`
	EmailJSBaseURL    string `env:"EMAILJS_BASE_URL" envDefault:"https://api.emailjs.com/api/v1.0"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3BaseEndpoint string `env:"S3_BASE_ENDPOINT"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// EmailJSEnabled indica si hay credenciales suficientes para EmailJS.
func (c *Config) EmailJSEnabled() bool {
	return c.EmailJSServiceID != "" && c.EmailJSTemplateID != "" && c.EmailJSPublicKey != ""
}

// S3Enabled indica si se deben persistir los archivos subidos en S3/MinIO.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}
