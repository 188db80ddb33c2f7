package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"doc-chat/internal/domain"
	"doc-chat/internal/repository"
)

const (
	defaultOTPTTL         = 5 * time.Minute
	defaultOTPMaxAttempts = 5

	otpMin   = 100000
	otpRange = 900000
)

// Eventos reportados al OTPObserver.
const (
	OTPEventIssued   = "issued"
	OTPEventVerified = "verified"
	OTPEventRejected = "rejected"
	OTPEventLocked   = "locked"
)

// OTPObserver recibe eventos del ciclo de vida del OTP (metricas).
type OTPObserver interface {
	OTPEvent(event string)
}

// OTP es el codigo en claro que se entrega por email. Nunca se persiste.
type OTP struct {
	Code      string
	ExpiresAt time.Time
}

// OTPManager emite y valida codigos de un solo uso ligados al email del usuario.
//
// Estados por usuario: sin codigo, pendiente (hash + expiracion guardados) y
// verificado (terminal). Un Issue concurrente es last-write-wins; el consumo
// es un compare-and-swap sobre el hash guardado, asi que un mismo codigo no
// puede verificarse dos veces.
type OTPManager struct {
	logger      *zap.Logger
	users       repository.UserRepository
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	observer    OTPObserver
}

type OTPManagerOption func(*OTPManager)

// WithOTPClock reemplaza el reloj (tests).
func WithOTPClock(now func() time.Time) OTPManagerOption {
	return func(m *OTPManager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithOTPObserver(observer OTPObserver) OTPManagerOption {
	return func(m *OTPManager) {
		m.observer = observer
	}
}

func NewOTPManager(logger *zap.Logger, users repository.UserRepository, ttl time.Duration, maxAttempts int, opts ...OTPManagerOption) *OTPManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultOTPTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultOTPMaxAttempts
	}
	m := &OTPManager{
		logger:      logger,
		users:       users,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue genera un codigo nuevo para el usuario, sobrescribiendo cualquier
// codigo pendiente, y lo devuelve para su entrega fuera de banda.
func (m *OTPManager) Issue(ctx context.Context, emailAddr string) (OTP, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return OTP{}, ErrInvalidEmail
	}

	user, err := m.lookup(ctx, emailAddr)
	if err != nil {
		return OTP{}, err
	}
	if user.VerifiedEmail {
		return OTP{}, ErrAlreadyVerified
	}

	code, err := generateOTPCode()
	if err != nil {
		return OTP{}, fmt.Errorf("generate otp: %w", err)
	}
	hash, err := hashOTP(code)
	if err != nil {
		return OTP{}, fmt.Errorf("hash otp: %w", err)
	}
	expiresAt := m.now().Add(m.ttl)

	if err := m.users.UpdateOTP(ctx, user.ID, hash, expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OTP{}, ErrUserNotFound
		}
		return OTP{}, err
	}

	m.event(OTPEventIssued)
	return OTP{Code: code, ExpiresAt: expiresAt}, nil
}

// Verify consume el codigo pendiente si coincide y no expiro. El exito marca
// el email como verificado y borra el codigo en la misma escritura.
func (m *OTPManager) Verify(ctx context.Context, emailAddr, code string) (domain.User, error) {
	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" {
		return domain.User{}, ErrInvalidEmail
	}

	user, err := m.lookup(ctx, emailAddr)
	if err != nil {
		return domain.User{}, err
	}
	if user.VerifiedEmail {
		return domain.User{}, ErrAlreadyVerified
	}
	if !user.HasPendingOTP() {
		m.event(OTPEventRejected)
		return domain.User{}, ErrOTPInvalidOrExpired
	}
	if user.OtpAttempts >= m.maxAttempts {
		m.event(OTPEventLocked)
		return domain.User{}, ErrOTPTooManyAttempts
	}

	now := m.now()
	if !now.Before(*user.OtpExpiresAt) {
		m.event(OTPEventRejected)
		return domain.User{}, ErrOTPInvalidOrExpired
	}

	// El intento se cuenta antes de comparar: el contador de la base es el
	// unico limite que vale entre requests concurrentes.
	attempts, err := m.users.IncrementOTPAttempts(ctx, user.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("increment otp attempts: %w", err)
	}
	if attempts > m.maxAttempts {
		m.event(OTPEventLocked)
		return domain.User{}, ErrOTPTooManyAttempts
	}

	if !isValidOTPCode(code) || !verifyOTP(code, user.OtpCodeHash) {
		if attempts == m.maxAttempts {
			m.logger.Info("otp locked after failed attempts", zap.String("email", emailAddr), zap.Int("attempts", attempts))
		}
		m.event(OTPEventRejected)
		return domain.User{}, ErrOTPInvalidOrExpired
	}

	consumed, err := m.users.ConsumeOTP(ctx, user.ID, user.OtpCodeHash, now)
	if err != nil {
		return domain.User{}, err
	}
	if !consumed {
		// Otro request verifico o reemplazo el codigo entre la lectura y el update.
		current, err := m.lookup(ctx, emailAddr)
		if err != nil {
			return domain.User{}, err
		}
		if current.VerifiedEmail {
			return domain.User{}, ErrAlreadyVerified
		}
		m.event(OTPEventRejected)
		return domain.User{}, ErrOTPInvalidOrExpired
	}

	user.VerifiedEmail = true
	user.EmailVerifiedAt = &now
	user.OtpCodeHash = ""
	user.OtpExpiresAt = nil
	user.OtpAttempts = 0

	m.event(OTPEventVerified)
	return user, nil
}

func (m *OTPManager) lookup(ctx context.Context, emailAddr string) (domain.User, error) {
	user, err := m.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (m *OTPManager) event(name string) {
	if m.observer != nil {
		m.observer.OTPEvent(name)
	}
}

// generateOTPCode devuelve un entero uniforme en [100000, 999999].
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

// hashOTP guarda el codigo como "salt:sha256(salt:code)" en base64.
func hashOTP(code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	hashBytes := sha256.Sum256([]byte(saltStr + ":" + code))
	return saltStr + ":" + base64.StdEncoding.EncodeToString(hashBytes[:]), nil
}

func verifyOTP(code, stored string) bool {
	saltStr, expectedHash, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	hashBytes := sha256.Sum256([]byte(saltStr + ":" + code))
	hash := base64.StdEncoding.EncodeToString(hashBytes[:])
	return subtle.ConstantTimeCompare([]byte(hash), []byte(expectedHash)) == 1
}

func isValidOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
