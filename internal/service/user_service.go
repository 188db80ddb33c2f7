package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"doc-chat/internal/domain"
	"doc-chat/internal/email"
	"doc-chat/internal/repository"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserService coordina registro, verificacion de email y login.
type UserService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	otp         *OTPManager
	emailSender email.Sender
	otpLimiter  OTPRateLimiter
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, otp *OTPManager, emailSender email.Sender, otpLimiter OTPRateLimiter) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if otpLimiter == nil {
		otpLimiter = NewOTPRateLimiter(10*time.Minute, 3)
	}
	return &UserService{
		logger:      logger,
		users:       users,
		otp:         otp,
		emailSender: emailSender,
		otpLimiter:  otpLimiter,
	}
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register crea un usuario sin verificar y le envia el primer codigo. Si el
// envio falla el usuario y el codigo quedan persistidos y se devuelve
// ErrEmailSendFailure junto con el usuario.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	if s.users == nil || s.otp == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	firstName := strings.TrimSpace(input.FirstName)
	lastName := strings.TrimSpace(input.LastName)
	emailAddr := normalizeEmail(input.Email)
	password := input.Password

	if firstName == "" || lastName == "" || emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidInput
	}
	if utf8.RuneCountInString(firstName) < 2 || utf8.RuneCountInString(lastName) < 2 {
		return domain.User{}, ErrInvalidName
	}
	if !emailPattern.MatchString(emailAddr) {
		return domain.User{}, ErrInvalidEmail
	}
	if !isStrongPassword(password) {
		return domain.User{}, ErrWeakPassword
	}

	_, err := s.users.GetByEmail(ctx, emailAddr)
	if err == nil {
		return domain.User{}, ErrEmailInUse
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           uuid.NewString(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        emailAddr,
		PasswordHash: string(hashBytes),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return domain.User{}, err
	}

	otp, err := s.otp.Issue(ctx, emailAddr)
	if err != nil {
		return user, err
	}
	user.OtpExpiresAt = &otp.ExpiresAt

	if err := s.deliver(ctx, emailAddr, otp); err != nil {
		return user, err
	}
	return user, nil
}

// SendOTP reemite el codigo de un usuario pendiente de verificacion.
func (s *UserService) SendOTP(ctx context.Context, emailAddr string) (OTP, error) {
	if s.otp == nil {
		return OTP{}, errors.New("user service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || !emailPattern.MatchString(emailAddr) {
		return OTP{}, ErrInvalidEmail
	}
	if s.otpLimiter != nil && !s.otpLimiter.Allow(ctx, emailAddr) {
		return OTP{}, ErrRateLimited
	}

	otp, err := s.otp.Issue(ctx, emailAddr)
	if err != nil {
		return OTP{}, err
	}
	if err := s.deliver(ctx, emailAddr, otp); err != nil {
		return OTP{ExpiresAt: otp.ExpiresAt}, err
	}
	return OTP{ExpiresAt: otp.ExpiresAt}, nil
}

func (s *UserService) VerifyEmail(ctx context.Context, emailAddr, code string) (domain.User, error) {
	if s.otp == nil {
		return domain.User{}, errors.New("user service not configured")
	}
	return s.otp.Verify(ctx, emailAddr, code)
}

func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.VerifiedEmail {
		return domain.User{}, ErrEmailNotVerified
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) deliver(ctx context.Context, emailAddr string, otp OTP) error {
	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	if err := s.emailSender.SendVerificationOTP(ctx, emailAddr, otp.Code, otp.ExpiresAt); err != nil {
		s.logger.Warn("send verification otp failed", zap.Error(err), zap.String("email", emailAddr))
		return ErrEmailSendFailure
	}
	return nil
}

func isStrongPassword(password string) bool {
	if utf8.RuneCountInString(password) < 8 {
		return false
	}
	var hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasUpper && hasDigit
}
