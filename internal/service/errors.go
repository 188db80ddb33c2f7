package service

import (
	"errors"
	"fmt"

	"doc-chat/internal/llm"
)

// Errores de validacion: se devuelven tal cual al cliente como 400.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidEmail = errors.New("invalid email")
	ErrInvalidName  = errors.New("invalid name")
	ErrWeakPassword = errors.New("password must be at least 8 characters and include an uppercase letter and a number")
	ErrInvalidMode  = errors.New("invalid chat mode")
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrChatNotFound = errors.New("chat not found")
	ErrFileNotFound = errors.New("file not found")
)

var (
	ErrEmailInUse         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrRateLimited        = errors.New("rate limited")
)

// Errores del ciclo de vida del OTP.
var (
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrOTPInvalidOrExpired = errors.New("invalid or expired otp")
	ErrOTPTooManyAttempts  = errors.New("too many otp attempts")
)

// Errores del coordinador de runs. ErrRemoteUnavailable se reexporta para que
// los handlers no dependan del paquete llm.
var (
	ErrRemoteUnavailable = llm.ErrRemoteUnavailable
	ErrRunFailed         = errors.New("assistant run failed")
	ErrRunTimeout        = errors.New("assistant run timed out")
	ErrNoReply           = errors.New("assistant returned no reply")
	ErrAssistantNotSet   = errors.New("assistant not configured")
)

var (
	ErrDuplicateFile   = errors.New("a file with this name already exists in the chat")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
	ErrInvalidQuiz     = errors.New("assistant returned an invalid quiz")
)

// RunFailedError describe un run que termino en un estado distinto de completed.
type RunFailedError struct {
	RunID  string
	Status llm.RunState
	Reason string
}

func (e *RunFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("assistant run %s ended with status %s: %s", e.RunID, e.Status, e.Reason)
	}
	return fmt.Sprintf("assistant run %s ended with status %s", e.RunID, e.Status)
}

func (e *RunFailedError) Is(target error) bool {
	return target == ErrRunFailed
}
