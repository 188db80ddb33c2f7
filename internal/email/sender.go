package email

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSenderDisabled indica que no hay EmailJS ni SMTP configurado.
var ErrSenderDisabled = errors.New("email sender disabled")

// Sender entrega el codigo OTP al usuario. Un error se informa al caller
// pero no revierte el codigo ya persistido.
type Sender interface {
	SendVerificationOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

// NewDisabledSender devuelve un Sender para despliegues sin proveedor de
// correo. Registrar y pedir codigos sigue funcionando; cada envio falla con
// ErrSenderDisabled y el codigo queda pendiente hasta que expire.
func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendVerificationOTP(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return ErrSenderDisabled
	}
	return fmt.Errorf("%w: %s", ErrSenderDisabled, s.reason)
}
