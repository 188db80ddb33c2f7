package domain

import "time"

type User struct {
	ID              string     `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	VerifiedEmail   bool       `json:"verified_email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	OtpCodeHash     string     `json:"-"`
	OtpExpiresAt    *time.Time `json:"otp_expires_at,omitempty"`
	OtpAttempts     int        `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasPendingOTP indica si hay un codigo emitido y aun no consumido.
func (u User) HasPendingOTP() bool {
	return u.OtpCodeHash != "" && u.OtpExpiresAt != nil
}
