package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"doc-chat/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateOTP(ctx context.Context, id, otpHash string, otpExpiresAt time.Time) error
	IncrementOTPAttempts(ctx context.Context, id string) (int, error)
	ConsumeOTP(ctx context.Context, id, otpHash string, verifiedAt time.Time) (bool, error)
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, first_name, last_name, email, password_hash, verified_email,
	email_verified_at, otp_code_hash, otp_expires_at, otp_attempts, created_at`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, first_name, last_name, email, password_hash, verified_email,
			email_verified_at, otp_code_hash, otp_expires_at, otp_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.VerifiedEmail,
		user.EmailVerifiedAt,
		nullableString(user.OtpCodeHash),
		user.OtpExpiresAt,
		user.OtpAttempts,
		user.CreatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(ctx, query, email)
}

// UpdateOTP sobrescribe cualquier codigo pendiente y reinicia el contador de intentos.
func (r *PgUserRepository) UpdateOTP(ctx context.Context, id, otpHash string, otpExpiresAt time.Time) error {
	const query = `
		UPDATE users
		SET otp_code_hash = $2, otp_expires_at = $3, otp_attempts = 0
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, otpHash, otpExpiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) IncrementOTPAttempts(ctx context.Context, id string) (int, error) {
	const query = `
		UPDATE users
		SET otp_attempts = otp_attempts + 1
		WHERE id = $1
		RETURNING otp_attempts
	`
	var attempts int
	if err := r.pool.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

// ConsumeOTP marca el email como verificado y borra el codigo en una sola
// sentencia. Solo aplica si el hash guardado sigue siendo otpHash.
func (r *PgUserRepository) ConsumeOTP(ctx context.Context, id, otpHash string, verifiedAt time.Time) (bool, error) {
	const query = `
		UPDATE users
		SET verified_email = TRUE,
			email_verified_at = $3,
			otp_code_hash = NULL,
			otp_expires_at = NULL,
			otp_attempts = 0
		WHERE id = $1 AND otp_code_hash = $2 AND verified_email = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, id, otpHash, verifiedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var (
		u       domain.User
		otpHash *string
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&u.VerifiedEmail,
		&u.EmailVerifiedAt,
		&otpHash,
		&u.OtpExpiresAt,
		&u.OtpAttempts,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}
	if err != nil {
		return domain.User{}, err
	}
	if otpHash != nil {
		u.OtpCodeHash = *otpHash
	}
	return u, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
