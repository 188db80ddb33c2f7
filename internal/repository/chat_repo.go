package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"doc-chat/internal/domain"
)

// ChatRepository persiste chats. Toda mutacion filtra por user_id; si no
// afecta filas devuelve pgx.ErrNoRows.
type ChatRepository interface {
	Create(ctx context.Context, chat domain.Chat) error
	ListByUser(ctx context.Context, userID string) ([]domain.Chat, error)
	GetByID(ctx context.Context, id, userID string) (domain.Chat, error)
	Update(ctx context.Context, id, userID, name string, threadID *string) (domain.Chat, error)
	SetThreadID(ctx context.Context, id, userID, threadID string) error
	Delete(ctx context.Context, id, userID string) error
}

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

func (r *PgChatRepository) Create(ctx context.Context, chat domain.Chat) error {
	const query = `
		INSERT INTO chats (id, user_id, name, thread_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		chat.ID,
		chat.UserID,
		chat.Name,
		chat.ThreadID,
		chat.CreatedAt,
	)
	return err
}

func (r *PgChatRepository) ListByUser(ctx context.Context, userID string) ([]domain.Chat, error) {
	const query = `
		SELECT id, user_id, name, thread_id, created_at
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []domain.Chat
	for rows.Next() {
		var c domain.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.ThreadID, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *PgChatRepository) GetByID(ctx context.Context, id, userID string) (domain.Chat, error) {
	const query = `
		SELECT id, user_id, name, thread_id, created_at
		FROM chats
		WHERE id = $1 AND user_id = $2
	`
	var c domain.Chat
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(&c.ID, &c.UserID, &c.Name, &c.ThreadID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Chat{}, err
	}
	return c, err
}

// Update cambia nombre y thread. Un threadID nil conserva el valor actual.
func (r *PgChatRepository) Update(ctx context.Context, id, userID, name string, threadID *string) (domain.Chat, error) {
	const query = `
		UPDATE chats
		SET name = $3, thread_id = COALESCE($4, thread_id)
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, name, thread_id, created_at
	`
	var c domain.Chat
	err := r.pool.QueryRow(ctx, query, id, userID, name, threadID).Scan(&c.ID, &c.UserID, &c.Name, &c.ThreadID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Chat{}, err
	}
	return c, err
}

func (r *PgChatRepository) SetThreadID(ctx context.Context, id, userID, threadID string) error {
	const query = `UPDATE chats SET thread_id = $3 WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, userID, threadID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgChatRepository) Delete(ctx context.Context, id, userID string) error {
	const query = `DELETE FROM chats WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
