package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"doc-chat/internal/domain"
)

// FileRepository persiste archivos subidos. La propiedad se resuelve a
// traves del chat dueño del archivo.
type FileRepository interface {
	Create(ctx context.Context, file domain.UploadedFile) error
	ListByUser(ctx context.Context, userID string) ([]domain.UploadedFile, error)
	ListSelectedByChat(ctx context.Context, chatID string) ([]domain.UploadedFile, error)
	GetByID(ctx context.Context, id, userID string) (domain.UploadedFile, error)
	UpdateSelected(ctx context.Context, id, userID string, selected bool) (domain.UploadedFile, error)
	Delete(ctx context.Context, id, userID string) error
	ExistsByName(ctx context.Context, chatID, name string) (bool, error)
}

type PgFileRepository struct {
	pool *pgxpool.Pool
}

func NewPgFileRepository(pool *pgxpool.Pool) *PgFileRepository {
	return &PgFileRepository{pool: pool}
}

const fileColumns = `f.id, f.chat_id, f.name, f.type, f.content, f.url, f.storage_key, f.selected, f.created_at`

func (r *PgFileRepository) Create(ctx context.Context, file domain.UploadedFile) error {
	const query = `
		INSERT INTO uploaded_files (id, chat_id, name, type, content, url, storage_key, selected, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		file.ID,
		file.ChatID,
		file.Name,
		file.Type,
		file.Content,
		nullableString(file.URL),
		nullableString(file.StorageKey),
		file.Selected,
		file.CreatedAt,
	)
	return err
}

func (r *PgFileRepository) ListByUser(ctx context.Context, userID string) ([]domain.UploadedFile, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM uploaded_files f
		JOIN chats c ON c.id = f.chat_id
		WHERE c.user_id = $1
		ORDER BY f.created_at ASC
	`
	return r.list(ctx, query, userID)
}

func (r *PgFileRepository) ListSelectedByChat(ctx context.Context, chatID string) ([]domain.UploadedFile, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM uploaded_files f
		WHERE f.chat_id = $1 AND f.selected = TRUE
		ORDER BY f.created_at ASC
	`
	return r.list(ctx, query, chatID)
}

func (r *PgFileRepository) GetByID(ctx context.Context, id, userID string) (domain.UploadedFile, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM uploaded_files f
		JOIN chats c ON c.id = f.chat_id
		WHERE f.id = $1 AND c.user_id = $2
	`
	file, err := scanFile(r.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UploadedFile{}, err
	}
	return file, err
}

func (r *PgFileRepository) UpdateSelected(ctx context.Context, id, userID string, selected bool) (domain.UploadedFile, error) {
	query := `
		UPDATE uploaded_files f
		SET selected = $3
		FROM chats c
		WHERE f.id = $1 AND c.id = f.chat_id AND c.user_id = $2
		RETURNING ` + fileColumns
	file, err := scanFile(r.pool.QueryRow(ctx, query, id, userID, selected))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UploadedFile{}, err
	}
	return file, err
}

func (r *PgFileRepository) Delete(ctx context.Context, id, userID string) error {
	const query = `
		DELETE FROM uploaded_files f
		USING chats c
		WHERE f.id = $1 AND c.id = f.chat_id AND c.user_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgFileRepository) ExistsByName(ctx context.Context, chatID, name string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM uploaded_files WHERE chat_id = $1 AND name = $2)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, chatID, name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgFileRepository) list(ctx context.Context, query string, arg any) ([]domain.UploadedFile, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []domain.UploadedFile
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

func scanFile(row pgx.Row) (domain.UploadedFile, error) {
	var (
		f          domain.UploadedFile
		url        *string
		storageKey *string
	)
	err := row.Scan(
		&f.ID,
		&f.ChatID,
		&f.Name,
		&f.Type,
		&f.Content,
		&url,
		&storageKey,
		&f.Selected,
		&f.CreatedAt,
	)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	if url != nil {
		f.URL = *url
	}
	if storageKey != nil {
		f.StorageKey = *storageKey
	}
	return f, nil
}
