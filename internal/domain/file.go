package domain

import "time"

const (
	FileTypePDF   = "pdf"
	FileTypeImage = "image"
	FileTypeText  = "text"
)

type UploadedFile struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Content    string    `json:"content"`
	URL        string    `json:"url,omitempty"`
	StorageKey string    `json:"-"`
	Selected   bool      `json:"selected"`
	CreatedAt  time.Time `json:"created_at"`
}
