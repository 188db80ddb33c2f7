package domain

import "time"

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	ThreadID  *string   `json:"thread_id,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMode selecciona el asistente remoto con el que se conversa.
type ChatMode string

const (
	ChatModeGeneral ChatMode = "general"
	ChatModeQA      ChatMode = "qa"
)

func (m ChatMode) Valid() bool {
	return m == ChatModeGeneral || m == ChatModeQA
}
