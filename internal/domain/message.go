package domain

import "time"

const (
	MessageByUser      = "USER"
	MessageByAssistant = "ASSISTANT"
)

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Content   string    `json:"content"`
	MsgBy     string    `json:"msg_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Message) IsUser() bool {
	return m.MsgBy == MessageByUser
}
