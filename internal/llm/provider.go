package llm

import (
	"context"
	"errors"
)

// ErrRemoteUnavailable envuelve cualquier fallo de red o de la API remota.
var ErrRemoteUnavailable = errors.New("remote assistant unavailable")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AssistantProvider expone solo las operaciones del asistente remoto con
// estado (threads, mensajes y runs) que usa el coordinador.
type AssistantProvider interface {
	CreateThread(ctx context.Context) (string, error)
	CreateMessage(ctx context.Context, threadID, role, content string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (string, error)
	GetRun(ctx context.Context, threadID, runID string) (RunStatus, error)
	// ListMessages devuelve los mensajes del thread, el mas reciente primero.
	ListMessages(ctx context.Context, threadID string) ([]ThreadMessage, error)
}

// ThreadMessage es un mensaje del thread remoto ya aplanado a texto.
type ThreadMessage struct {
	ID    string
	Role  string
	Texts []string
}

// Text devuelve el primer bloque de texto no vacio.
func (m ThreadMessage) Text() string {
	for _, t := range m.Texts {
		if t != "" {
			return t
		}
	}
	return ""
}
