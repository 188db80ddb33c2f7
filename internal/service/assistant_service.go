package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"doc-chat/internal/llm"
)

const (
	defaultRunPollInterval   = time.Second
	defaultRunTimeout        = 60 * time.Second
	defaultMaxReferenceChars = 5000

	referenceLeadQuestion = "Reference the following content to answer my question:"
	referenceLeadPlain    = "Reference the following content:"
	noReferencesHint      = "No documents are selected. Please provide an answer based on general knowledge or indicate if specific information is required."
)

// Resultados reportados al RunObserver.
const (
	RunOutcomeCompleted = "completed"
	RunOutcomeFailed    = "failed"
	RunOutcomeTimeout   = "timeout"
	RunOutcomeCancelled = "cancelled"
	RunOutcomeNoReply   = "no_reply"
	RunOutcomeError     = "error"
)

// RunObserver recibe el resultado y la duracion de cada run (metricas).
type RunObserver interface {
	ObserveRun(outcome string, elapsed time.Duration)
}

// Reference es un documento que se adjunta como contexto al mensaje.
type Reference struct {
	Name    string
	Content string
}

// AskInput describe un intercambio con el asistente.
//
// PriorMessages se agregan al thread como mensajes de usuario antes del
// mensaje principal. ReferenceLead reemplaza la frase que introduce las
// referencias; NoReferencesHint se agrega solo cuando no hay referencias.
type AskInput struct {
	ThreadID         string
	AssistantID      string
	PriorMessages    []string
	Content          string
	References       []Reference
	ReferenceLead    string
	NoReferencesHint string
}

type AskResult struct {
	ThreadID      string
	Reply         string
	ThreadCreated bool
}

// PersistThreadFunc guarda un thread recien creado antes de iniciar el run.
type PersistThreadFunc func(ctx context.Context, threadID string) error

// AssistantService conduce un intercambio sincronico con el asistente remoto:
// mensaje, run, polling hasta un estado terminal y lectura de la respuesta.
type AssistantService struct {
	logger            *zap.Logger
	provider          llm.AssistantProvider
	pollInterval      time.Duration
	timeout           time.Duration
	maxReferenceChars int
	observer          RunObserver
}

type AssistantConfig struct {
	PollInterval      time.Duration
	Timeout           time.Duration
	MaxReferenceChars int
}

func NewAssistantService(logger *zap.Logger, provider llm.AssistantProvider, cfg AssistantConfig, observer RunObserver) *AssistantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultRunPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRunTimeout
	}
	if cfg.MaxReferenceChars <= 0 {
		cfg.MaxReferenceChars = defaultMaxReferenceChars
	}
	return &AssistantService{
		logger:            logger,
		provider:          provider,
		pollInterval:      cfg.PollInterval,
		timeout:           cfg.Timeout,
		maxReferenceChars: cfg.MaxReferenceChars,
		observer:          observer,
	}
}

// Ask crea el thread si hace falta, agrega los mensajes, lanza un run y espera
// su resultado. Los errores remotos no se reintentan.
func (s *AssistantService) Ask(ctx context.Context, in AskInput, persist PersistThreadFunc) (AskResult, error) {
	if s.provider == nil || strings.TrimSpace(in.AssistantID) == "" {
		return AskResult{}, ErrAssistantNotSet
	}

	result := AskResult{ThreadID: strings.TrimSpace(in.ThreadID)}
	if result.ThreadID == "" {
		threadID, err := s.provider.CreateThread(ctx)
		if err != nil {
			return AskResult{}, fmt.Errorf("create thread: %w", err)
		}
		result.ThreadID = threadID
		result.ThreadCreated = true
		if persist != nil {
			if err := persist(ctx, threadID); err != nil {
				return result, fmt.Errorf("persist thread: %w", err)
			}
		}
	}

	for _, prior := range in.PriorMessages {
		if strings.TrimSpace(prior) == "" {
			continue
		}
		if err := s.provider.CreateMessage(ctx, result.ThreadID, llm.RoleUser, prior); err != nil {
			return result, fmt.Errorf("create message: %w", err)
		}
	}
	if err := s.provider.CreateMessage(ctx, result.ThreadID, llm.RoleUser, s.ComposeMessage(in)); err != nil {
		return result, fmt.Errorf("create message: %w", err)
	}

	runID, err := s.provider.CreateRun(ctx, result.ThreadID, in.AssistantID)
	if err != nil {
		return result, fmt.Errorf("create run: %w", err)
	}

	started := time.Now()
	err = s.waitForRun(ctx, result.ThreadID, runID)
	if err != nil {
		s.observe(outcomeFor(err), started)
		s.logger.Warn("assistant run did not complete",
			zap.Error(err),
			zap.String("thread_id", result.ThreadID),
			zap.String("run_id", runID),
		)
		return result, err
	}

	reply, err := s.latestReply(ctx, result.ThreadID)
	if err != nil {
		s.observe(outcomeFor(err), started)
		return result, err
	}
	s.observe(RunOutcomeCompleted, started)

	result.Reply = reply
	return result, nil
}

// ComposeMessage arma el cuerpo del mensaje de usuario con las referencias
// truncadas y encabezadas por su nombre.
func (s *AssistantService) ComposeMessage(in AskInput) string {
	var b strings.Builder
	b.WriteString(in.Content)

	if len(in.References) == 0 {
		if in.NoReferencesHint != "" {
			b.WriteString("\n\n")
			b.WriteString(in.NoReferencesHint)
		}
		return b.String()
	}

	lead := in.ReferenceLead
	if lead == "" {
		lead = referenceLeadQuestion
	}
	b.WriteString("\n\n")
	b.WriteString(lead)
	b.WriteString("\n\n")
	for _, ref := range in.References {
		b.WriteString("--- ")
		b.WriteString(ref.Name)
		b.WriteString(" ---\n")
		b.WriteString(truncateRunes(ref.Content, s.maxReferenceChars))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (s *AssistantService) waitForRun(ctx context.Context, threadID, runID string) error {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		status, err := s.provider.GetRun(runCtx, threadID, runID)
		if err != nil {
			if ctxErr := deadlineError(ctx, runCtx); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("get run: %w", err)
		}
		if status.Terminal() {
			if status.Succeeded() {
				return nil
			}
			return &RunFailedError{RunID: runID, Status: status.State, Reason: status.LastError}
		}

		select {
		case <-runCtx.Done():
			return deadlineError(ctx, runCtx)
		case <-ticker.C:
		}
	}
}

func (s *AssistantService) latestReply(ctx context.Context, threadID string) (string, error) {
	messages, err := s.provider.ListMessages(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	for _, msg := range messages {
		if msg.Role != llm.RoleAssistant {
			continue
		}
		if text := msg.Text(); strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", ErrNoReply
}

func (s *AssistantService) observe(outcome string, started time.Time) {
	if s.observer != nil {
		s.observer.ObserveRun(outcome, time.Since(started))
	}
}

// deadlineError distingue la cancelacion del caller del vencimiento del run.
func deadlineError(parent, runCtx context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if runCtx.Err() != nil {
		return ErrRunTimeout
	}
	return nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrRunTimeout):
		return RunOutcomeTimeout
	case errors.Is(err, ErrRunFailed):
		return RunOutcomeFailed
	case errors.Is(err, ErrNoReply):
		return RunOutcomeNoReply
	case errors.Is(err, context.Canceled):
		return RunOutcomeCancelled
	default:
		return RunOutcomeError
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
