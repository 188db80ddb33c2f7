package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"doc-chat/internal/domain"
	"doc-chat/internal/llm"
	"doc-chat/internal/repository"
)

const (
	defaultChatName       = "New Chat"
	generalWelcomeMessage = "Welcome to General Chat! How can I assist you today?"
	quizRequestLead       = "Generate a multiple-choice question based on the following content:"
	quizNoReferencesHint  = "No documents are selected. Generate a general knowledge question."
	quizFormatInstruction = "Format the response as a JSON string with a 'question' object (id, text, type) and an 'options' array (id, text, isCorrect)."
	quizRepairPrompt      = "Rewrite the following multiple-choice question as a single JSON object with a 'question' object (id, text, type) and an 'options' array (id, text, isCorrect). Reply with the JSON only.\n\n"
)

// AssistantIDs asocia cada modo de chat con un asistente remoto.
type AssistantIDs struct {
	General string
	QA      string
}

func (a AssistantIDs) For(mode domain.ChatMode) (string, error) {
	var id string
	switch mode {
	case domain.ChatModeGeneral, "":
		id = a.General
	case domain.ChatModeQA:
		id = a.QA
	default:
		return "", ErrInvalidMode
	}
	if strings.TrimSpace(id) == "" {
		return "", ErrAssistantNotSet
	}
	return id, nil
}

// ChatService maneja chats, su historial y las preguntas al asistente.
type ChatService struct {
	logger     *zap.Logger
	chats      repository.ChatRepository
	messages   repository.MessageRepository
	files      repository.FileRepository
	assistant  *AssistantService
	provider   llm.AssistantProvider
	assistants AssistantIDs
	formatter  llm.LLMClient
}

// NewChatService construye el servicio. formatter es opcional y solo se usa
// para reparar quizzes que el asistente devuelve fuera de formato.
func NewChatService(
	logger *zap.Logger,
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	files repository.FileRepository,
	assistant *AssistantService,
	provider llm.AssistantProvider,
	assistants AssistantIDs,
	formatter llm.LLMClient,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		logger:     logger,
		chats:      chats,
		messages:   messages,
		files:      files,
		assistant:  assistant,
		provider:   provider,
		assistants: assistants,
		formatter:  formatter,
	}
}

// List devuelve los chats del usuario, el mas nuevo primero, con sus mensajes
// en orden cronologico.
func (s *ChatService) List(ctx context.Context, userID string) ([]domain.Chat, error) {
	chats, err := s.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		msgs, err := s.messages.ListByChatID(ctx, chats[i].ID)
		if err != nil {
			return nil, err
		}
		chats[i].Messages = nonNilMessages(msgs)
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	return chats, nil
}

func (s *ChatService) Get(ctx context.Context, userID, chatID string) (domain.Chat, error) {
	if !isUUID(chatID) {
		return domain.Chat{}, ErrChatNotFound
	}
	chat, err := s.chats.GetByID(ctx, chatID, userID)
	if err != nil {
		return domain.Chat{}, mapChatErr(err)
	}
	msgs, err := s.messages.ListByChatID(ctx, chat.ID)
	if err != nil {
		return domain.Chat{}, err
	}
	chat.Messages = nonNilMessages(msgs)
	return chat, nil
}

func (s *ChatService) Create(ctx context.Context, userID, name string) (domain.Chat, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Chat{}, ErrInvalidInput
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultChatName
	}
	chat := domain.Chat{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Messages:  []domain.Message{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// Update renombra el chat y opcionalmente fija su thread. Un nombre vacio
// conserva el actual.
func (s *ChatService) Update(ctx context.Context, userID, chatID, name string, threadID *string) (domain.Chat, error) {
	if !isUUID(chatID) {
		return domain.Chat{}, ErrChatNotFound
	}
	name = strings.TrimSpace(name)
	if name == "" {
		current, err := s.chats.GetByID(ctx, chatID, userID)
		if err != nil {
			return domain.Chat{}, mapChatErr(err)
		}
		name = current.Name
	}
	if threadID != nil && strings.TrimSpace(*threadID) == "" {
		threadID = nil
	}
	chat, err := s.chats.Update(ctx, chatID, userID, name, threadID)
	if err != nil {
		return domain.Chat{}, mapChatErr(err)
	}
	chat.Messages = []domain.Message{}
	return chat, nil
}

func (s *ChatService) Delete(ctx context.Context, userID, chatID string) error {
	if !isUUID(chatID) {
		return ErrChatNotFound
	}
	return mapChatErr(s.chats.Delete(ctx, chatID, userID))
}

// AppendMessage guarda un mensaje en el historial de un chat propio.
func (s *ChatService) AppendMessage(ctx context.Context, userID, chatID, content, msgBy string) (domain.Message, error) {
	if !isUUID(chatID) {
		return domain.Message{}, ErrChatNotFound
	}
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, ErrInvalidInput
	}
	if msgBy == "" {
		msgBy = domain.MessageByUser
	}
	if msgBy != domain.MessageByUser && msgBy != domain.MessageByAssistant {
		return domain.Message{}, ErrInvalidInput
	}
	if _, err := s.chats.GetByID(ctx, chatID, userID); err != nil {
		return domain.Message{}, mapChatErr(err)
	}
	return s.saveMessage(ctx, chatID, content, msgBy)
}

type AskOutput struct {
	ThreadID         string         `json:"thread_id"`
	UserMessage      domain.Message `json:"user_message"`
	AssistantMessage domain.Message `json:"assistant_message"`
}

// Ask envia la pregunta al asistente del modo elegido usando los archivos
// seleccionados del chat como referencias.
func (s *ChatService) Ask(ctx context.Context, userID, chatID, question string, mode domain.ChatMode) (AskOutput, error) {
	if !isUUID(chatID) {
		return AskOutput{}, ErrChatNotFound
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return AskOutput{}, ErrInvalidInput
	}
	assistantID, err := s.assistants.For(mode)
	if err != nil {
		return AskOutput{}, err
	}
	chat, err := s.chats.GetByID(ctx, chatID, userID)
	if err != nil {
		return AskOutput{}, mapChatErr(err)
	}
	refs, err := s.references(ctx, chat.ID)
	if err != nil {
		return AskOutput{}, err
	}

	userMsg, err := s.saveMessage(ctx, chat.ID, question, domain.MessageByUser)
	if err != nil {
		return AskOutput{}, err
	}

	res, err := s.assistant.Ask(ctx, AskInput{
		ThreadID:         threadOf(chat),
		AssistantID:      assistantID,
		Content:          question,
		References:       refs,
		NoReferencesHint: noReferencesHint,
	}, s.persistThread(userID, chat.ID))
	if err != nil {
		return AskOutput{ThreadID: res.ThreadID, UserMessage: userMsg}, err
	}

	assistantMsg, err := s.saveMessage(ctx, chat.ID, res.Reply, domain.MessageByAssistant)
	if err != nil {
		return AskOutput{}, err
	}
	return AskOutput{ThreadID: res.ThreadID, UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// GenerateQuiz pide una pregunta de opcion multiple sobre los archivos
// seleccionados y guarda el JSON devuelto como mensaje del asistente.
func (s *ChatService) GenerateQuiz(ctx context.Context, userID, chatID string, mode domain.ChatMode) (domain.QuizQuestion, error) {
	if !isUUID(chatID) {
		return domain.QuizQuestion{}, ErrChatNotFound
	}
	assistantID, err := s.assistants.For(mode)
	if err != nil {
		return domain.QuizQuestion{}, err
	}
	chat, err := s.chats.GetByID(ctx, chatID, userID)
	if err != nil {
		return domain.QuizQuestion{}, mapChatErr(err)
	}
	refs, err := s.references(ctx, chat.ID)
	if err != nil {
		return domain.QuizQuestion{}, err
	}

	var b strings.Builder
	b.WriteString(quizRequestLead)
	b.WriteString("\n\n")
	if len(refs) == 0 {
		b.WriteString(quizNoReferencesHint)
	}
	for _, ref := range refs {
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", ref.Name, truncateRunes(ref.Content, s.assistant.maxReferenceChars))
	}
	b.WriteString(quizFormatInstruction)

	res, err := s.assistant.Ask(ctx, AskInput{
		ThreadID:    threadOf(chat),
		AssistantID: assistantID,
		Content:     b.String(),
	}, s.persistThread(userID, chat.ID))
	if err != nil {
		return domain.QuizQuestion{}, err
	}

	raw := res.Reply
	quiz, err := ParseQuiz(raw)
	if err != nil && s.formatter != nil {
		s.logger.Warn("assistant quiz unparseable, reformatting", zap.Error(err), zap.String("chat_id", chat.ID))
		raw, err = s.formatter.Generate(ctx, quizRepairPrompt+res.Reply)
		if err == nil {
			quiz, err = ParseQuiz(raw)
		}
	}
	if err != nil {
		s.logger.Warn("assistant quiz unparseable", zap.Error(err), zap.String("chat_id", chat.ID))
		return domain.QuizQuestion{}, err
	}
	if _, err := s.saveMessage(ctx, chat.ID, stripCodeFence(raw), domain.MessageByAssistant); err != nil {
		return domain.QuizQuestion{}, err
	}
	return quiz, nil
}

// SwitchMode cambia de asistente. Al pasar a general se publica un saludo en
// el thread y en el historial; qa no deja rastro.
func (s *ChatService) SwitchMode(ctx context.Context, userID, chatID string, mode domain.ChatMode) (*domain.Message, error) {
	if !isUUID(chatID) {
		return nil, ErrChatNotFound
	}
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	chat, err := s.chats.GetByID(ctx, chatID, userID)
	if err != nil {
		return nil, mapChatErr(err)
	}
	if mode != domain.ChatModeGeneral {
		return nil, nil
	}
	if s.provider == nil {
		return nil, ErrAssistantNotSet
	}

	threadID := threadOf(chat)
	if threadID == "" {
		threadID, err = s.provider.CreateThread(ctx)
		if err != nil {
			return nil, fmt.Errorf("create thread: %w", err)
		}
		if err := s.persistThread(userID, chat.ID)(ctx, threadID); err != nil {
			return nil, err
		}
	}
	if err := s.provider.CreateMessage(ctx, threadID, llm.RoleAssistant, generalWelcomeMessage); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	msg, err := s.saveMessage(ctx, chat.ID, generalWelcomeMessage, domain.MessageByAssistant)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *ChatService) references(ctx context.Context, chatID string) ([]Reference, error) {
	if s.files == nil {
		return nil, nil
	}
	files, err := s.files.ListSelectedByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	refs := make([]Reference, 0, len(files))
	for _, f := range files {
		refs = append(refs, Reference{Name: f.Name, Content: f.Content})
	}
	return refs, nil
}

func (s *ChatService) persistThread(userID, chatID string) PersistThreadFunc {
	return func(ctx context.Context, threadID string) error {
		if err := s.chats.SetThreadID(ctx, chatID, userID, threadID); err != nil {
			s.logger.Warn("persist thread id failed", zap.Error(err), zap.String("chat_id", chatID), zap.String("thread_id", threadID))
			return mapChatErr(err)
		}
		return nil
	}
}

func (s *ChatService) saveMessage(ctx context.Context, chatID, content, msgBy string) (domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   content,
		MsgBy:     msgBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func threadOf(chat domain.Chat) string {
	if chat.ThreadID == nil {
		return ""
	}
	return *chat.ThreadID
}

func nonNilMessages(msgs []domain.Message) []domain.Message {
	if msgs == nil {
		return []domain.Message{}
	}
	return msgs
}

// isUUID filtra ids que la columna uuid rechazaria con un error de cast.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func mapChatErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrChatNotFound
	}
	return err
}
