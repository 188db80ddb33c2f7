package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"doc-chat/internal/domain"
	"doc-chat/internal/extract"
	"doc-chat/internal/llm"
	"doc-chat/internal/repository"
	"doc-chat/internal/storage"
)

const (
	defaultPreviewChars = 1000
	defaultDownloadTTL  = 15 * time.Minute
	chatNameChars       = 20

	uploadSummaryPrefix   = "concise summary in 2 sentence, format in html, "
	uploadQuestionsPrefix = "Start Ask Question"
	noImageDescription    = "No description available."
)

// TextExtractor convierte los bytes subidos en texto de referencia.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (extract.Result, error)
}

type FileConfig struct {
	PreviewChars int
	DownloadTTL  time.Duration
}

// FileService maneja los documentos de referencia de cada chat.
type FileService struct {
	logger     *zap.Logger
	chats      repository.ChatRepository
	messages   repository.MessageRepository
	files      repository.FileRepository
	extractor  TextExtractor
	blobs      storage.BlobStore
	assistant  *AssistantService
	vision     llm.ImageDescriber
	assistants AssistantIDs
	cfg        FileConfig
}

// NewFileService construye el servicio. blobs y vision son opcionales.
func NewFileService(
	logger *zap.Logger,
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	files repository.FileRepository,
	extractor TextExtractor,
	blobs storage.BlobStore,
	assistant *AssistantService,
	vision llm.ImageDescriber,
	assistants AssistantIDs,
	cfg FileConfig,
) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = defaultPreviewChars
	}
	if cfg.DownloadTTL <= 0 {
		cfg.DownloadTTL = defaultDownloadTTL
	}
	return &FileService{
		logger:     logger,
		chats:      chats,
		messages:   messages,
		files:      files,
		extractor:  extractor,
		blobs:      blobs,
		assistant:  assistant,
		vision:     vision,
		assistants: assistants,
		cfg:        cfg,
	}
}

type UploadInput struct {
	UserID string
	ChatID string
	Name   string
	Data   []byte
	Mode   domain.ChatMode
}

type UploadOutput struct {
	File     domain.UploadedFile `json:"file"`
	ThreadID string              `json:"thread_id,omitempty"`
	Reply    *domain.Message     `json:"reply,omitempty"`
	Chat     *domain.Chat        `json:"chat,omitempty"`
}

// Upload guarda el archivo y le pide al asistente un resumen (general) o que
// empiece a preguntar (qa). El archivo queda guardado aunque el run falle.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (UploadOutput, error) {
	name := strings.TrimSpace(path.Base(strings.ReplaceAll(in.Name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return UploadOutput{}, ErrInvalidInput
	}
	if len(in.Data) == 0 {
		return UploadOutput{}, ErrEmptyFile
	}
	assistantID, err := s.assistants.For(in.Mode)
	if err != nil {
		return UploadOutput{}, err
	}
	if !isUUID(in.ChatID) {
		return UploadOutput{}, ErrChatNotFound
	}
	chat, err := s.chats.GetByID(ctx, in.ChatID, in.UserID)
	if err != nil {
		return UploadOutput{}, mapChatErr(err)
	}
	exists, err := s.files.ExistsByName(ctx, chat.ID, name)
	if err != nil {
		return UploadOutput{}, err
	}
	if exists {
		return UploadOutput{}, ErrDuplicateFile
	}

	extracted, err := s.extractor.Extract(ctx, in.Data)
	if err != nil {
		return UploadOutput{}, mapExtractErr(err)
	}

	file := domain.UploadedFile{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		Name:      name,
		Type:      extracted.Type,
		Content:   extracted.Text,
		Selected:  true,
		CreatedAt: time.Now().UTC(),
	}
	if s.blobs != nil {
		file.StorageKey = path.Join("chats", chat.ID, file.ID, name)
		if err := s.blobs.Put(ctx, file.StorageKey, extracted.MIME, in.Data); err != nil {
			return UploadOutput{}, err
		}
	} else if file.Type == domain.FileTypeImage {
		file.URL = extract.DataURL(extracted.MIME, in.Data)
	}
	if err := s.files.Create(ctx, file); err != nil {
		s.deleteBlob(ctx, file.StorageKey)
		return UploadOutput{}, err
	}
	out := UploadOutput{File: file}

	history, err := s.messages.ListByChatID(ctx, chat.ID)
	if err != nil {
		return out, err
	}
	if len(history) == 0 {
		renamed, err := s.chats.Update(ctx, chat.ID, in.UserID, truncateRunes(name, chatNameChars)+"...", nil)
		if err != nil {
			return out, mapChatErr(err)
		}
		chat = renamed
		out.Chat = &renamed
	}

	prefix := uploadQuestionsPrefix
	if in.Mode != domain.ChatModeQA {
		prefix = uploadSummaryPrefix
	}
	res, err := s.assistant.Ask(ctx, AskInput{
		ThreadID:      threadOf(chat),
		AssistantID:   assistantID,
		PriorMessages: []string{s.uploadNotice(file)},
		Content:       prefix,
		ReferenceLead: referenceLeadPlain,
		References:    []Reference{{Name: file.Name, Content: file.Content}},
	}, s.persistThread(in.UserID, chat.ID))
	out.ThreadID = res.ThreadID
	if err != nil {
		return out, err
	}

	reply := domain.Message{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		Content:   cleanSummaryReply(res.Reply),
		MsgBy:     domain.MessageByAssistant,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.messages.Create(ctx, reply); err != nil {
		return out, err
	}
	out.Reply = &reply
	return out, nil
}

func (s *FileService) uploadNotice(file domain.UploadedFile) string {
	preview := truncateRunes(file.Content, s.cfg.PreviewChars)
	switch file.Type {
	case domain.FileTypePDF:
		return fmt.Sprintf("I've uploaded a PDF named \"%s\". Here's the content: %s...", file.Name, preview)
	case domain.FileTypeImage:
		return fmt.Sprintf("I've uploaded an image named \"%s\". Here's the extracted text: %s...", file.Name, preview)
	default:
		return fmt.Sprintf("I've uploaded a text file named \"%s\". Here's the content: %s...", file.Name, preview)
	}
}

type CreateFileInput struct {
	ChatID   string `json:"chat_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	URL      string `json:"url"`
	Selected *bool  `json:"selected"`
}

// Create registra un archivo cuyo texto ya fue extraido por el cliente.
func (s *FileService) Create(ctx context.Context, userID string, in CreateFileInput) (domain.UploadedFile, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.ChatID) == "" {
		return domain.UploadedFile{}, ErrInvalidInput
	}
	switch in.Type {
	case domain.FileTypePDF, domain.FileTypeImage, domain.FileTypeText:
	default:
		return domain.UploadedFile{}, ErrUnsupportedFile
	}
	if !isUUID(in.ChatID) {
		return domain.UploadedFile{}, ErrChatNotFound
	}
	if _, err := s.chats.GetByID(ctx, in.ChatID, userID); err != nil {
		return domain.UploadedFile{}, mapChatErr(err)
	}
	exists, err := s.files.ExistsByName(ctx, in.ChatID, name)
	if err != nil {
		return domain.UploadedFile{}, err
	}
	if exists {
		return domain.UploadedFile{}, ErrDuplicateFile
	}

	selected := true
	if in.Selected != nil {
		selected = *in.Selected
	}
	file := domain.UploadedFile{
		ID:        uuid.NewString(),
		ChatID:    in.ChatID,
		Name:      name,
		Type:      in.Type,
		Content:   in.Content,
		URL:       strings.TrimSpace(in.URL),
		Selected:  selected,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.files.Create(ctx, file); err != nil {
		return domain.UploadedFile{}, err
	}
	return file, nil
}

func (s *FileService) List(ctx context.Context, userID string) ([]domain.UploadedFile, error) {
	files, err := s.files.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []domain.UploadedFile{}
	}
	return files, nil
}

// SetSelected marca si el archivo se usa como referencia en las preguntas.
func (s *FileService) SetSelected(ctx context.Context, userID, fileID string, selected bool) (domain.UploadedFile, error) {
	if !isUUID(fileID) {
		return domain.UploadedFile{}, ErrFileNotFound
	}
	file, err := s.files.UpdateSelected(ctx, fileID, userID, selected)
	if err != nil {
		return domain.UploadedFile{}, mapFileErr(err)
	}
	return file, nil
}

func (s *FileService) Delete(ctx context.Context, userID, fileID string) error {
	if !isUUID(fileID) {
		return ErrFileNotFound
	}
	file, err := s.files.GetByID(ctx, fileID, userID)
	if err != nil {
		return mapFileErr(err)
	}
	if err := s.files.Delete(ctx, file.ID, userID); err != nil {
		return mapFileErr(err)
	}
	s.deleteBlob(ctx, file.StorageKey)
	return nil
}

// DownloadURL devuelve una URL firmada si el original esta en el bucket, o la
// URL guardada en el registro.
func (s *FileService) DownloadURL(ctx context.Context, userID, fileID string) (string, error) {
	if !isUUID(fileID) {
		return "", ErrFileNotFound
	}
	file, err := s.files.GetByID(ctx, fileID, userID)
	if err != nil {
		return "", mapFileErr(err)
	}
	if file.StorageKey != "" && s.blobs != nil {
		return s.blobs.PresignGet(ctx, file.StorageKey, s.cfg.DownloadTTL)
	}
	if file.URL != "" {
		return file.URL, nil
	}
	return "", ErrFileNotFound
}

// AnalyzeImage describe una imagen (data URL o URL publica) con el modelo de
// vision.
func (s *FileService) AnalyzeImage(ctx context.Context, imageURL, prompt string) (string, error) {
	imageURL = strings.TrimSpace(imageURL)
	if !strings.HasPrefix(imageURL, "data:image/") &&
		!strings.HasPrefix(imageURL, "https://") &&
		!strings.HasPrefix(imageURL, "http://") {
		return "", ErrInvalidInput
	}
	if s.vision == nil {
		return "", ErrAssistantNotSet
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = extract.GraphPrompt
	}
	description, err := s.vision.DescribeImage(ctx, imageURL, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(description) == "" {
		return noImageDescription, nil
	}
	return description, nil
}

func (s *FileService) persistThread(userID, chatID string) PersistThreadFunc {
	return func(ctx context.Context, threadID string) error {
		if err := s.chats.SetThreadID(ctx, chatID, userID, threadID); err != nil {
			return mapChatErr(err)
		}
		return nil
	}
}

func (s *FileService) deleteBlob(ctx context.Context, key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("blob delete failed", zap.Error(err), zap.String("key", key))
	}
}

func mapFileErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrFileNotFound
	}
	return err
}

func mapExtractErr(err error) error {
	switch {
	case errors.Is(err, extract.ErrUnsupportedType):
		return fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	case errors.Is(err, extract.ErrEmptyContent):
		return ErrEmptyFile
	default:
		return err
	}
}
