package http

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doc-chat/internal/domain"
	"doc-chat/internal/service"
)

const defaultMaxUploadBytes = 20 << 20

// ChatHandler mantiene dependencias para endpoints de chats, mensajes y
// preguntas al asistente.
type ChatHandler struct {
	logger         *zap.Logger
	chatServ       *service.ChatService
	fileServ       *service.FileService
	maxUploadBytes int64
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chatServ *service.ChatService, fileServ *service.FileService, maxUploadBytes int64) *ChatHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &ChatHandler{
		logger:         logger,
		chatServ:       chatServ,
		fileServ:       fileServ,
		maxUploadBytes: maxUploadBytes,
	}
}

// ListChats maneja GET /chats.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	chats, err := h.chatServ.List(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, err, "list chats")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat maneja GET /chats/:id.
func (h *ChatHandler) GetChat(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	chat, err := h.chatServ.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeServiceError(c, h.logger, err, "get chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// CreateChat maneja POST /chats.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, h.logger, err, "create chat")
			return
		}
	}
	chat, err := h.chatServ.Create(c.Request.Context(), userID, req.Name)
	if err != nil {
		writeServiceError(c, h.logger, err, "create chat")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// UpdateChat maneja PUT /chats/:id.
func (h *ChatHandler) UpdateChat(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req struct {
		Name     string  `json:"name"`
		ThreadID *string `json:"thread_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err, "update chat")
		return
	}
	chat, err := h.chatServ.Update(c.Request.Context(), userID, c.Param("id"), req.Name, req.ThreadID)
	if err != nil {
		writeServiceError(c, h.logger, err, "update chat")
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// DeleteChat maneja DELETE /chats/:id.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if err := h.chatServ.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeServiceError(c, h.logger, err, "delete chat")
		return
	}
	c.Status(http.StatusNoContent)
}

// AppendMessage maneja POST /chats/:id/messages.
func (h *ChatHandler) AppendMessage(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" binding:"required"`
		MsgBy   string `json:"msg_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err, "append message")
		return
	}
	msg, err := h.chatServ.AppendMessage(c.Request.Context(), userID, c.Param("id"), req.Content, req.MsgBy)
	if err != nil {
		writeServiceError(c, h.logger, err, "append message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// Ask maneja POST /chats/:id/ask. Bloquea hasta que el run termina o vence.
func (h *ChatHandler) Ask(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req struct {
		Question string          `json:"question" binding:"required"`
		Mode     domain.ChatMode `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err, "ask")
		return
	}
	out, err := h.chatServ.Ask(c.Request.Context(), userID, c.Param("id"), req.Question, req.Mode)
	if err != nil {
		writeServiceError(c, h.logger, err, "ask assistant")
		return
	}
	c.JSON(http.StatusOK, out)
}

// Quiz maneja POST /chats/:id/quiz.
func (h *ChatHandler) Quiz(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req struct {
		Mode domain.ChatMode `json:"mode"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, h.logger, err, "quiz")
			return
		}
	}
	if req.Mode == "" {
		req.Mode = domain.ChatModeQA
	}
	quiz, err := h.chatServ.GenerateQuiz(c.Request.Context(), userID, c.Param("id"), req.Mode)
	if err != nil {
		writeServiceError(c, h.logger, err, "generate quiz")
		return
	}
	c.JSON(http.StatusOK, gin.H{"quiz": quiz})
}

// SwitchMode maneja POST /chats/:id/mode.
func (h *ChatHandler) SwitchMode(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req struct {
		Mode domain.ChatMode `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err, "switch mode")
		return
	}
	msg, err := h.chatServ.SwitchMode(c.Request.Context(), userID, c.Param("id"), req.Mode)
	if err != nil {
		writeServiceError(c, h.logger, err, "switch mode")
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode, "message": msg})
}

// UploadFile maneja POST /chats/:id/files (multipart, campo "file").
func (h *ChatHandler) UploadFile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		writeBindError(c, h.logger, err, "upload file")
		return
	}
	if header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := header.Open()
	if err != nil {
		h.logger.Error("open upload failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		h.logger.Error("read upload failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	out, err := h.fileServ.Upload(c.Request.Context(), service.UploadInput{
		UserID: userID,
		ChatID: c.Param("id"),
		Name:   header.Filename,
		Data:   data,
		Mode:   domain.ChatMode(c.PostForm("mode")),
	})
	if err != nil {
		if out.File.ID == "" {
			writeServiceError(c, h.logger, err, "upload file")
			return
		}
		h.logger.Warn("file stored but assistant summary failed", zap.Error(err), zap.String("file_id", out.File.ID))
		extra := gin.H{"file": out.File}
		if out.Chat != nil {
			extra["chat"] = out.Chat
		}
		if out.ThreadID != "" {
			extra["thread_id"] = out.ThreadID
		}
		writeServiceErrorWith(c, h.logger, err, "upload file", extra)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// requireUserID lee el dueño fijado por JWTAuthMiddleware.
func requireUserID(c *gin.Context) (string, bool) {
	userID, ok := OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errMissingToken.Error()})
		return "", false
	}
	return userID, true
}
