package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doc-chat/internal/service"
)

// FileHandler expone los archivos de referencia del usuario.
type FileHandler struct {
	logger   *zap.Logger
	fileServ *service.FileService
}

func NewFileHandler(logger *zap.Logger, fileServ *service.FileService) *FileHandler {
	return &FileHandler{logger: logger, fileServ: fileServ}
}

// ListFiles maneja GET /files.
func (h *FileHandler) ListFiles(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	files, err := h.fileServ.List(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, h.logger, err, "list files")
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// CreateFile maneja POST /files con texto ya extraido.
func (h *FileHandler) CreateFile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req service.CreateFileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err, "create file")
		return
	}
	file, err := h.fileServ.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeServiceError(c, h.logger, err, "create file")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": file})
}

// UpdateFile maneja PUT /files/:id.
func (h *FileHandler) UpdateFile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req struct {
		Selected *bool `json:"selected" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err, "update file")
		return
	}
	file, err := h.fileServ.SetSelected(c.Request.Context(), userID, c.Param("id"), *req.Selected)
	if err != nil {
		writeServiceError(c, h.logger, err, "update file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": file})
}

// DeleteFile maneja DELETE /files/:id.
func (h *FileHandler) DeleteFile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if err := h.fileServ.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeServiceError(c, h.logger, err, "delete file")
		return
	}
	c.Status(http.StatusNoContent)
}

// DownloadFile maneja GET /files/:id/download.
func (h *FileHandler) DownloadFile(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	url, err := h.fileServ.DownloadURL(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeServiceError(c, h.logger, err, "download file")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// AnalyzeImage maneja POST /analyze-image.
func (h *FileHandler) AnalyzeImage(c *gin.Context) {
	var req struct {
		Base64Image string `json:"base64Image" binding:"required"`
		Prompt      string `json:"prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err, "analyze image")
		return
	}
	description, err := h.fileServ.AnalyzeImage(c.Request.Context(), req.Base64Image, req.Prompt)
	if err != nil {
		writeServiceError(c, h.logger, err, "analyze image")
		return
	}
	c.JSON(http.StatusOK, gin.H{"description": description})
}
