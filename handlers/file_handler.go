package handlers

import (
	"fmt"
	"io"
	"net/http"

	"contractdesk-backend/models"
	"contractdesk-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// FileHandler handles uploads and downloads of source files
type FileHandler struct {
	documents   *service.DocumentService
	maxFileSize int64
}

// NewFileHandler creates a new file handler
func NewFileHandler(documents *service.DocumentService, maxFileSize int64) *FileHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024 // 10MB
	}
	return &FileHandler{
		documents:   documents,
		maxFileSize: maxFileSize,
	}
}

// UploadDocument handles POST /api/documents/upload (multipart: file,
// owner_id, kind, title, folder_id)
func (h *FileHandler) UploadDocument(c *gin.Context) {
	ownerID, err := uuid.Parse(c.PostForm("owner_id"))
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_OWNER_ID", "owner_id is required and must be a uuid")
		return
	}
	folder := c.PostForm("folder_id")
	folderID, err := optionalUUID(&folder)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_FOLDER_ID", "Invalid folder_id format")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusBadRequest, "MISSING_FILE", "File is required")
		return
	}
	if fileHeader.Size > h.maxFileSize {
		abort(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		abort(c, http.StatusInternalServerError, "FILE_OPEN_ERROR", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		abort(c, http.StatusInternalServerError, "FILE_READ_ERROR", err.Error())
		return
	}

	result, err := h.documents.UploadDocument(c.Request.Context(), service.UploadDocumentRequest{
		OwnerID:  ownerID,
		Filename: fileHeader.Filename,
		Data:     data,
		Kind:     models.DocumentKind(c.PostForm("kind")),
		Title:    c.PostForm("title"),
		FolderID: folderID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, gin.H{
		"document": result.Document,
		"file": gin.H{
			"id":         result.File.ID,
			"filename":   result.File.Filename,
			"mime_type":  result.File.MimeType,
			"size":       result.File.Size,
			"created_at": result.File.CreatedAt,
		},
	})
}

// GetFile handles GET /api/files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	file, reader, err := h.documents.GetFile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, reader, nil)
}
