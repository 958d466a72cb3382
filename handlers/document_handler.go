package handlers

import (
	"net/http"
	"strconv"

	"contractdesk-backend/models"
	"contractdesk-backend/repository"
	"contractdesk-backend/service"
	"contractdesk-backend/textmatch"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DocumentHandler handles HTTP requests for contracts and templates
type DocumentHandler struct {
	documents *service.DocumentService
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// CreateDocumentRequest represents the request body for creating a document
type CreateDocumentRequest struct {
	OwnerID  string  `json:"owner_id" binding:"required"`
	Kind     string  `json:"kind"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	FolderID *string `json:"folder_id"`
}

// CreateDocument handles POST /api/documents
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_OWNER_ID", "Invalid owner_id format")
		return
	}
	folderID, err := optionalUUID(req.FolderID)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_FOLDER_ID", "Invalid folder_id format")
		return
	}

	doc, err := h.documents.CreateDocument(c.Request.Context(), service.CreateDocumentRequest{
		OwnerID:  ownerID,
		Kind:     models.DocumentKind(req.Kind),
		Title:    req.Title,
		Content:  req.Content,
		FolderID: folderID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, doc)
}

// GetDocument handles GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, doc)
}

// ListDocuments handles GET /api/documents?owner_id=&kind=&folder_id=&limit=&offset=
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var f repository.DocumentFilter

	if v := c.Query("owner_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			abort(c, http.StatusBadRequest, "INVALID_OWNER_ID", "Invalid owner_id format")
			return
		}
		f.OwnerID = &id
	}
	if v := c.Query("folder_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			abort(c, http.StatusBadRequest, "INVALID_FOLDER_ID", "Invalid folder_id format")
			return
		}
		f.FolderID = &id
	}
	f.Kind = models.DocumentKind(c.Query("kind"))

	var err error
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a number")
		return
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "offset must be a number")
		return
	}

	docs, err := h.documents.ListDocuments(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, docs)
}

// UpdateDocumentRequest represents the request body for updating a document
type UpdateDocumentRequest struct {
	Title       *string `json:"title"`
	FolderID    *string `json:"folder_id"`
	ClearFolder bool    `json:"clear_folder"`
	Content     *string `json:"content"`
}

// UpdateDocument handles PUT /api/documents/:id
func (h *DocumentHandler) UpdateDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	folderID, err := optionalUUID(req.FolderID)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_FOLDER_ID", "Invalid folder_id format")
		return
	}

	doc, err := h.documents.UpdateDocument(c.Request.Context(), service.UpdateDocumentRequest{
		ID:          id,
		Title:       req.Title,
		FolderID:    folderID,
		ClearFolder: req.ClearFolder,
		Content:     req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.documents.DeleteDocument(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

// ListVersions handles GET /api/documents/:id/versions
func (h *DocumentHandler) ListVersions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	versions, err := h.documents.ListVersions(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, versions)
}

// RestoreVersion handles POST /api/documents/:id/versions/:version/restore
func (h *DocumentHandler) RestoreVersion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		abort(c, http.StatusBadRequest, "INVALID_VERSION", "version must be a positive number")
		return
	}
	doc, err := h.documents.RestoreVersion(c.Request.Context(), id, version)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, doc)
}

// EditRequest is one span edit in a replace request
type EditRequest struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Expected    string `json:"expected"`
	Replacement string `json:"replacement"`
}

// ReplaceTextRequest represents the request body for a replace
type ReplaceTextRequest struct {
	Find        string        `json:"find"`
	Replacement string        `json:"replacement"`
	All         bool          `json:"all"`
	Edits       []EditRequest `json:"edits"`
}

// ReplaceText handles POST /api/documents/:id/replace
func (h *DocumentHandler) ReplaceText(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req ReplaceTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	edits := make([]textmatch.Edit, 0, len(req.Edits))
	for _, e := range req.Edits {
		edits = append(edits, textmatch.Edit{
			Start:       e.Start,
			End:         e.End,
			Expected:    e.Expected,
			Replacement: e.Replacement,
		})
	}

	result, err := h.documents.ReplaceText(c.Request.Context(), service.ReplaceTextRequest{
		DocumentID:  id,
		Find:        req.Find,
		Replacement: req.Replacement,
		All:         req.All,
		Edits:       edits,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"document":     result.Document,
		"replacements": result.Replacements,
	})
}

// FillTemplateRequest represents the request body for filling a template
type FillTemplateRequest struct {
	OwnerID  *string           `json:"owner_id"`
	Title    string            `json:"title"`
	FolderID *string           `json:"folder_id"`
	Values   map[string]string `json:"values"`
}

// FillTemplate handles POST /api/documents/:id/fill
func (h *DocumentHandler) FillTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req FillTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	ownerID, err := optionalUUID(req.OwnerID)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_OWNER_ID", "Invalid owner_id format")
		return
	}
	folderID, err := optionalUUID(req.FolderID)
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_FOLDER_ID", "Invalid folder_id format")
		return
	}

	fillReq := service.FillTemplateRequest{
		TemplateID: id,
		Title:      req.Title,
		FolderID:   folderID,
		Values:     req.Values,
	}
	if ownerID != nil {
		fillReq.OwnerID = *ownerID
	}

	result, err := h.documents.FillTemplate(c.Request.Context(), fillReq)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{
		"document": result.Document,
		"missing":  result.Missing,
	})
}

// ResolveRisk handles POST /api/documents/:id/risks/:riskId/resolve
func (h *DocumentHandler) ResolveRisk(c *gin.Context) {
	h.setRiskResolved(c, true)
}

// UnresolveRisk handles DELETE /api/documents/:id/risks/:riskId/resolve
func (h *DocumentHandler) UnresolveRisk(c *gin.Context) {
	h.setRiskResolved(c, false)
}

func (h *DocumentHandler) setRiskResolved(c *gin.Context, resolved bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	riskID := c.Param("riskId")

	var (
		ids models.RiskIDs
		err error
	)
	if resolved {
		ids, err = h.documents.ResolveRisk(c.Request.Context(), id, riskID)
	} else {
		ids, err = h.documents.UnresolveRisk(c.Request.Context(), id, riskID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"resolved_risks": ids})
}
