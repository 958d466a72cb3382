package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"contractdesk-backend/extract"
	"contractdesk-backend/logger"
	"contractdesk-backend/models"
	"contractdesk-backend/repository"
	"contractdesk-backend/storage"
	"contractdesk-backend/textmatch"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const defaultMaxUploadBytes = 10 << 20

// DocumentService handles contracts, templates and their versions
type DocumentService struct {
	docs           DocumentStore
	versions       VersionStore
	files          FileStore
	storage        storage.Storage
	log            logger.ILogger
	maxUploadBytes int64
	staleAfter     time.Duration
	now            func() time.Time
}

// DocumentServiceOption is a functional option for DocumentService
type DocumentServiceOption func(*DocumentService)

// WithDocumentStore sets the document store
func WithDocumentStore(docs DocumentStore) DocumentServiceOption {
	return func(s *DocumentService) {
		s.docs = docs
	}
}

// WithVersionStore sets the version store
func WithVersionStore(versions VersionStore) DocumentServiceOption {
	return func(s *DocumentService) {
		s.versions = versions
	}
}

// WithFileStore sets the file record store
func WithFileStore(files FileStore) DocumentServiceOption {
	return func(s *DocumentService) {
		s.files = files
	}
}

// WithStorage sets the blob storage for uploads
func WithStorage(st storage.Storage) DocumentServiceOption {
	return func(s *DocumentService) {
		s.storage = st
	}
}

// WithLogger sets the logger
func WithLogger(l logger.ILogger) DocumentServiceOption {
	return func(s *DocumentService) {
		s.log = l
	}
}

// WithMaxUploadBytes limits upload size
func WithMaxUploadBytes(n int64) DocumentServiceOption {
	return func(s *DocumentService) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithStaleAfter sets how long an analysis claim blocks content edits
func WithStaleAfter(d time.Duration) DocumentServiceOption {
	return func(s *DocumentService) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// NewDocumentService creates a new document service
func NewDocumentService(opts ...DocumentServiceOption) *DocumentService {
	s := &DocumentService{
		log:            logger.NewNopLogger(),
		maxUploadBytes: defaultMaxUploadBytes,
		staleAfter:     defaultStaleAfter,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDocumentRequest represents a request to create a document
type CreateDocumentRequest struct {
	OwnerID  uuid.UUID
	Kind     models.DocumentKind
	Title    string
	Content  string
	FolderID *uuid.UUID
	FileID   *uuid.UUID
}

// CreateDocument creates a contract or template
func (s *DocumentService) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*models.Document, error) {
	if s.docs == nil {
		return nil, errors.New("document store not set")
	}
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidRequest)
	}
	if req.Kind == "" {
		req.Kind = models.KindContract
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled " + string(req.Kind)
	}

	doc := &models.Document{
		OwnerID:        req.OwnerID,
		Kind:           req.Kind,
		Title:          title,
		Content:        req.Content,
		FolderID:       req.FolderID,
		FileID:         req.FileID,
		AnalysisStatus: models.AnalysisPending,
		ResolvedRisks:  make(models.RiskIDs, 0),
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.log.Info("DOCUMENT", "Document created", map[string]interface{}{
		"document_id": doc.ID.String(),
		"kind":        string(doc.Kind),
	})
	return doc, nil
}

// GetDocument retrieves a document by id
func (s *DocumentService) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	return doc, nil
}

// ListDocuments lists documents matching the filter
func (s *DocumentService) ListDocuments(ctx context.Context, f repository.DocumentFilter) ([]*models.Document, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, f.Kind)
	}
	return s.docs.List(ctx, f)
}

// UpdateDocumentRequest changes any of title, folder and content. Nil
// fields are left alone; ClearFolder removes the folder.
type UpdateDocumentRequest struct {
	ID          uuid.UUID
	Title       *string
	FolderID    *uuid.UUID
	ClearFolder bool
	Content     *string
}

// UpdateDocument applies the request. A content change is recorded as a new
// version; cached analysis is kept and re-run on demand.
func (s *DocumentService) UpdateDocument(ctx context.Context, req UpdateDocumentRequest) (*models.Document, error) {
	doc, err := s.GetDocument(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Content != nil && *req.Content != doc.Content {
		if err := s.checkUnclaimed(doc); err != nil {
			return nil, err
		}
	}

	if req.Title != nil || req.FolderID != nil || req.ClearFolder {
		title, folder := doc.Title, doc.FolderID
		if req.Title != nil {
			if title = strings.TrimSpace(*req.Title); title == "" {
				return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidRequest)
			}
		}
		if req.FolderID != nil {
			folder = req.FolderID
		}
		if req.ClearFolder {
			folder = nil
		}
		if err := s.docs.UpdateDetails(ctx, doc.ID, title, folder); err != nil {
			return nil, storeErr(err, ErrDocumentNotFound)
		}
	}

	if req.Content != nil && *req.Content != doc.Content {
		if _, err := s.docs.UpdateContent(ctx, doc.ID, doc.Content, *req.Content, models.VersionReasonEdit); err != nil {
			return nil, storeErr(err, ErrDocumentNotFound)
		}
	}

	return s.GetDocument(ctx, doc.ID)
}

// DeleteDocument deletes a document and its uploaded source file
func (s *DocumentService) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return storeErr(err, ErrDocumentNotFound)
	}

	if doc.FileID != nil && s.files != nil {
		s.deleteFile(ctx, *doc.FileID)
	}
	return nil
}

func (s *DocumentService) deleteFile(ctx context.Context, fileID uuid.UUID) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		return
	}
	if s.storage != nil {
		if err := s.storage.Delete(ctx, file.StoragePath); err != nil {
			s.log.Warn("DOCUMENT", "Failed to delete stored file", map[string]interface{}{
				"file_id": fileID.String(),
				"error":   err.Error(),
			})
		}
	}
	if err := s.files.Delete(ctx, fileID); err != nil {
		s.log.Warn("DOCUMENT", "Failed to delete file record", map[string]interface{}{
			"file_id": fileID.String(),
			"error":   err.Error(),
		})
	}
}

// ListVersions lists content snapshots, newest first
func (s *DocumentService) ListVersions(ctx context.Context, id uuid.UUID) ([]*models.DocumentVersion, error) {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return s.versions.ListByDocument(ctx, id)
}

// RestoreVersion makes an earlier snapshot the current content. The restore
// itself becomes a new version.
func (s *DocumentService) RestoreVersion(ctx context.Context, id uuid.UUID, version int) (*models.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := s.versions.Get(ctx, id, version)
	if err != nil {
		return nil, storeErr(err, ErrVersionNotFound)
	}
	if v.Content == doc.Content {
		return doc, nil
	}
	if err := s.checkUnclaimed(doc); err != nil {
		return nil, err
	}
	if _, err := s.docs.UpdateContent(ctx, id, doc.Content, v.Content, models.VersionReasonRestore); err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	return s.GetDocument(ctx, id)
}

// ReplaceTextRequest is either a find-and-replace (Find, Replacement, All)
// or a list of span edits computed from an earlier read of the content.
type ReplaceTextRequest struct {
	DocumentID  uuid.UUID
	Find        string
	Replacement string
	All         bool
	Edits       []textmatch.Edit
}

// ReplaceTextResult represents the outcome of a replace
type ReplaceTextResult struct {
	Document     *models.Document
	Replacements int
}

// ReplaceText edits the content safely: span edits must still match the
// text they expect, and find-and-replace only touches located occurrences.
func (s *DocumentService) ReplaceText(ctx context.Context, req ReplaceTextRequest) (*ReplaceTextResult, error) {
	if len(req.Edits) == 0 && strings.TrimSpace(req.Find) == "" {
		return nil, fmt.Errorf("%w: find text or edits are required", ErrInvalidRequest)
	}

	doc, err := s.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}

	var (
		content string
		count   int
	)
	if len(req.Edits) > 0 {
		content, err = textmatch.Replace(doc.Content, req.Edits)
		count = len(req.Edits)
	} else {
		content, count, err = textmatch.ReplaceText(doc.Content, req.Find, req.Replacement, req.All)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if content != doc.Content {
		if err := s.checkUnclaimed(doc); err != nil {
			return nil, err
		}
		if _, err := s.docs.UpdateContent(ctx, doc.ID, doc.Content, content, models.VersionReasonReplace); err != nil {
			return nil, storeErr(err, ErrDocumentNotFound)
		}
		doc, err = s.GetDocument(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
	}
	return &ReplaceTextResult{Document: doc, Replacements: count}, nil
}

// FillTemplateRequest creates a contract from a template
type FillTemplateRequest struct {
	TemplateID uuid.UUID
	OwnerID    uuid.UUID
	Title      string
	FolderID   *uuid.UUID
	// Values override the values stored on the template's variables
	Values map[string]string
}

// FillTemplateResult holds the new contract and tokens left unfilled
type FillTemplateResult struct {
	Document *models.Document
	Missing  []string
}

// FillTemplate renders a template's {{Variable_Name}} tokens with values
// and stores the result as a new contract. Tokens without a value stay in
// place and are reported as missing.
func (s *DocumentService) FillTemplate(ctx context.Context, req FillTemplateRequest) (*FillTemplateResult, error) {
	tmpl, err := s.GetDocument(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if tmpl.Kind != models.KindTemplate {
		return nil, ErrNotTemplate
	}

	values := make(map[string]string)
	if fields := tmpl.AnalysisCache.Fields; fields != nil {
		for _, v := range fields.Variables {
			if v.Value != nil && *v.Value != "" {
				values[v.Name] = *v.Value
			}
		}
	}
	for k, v := range req.Values {
		values[textmatch.CanonicalName(k)] = v
	}

	content, missing := textmatch.Render(tmpl.Content, values)

	owner := req.OwnerID
	if owner == uuid.Nil {
		owner = tmpl.OwnerID
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = tmpl.Title
	}
	folder := req.FolderID
	if folder == nil {
		folder = tmpl.FolderID
	}

	doc, err := s.CreateDocument(ctx, CreateDocumentRequest{
		OwnerID:  owner,
		Kind:     models.KindContract,
		Title:    title,
		Content:  content,
		FolderID: folder,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("DOCUMENT", "Template filled", map[string]interface{}{
		"template_id": tmpl.ID.String(),
		"document_id": doc.ID.String(),
		"missing":     len(missing),
	})
	if missing == nil {
		missing = make([]string, 0)
	}
	return &FillTemplateResult{Document: doc, Missing: missing}, nil
}

// ResolveRisk marks a template risk as handled
func (s *DocumentService) ResolveRisk(ctx context.Context, id uuid.UUID, riskID string) (models.RiskIDs, error) {
	return s.setRiskResolved(ctx, id, riskID, true)
}

// UnresolveRisk reverts ResolveRisk
func (s *DocumentService) UnresolveRisk(ctx context.Context, id uuid.UUID, riskID string) (models.RiskIDs, error) {
	return s.setRiskResolved(ctx, id, riskID, false)
}

func (s *DocumentService) setRiskResolved(ctx context.Context, id uuid.UUID, riskID string, resolved bool) (models.RiskIDs, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Kind != models.KindTemplate {
		return nil, ErrNotTemplate
	}
	if resolved {
		if !riskExists(doc.AnalysisCache.Risks, riskID) {
			return nil, ErrRiskNotFound
		}
	}

	ids := make(models.RiskIDs, 0, len(doc.ResolvedRisks)+1)
	for _, existing := range doc.ResolvedRisks {
		if existing != riskID && !ids.Contains(existing) {
			ids = append(ids, existing)
		}
	}
	if resolved {
		ids = append(ids, riskID)
	}

	if err := s.docs.SetResolvedRisks(ctx, id, ids); err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	return ids, nil
}

func riskExists(risks *models.RiskResult, id string) bool {
	if risks == nil {
		return false
	}
	for _, r := range risks.Items {
		if r.ID == id {
			return true
		}
	}
	return false
}

// UploadDocumentRequest represents an uploaded source file
type UploadDocumentRequest struct {
	OwnerID  uuid.UUID
	Filename string
	Data     []byte
	Kind     models.DocumentKind
	Title    string
	FolderID *uuid.UUID
}

// UploadDocumentResult holds the created document and file record
type UploadDocumentResult struct {
	Document *models.Document
	File     *models.File
}

// UploadDocument sniffs the file type, extracts its text, stores the
// original and creates a document from the text.
func (s *DocumentService) UploadDocument(ctx context.Context, req UploadDocumentRequest) (*UploadDocumentResult, error) {
	if s.storage == nil || s.files == nil {
		return nil, errors.New("file storage not set")
	}
	if req.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidRequest)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidRequest)
	}
	if int64(len(req.Data)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(req.Data), s.maxUploadBytes)
	}

	mime := mimetype.Detect(req.Data)
	text, err := extract.Text(req.Filename, mime.String(), req.Data)
	if errors.Is(err, extract.ErrTooLarge) {
		return nil, fmt.Errorf("%w: %v", ErrFileTooLarge, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}

	fileID := uuid.New()
	path, err := s.storage.Upload(ctx, fileID, req.Filename, mime.String(), bytes.NewReader(req.Data), int64(len(req.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	file := &models.File{
		ID:          fileID,
		OwnerID:     req.OwnerID,
		Filename:    req.Filename,
		MimeType:    mime.String(),
		Size:        int64(len(req.Data)),
		StoragePath: path,
	}
	if err := s.files.Create(ctx, file); err != nil {
		if delErr := s.storage.Delete(ctx, path); delErr != nil {
			s.log.Warn("DOCUMENT", "Failed to clean up stored file", map[string]interface{}{
				"path":  path,
				"error": delErr.Error(),
			})
		}
		return nil, err
	}

	title := req.Title
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(req.Filename, fileExt(req.Filename))
	}
	doc, err := s.CreateDocument(ctx, CreateDocumentRequest{
		OwnerID:  req.OwnerID,
		Kind:     req.Kind,
		Title:    title,
		Content:  text,
		FolderID: req.FolderID,
		FileID:   &file.ID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.files.AttachDocument(ctx, file.ID, doc.ID); err != nil {
		s.log.Warn("DOCUMENT", "Failed to link file to document", map[string]interface{}{
			"file_id":     file.ID.String(),
			"document_id": doc.ID.String(),
			"error":       err.Error(),
		})
	} else {
		file.DocumentID = &doc.ID
	}

	s.log.Info("DOCUMENT", "Document uploaded", map[string]interface{}{
		"document_id": doc.ID.String(),
		"file_id":     file.ID.String(),
		"mime_type":   file.MimeType,
		"size":        file.Size,
	})
	return &UploadDocumentResult{Document: doc, File: file}, nil
}

// GetFile returns a file record and a reader over its stored bytes
func (s *DocumentService) GetFile(ctx context.Context, id uuid.UUID) (*models.File, io.ReadCloser, error) {
	if s.storage == nil || s.files == nil {
		return nil, nil, errors.New("file storage not set")
	}
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, nil, storeErr(err, ErrFileNotFound)
	}
	rc, err := s.storage.Download(ctx, file.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, err
	}
	return file, rc, nil
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}

// checkUnclaimed rejects content edits while an analysis run owns doc. The
// run rewrites content during normalization.
func (s *DocumentService) checkUnclaimed(doc *models.Document) error {
	if analysisClaimed(doc, s.now(), s.staleAfter) {
		return ErrAnalysisInProgress
	}
	return nil
}
