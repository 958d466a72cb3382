package service

import (
	"context"
	"errors"
	"time"

	"contractdesk-backend/models"
	"contractdesk-backend/repository"

	"github.com/google/uuid"
)

// DocumentStore is the document persistence used by the services.
// *repository.DocumentRepository implements it.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context, f repository.DocumentFilter) ([]*models.Document, error)
	UpdateDetails(ctx context.Context, id uuid.UUID, title string, folderID *uuid.UUID) error
	// UpdateContent fails with repository.ErrContentChanged when the stored
	// content is no longer expected
	UpdateContent(ctx context.Context, id uuid.UUID, expected, content, reason string) (*models.DocumentVersion, error)
	Delete(ctx context.Context, id uuid.UUID) error

	TryStartAnalysis(ctx context.Context, id uuid.UUID, startProgress int, staleBefore time.Time) (bool, error)
	SaveStage(ctx context.Context, id uuid.UUID, patch []byte, status models.AnalysisStatus, progress int) error
	MergeCache(ctx context.Context, id uuid.UUID, patch []byte) error
	FailAnalysis(ctx context.Context, id uuid.UUID, errorMessage string) error
	SetResolvedRisks(ctx context.Context, id uuid.UUID, ids models.RiskIDs) error
}

// VersionStore reads document content snapshots
type VersionStore interface {
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.DocumentVersion, error)
	Get(ctx context.Context, documentID uuid.UUID, version int) (*models.DocumentVersion, error)
}

// FileStore persists upload records
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
	AttachDocument(ctx context.Context, fileID, documentID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChatStore persists chat turns
type ChatStore interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	ListRecent(ctx context.Context, documentID uuid.UUID, limit int) ([]*models.ChatMessage, error)
}

var (
	_ DocumentStore = (*repository.DocumentRepository)(nil)
	_ VersionStore  = (*repository.VersionRepository)(nil)
	_ FileStore     = (*repository.FileRepository)(nil)
	_ ChatStore     = (*repository.ChatRepository)(nil)
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrVersionNotFound    = errors.New("version not found")
	ErrFileNotFound       = errors.New("file not found")
	ErrRiskNotFound       = errors.New("risk not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrEmptyContent       = errors.New("document has no content to analyze")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	ErrAnalysisFailed     = errors.New("analysis failed")
	ErrNotTemplate        = errors.New("operation requires a template")
	ErrNoRisks            = errors.New("document has no risk analysis")
	ErrNoVariables        = errors.New("document has no extracted variables")
	ErrUnknownVariable    = errors.New("unknown variable")
	ErrUnsupportedFile    = errors.New("unsupported file")
	ErrFileTooLarge       = errors.New("file too large")
	ErrContentChanged     = errors.New("document content changed concurrently")
)

// storeErr maps repository errors onto service sentinels
func storeErr(err, notFound error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFound
	case errors.Is(err, repository.ErrContentChanged):
		return ErrContentChanged
	}
	return err
}

// analysisClaimed reports whether a run holds a fresh claim on doc. A claim
// older than staleAfter is treated as abandoned.
func analysisClaimed(doc *models.Document, now time.Time, staleAfter time.Duration) bool {
	if !doc.AnalysisStatus.Running() || doc.AnalysisUpdatedAt == nil {
		return false
	}
	return doc.AnalysisUpdatedAt.After(now.Add(-staleAfter))
}
