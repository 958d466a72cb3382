package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"contractdesk-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository handles database operations for contracts and templates
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// DocumentFilter narrows List; zero values match everything
type DocumentFilter struct {
	OwnerID  *uuid.UUID
	Kind     models.DocumentKind
	FolderID *uuid.UUID
	Limit    int
	Offset   int
}

const documentColumns = `
	id, owner_id, kind, title, content, folder_id, file_id,
	analysis_cache, analysis_status, analysis_progress, analysis_retry_count,
	analysis_error, analysis_updated_at, resolved_risks, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	doc := &models.Document{}
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Kind,
		&doc.Title,
		&doc.Content,
		&doc.FolderID,
		&doc.FileID,
		&doc.AnalysisCache,
		&doc.AnalysisStatus,
		&doc.AnalysisProgress,
		&doc.AnalysisRetryCount,
		&doc.AnalysisError,
		&doc.AnalysisUpdatedAt,
		&doc.ResolvedRisks,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	if doc.ResolvedRisks == nil {
		doc.ResolvedRisks = make(models.RiskIDs, 0)
	}
	return doc, nil
}

// Create inserts a document together with its first version
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if doc.AnalysisStatus == "" {
		doc.AnalysisStatus = models.AnalysisPending
	}

	query := `
		INSERT INTO documents (
			owner_id, kind, title, content, folder_id, file_id,
			analysis_cache, analysis_status, resolved_risks
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRow(
		ctx, query,
		doc.OwnerID,
		doc.Kind,
		doc.Title,
		doc.Content,
		doc.FolderID,
		doc.FileID,
		doc.AnalysisCache,
		doc.AnalysisStatus,
		doc.ResolvedRisks,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := insertVersion(ctx, tx, doc.ID, doc.Content, models.VersionReasonCreate); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRow(ctx, query, id))
}

// buildListQuery renders the filtered, paginated list query
func buildListQuery(f DocumentFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.OwnerID != nil {
		args = append(args, *f.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.FolderID != nil {
		args = append(args, *f.FolderID)
		where = append(where, fmt.Sprintf("folder_id = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + documentColumns + ` FROM documents`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY updated_at DESC")

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

// List retrieves documents matching the filter, most recently updated first
func (r *DocumentRepository) List(ctx context.Context, f DocumentFilter) ([]*models.Document, error) {
	query, args := buildListQuery(f)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateDetails updates title and folder without touching content
func (r *DocumentRepository) UpdateDetails(ctx context.Context, id uuid.UUID, title string, folderID *uuid.UUID) error {
	query := `
		UPDATE documents SET
			title = $2,
			folder_id = $3,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, title, folderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateContent replaces the content and records it as a new version. The
// write only happens while the stored content still equals expected.
func (r *DocumentRepository) UpdateContent(ctx context.Context, id uuid.UUID, expected, content, reason string) (*models.DocumentVersion, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE documents SET
			content = $2,
			updated_at = NOW()
		WHERE id = $1 AND content = $3`

	tag, err := tx.Exec(ctx, query, id, content, expected)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrContentChanged
	}

	version, err := insertVersion(ctx, tx, id, content, reason)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return version, nil
}

// Delete deletes a document; versions and chat messages cascade
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TryStartAnalysis claims the document for a pipeline run. It succeeds only
// when no run is active, or when the active run stopped reporting before
// staleBefore. The boolean is false when another run holds the document.
func (r *DocumentRepository) TryStartAnalysis(ctx context.Context, id uuid.UUID, startProgress int, staleBefore time.Time) (bool, error) {
	query := `
		UPDATE documents SET
			analysis_status = $2,
			analysis_progress = $3,
			analysis_error = NULL,
			analysis_updated_at = NOW()
		WHERE id = $1
			AND (
				analysis_status IN ($4, $5, $6)
				OR analysis_updated_at IS NULL
				OR analysis_updated_at < $7
			)`

	tag, err := r.db.Exec(ctx, query, id,
		models.AnalysisInProgress,
		startProgress,
		models.AnalysisPending, models.AnalysisComplete, models.AnalysisFailed,
		staleBefore,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// SaveStage merges one stage result into analysis_cache under its own key
// and advances status and progress. Progress never moves backwards.
func (r *DocumentRepository) SaveStage(ctx context.Context, id uuid.UUID, patch []byte, status models.AnalysisStatus, progress int) error {
	query := `
		UPDATE documents SET
			analysis_cache = COALESCE(analysis_cache, '{}'::jsonb) || $2::jsonb,
			analysis_status = $3,
			analysis_progress = GREATEST(analysis_progress, $4),
			analysis_updated_at = NOW(),
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, string(patch), status, progress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MergeCache merges a patch into analysis_cache without touching run state
func (r *DocumentRepository) MergeCache(ctx context.Context, id uuid.UUID, patch []byte) error {
	query := `
		UPDATE documents SET
			analysis_cache = COALESCE(analysis_cache, '{}'::jsonb) || $2::jsonb,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, string(patch))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailAnalysis marks the run as failed and counts the attempt
func (r *DocumentRepository) FailAnalysis(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE documents SET
			analysis_status = $2,
			analysis_error = $3,
			analysis_retry_count = analysis_retry_count + 1,
			analysis_updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.AnalysisFailed, errorMessage)
	return err
}

// SetResolvedRisks replaces the resolved risk id list
func (r *DocumentRepository) SetResolvedRisks(ctx context.Context, id uuid.UUID, ids models.RiskIDs) error {
	query := `
		UPDATE documents SET
			resolved_risks = $2,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, ids)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
