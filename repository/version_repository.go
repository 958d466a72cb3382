package repository

import (
	"context"

	"contractdesk-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VersionRepository reads content snapshots of documents
type VersionRepository struct {
	db *pgxpool.Pool
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *pgxpool.Pool) *VersionRepository {
	return &VersionRepository{db: db}
}

// insertVersion appends the next version number for a document. The unique
// (document_id, version) constraint rejects a concurrent duplicate.
func insertVersion(ctx context.Context, q querier, documentID uuid.UUID, content, reason string) (*models.DocumentVersion, error) {
	v := &models.DocumentVersion{
		DocumentID: documentID,
		Content:    content,
		Reason:     reason,
	}
	query := `
		INSERT INTO document_versions (document_id, version, content, reason)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3
		FROM document_versions
		WHERE document_id = $1
		RETURNING id, version, created_at`

	err := q.QueryRow(ctx, query, documentID, content, reason).Scan(&v.ID, &v.Version, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListByDocument returns all versions, newest first
func (r *VersionRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.DocumentVersion, error) {
	query := `
		SELECT id, document_id, version, content, reason, created_at
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version DESC`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make([]*models.DocumentVersion, 0)
	for rows.Next() {
		v := &models.DocumentVersion{}
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.Content, &v.Reason, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// Get retrieves one version of a document
func (r *VersionRepository) Get(ctx context.Context, documentID uuid.UUID, version int) (*models.DocumentVersion, error) {
	v := &models.DocumentVersion{}
	query := `
		SELECT id, document_id, version, content, reason, created_at
		FROM document_versions
		WHERE document_id = $1 AND version = $2`

	err := r.db.QueryRow(ctx, query, documentID, version).Scan(
		&v.ID, &v.DocumentID, &v.Version, &v.Content, &v.Reason, &v.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}
