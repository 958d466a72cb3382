package repository

import (
	"errors"
	"testing"

	"contractdesk-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery(t *testing.T) {
	owner := uuid.New()
	folder := uuid.New()

	query, args := buildListQuery(DocumentFilter{
		OwnerID:  &owner,
		Kind:     models.KindTemplate,
		FolderID: &folder,
		Limit:    10,
		Offset:   20,
	})
	assert.Contains(t, query, "WHERE owner_id = $1 AND kind = $2 AND folder_id = $3")
	assert.Contains(t, query, "ORDER BY updated_at DESC LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{owner, models.KindTemplate, folder, 10, 20}, args)
}

func TestBuildListQueryDefaults(t *testing.T) {
	query, args := buildListQuery(DocumentFilter{Limit: 1000})
	assert.NotContains(t, query, "WHERE")
	assert.NotContains(t, query, "OFFSET")
	assert.Equal(t, []any{50}, args)
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(pgx.ErrNoRows), ErrNotFound)

	other := errors.New("connection refused")
	assert.Equal(t, other, notFound(other))
}
