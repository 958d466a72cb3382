package repository

import (
	"context"

	"contractdesk-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChatRepository stores conversations about documents
type ChatRepository struct {
	db *pgxpool.Pool
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create appends a message
func (r *ChatRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (document_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return r.db.QueryRow(ctx, query, msg.DocumentID, msg.Role, msg.Content).Scan(&msg.ID, &msg.CreatedAt)
}

// ListRecent returns up to limit latest messages in chronological order.
// limit <= 0 returns the whole conversation.
func (r *ChatRepository) ListRecent(ctx context.Context, documentID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, document_id, role, content, created_at FROM (
			SELECT id, document_id, role, content, created_at
			FROM chat_messages
			WHERE document_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`

	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := r.db.Query(ctx, query, documentID, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*models.ChatMessage, 0)
	for rows.Next() {
		msg := &models.ChatMessage{}
		if err := rows.Scan(&msg.ID, &msg.DocumentID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
