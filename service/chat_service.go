package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"contractdesk-backend/llm"
	"contractdesk-backend/logger"
	"contractdesk-backend/models"

	"github.com/google/uuid"
)

const defaultChatHistory = 20

// ChatService answers questions about a document
type ChatService struct {
	docs    DocumentStore
	chats   ChatStore
	llm     llm.Client
	log     logger.ILogger
	history int
}

// ChatServiceOption is a functional option for ChatService
type ChatServiceOption func(*ChatService)

// ChatWithDocumentStore sets the document store
func ChatWithDocumentStore(docs DocumentStore) ChatServiceOption {
	return func(s *ChatService) {
		s.docs = docs
	}
}

// ChatWithChatStore sets the message store
func ChatWithChatStore(chats ChatStore) ChatServiceOption {
	return func(s *ChatService) {
		s.chats = chats
	}
}

// ChatWithLLM sets the LLM client
func ChatWithLLM(client llm.Client) ChatServiceOption {
	return func(s *ChatService) {
		s.llm = client
	}
}

// ChatWithLogger sets the logger
func ChatWithLogger(l logger.ILogger) ChatServiceOption {
	return func(s *ChatService) {
		s.log = l
	}
}

// ChatWithHistory sets how many earlier messages are sent with a question
func ChatWithHistory(n int) ChatServiceOption {
	return func(s *ChatService) {
		if n >= 0 {
			s.history = n
		}
	}
}

// NewChatService creates a new chat service
func NewChatService(opts ...ChatServiceOption) *ChatService {
	s := &ChatService{
		log:     logger.NewNopLogger(),
		history: defaultChatHistory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessageRequest represents a question about a document
type SendMessageRequest struct {
	DocumentID uuid.UUID
	Message    string
}

// SendMessageResult holds both persisted turns
type SendMessageResult struct {
	Question *models.ChatMessage `json:"question"`
	Answer   *models.ChatMessage `json:"answer"`
}

// SendMessage asks the model about the document, with recent conversation
// as context, and stores the question and the answer.
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	if s.docs == nil || s.chats == nil {
		return nil, errors.New("chat stores not set")
	}
	if s.llm == nil {
		return nil, errors.New("llm client not set")
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	doc, err := s.docs.GetByID(ctx, req.DocumentID)
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}

	var recent []*models.ChatMessage
	if s.history > 0 {
		recent, err = s.chats.ListRecent(ctx, doc.ID, s.history)
		if err != nil {
			return nil, err
		}
	}

	reply, err := s.llm.Chat(ctx, llm.ChatRequest{
		System:  chatInstruction(doc),
		History: chatHistory(recent),
		Message: message,
	})
	if err != nil {
		s.log.Error("CHAT", "Chat request failed", map[string]interface{}{
			"document_id": doc.ID.String(),
			"error":       err,
		})
		return nil, err
	}

	question := &models.ChatMessage{DocumentID: doc.ID, Role: models.ChatRoleUser, Content: message}
	if err := s.chats.Create(ctx, question); err != nil {
		return nil, err
	}
	answer := &models.ChatMessage{DocumentID: doc.ID, Role: models.ChatRoleModel, Content: strings.TrimSpace(reply)}
	if err := s.chats.Create(ctx, answer); err != nil {
		return nil, err
	}

	return &SendMessageResult{Question: question, Answer: answer}, nil
}

// chatHistory converts stored turns; it drops a leading model turn because
// the provider expects a conversation to open with the user.
func chatHistory(msgs []*models.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if len(out) == 0 && m.Role != models.ChatRoleUser {
			continue
		}
		role := llm.RoleUser
		if m.Role == models.ChatRoleModel {
			role = llm.RoleModel
		}
		out = append(out, llm.Message{Role: role, Text: m.Content})
	}
	return out
}

// ListMessages returns the whole conversation about a document
func (s *ChatService) ListMessages(ctx context.Context, id uuid.UUID) ([]*models.ChatMessage, error) {
	if _, err := s.docs.GetByID(ctx, id); err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	return s.chats.ListRecent(ctx, id, 0)
}
