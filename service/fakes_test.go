package service

import (
	"context"
	"fmt"
	"sync"

	"contractdesk-backend/llm"
	"contractdesk-backend/models"
	"contractdesk-backend/repository/memory"

	"github.com/google/uuid"
)

// memoryStore wraps the in-memory repository and records every stage save
type memoryStore struct {
	*memory.DocumentStore

	mu       sync.Mutex
	statuses []models.AnalysisStatus
	progress []int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{DocumentStore: memory.NewDocumentStore()}
}

func newFileStore() *memory.FileStore { return memory.NewFileStore() }

func newChatStore() *memory.ChatStore { return memory.NewChatStore() }

// seed inserts a document and returns its id
func (m *memoryStore) seed(doc *models.Document) uuid.UUID {
	if doc.OwnerID == uuid.Nil {
		doc.OwnerID = uuid.New()
	}
	if doc.Kind == "" {
		doc.Kind = models.KindContract
	}
	if err := m.Create(context.Background(), doc); err != nil {
		panic(err)
	}
	return doc.ID
}

// doc returns a copy of the stored document
func (m *memoryStore) doc(id uuid.UUID) *models.Document {
	doc, err := m.GetByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return doc
}

func (m *memoryStore) mutate(id uuid.UUID, fn func(*models.Document)) {
	if err := m.Mutate(id, fn); err != nil {
		panic(err)
	}
}

func (m *memoryStore) SaveStage(ctx context.Context, id uuid.UUID, patch []byte, status models.AnalysisStatus, progress int) error {
	if err := m.DocumentStore.SaveStage(ctx, id, patch, status, progress); err != nil {
		return err
	}
	doc, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	m.progress = append(m.progress, doc.AnalysisProgress)
	return nil
}

// scriptedLLM replays canned responses per request kind
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string][]scripted
	calls     []string
	// before runs ahead of each generate call, outside the lock
	before func(kind string)

	reply    string
	chatErr  error
	chatReqs []llm.ChatRequest
}

type scripted struct {
	body string
	err  error
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{responses: make(map[string][]scripted)}
}

// on queues responses for a kind; the last one repeats
func (f *scriptedLLM) on(kind string, rs ...scripted) *scriptedLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[kind] = append(f.responses[kind], rs...)
	return f
}

func (f *scriptedLLM) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == kind {
			n++
		}
	}
	return n
}

func (f *scriptedLLM) GenerateJSON(ctx context.Context, req llm.Request, out interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, req.Kind)
	queue := f.responses[req.Kind]
	if len(queue) == 0 {
		f.mu.Unlock()
		return fmt.Errorf("%w: no scripted response for %s", llm.ErrEmptyPrompt, req.Kind)
	}
	next := queue[0]
	if len(queue) > 1 {
		f.responses[req.Kind] = queue[1:]
	}
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before(req.Kind)
	}

	if next.err != nil {
		return next.err
	}
	return llm.ParseJSON(next.body, out)
}

func (f *scriptedLLM) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "chat")
	f.chatReqs = append(f.chatReqs, req)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *scriptedLLM) Model() string { return "test-model" }

var (
	_ DocumentStore = (*memoryStore)(nil)
	_ VersionStore  = (*memoryStore)(nil)
	_ FileStore     = (*memory.FileStore)(nil)
	_ ChatStore     = (*memory.ChatStore)(nil)
	_ llm.Client    = (*scriptedLLM)(nil)
)
