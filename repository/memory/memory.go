// Package memory holds in-process implementations of the repositories.
// They follow the same merge and gating rules as the Postgres versions and
// back the command line analyzer and the tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"contractdesk-backend/models"
	"contractdesk-backend/repository"

	"github.com/google/uuid"
)

// DocumentStore keeps documents and their versions in memory
type DocumentStore struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]*models.Document
	versions map[uuid.UUID][]*models.DocumentVersion
}

// NewDocumentStore creates an empty document store
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:     make(map[uuid.UUID]*models.Document),
		versions: make(map[uuid.UUID][]*models.DocumentVersion),
	}
}

// clone deep-copies a document so callers never share stored state
func clone(doc *models.Document) *models.Document {
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	out := &models.Document{}
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	return out
}

// mergePatch applies a top-level JSON object onto the cache, like jsonb ||
func mergePatch(c *models.AnalysisCache, patch []byte) error {
	base := make(map[string]json.RawMessage)
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return err
	}
	var add map[string]json.RawMessage
	if err := json.Unmarshal(patch, &add); err != nil {
		return err
	}
	for k, v := range add {
		base[k] = v
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return err
	}
	var out models.AnalysisCache
	if err := json.Unmarshal(merged, &out); err != nil {
		return err
	}
	*c = out
	return nil
}

func (s *DocumentStore) addVersion(id uuid.UUID, content, reason string) *models.DocumentVersion {
	v := &models.DocumentVersion{
		ID:         uuid.New(),
		DocumentID: id,
		Version:    len(s.versions[id]) + 1,
		Content:    content,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
	s.versions[id] = append(s.versions[id], v)
	return v
}

// Mutate applies fn to the stored document under the store lock
func (s *DocumentStore) Mutate(id uuid.UUID, fn func(*models.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(doc)
	return nil
}

func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.AnalysisStatus == "" {
		doc.AnalysisStatus = models.AnalysisPending
	}
	if doc.ResolvedRisks == nil {
		doc.ResolvedRisks = make(models.RiskIDs, 0)
	}
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	s.docs[doc.ID] = clone(doc)
	s.addVersion(doc.ID, doc.Content, models.VersionReasonCreate)
	return nil
}

func (s *DocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(doc), nil
}

// List filters like the SQL repository and orders by most recent update
func (s *DocumentStore) List(ctx context.Context, f repository.DocumentFilter) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Document, 0)
	for _, doc := range s.docs {
		if f.OwnerID != nil && doc.OwnerID != *f.OwnerID {
			continue
		}
		if f.Kind != "" && doc.Kind != f.Kind {
			continue
		}
		if f.FolderID != nil && (doc.FolderID == nil || *doc.FolderID != *f.FolderID) {
			continue
		}
		out = append(out, clone(doc))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Title < out[j].Title
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return out[:0], nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *DocumentStore) UpdateDetails(ctx context.Context, id uuid.UUID, title string, folderID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	doc.Title = title
	doc.FolderID = folderID
	doc.UpdatedAt = time.Now()
	return nil
}

func (s *DocumentStore) UpdateContent(ctx context.Context, id uuid.UUID, expected, content, reason string) (*models.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if doc.Content != expected {
		return nil, repository.ErrContentChanged
	}
	doc.Content = content
	doc.UpdatedAt = time.Now()
	return s.addVersion(id, content, reason), nil
}

func (s *DocumentStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.docs, id)
	delete(s.versions, id)
	return nil
}

// TryStartAnalysis claims the document unless a live run owns it
func (s *DocumentStore) TryStartAnalysis(ctx context.Context, id uuid.UUID, startProgress int, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	switch {
	case !doc.AnalysisStatus.Running():
	case doc.AnalysisUpdatedAt == nil:
	case doc.AnalysisUpdatedAt.Before(staleBefore):
	default:
		return false, nil
	}
	now := time.Now()
	doc.AnalysisStatus = models.AnalysisInProgress
	doc.AnalysisProgress = startProgress
	doc.AnalysisError = nil
	doc.AnalysisUpdatedAt = &now
	return true, nil
}

func (s *DocumentStore) SaveStage(ctx context.Context, id uuid.UUID, patch []byte, status models.AnalysisStatus, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := mergePatch(&doc.AnalysisCache, patch); err != nil {
		return err
	}
	now := time.Now()
	doc.AnalysisStatus = status
	if progress > doc.AnalysisProgress {
		doc.AnalysisProgress = progress
	}
	doc.AnalysisUpdatedAt = &now
	return nil
}

func (s *DocumentStore) MergeCache(ctx context.Context, id uuid.UUID, patch []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	return mergePatch(&doc.AnalysisCache, patch)
}

func (s *DocumentStore) FailAnalysis(ctx context.Context, id uuid.UUID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	doc.AnalysisStatus = models.AnalysisFailed
	doc.AnalysisError = &errorMessage
	doc.AnalysisRetryCount++
	doc.AnalysisUpdatedAt = &now
	return nil
}

func (s *DocumentStore) SetResolvedRisks(ctx context.Context, id uuid.UUID, ids models.RiskIDs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	doc.ResolvedRisks = append(models.RiskIDs{}, ids...)
	return nil
}

// ListByDocument returns versions newest first
func (s *DocumentStore) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*models.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.versions[documentID]
	out := make([]*models.DocumentVersion, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		v := *vs[i]
		out = append(out, &v)
	}
	return out, nil
}

func (s *DocumentStore) Get(ctx context.Context, documentID uuid.UUID, version int) (*models.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions[documentID] {
		if v.Version == version {
			cp := *v
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

// FileStore keeps upload records in memory
type FileStore struct {
	mu    sync.Mutex
	files map[uuid.UUID]*models.File
}

// NewFileStore creates an empty file store
func NewFileStore() *FileStore {
	return &FileStore{files: make(map[uuid.UUID]*models.File)}
}

func (s *FileStore) Create(ctx context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	file.CreatedAt = time.Now()
	cp := *file
	s.files[file.ID] = &cp
	return nil
}

func (s *FileStore) GetByID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *file
	return &cp, nil
}

func (s *FileStore) AttachDocument(ctx context.Context, fileID, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, ok := s.files[fileID]
	if !ok {
		return repository.ErrNotFound
	}
	file.DocumentID = &documentID
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

// ChatStore keeps chat turns in memory
type ChatStore struct {
	mu   sync.Mutex
	msgs map[uuid.UUID][]*models.ChatMessage
}

// NewChatStore creates an empty chat store
func NewChatStore() *ChatStore {
	return &ChatStore{msgs: make(map[uuid.UUID][]*models.ChatMessage)}
}

func (s *ChatStore) Create(ctx context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.CreatedAt = time.Now()
	cp := *msg
	s.msgs[msg.DocumentID] = append(s.msgs[msg.DocumentID], &cp)
	return nil
}

// ListRecent returns the last limit turns in order; limit <= 0 returns all
func (s *ChatStore) ListRecent(ctx context.Context, documentID uuid.UUID, limit int) ([]*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.msgs[documentID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*models.ChatMessage, 0, len(all))
	for _, m := range all {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}
