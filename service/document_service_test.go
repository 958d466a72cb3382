package service

import (
	"context"
	"io"
	"testing"

	"contractdesk-backend/models"
	"contractdesk-backend/repository"
	"contractdesk-backend/repository/memory"
	"contractdesk-backend/storage"
	"contractdesk-backend/textmatch"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocumentService(t *testing.T) (*DocumentService, *memoryStore, *memory.FileStore) {
	t.Helper()
	store := newMemoryStore()
	files := newFileStore()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewDocumentService(
		WithDocumentStore(store),
		WithVersionStore(store),
		WithFileStore(files),
		WithStorage(local),
		WithMaxUploadBytes(1024),
	)
	return svc, store, files
}

func TestCreateDocument(t *testing.T) {
	svc, _, _ := newTestDocumentService(t)
	ctx := context.Background()
	owner := uuid.New()

	doc, err := svc.CreateDocument(ctx, CreateDocumentRequest{OwnerID: owner, Content: "Terms."})
	require.NoError(t, err)
	assert.Equal(t, models.KindContract, doc.Kind)
	assert.Equal(t, "Untitled contract", doc.Title)
	assert.Equal(t, models.AnalysisPending, doc.AnalysisStatus)

	_, err = svc.CreateDocument(ctx, CreateDocumentRequest{Content: "Terms."})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.CreateDocument(ctx, CreateDocumentRequest{OwnerID: owner, Kind: "memo"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	versions, err := svc.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, models.VersionReasonCreate, versions[0].Reason)
}

func TestListDocuments(t *testing.T) {
	svc, _, _ := newTestDocumentService(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.CreateDocument(ctx, CreateDocumentRequest{OwnerID: owner, Title: "A"})
	require.NoError(t, err)
	_, err = svc.CreateDocument(ctx, CreateDocumentRequest{OwnerID: owner, Title: "B", Kind: models.KindTemplate})
	require.NoError(t, err)
	_, err = svc.CreateDocument(ctx, CreateDocumentRequest{OwnerID: uuid.New(), Title: "C"})
	require.NoError(t, err)

	docs, err := svc.ListDocuments(ctx, repository.DocumentFilter{OwnerID: &owner})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = svc.ListDocuments(ctx, repository.DocumentFilter{OwnerID: &owner, Kind: models.KindTemplate})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "B", docs[0].Title)

	_, err = svc.ListDocuments(ctx, repository.DocumentFilter{Kind: "memo"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUpdateDocumentAndRestore(t *testing.T) {
	svc, _, _ := newTestDocumentService(t)
	ctx := context.Background()
	folder := uuid.New()

	doc, err := svc.CreateDocument(ctx, CreateDocumentRequest{OwnerID: uuid.New(), Title: "Draft", Content: "v1"})
	require.NoError(t, err)

	title, content := " Final ", "v2"
	doc, err = svc.UpdateDocument(ctx, UpdateDocumentRequest{ID: doc.ID, Title: &title, FolderID: &folder, Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "Final", doc.Title)
	require.NotNil(t, doc.FolderID)
	assert.Equal(t, folder, *doc.FolderID)
	assert.Equal(t, "v2", doc.Content)

	// same content does not add a version
	doc, err = svc.UpdateDocument(ctx, UpdateDocumentRequest{ID: doc.ID, Content: &content, ClearFolder: true})
	require.NoError(t, err)
	assert.Nil(t, doc.FolderID)

	blank := "  "
	_, err = svc.UpdateDocument(ctx, UpdateDocumentRequest{ID: doc.ID, Title: &blank})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	versions, err := svc.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, models.VersionReasonEdit, versions[0].Reason)
	assert.Equal(t, "v2", versions[0].Content)

	doc, err = svc.RestoreVersion(ctx, doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", doc.Content)
	versions, err = svc.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, models.VersionReasonRestore, versions[0].Reason)
	assert.Equal(t, 3, versions[0].Version)

	_, err = svc.RestoreVersion(ctx, doc.ID, 9)
	assert.ErrorIs(t, err, ErrVersionNotFound)
	_, err = svc.RestoreVersion(ctx, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestReplaceText(t *testing.T) {
	svc, _, _ := newTestDocumentService(t)
	ctx := context.Background()
	doc, err := svc.CreateDocument(ctx, CreateDocumentRequest{
		OwnerID: uuid.New(),
		Content: "The Supplier shall deliver. The supplier invoices monthly.",
	})
	require.NoError(t, err)

	res, err := svc.ReplaceText(ctx, ReplaceTextRequest{DocumentID: doc.ID, Find: "supplier", Replacement: "Vendor", All: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Replacements)
	assert.Equal(t, "The Vendor shall deliver. The Vendor invoices monthly.", res.Document.Content)

	res, err = svc.ReplaceText(ctx, ReplaceTextRequest{DocumentID: doc.ID, Edits: []textmatch.Edit{
		{Start: 4, End: 10, Expected: "Vendor", Replacement: "Seller"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "The Seller shall deliver. The Vendor invoices monthly.", res.Document.Content)

	// the span was computed from content that has since changed
	_, err = svc.ReplaceText(ctx, ReplaceTextRequest{DocumentID: doc.ID, Edits: []textmatch.Edit{
		{Start: 4, End: 10, Expected: "Vendor", Replacement: "Buyer"},
	}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.ReplaceText(ctx, ReplaceTextRequest{DocumentID: doc.ID, Find: "purchaser", Replacement: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.ReplaceText(ctx, ReplaceTextRequest{DocumentID: doc.ID})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	versions, err := svc.ListVersions(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestFillTemplate(t *testing.T) {
	svc, store, _ := newTestDocumentService(t)
	ctx := context.Background()
	owner := uuid.New()
	stored := "Ann Lee"
	id := store.seed(&models.Document{
		OwnerID: owner,
		Kind:    models.KindTemplate,
		Title:   "Lease template",
		Content: "Between {{Landlord_Name}} and {{Tenant_Name}} for {{Monthly_Rent}}.",
		AnalysisCache: models.AnalysisCache{Fields: &models.FieldResult{Variables: []models.Variable{
			{Name: "Landlord_Name", Value: &stored},
		}}},
	})

	res, err := svc.FillTemplate(ctx, FillTemplateRequest{
		TemplateID: id,
		Values:     map[string]string{"tenant name": "Bo Chen"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Between Ann Lee and Bo Chen for {{Monthly_Rent}}.", res.Document.Content)
	assert.Equal(t, []string{"Monthly_Rent"}, res.Missing)
	assert.Equal(t, models.KindContract, res.Document.Kind)
	assert.Equal(t, owner, res.Document.OwnerID)
	assert.Equal(t, "Lease template", res.Document.Title)

	contract := store.seed(&models.Document{Content: "x"})
	_, err = svc.FillTemplate(ctx, FillTemplateRequest{TemplateID: contract})
	assert.ErrorIs(t, err, ErrNotTemplate)
}

func TestResolveRisk(t *testing.T) {
	svc, store, _ := newTestDocumentService(t)
	ctx := context.Background()
	id := store.seed(&models.Document{
		Kind:    models.KindTemplate,
		Content: "x",
		AnalysisCache: models.AnalysisCache{Risks: &models.RiskResult{Items: []models.RiskFactor{
			{ID: "risk-1"}, {ID: "risk-2"},
		}}},
	})

	ids, err := svc.ResolveRisk(ctx, id, "risk-2")
	require.NoError(t, err)
	assert.Equal(t, models.RiskIDs{"risk-2"}, ids)

	ids, err = svc.ResolveRisk(ctx, id, "risk-2")
	require.NoError(t, err)
	assert.Equal(t, models.RiskIDs{"risk-2"}, ids, "resolving twice is a no-op")

	_, err = svc.ResolveRisk(ctx, id, "risk-9")
	assert.ErrorIs(t, err, ErrRiskNotFound)

	ids, err = svc.UnresolveRisk(ctx, id, "risk-2")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, store.doc(id).ResolvedRisks)

	contract := store.seed(&models.Document{Content: "x"})
	_, err = svc.ResolveRisk(ctx, contract, "risk-1")
	assert.ErrorIs(t, err, ErrNotTemplate)
}

func TestUploadDocument(t *testing.T) {
	svc, store, files := newTestDocumentService(t)
	ctx := context.Background()
	owner := uuid.New()

	res, err := svc.UploadDocument(ctx, UploadDocumentRequest{
		OwnerID:  owner,
		Filename: "nda.txt",
		Data:     []byte("MUTUAL NDA\r\nThe parties agree to keep secrets."),
		Kind:     models.KindTemplate,
	})
	require.NoError(t, err)
	assert.Equal(t, "nda", res.Document.Title)
	assert.Equal(t, "MUTUAL NDA\nThe parties agree to keep secrets.", res.Document.Content)
	require.NotNil(t, res.Document.FileID)
	assert.Equal(t, res.File.ID, *res.Document.FileID)
	require.NotNil(t, res.File.DocumentID)
	assert.Equal(t, res.Document.ID, *res.File.DocumentID)

	file, rc, err := svc.GetFile(ctx, res.File.ID)
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "MUTUAL NDA\r\nThe parties agree to keep secrets.", string(raw))
	assert.Equal(t, "nda.txt", file.Filename)

	require.NoError(t, svc.DeleteDocument(ctx, res.Document.ID))
	_, err = store.GetByID(ctx, res.Document.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = files.GetByID(ctx, res.File.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, _, err = svc.GetFile(ctx, res.File.ID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestUploadDocumentRejections(t *testing.T) {
	svc, _, _ := newTestDocumentService(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.UploadDocument(ctx, UploadDocumentRequest{OwnerID: owner, Filename: "a.txt"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.UploadDocument(ctx, UploadDocumentRequest{OwnerID: owner, Filename: "a.txt", Data: make([]byte, 2048)})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = svc.UploadDocument(ctx, UploadDocumentRequest{OwnerID: owner, Filename: "a.png", Data: []byte("\x89PNG\r\n\x1a\n0000")})
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}
