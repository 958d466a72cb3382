package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"contractdesk-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// analyzedLease returns a template that went through a full run
func analyzedLease(t *testing.T) (*memoryStore, *AnalysisService, uuid.UUID) {
	t.Helper()
	store := newMemoryStore()
	svc := newTestAnalysisService(store, leaseLLM())
	id := store.seed(&models.Document{Kind: models.KindTemplate, Title: "Lease", Content: leaseText})
	require.NoError(t, startAndRun(t, svc, StartAnalysisRequest{DocumentID: id}))
	return store, svc, id
}

func TestHighlightsFollowEdits(t *testing.T) {
	store, svc, id := analyzedLease(t)
	ctx := context.Background()

	before, err := svc.Highlights(ctx, id)
	require.NoError(t, err)
	require.Len(t, before.Highlights, 2)
	assert.Empty(t, before.Unlocated)
	// sorted by position: liability comes before termination
	assert.Equal(t, "risk-2", before.Highlights[0].RiskID)
	assert.Equal(t, "risk-1", before.Highlights[1].RiskID)

	content := store.doc(id).Content
	_, err = store.UpdateContent(ctx, id, content, "AMENDED\n"+content, models.VersionReasonEdit)
	require.NoError(t, err)
	store.mutate(id, func(d *models.Document) { d.ResolvedRisks = models.RiskIDs{"risk-1"} })

	after, err := svc.Highlights(ctx, id)
	require.NoError(t, err)
	require.Len(t, after.Highlights, 2)
	doc := store.doc(id)
	for i, h := range after.Highlights {
		assert.Equal(t, before.Highlights[i].Start+len("AMENDED\n"), h.Start)
		assert.Equal(t, h.Text, doc.Content[h.Start:h.End])
	}
	assert.False(t, after.Highlights[0].Resolved)
	assert.True(t, after.Highlights[1].Resolved)

	removed := strings.Replace(doc.Content, "Landlord may terminate this Lease at any time without notice", "Reserved", 1)
	_, err = store.UpdateContent(ctx, id, doc.Content, removed, models.VersionReasonEdit)
	require.NoError(t, err)

	gone, err := svc.Highlights(ctx, id)
	require.NoError(t, err)
	assert.Len(t, gone.Highlights, 1)
	assert.Equal(t, []string{"risk-1"}, gone.Unlocated)
}

func TestHighlightsWithoutRisks(t *testing.T) {
	store := newMemoryStore()
	svc := newTestAnalysisService(store, leaseLLM())
	id := store.seed(&models.Document{Content: leaseText})

	_, err := svc.Highlights(context.Background(), id)
	assert.ErrorIs(t, err, ErrNoRisks)

	_, err = svc.Highlights(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestVariablesAndValues(t *testing.T) {
	store, svc, id := analyzedLease(t)
	ctx := context.Background()

	res, err := svc.Variables(ctx, id)
	require.NoError(t, err)
	require.Len(t, res.Variables, 2)
	assert.Equal(t, []string{"Landlord_Name", "Monthly_Rent"}, res.Missing)

	jane := " Jane Doe "
	fields, err := svc.SetVariableValues(ctx, SetVariableValuesRequest{
		DocumentID: id,
		Values:     map[string]*string{"landlord name": &jane},
	})
	require.NoError(t, err)
	require.NotNil(t, fields.Variables[0].Value)
	assert.Equal(t, "Jane Doe", *fields.Variables[0].Value)

	// occurrences follow the content, values stay
	content := store.doc(id).Content
	_, err = store.UpdateContent(ctx, id, content, "AMENDED\n"+content, models.VersionReasonEdit)
	require.NoError(t, err)
	res, err = svc.Variables(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Monthly_Rent"}, res.Missing)
	occ := res.Variables[0].Occurrences
	require.Len(t, occ, 1)
	assert.Equal(t, "{{Landlord_Name}}", store.doc(id).Content[occ[0].Start:occ[0].End])

	// clearing a value
	_, err = svc.SetVariableValues(ctx, SetVariableValuesRequest{
		DocumentID: id,
		Values:     map[string]*string{"Landlord_Name": nil},
	})
	require.NoError(t, err)
	assert.Nil(t, store.doc(id).AnalysisCache.Fields.Variables[0].Value)
}

func TestSetVariableValuesRejections(t *testing.T) {
	store, svc, id := analyzedLease(t)
	ctx := context.Background()
	v := "x"

	_, err := svc.SetVariableValues(ctx, SetVariableValuesRequest{DocumentID: id})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.SetVariableValues(ctx, SetVariableValuesRequest{
		DocumentID: id,
		Values:     map[string]*string{"Monthly Rent": &v, "Deposit": &v},
	})
	assert.ErrorIs(t, err, ErrUnknownVariable)
	assert.Nil(t, store.doc(id).AnalysisCache.Fields.Variables[1].Value, "nothing is stored on error")

	store.mutate(id, func(d *models.Document) {
		now := time.Now()
		d.AnalysisStatus = models.AnalysisInProgress
		d.AnalysisUpdatedAt = &now
	})
	_, err = svc.SetVariableValues(ctx, SetVariableValuesRequest{
		DocumentID: id,
		Values:     map[string]*string{"Monthly Rent": &v},
	})
	assert.ErrorIs(t, err, ErrAnalysisInProgress)

	bare := store.seed(&models.Document{Content: leaseText})
	_, err = svc.SetVariableValues(ctx, SetVariableValuesRequest{
		DocumentID: bare,
		Values:     map[string]*string{"Monthly Rent": &v},
	})
	assert.ErrorIs(t, err, ErrNoVariables)
}

func TestNormalizeDocument(t *testing.T) {
	store := newMemoryStore()
	svc := newTestAnalysisService(store, newScriptedLLM())
	id := store.seed(&models.Document{Kind: models.KindTemplate, Content: "Buyer: ______ pays [Amount] on signing."})
	ctx := context.Background()

	res, err := svc.NormalizeDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Buyer: {{Buyer}} pays {{Amount}} on signing.", res.Content)
	assert.Equal(t, 2, res.Normalization.Replacements)
	require.Len(t, res.Variables, 2)
	assert.Equal(t, "party", res.Variables[0].FieldType)
	assert.Equal(t, "currency", res.Variables[1].FieldType)

	doc := store.doc(id)
	assert.Equal(t, res.Content, doc.Content)
	assert.NotNil(t, doc.AnalysisCache.Normalization)
	assert.Equal(t, models.AnalysisPending, doc.AnalysisStatus, "manual normalization is not a pipeline run")

	versions, err := store.ListByDocument(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, models.VersionReasonNormalize, versions[0].Reason)

	// a second pass changes nothing
	again, err := svc.NormalizeDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Normalization.Replacements)
	versions, err = store.ListByDocument(ctx, id)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	empty := store.seed(&models.Document{Content: "   "})
	_, err = svc.NormalizeDocument(ctx, empty)
	assert.ErrorIs(t, err, ErrEmptyContent)
}
