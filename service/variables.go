package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"contractdesk-backend/models"
	"contractdesk-backend/textmatch"

	"github.com/google/uuid"
)

// Highlight is a risk placed on the current document content
type Highlight struct {
	RiskID     string           `json:"risk_id"`
	Level      models.RiskLevel `json:"level"`
	Score      int              `json:"score"`
	Category   string           `json:"category"`
	Start      int              `json:"start"`
	End        int              `json:"end"`
	Text       string           `json:"text"`
	Method     string           `json:"method"`
	MatchScore float64          `json:"match_score"`
	Resolved   bool             `json:"resolved"`
}

// HighlightsResult lists located risks and the ids of risks whose clause
// could not be found in the content.
type HighlightsResult struct {
	Highlights []Highlight `json:"highlights"`
	Unlocated  []string    `json:"unlocated"`
}

// Highlights reconciles every cached risk against the document's current
// content, so spans stay correct after edits.
func (s *AnalysisService) Highlights(ctx context.Context, id uuid.UUID) (*HighlightsResult, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	if doc.AnalysisCache.Risks == nil {
		return nil, ErrNoRisks
	}

	res := &HighlightsResult{
		Highlights: make([]Highlight, 0, len(doc.AnalysisCache.Risks.Items)),
		Unlocated:  make([]string, 0),
	}
	for _, r := range doc.AnalysisCache.Risks.Items {
		span := locateSpan(s.locator, doc.Content, r.Clause)
		if span == nil {
			res.Unlocated = append(res.Unlocated, r.ID)
			continue
		}
		res.Highlights = append(res.Highlights, Highlight{
			RiskID:     r.ID,
			Level:      r.Level,
			Score:      r.Score,
			Category:   r.Category,
			Start:      span.Start,
			End:        span.End,
			Text:       span.Text,
			Method:     span.Method,
			MatchScore: span.Score,
			Resolved:   doc.ResolvedRisks.Contains(r.ID),
		})
	}

	sort.SliceStable(res.Highlights, func(i, j int) bool {
		a, b := res.Highlights[i], res.Highlights[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Score > b.Score
	})
	return res, nil
}

// VariablesResult lists a document's variables with fresh occurrences
type VariablesResult struct {
	Variables []models.Variable `json:"variables"`
	// Missing names the variables that still have no value
	Missing []string `json:"missing"`
}

// Variables returns the extracted variables with occurrences recomputed on
// the current content.
func (s *AnalysisService) Variables(ctx context.Context, id uuid.UUID) (*VariablesResult, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	if doc.AnalysisCache.Fields == nil {
		return nil, ErrNoVariables
	}

	res := &VariablesResult{
		Variables: make([]models.Variable, 0, len(doc.AnalysisCache.Fields.Variables)),
		Missing:   make([]string, 0),
	}
	for _, v := range doc.AnalysisCache.Fields.Variables {
		v.Occurrences = refreshOccurrences(doc.Content, v)
		if v.Value == nil || strings.TrimSpace(*v.Value) == "" {
			res.Missing = append(res.Missing, v.Name)
		}
		res.Variables = append(res.Variables, v)
	}
	return res, nil
}

// SetVariableValuesRequest sets user-supplied values by variable name.
// A nil value clears it.
type SetVariableValuesRequest struct {
	DocumentID uuid.UUID
	Values     map[string]*string
}

// SetVariableValues stores values on the cached variables
func (s *AnalysisService) SetVariableValues(ctx context.Context, req SetVariableValuesRequest) (*models.FieldResult, error) {
	if len(req.Values) == 0 {
		return nil, fmt.Errorf("%w: no values given", ErrInvalidRequest)
	}

	doc, err := s.docs.GetByID(ctx, req.DocumentID)
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	if s.claimedElsewhere(doc) {
		return nil, ErrAnalysisInProgress
	}
	fields := doc.AnalysisCache.Fields
	if fields == nil {
		return nil, ErrNoVariables
	}

	index := make(map[string]int, len(fields.Variables))
	for i, v := range fields.Variables {
		index[v.Name] = i
	}

	var unknown []string
	for key, value := range req.Values {
		i, ok := index[textmatch.CanonicalName(key)]
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		if value != nil {
			v := strings.TrimSpace(*value)
			value = &v
		}
		fields.Variables[i].Value = value
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, strings.Join(unknown, ", "))
	}

	patch, err := models.StagePatch(models.StageFields, fields)
	if err != nil {
		return nil, err
	}
	if err := s.docs.MergeCache(ctx, doc.ID, patch); err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	return fields, nil
}

// NormalizeDocumentResult represents the outcome of a manual normalization
type NormalizeDocumentResult struct {
	Content       string                      `json:"content"`
	Normalization *models.NormalizationResult `json:"normalization"`
	Variables     []models.Variable           `json:"variables"`
}

// NormalizeDocument runs the normalization stage on demand, outside a
// pipeline run.
func (s *AnalysisService) NormalizeDocument(ctx context.Context, id uuid.UUID) (*NormalizeDocumentResult, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	if s.claimedElsewhere(doc) {
		return nil, ErrAnalysisInProgress
	}
	if isBlank(doc.Content) {
		return nil, ErrEmptyContent
	}

	patch, err := s.normalize(ctx, doc)
	if err != nil {
		if errors.Is(err, textmatch.ErrStaleSpan) || errors.Is(err, textmatch.ErrOverlappingEdits) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, err
	}
	if err := s.docs.MergeCache(ctx, doc.ID, patch); err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}

	return &NormalizeDocumentResult{
		Content:       doc.Content,
		Normalization: doc.AnalysisCache.Normalization,
		Variables:     doc.AnalysisCache.Fields.Variables,
	}, nil
}
