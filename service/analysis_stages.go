package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"contractdesk-backend/metrics"
	"contractdesk-backend/models"
	"contractdesk-backend/textmatch"
)

type summaryResponse struct {
	Title         string           `json:"title"`
	DocumentType  string           `json:"document_type"`
	Overview      string           `json:"overview"`
	Parties       []string         `json:"parties"`
	EffectiveDate string           `json:"effective_date"`
	KeyTerms      []models.KeyTerm `json:"key_terms"`
	Obligations   []string         `json:"obligations"`
}

type riskItem struct {
	ID            string  `json:"id"`
	Clause        string  `json:"clause"`
	Location      string  `json:"location"`
	Level         string  `json:"level"`
	Score         float64 `json:"score"`
	Category      string  `json:"category"`
	Explanation   string  `json:"explanation"`
	Suggestion    string  `json:"suggestion"`
	AffectedParty string  `json:"affected_party"`
}

type riskResponse struct {
	Risks        []riskItem `json:"risks"`
	OverallScore float64    `json:"overall_score"`
}

type fieldItem struct {
	Label     string `json:"label"`
	Text      string `json:"text"`
	FieldType string `json:"field_type"`
}

type fieldsResponse struct {
	Variables []fieldItem `json:"variables"`
}

var fieldTypes = map[string]bool{
	"text": true, "date": true, "currency": true, "number": true,
	"party": true, "address": true, "email": true, "percentage": true,
}

func (s *AnalysisService) summarize(ctx context.Context, doc *models.Document) (*models.SummaryResult, error) {
	var resp summaryResponse
	if err := s.generate(ctx, models.StageSummary, doc, summaryPrompt(doc), &resp); err != nil {
		return nil, err
	}
	return &models.SummaryResult{
		Title:         strings.TrimSpace(resp.Title),
		DocumentType:  strings.TrimSpace(resp.DocumentType),
		Overview:      strings.TrimSpace(resp.Overview),
		Parties:       nonEmpty(resp.Parties),
		EffectiveDate: strings.TrimSpace(resp.EffectiveDate),
		KeyTerms:      keyTerms(resp.KeyTerms),
		Obligations:   nonEmpty(resp.Obligations),
		GeneratedAt:   s.now().UTC(),
	}, nil
}

func (s *AnalysisService) assessRisks(ctx context.Context, doc *models.Document) (*models.RiskResult, error) {
	var resp riskResponse
	if err := s.generate(ctx, models.StageRisks, doc, risksPrompt(doc), &resp); err != nil {
		return nil, err
	}
	return buildRiskResult(s.locator, doc.Content, resp, s.now().UTC()), nil
}

func (s *AnalysisService) extractFields(ctx context.Context, doc *models.Document) (*models.FieldResult, error) {
	var resp fieldsResponse
	if err := s.generate(ctx, models.StageFields, doc, fieldsPrompt(doc), &resp); err != nil {
		return nil, err
	}
	return buildFieldResult(doc.Content, resp, doc.AnalysisCache.Fields, s.now().UTC()), nil
}

// normalize rewrites placeholders in doc into {{Variable_Name}} tokens,
// stores the new content as a version when it changed, and returns the
// cache patch for the rebuilt variables and normalization record.
func (s *AnalysisService) normalize(ctx context.Context, doc *models.Document) ([]byte, error) {
	res, err := textmatch.Normalize(doc.Content, fieldHints(doc.AnalysisCache.Fields))
	if err != nil {
		return nil, err
	}

	changed := res.Content != doc.Content
	if changed {
		if _, err := s.docs.UpdateContent(ctx, doc.ID, doc.Content, res.Content, models.VersionReasonNormalize); err != nil {
			return nil, fmt.Errorf("failed to save normalized content: %w", storeErr(err, ErrDocumentNotFound))
		}
		doc.Content = res.Content
	}

	fields := variablesFromPlaceholders(doc.Content, res.Placeholders, doc.AnalysisCache.Fields, s.now().UTC())
	names := make([]string, 0, len(res.Placeholders))
	for _, p := range res.Placeholders {
		names = append(names, p.Name)
	}
	norm := &models.NormalizationResult{
		Replacements: res.Replacements,
		Variables:    names,
		GeneratedAt:  s.now().UTC(),
	}

	doc.AnalysisCache.Fields = fields
	doc.AnalysisCache.Normalization = norm
	patch := map[models.Stage]interface{}{
		models.StageFields:        fields,
		models.StageNormalization: norm,
	}

	// offsets moved, so stored risk spans are recomputed against the new text
	if changed && doc.AnalysisCache.Risks != nil {
		for i := range doc.AnalysisCache.Risks.Items {
			r := &doc.AnalysisCache.Risks.Items[i]
			r.Span = locateSpan(s.locator, doc.Content, r.Clause)
		}
		patch[models.StageRisks] = doc.AnalysisCache.Risks
	}

	s.log.Info("ANALYSIS", "Content normalized", map[string]interface{}{
		"document_id":  doc.ID.String(),
		"replacements": res.Replacements,
		"variables":    len(names),
	})
	return json.Marshal(patch)
}

// buildRiskResult cleans up model output: ids are made unique, scores are
// clamped to 1-10, levels are derived from scores when missing and every
// clause is reconciled to a span of content.
func buildRiskResult(loc textmatch.Locator, content string, resp riskResponse, now time.Time) *models.RiskResult {
	items := make([]models.RiskFactor, 0, len(resp.Risks))
	seen := make(map[string]bool)
	total := 0

	for _, r := range resp.Risks {
		clause := strings.TrimSpace(r.Clause)
		if clause == "" && strings.TrimSpace(r.Explanation) == "" {
			continue
		}

		level := models.RiskLevel(strings.ToLower(strings.TrimSpace(r.Level)))
		score := int(math.Round(r.Score))
		if score <= 0 {
			score = scoreForLevel(level)
		}
		score = clamp(score, 1, 10)
		if !level.Valid() {
			level = models.LevelForScore(score)
		}

		id := strings.TrimSpace(r.ID)
		if id == "" || seen[id] {
			for n := len(items) + 1; ; n++ {
				id = fmt.Sprintf("risk-%d", n)
				if !seen[id] {
					break
				}
			}
		}
		seen[id] = true

		items = append(items, models.RiskFactor{
			ID:            id,
			Clause:        clause,
			Location:      strings.TrimSpace(r.Location),
			Level:         level,
			Score:         score,
			Category:      strings.TrimSpace(r.Category),
			Explanation:   strings.TrimSpace(r.Explanation),
			Suggestion:    strings.TrimSpace(r.Suggestion),
			AffectedParty: strings.TrimSpace(r.AffectedParty),
			Span:          locateSpan(loc, content, clause),
		})
		total += score
	}

	overall := resp.OverallScore
	if overall <= 0 || overall > 10 {
		overall = 0
		if len(items) > 0 {
			overall = float64(total) / float64(len(items))
		}
	}

	return &models.RiskResult{
		Items:        items,
		OverallScore: math.Round(overall*10) / 10,
		GeneratedAt:  now,
	}
}

func scoreForLevel(level models.RiskLevel) int {
	switch level {
	case models.RiskHigh:
		return 8
	case models.RiskLow:
		return 2
	default:
		return 5
	}
}

// buildFieldResult turns model-reported variables into canonical variables
// with occurrences in content. Values already entered for a variable of the
// same name are kept.
func buildFieldResult(content string, resp fieldsResponse, previous *models.FieldResult, now time.Time) *models.FieldResult {
	values := previousVariables(previous)
	vars := make([]models.Variable, 0, len(resp.Variables))
	index := make(map[string]int)

	for _, f := range resp.Variables {
		label := strings.TrimSpace(f.Label)
		name := textmatch.CanonicalName(label)
		if name == "" {
			continue
		}

		occurrences := occurrencesOf(content, name, strings.TrimSpace(f.Text))
		if i, ok := index[name]; ok {
			vars[i].Occurrences = mergeOccurrences(vars[i].Occurrences, occurrences)
			continue
		}

		fieldType := strings.ToLower(strings.TrimSpace(f.FieldType))
		if !fieldTypes[fieldType] {
			fieldType = textmatch.FieldTypeFor(label)
		}

		v := models.Variable{
			Name:        name,
			Label:       label,
			FieldType:   fieldType,
			Occurrences: occurrences,
		}
		if prev, ok := values[name]; ok {
			v.Value = prev.Value
		}
		index[name] = len(vars)
		vars = append(vars, v)
	}

	assignVariableIDs(vars)
	return &models.FieldResult{Variables: vars, GeneratedAt: now}
}

// variablesFromPlaceholders rebuilds the variable list after normalization.
// Every canonical token becomes a variable; variables the model reported
// that have no token (e.g. a date written in prose) are kept after them.
func variablesFromPlaceholders(content string, placeholders []textmatch.Placeholder, previous *models.FieldResult, now time.Time) *models.FieldResult {
	prev := previousVariables(previous)
	vars := make([]models.Variable, 0, len(placeholders))
	seen := make(map[string]bool)

	for _, p := range placeholders {
		v := models.Variable{
			Name:        p.Name,
			Label:       p.Label,
			FieldType:   p.FieldType,
			Occurrences: make([]models.Occurrence, 0, len(p.Occurrences)),
		}
		for _, span := range p.Occurrences {
			v.Occurrences = append(v.Occurrences, models.Occurrence{
				Text:  content[span.Start:span.End],
				Start: span.Start,
				End:   span.End,
			})
		}
		if old, ok := prev[p.Name]; ok {
			v.Label = old.Label
			v.FieldType = old.FieldType
			v.Value = old.Value
		}
		seen[p.Name] = true
		vars = append(vars, v)
	}

	if previous != nil {
		for _, old := range previous.Variables {
			if seen[old.Name] {
				continue
			}
			old.Occurrences = refreshOccurrences(content, old)
			seen[old.Name] = true
			vars = append(vars, old)
		}
	}

	assignVariableIDs(vars)
	return &models.FieldResult{Variables: vars, GeneratedAt: now}
}

func previousVariables(previous *models.FieldResult) map[string]models.Variable {
	out := make(map[string]models.Variable)
	if previous == nil {
		return out
	}
	for _, v := range previous.Variables {
		out[v.Name] = v
	}
	return out
}

func assignVariableIDs(vars []models.Variable) {
	for i := range vars {
		vars[i].ID = fmt.Sprintf("var-%d", i+1)
	}
}

// fieldHints passes the model's variables to the normalizer
func fieldHints(fields *models.FieldResult) []textmatch.Hint {
	if fields == nil {
		return nil
	}
	var hints []textmatch.Hint
	for _, v := range fields.Variables {
		for _, occ := range v.Occurrences {
			if occ.Text == "" || occ.Text == "{{"+v.Name+"}}" {
				continue
			}
			hints = append(hints, textmatch.Hint{Label: v.Label, Text: occ.Text})
		}
	}
	return hints
}

// occurrencesOf finds a variable's canonical token and its literal text
func occurrencesOf(content, name, text string) []models.Occurrence {
	var out []models.Occurrence
	for _, needle := range []string{"{{" + name + "}}", text} {
		if needle == "" {
			continue
		}
		for _, span := range textmatch.LocateAll(content, needle) {
			out = mergeOccurrences(out, []models.Occurrence{{
				Text:  content[span.Start:span.End],
				Start: span.Start,
				End:   span.End,
			}})
		}
	}
	if out == nil {
		out = make([]models.Occurrence, 0)
	}
	return out
}

// refreshOccurrences recomputes a stored variable's occurrences on content
func refreshOccurrences(content string, v models.Variable) []models.Occurrence {
	out := occurrencesOf(content, v.Name, "")
	for _, occ := range v.Occurrences {
		out = mergeOccurrences(out, occurrencesOf(content, v.Name, occ.Text))
	}
	return out
}

// mergeOccurrences adds occurrences that do not overlap existing ones and
// keeps the list in document order.
func mergeOccurrences(base, add []models.Occurrence) []models.Occurrence {
	for _, o := range add {
		overlap := false
		for _, b := range base {
			if o.Start < b.End && b.Start < o.End {
				overlap = true
				break
			}
		}
		if !overlap {
			base = append(base, o)
		}
	}
	sort.Slice(base, func(i, j int) bool { return base[i].Start < base[j].Start })
	return base
}

func locateSpan(loc textmatch.Locator, content, quote string) *models.TextSpan {
	if strings.TrimSpace(quote) == "" {
		return nil
	}
	span, ok := loc.Locate(content, quote)
	if !ok {
		metrics.RecordReconcile("")
		return nil
	}
	metrics.RecordReconcile(span.Method)
	return &models.TextSpan{
		Start:  span.Start,
		End:    span.End,
		Text:   content[span.Start:span.End],
		Method: span.Method,
		Score:  span.Score,
	}
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func keyTerms(in []models.KeyTerm) []models.KeyTerm {
	out := make([]models.KeyTerm, 0, len(in))
	for _, t := range in {
		t.Term = strings.TrimSpace(t.Term)
		t.Value = strings.TrimSpace(t.Value)
		if t.Term != "" {
			out = append(out, t)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
