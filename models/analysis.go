package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Stage names one step of the analysis pipeline and doubles as its cache key
type Stage string

const (
	StageSummary       Stage = "summary"
	StageRisks         Stage = "risks"
	StageFields        Stage = "fields"
	StageNormalization Stage = "normalization"
)

// Stages lists the pipeline stages in execution order
var Stages = []Stage{StageSummary, StageRisks, StageFields, StageNormalization}

// RiskLevel is the coarse severity of a risk factor
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// Valid reports whether l is a known level
func (l RiskLevel) Valid() bool {
	return l == RiskHigh || l == RiskMedium || l == RiskLow
}

// LevelForScore derives a level from a 1-10 score
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 7:
		return RiskHigh
	case score >= 4:
		return RiskMedium
	default:
		return RiskLow
	}
}

// TextSpan locates a piece of text inside a document's content
type TextSpan struct {
	Start  int     `json:"start"`
	End    int     `json:"end"`
	Text   string  `json:"text"`
	Method string  `json:"method,omitempty"` // "exact", "case_insensitive", "whitespace", "fuzzy", "partial"
	Score  float64 `json:"score,omitempty"`
}

// KeyTerm is a notable defined term or commercial term in a document
type KeyTerm struct {
	Term  string `json:"term"`
	Value string `json:"value"`
}

// SummaryResult is the output of the summary stage
type SummaryResult struct {
	Title         string    `json:"title"`
	DocumentType  string    `json:"document_type"`
	Overview      string    `json:"overview"`
	Parties       []string  `json:"parties"`
	EffectiveDate string    `json:"effective_date,omitempty"`
	KeyTerms      []KeyTerm `json:"key_terms"`
	Obligations   []string  `json:"obligations"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// RiskFactor is one risk identified in a document
type RiskFactor struct {
	ID            string    `json:"id"`
	Clause        string    `json:"clause"`
	Location      string    `json:"location"`
	Level         RiskLevel `json:"level"`
	Score         int       `json:"score"`
	Category      string    `json:"category"`
	Explanation   string    `json:"explanation"`
	Suggestion    string    `json:"suggestion"`
	AffectedParty string    `json:"affected_party"`
	Span          *TextSpan `json:"span,omitempty"`
}

// RiskResult is the output of the risk stage
type RiskResult struct {
	Items        []RiskFactor `json:"items"`
	OverallScore float64      `json:"overall_score"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// Occurrence is one literal appearance of a variable in the document
type Occurrence struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Variable is a detected blank or placeholder awaiting a user-supplied value
type Variable struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Label       string       `json:"label"`
	FieldType   string       `json:"field_type"`
	Occurrences []Occurrence `json:"occurrences"`
	Value       *string      `json:"value,omitempty"`
}

// FieldResult is the output of the field extraction stage
type FieldResult struct {
	Variables   []Variable `json:"variables"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// NormalizationResult records the last content normalization
type NormalizationResult struct {
	Replacements int       `json:"replacements"`
	Variables    []string  `json:"variables"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// AnalysisCache holds the latest result of each pipeline stage
type AnalysisCache struct {
	Summary       *SummaryResult       `json:"summary,omitempty"`
	Risks         *RiskResult          `json:"risks,omitempty"`
	Fields        *FieldResult         `json:"fields,omitempty"`
	Normalization *NormalizationResult `json:"normalization,omitempty"`
}

// Has reports whether a result for the stage is cached
func (c AnalysisCache) Has(stage Stage) bool {
	switch stage {
	case StageSummary:
		return c.Summary != nil
	case StageRisks:
		return c.Risks != nil
	case StageFields:
		return c.Fields != nil
	case StageNormalization:
		return c.Normalization != nil
	}
	return false
}

// Merge copies every non-nil sub-object of other into c. Existing results
// that other does not carry are kept.
func (c *AnalysisCache) Merge(other AnalysisCache) {
	if other.Summary != nil {
		c.Summary = other.Summary
	}
	if other.Risks != nil {
		c.Risks = other.Risks
	}
	if other.Fields != nil {
		c.Fields = other.Fields
	}
	if other.Normalization != nil {
		c.Normalization = other.Normalization
	}
}

// Value implements driver.Valuer for JSONB
func (c AnalysisCache) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB
func (c *AnalysisCache) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok || len(bytes) == 0 {
		*c = AnalysisCache{}
		return nil
	}
	return json.Unmarshal(bytes, c)
}

// StagePatch builds the single-key JSON object merged into the stored cache
// for one stage result.
func StagePatch(stage Stage, result interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{string(stage): result})
}
