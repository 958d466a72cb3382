package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DocumentKind distinguishes contracts from reusable templates
type DocumentKind string

const (
	KindContract DocumentKind = "contract"
	KindTemplate DocumentKind = "template"
)

// Valid reports whether k is a known document kind
func (k DocumentKind) Valid() bool {
	return k == KindContract || k == KindTemplate
}

// AnalysisStatus represents where a document is in the analysis pipeline
type AnalysisStatus string

const (
	AnalysisPending         AnalysisStatus = "pending"
	AnalysisInProgress      AnalysisStatus = "in_progress"
	AnalysisSummaryComplete AnalysisStatus = "summary_complete"
	AnalysisRisksComplete   AnalysisStatus = "risks_complete"
	AnalysisComplete        AnalysisStatus = "complete"
	AnalysisFailed          AnalysisStatus = "failed"
)

// Running reports whether a pipeline run owns the document in this status
func (s AnalysisStatus) Running() bool {
	switch s {
	case AnalysisInProgress, AnalysisSummaryComplete, AnalysisRisksComplete:
		return true
	}
	return false
}

// RiskIDs is a JSONB list of risk identifiers
type RiskIDs []string

// Value implements driver.Valuer for JSONB
func (r RiskIDs) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB
func (r *RiskIDs) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok || len(bytes) == 0 {
		*r = make(RiskIDs, 0)
		return nil
	}
	return json.Unmarshal(bytes, r)
}

// Contains reports whether id is in the list
func (r RiskIDs) Contains(id string) bool {
	for _, v := range r {
		if v == id {
			return true
		}
	}
	return false
}

// Document represents a contract or template entity
type Document struct {
	ID                 uuid.UUID      `json:"id"`
	OwnerID            uuid.UUID      `json:"owner_id"`
	Kind               DocumentKind   `json:"kind"`
	Title              string         `json:"title"`
	Content            string         `json:"content"`
	FolderID           *uuid.UUID     `json:"folder_id,omitempty"`
	FileID             *uuid.UUID     `json:"file_id,omitempty"`
	AnalysisCache      AnalysisCache  `json:"analysis_cache"`
	AnalysisStatus     AnalysisStatus `json:"analysis_status"`
	AnalysisProgress   int            `json:"analysis_progress"`
	AnalysisRetryCount int            `json:"analysis_retry_count"`
	AnalysisError      *string        `json:"analysis_error,omitempty"`
	AnalysisUpdatedAt  *time.Time     `json:"analysis_updated_at,omitempty"`
	ResolvedRisks      RiskIDs        `json:"resolved_risks"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// DocumentVersion is a content snapshot taken whenever a document's text changes
type DocumentVersion struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Version    int       `json:"version"`
	Content    string    `json:"content"`
	Reason     string    `json:"reason"` // "create", "edit", "normalize", "replace", "fill", "restore"
	CreatedAt  time.Time `json:"created_at"`
}

const (
	VersionReasonCreate    = "create"
	VersionReasonEdit      = "edit"
	VersionReasonNormalize = "normalize"
	VersionReasonReplace   = "replace"
	VersionReasonFill      = "fill"
	VersionReasonRestore   = "restore"
)

// jsonBytes handles the different types pgx might return for JSONB
func jsonBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}
