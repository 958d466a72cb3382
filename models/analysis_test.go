package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisCacheMergeKeepsExistingStages(t *testing.T) {
	cache := AnalysisCache{
		Summary: &SummaryResult{Overview: "lease agreement"},
		Risks:   &RiskResult{Items: []RiskFactor{{ID: "risk-1"}}},
	}

	cache.Merge(AnalysisCache{Fields: &FieldResult{Variables: []Variable{{Name: "Tenant_Name"}}}})

	require.NotNil(t, cache.Summary)
	assert.Equal(t, "lease agreement", cache.Summary.Overview)
	require.NotNil(t, cache.Risks)
	assert.Len(t, cache.Risks.Items, 1)
	require.NotNil(t, cache.Fields)
	assert.Equal(t, "Tenant_Name", cache.Fields.Variables[0].Name)
	assert.Nil(t, cache.Normalization)
}

func TestAnalysisCacheMergeReplacesStageResult(t *testing.T) {
	cache := AnalysisCache{Summary: &SummaryResult{Overview: "old"}}
	cache.Merge(AnalysisCache{Summary: &SummaryResult{Overview: "new"}})
	assert.Equal(t, "new", cache.Summary.Overview)
}

func TestAnalysisCacheHas(t *testing.T) {
	cache := AnalysisCache{Risks: &RiskResult{}}
	assert.False(t, cache.Has(StageSummary))
	assert.True(t, cache.Has(StageRisks))
	assert.False(t, cache.Has(Stage("unknown")))
}

func TestAnalysisCacheScan(t *testing.T) {
	var cache AnalysisCache
	require.NoError(t, cache.Scan([]byte(`{"summary":{"overview":"nda"}}`)))
	require.NotNil(t, cache.Summary)
	assert.Equal(t, "nda", cache.Summary.Overview)

	require.NoError(t, cache.Scan(nil))
	assert.Nil(t, cache.Summary)

	require.NoError(t, cache.Scan(`{"fields":{"variables":[]}}`))
	assert.NotNil(t, cache.Fields)
}

func TestStagePatch(t *testing.T) {
	patch, err := StagePatch(StageRisks, RiskResult{OverallScore: 4.5})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(patch, &decoded))
	assert.Len(t, decoded, 1)
	assert.Contains(t, decoded, "risks")
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, RiskHigh, LevelForScore(9))
	assert.Equal(t, RiskHigh, LevelForScore(7))
	assert.Equal(t, RiskMedium, LevelForScore(4))
	assert.Equal(t, RiskLow, LevelForScore(1))
}

func TestAnalysisStatusRunning(t *testing.T) {
	assert.True(t, AnalysisInProgress.Running())
	assert.True(t, AnalysisRisksComplete.Running())
	assert.False(t, AnalysisComplete.Running())
	assert.False(t, AnalysisFailed.Running())
	assert.False(t, AnalysisPending.Running())
}

func TestRiskIDsScan(t *testing.T) {
	var ids RiskIDs
	require.NoError(t, ids.Scan([]byte(`["risk-1","risk-3"]`)))
	assert.True(t, ids.Contains("risk-3"))
	assert.False(t, ids.Contains("risk-2"))

	require.NoError(t, ids.Scan(nil))
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}
