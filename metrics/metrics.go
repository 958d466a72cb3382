package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// analysisMetrics holds Prometheus metrics for the analysis pipeline.
type analysisMetrics struct {
	once sync.Once

	stageRuns     *prometheus.CounterVec   // stage, result
	stageRetries  *prometheus.CounterVec   // stage
	stageDuration *prometheus.HistogramVec // stage
	cacheLookups  *prometheus.CounterVec   // stage, result
	pipelineRuns  *prometheus.CounterVec   // result
	rejectedRuns  prometheus.Counter

	reconcileMethods *prometheus.CounterVec // method
	llmCalls         *prometheus.CounterVec // kind, result
}

var m analysisMetrics

func (am *analysisMetrics) init() {
	am.once.Do(func() {
		am.stageRuns = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contractdesk_analysis_stage_runs_total", Help: "Analysis stage executions"}, []string{"stage", "result"})
		am.stageRetries = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contractdesk_analysis_stage_retries_total", Help: "Analysis stage retry attempts"}, []string{"stage"})
		am.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contractdesk_analysis_cache_lookups_total", Help: "Stage result cache lookups"}, []string{"stage", "result"})
		am.pipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contractdesk_analysis_runs_total", Help: "Completed pipeline runs"}, []string{"result"})
		am.rejectedRuns = prometheus.NewCounter(prometheus.CounterOpts{Name: "contractdesk_analysis_rejected_total", Help: "Pipeline starts rejected because a run is active"})

		am.reconcileMethods = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contractdesk_reconcile_matches_total", Help: "Text reconciliation outcomes by match method"}, []string{"method"})
		am.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "contractdesk_llm_calls_total", Help: "LLM provider calls"}, []string{"kind", "result"})

		buckets := []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80}
		am.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "contractdesk_analysis_stage_seconds", Help: "Duration of analysis stages", Buckets: buckets}, []string{"stage"})

		prometheus.MustRegister(
			am.stageRuns, am.stageRetries, am.stageDuration,
			am.cacheLookups, am.pipelineRuns, am.rejectedRuns,
			am.reconcileMethods, am.llmCalls,
		)
	})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage records one finished stage
func RecordStage(stage string, d time.Duration, err error) {
	m.init()
	m.stageRuns.WithLabelValues(stage, resultLabel(err)).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func RecordStageRetry(stage string) { m.init(); m.stageRetries.WithLabelValues(stage).Inc() }

func RecordCacheLookup(stage string, hit bool) {
	m.init()
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(stage, result).Inc()
}

func RecordPipeline(err error) { m.init(); m.pipelineRuns.WithLabelValues(resultLabel(err)).Inc() }

func RecordRejectedRun() { m.init(); m.rejectedRuns.Inc() }

func RecordReconcile(method string) {
	m.init()
	if method == "" {
		method = "none"
	}
	m.reconcileMethods.WithLabelValues(method).Inc()
}

func RecordLLMCall(kind string, err error) { m.init(); m.llmCalls.WithLabelValues(kind, resultLabel(err)).Inc() }
