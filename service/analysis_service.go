package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contractdesk-backend/cache"
	"contractdesk-backend/llm"
	"contractdesk-backend/logger"
	"contractdesk-backend/metrics"
	"contractdesk-backend/models"
	"contractdesk-backend/textmatch"

	"github.com/google/uuid"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = time.Second
	defaultStaleAfter     = 10 * time.Minute
)

// pipelineStep is one stage with the status and progress recorded when it
// finishes.
type pipelineStep struct {
	stage    models.Stage
	status   models.AnalysisStatus
	progress int
}

var pipeline = []pipelineStep{
	{models.StageSummary, models.AnalysisSummaryComplete, 30},
	{models.StageRisks, models.AnalysisRisksComplete, 60},
	{models.StageFields, models.AnalysisRisksComplete, 85},
	{models.StageNormalization, models.AnalysisComplete, 100},
}

// AnalysisService runs the document analysis pipeline
type AnalysisService struct {
	docs           DocumentStore
	llm            llm.Client
	cache          cache.Cache
	cacheTTL       time.Duration
	log            logger.ILogger
	locator        textmatch.Locator
	maxRetries     int
	initialBackoff time.Duration
	staleAfter     time.Duration
	now            func() time.Time
}

// AnalysisServiceOption is a functional option for AnalysisService
type AnalysisServiceOption func(*AnalysisService)

// AnalysisWithDocumentStore sets the document store
func AnalysisWithDocumentStore(docs DocumentStore) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.docs = docs
	}
}

// AnalysisWithLLM sets the LLM client
func AnalysisWithLLM(client llm.Client) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.llm = client
	}
}

// AnalysisWithCache sets the stage result cache
func AnalysisWithCache(c cache.Cache, ttl time.Duration) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// AnalysisWithLogger sets the logger
func AnalysisWithLogger(l logger.ILogger) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.log = l
	}
}

// AnalysisWithRetry sets the attempts per stage and the first backoff delay
func AnalysisWithRetry(maxRetries int, initialBackoff time.Duration) AnalysisServiceOption {
	return func(s *AnalysisService) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if initialBackoff >= 0 {
			s.initialBackoff = initialBackoff
		}
	}
}

// AnalysisWithStaleAfter sets how long a silent run keeps its claim
func AnalysisWithStaleAfter(d time.Duration) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.staleAfter = d
	}
}

// AnalysisWithLocator overrides the reconciliation thresholds
func AnalysisWithLocator(l textmatch.Locator) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.locator = l
	}
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(opts ...AnalysisServiceOption) *AnalysisService {
	s := &AnalysisService{
		log:            logger.NewNopLogger(),
		locator:        textmatch.DefaultLocator,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
		staleAfter:     defaultStaleAfter,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAnalysisRequest represents a request to analyze a document
type StartAnalysisRequest struct {
	DocumentID uuid.UUID
	// Force re-runs stages that already have cached results
	Force bool
}

// StartAnalysisResult represents a claimed pipeline run
type StartAnalysisResult struct {
	DocumentID uuid.UUID
	Progress   int
	// Stages lists the stages the run will execute
	Stages []models.Stage
}

// StartAnalysis claims the document for a pipeline run and returns
// immediately. The caller runs RunAnalysis afterwards, usually in the
// background.
func (s *AnalysisService) StartAnalysis(ctx context.Context, req StartAnalysisRequest) (*StartAnalysisResult, error) {
	if s.docs == nil {
		return nil, errors.New("document store not set")
	}

	doc, err := s.docs.GetByID(ctx, req.DocumentID)
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	if isBlank(doc.Content) {
		return nil, ErrEmptyContent
	}

	pending := pendingStages(doc.AnalysisCache, req.Force)
	start := startProgress(doc.AnalysisCache, req.Force)

	ok, err := s.docs.TryStartAnalysis(ctx, doc.ID, start, s.now().Add(-s.staleAfter))
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	if !ok {
		metrics.RecordRejectedRun()
		return nil, ErrAnalysisInProgress
	}

	s.log.Info("ANALYSIS", "Analysis run claimed", map[string]interface{}{
		"document_id": doc.ID.String(),
		"force":       req.Force,
		"progress":    start,
		"stages":      len(pending),
	})

	return &StartAnalysisResult{DocumentID: doc.ID, Progress: start, Stages: pending}, nil
}

// pendingStages lists the stages a run must execute. Without force the run
// resumes after the last cached stage in pipeline order.
func pendingStages(c models.AnalysisCache, force bool) []models.Stage {
	stages := make([]models.Stage, 0, len(pipeline))
	for _, step := range pipeline {
		if force || !c.Has(step.stage) {
			stages = append(stages, step.stage)
		}
	}
	return stages
}

// startProgress is the progress of the leading run of cached stages
func startProgress(c models.AnalysisCache, force bool) int {
	if force {
		return 0
	}
	progress := 0
	for _, step := range pipeline {
		if !c.Has(step.stage) {
			break
		}
		progress = step.progress
	}
	return progress
}

// RunAnalysisRequest represents a claimed run to execute
type RunAnalysisRequest struct {
	DocumentID uuid.UUID
	Force      bool
}

// RunAnalysis executes the pipeline stages in order. Each finished stage is
// persisted before the next one starts, so a failed run keeps everything
// that completed and the next run resumes at the failed stage.
func (s *AnalysisService) RunAnalysis(ctx context.Context, req RunAnalysisRequest) (err error) {
	if s.docs == nil {
		return errors.New("document store not set")
	}
	if s.llm == nil {
		return errors.New("llm client not set")
	}

	started := s.now()
	defer func() { metrics.RecordPipeline(err) }()

	doc, err := s.docs.GetByID(ctx, req.DocumentID)
	if err != nil {
		return storeErr(err, ErrDocumentNotFound)
	}

	if req.Force {
		s.evictCached(ctx, doc)
	}

	finished := false
	for _, step := range pipeline {
		if !req.Force && doc.AnalysisCache.Has(step.stage) {
			s.log.Debug("ANALYSIS", "Stage cached, skipping", map[string]interface{}{
				"document_id": doc.ID.String(),
				"stage":       string(step.stage),
			})
			continue
		}

		stageStart := s.now()
		stageErr := s.runStage(ctx, doc, step)
		metrics.RecordStage(string(step.stage), s.now().Sub(stageStart), stageErr)
		if stageErr != nil {
			s.fail(doc.ID, step.stage, stageErr)
			return fmt.Errorf("%w: %s stage: %w", ErrAnalysisFailed, step.stage, stageErr)
		}
		finished = step.status == models.AnalysisComplete
	}

	// the last stage was cached, so nothing has marked the run complete yet
	if !finished {
		if err := s.docs.SaveStage(ctx, doc.ID, []byte("{}"), models.AnalysisComplete, 100); err != nil {
			s.fail(doc.ID, models.StageNormalization, err)
			return fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
		}
	}

	s.log.Info("ANALYSIS", "Analysis complete", map[string]interface{}{
		"document_id": doc.ID.String(),
		"duration_ms": s.now().Sub(started).Milliseconds(),
	})
	return nil
}

// runStage produces one stage result, merges it into doc.AnalysisCache and
// persists it.
func (s *AnalysisService) runStage(ctx context.Context, doc *models.Document, step pipelineStep) error {
	var (
		patch []byte
		err   error
	)

	switch step.stage {
	case models.StageSummary:
		var res *models.SummaryResult
		if res, err = s.summarize(ctx, doc); err == nil {
			doc.AnalysisCache.Summary = res
			patch, err = models.StagePatch(step.stage, res)
		}
	case models.StageRisks:
		var res *models.RiskResult
		if res, err = s.assessRisks(ctx, doc); err == nil {
			doc.AnalysisCache.Risks = res
			patch, err = models.StagePatch(step.stage, res)
		}
	case models.StageFields:
		var res *models.FieldResult
		if res, err = s.extractFields(ctx, doc); err == nil {
			doc.AnalysisCache.Fields = res
			patch, err = models.StagePatch(step.stage, res)
		}
	case models.StageNormalization:
		patch, err = s.normalize(ctx, doc)
	default:
		err = fmt.Errorf("unknown stage %q", step.stage)
	}
	if err != nil {
		return err
	}

	if err := s.docs.SaveStage(ctx, doc.ID, patch, step.status, step.progress); err != nil {
		return fmt.Errorf("failed to save %s result: %w", step.stage, err)
	}

	s.log.Info("ANALYSIS", "Stage complete", map[string]interface{}{
		"document_id": doc.ID.String(),
		"stage":       string(step.stage),
		"progress":    step.progress,
	})
	return nil
}

func (s *AnalysisService) fail(id uuid.UUID, stage models.Stage, cause error) {
	s.log.Error("ANALYSIS", "Analysis stage failed", map[string]interface{}{
		"document_id": id.String(),
		"stage":       string(stage),
		"error":       cause,
	})

	// record the failure even when the run's context is already done
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msg := fmt.Sprintf("%s stage: %v", stage, cause)
	if err := s.docs.FailAnalysis(ctx, id, msg); err != nil {
		s.log.Error("ANALYSIS", "Failed to mark analysis as failed", map[string]interface{}{
			"document_id": id.String(),
			"error":       err,
		})
	}
}

// generate calls the model for a stage with retry and exponential backoff,
// serving and filling the stage cache around it.
func (s *AnalysisService) generate(ctx context.Context, stage models.Stage, doc *models.Document, prompt string, out interface{}) error {
	key := cache.Key(string(stage), s.llm.Model(), doc.Content)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("ANALYSIS", "Stage cache lookup failed", map[string]interface{}{
				"stage": string(stage),
				"error": err.Error(),
			})
		}
		metrics.RecordCacheLookup(string(stage), ok)
		if ok {
			if err := llm.ParseJSON(string(raw), out); err == nil {
				return nil
			}
		}
	}

	req := llm.Request{Kind: string(stage), System: analystInstruction, Prompt: prompt}
	err := s.withRetry(ctx, stage, func(ctx context.Context) error {
		return s.llm.GenerateJSON(ctx, req, out)
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		raw, err := json.Marshal(out)
		if err == nil {
			err = s.cache.Set(ctx, key, raw, s.cacheTTL)
		}
		if err != nil {
			s.log.Warn("ANALYSIS", "Failed to store stage result in cache", map[string]interface{}{
				"stage": string(stage),
				"error": err.Error(),
			})
		}
	}
	return nil
}

// evictCached drops the cached model output for doc's current content so a
// forced run asks the model again
func (s *AnalysisService) evictCached(ctx context.Context, doc *models.Document) {
	if s.cache == nil {
		return
	}
	for _, stage := range []models.Stage{models.StageSummary, models.StageRisks, models.StageFields} {
		if err := s.cache.Delete(ctx, cache.Key(string(stage), s.llm.Model(), doc.Content)); err != nil {
			s.log.Warn("ANALYSIS", "Failed to evict cached stage result", map[string]interface{}{
				"document_id": doc.ID.String(),
				"stage":       string(stage),
				"error":       err.Error(),
			})
		}
	}
}

func (s *AnalysisService) withRetry(ctx context.Context, stage models.Stage, call func(context.Context) error) error {
	var err error
	backoff := s.initialBackoff
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.RecordStageRetry(string(stage))
			s.log.Warn("ANALYSIS", "Retrying stage", map[string]interface{}{
				"stage":   string(stage),
				"attempt": attempt + 1,
				"backoff": backoff.String(),
				"error":   err.Error(),
			})
			if sleepErr := sleepContext(ctx, backoff); sleepErr != nil {
				return sleepErr
			}
			backoff *= 2
		}

		err = call(ctx)
		if err == nil {
			return nil
		}
		if !llm.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", s.maxRetries, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AnalysisView is the analysis state of a document
type AnalysisView struct {
	DocumentID    uuid.UUID             `json:"document_id"`
	Status        models.AnalysisStatus `json:"status"`
	Progress      int                   `json:"progress"`
	RetryCount    int                   `json:"retry_count"`
	Error         *string               `json:"error,omitempty"`
	UpdatedAt     *time.Time            `json:"updated_at,omitempty"`
	Cache         models.AnalysisCache  `json:"cache"`
	ResolvedRisks models.RiskIDs        `json:"resolved_risks"`
}

// GetAnalysis returns status, progress and cached results
func (s *AnalysisService) GetAnalysis(ctx context.Context, id uuid.UUID) (*AnalysisView, error) {
	if s.docs == nil {
		return nil, errors.New("document store not set")
	}
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrDocumentNotFound)
	}
	return &AnalysisView{
		DocumentID:    doc.ID,
		Status:        doc.AnalysisStatus,
		Progress:      doc.AnalysisProgress,
		RetryCount:    doc.AnalysisRetryCount,
		Error:         doc.AnalysisError,
		UpdatedAt:     doc.AnalysisUpdatedAt,
		Cache:         doc.AnalysisCache,
		ResolvedRisks: doc.ResolvedRisks,
	}, nil
}

// claimedElsewhere reports whether another run currently owns the document
func (s *AnalysisService) claimedElsewhere(doc *models.Document) bool {
	return analysisClaimed(doc, s.now(), s.staleAfter)
}
