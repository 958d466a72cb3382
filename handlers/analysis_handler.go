package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"contractdesk-backend/logger"
	"contractdesk-backend/service"

	"github.com/gin-gonic/gin"
)

// AnalysisHandler handles HTTP requests for the analysis pipeline and its
// results
type AnalysisHandler struct {
	analysis *service.AnalysisService
	log      logger.ILogger
	timeout  time.Duration
}

const defaultAnalysisTimeout = 10 * time.Minute

// NewAnalysisHandler creates a new analysis handler. Background runs are
// cancelled after timeout.
func NewAnalysisHandler(analysis *service.AnalysisService, log logger.ILogger, timeout time.Duration) *AnalysisHandler {
	if timeout <= 0 {
		timeout = defaultAnalysisTimeout
	}
	return &AnalysisHandler{
		analysis: analysis,
		log:      log,
		timeout:  timeout,
	}
}

// AnalyzeRequest represents the optional body of an analyze request
type AnalyzeRequest struct {
	Force bool `json:"force"`
}

// Analyze handles POST /api/documents/:id/analyze. The run is claimed
// synchronously and executed in the background; clients poll
// GET /api/documents/:id/analysis.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	started, err := h.analysis.StartAnalysis(c.Request.Context(), service.StartAnalysisRequest{
		DocumentID: id,
		Force:      req.Force,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// Use background context (not request context) to avoid cancellation
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.analysis.RunAnalysis(bgCtx, service.RunAnalysisRequest{DocumentID: id, Force: req.Force}); err != nil {
			h.log.Error("ANALYSIS", "Background analysis failed", map[string]interface{}{
				"document_id": id.String(),
				"error":       err.Error(),
			})
		}
	}()

	respond(c, http.StatusAccepted, gin.H{
		"document_id": started.DocumentID,
		"status":      "in_progress",
		"progress":    started.Progress,
		"stages":      started.Stages,
		"message":     "Analysis started. Poll /api/documents/:id/analysis for updates.",
	})
}

// GetAnalysis handles GET /api/documents/:id/analysis
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.analysis.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

// GetHighlights handles GET /api/documents/:id/highlights
func (h *AnalysisHandler) GetHighlights(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.analysis.Highlights(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// GetVariables handles GET /api/documents/:id/variables
func (h *AnalysisHandler) GetVariables(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.analysis.Variables(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// SetVariablesRequest maps variable names to values; null clears a value
type SetVariablesRequest struct {
	Values map[string]*string `json:"values" binding:"required"`
}

// SetVariables handles PUT /api/documents/:id/variables
func (h *AnalysisHandler) SetVariables(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SetVariablesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	fields, err := h.analysis.SetVariableValues(c.Request.Context(), service.SetVariableValuesRequest{
		DocumentID: id,
		Values:     req.Values,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, fields)
}

// Normalize handles POST /api/documents/:id/normalize
func (h *AnalysisHandler) Normalize(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.analysis.NormalizeDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}
