package handlers

import (
	"net/http"
	"time"

	"contractdesk-backend/logger"
	"contractdesk-backend/middleware"
	"contractdesk-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig wires services into the HTTP API
type RouterConfig struct {
	Documents *service.DocumentService
	Analysis  *service.AnalysisService
	Chat      *service.ChatService
	Logger    logger.ILogger
	// RateLimitPerMinute limits analyze and chat calls per client IP; 0 disables it
	RateLimitPerMinute int
	MaxUploadBytes     int64
	// AnalysisTimeout bounds a background analysis run; 0 means 10 minutes
	AnalysisTimeout time.Duration
}

// NewRouter builds the gin engine with middleware and every route
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	documentHandler := NewDocumentHandler(cfg.Documents)
	fileHandler := NewFileHandler(cfg.Documents, cfg.MaxUploadBytes)
	analysisHandler := NewAnalysisHandler(cfg.Analysis, log, cfg.AnalysisTimeout)
	chatHandler := NewChatHandler(cfg.Chat)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(log), middleware.Recovery(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// routes that call the model share one limiter
	limited := middleware.RateLimit(log, cfg.RateLimitPerMinute, time.Minute)

	api := r.Group("/api")
	{
		// Document endpoints
		api.POST("/documents", documentHandler.CreateDocument)
		api.GET("/documents", documentHandler.ListDocuments)
		api.POST("/documents/upload", fileHandler.UploadDocument)
		api.GET("/documents/:id", documentHandler.GetDocument)
		api.PUT("/documents/:id", documentHandler.UpdateDocument)
		api.DELETE("/documents/:id", documentHandler.DeleteDocument)
		api.GET("/documents/:id/versions", documentHandler.ListVersions)
		api.POST("/documents/:id/versions/:version/restore", documentHandler.RestoreVersion)
		api.POST("/documents/:id/replace", documentHandler.ReplaceText)
		api.POST("/documents/:id/fill", documentHandler.FillTemplate)
		api.POST("/documents/:id/risks/:riskId/resolve", documentHandler.ResolveRisk)
		api.DELETE("/documents/:id/risks/:riskId/resolve", documentHandler.UnresolveRisk)

		// Analysis endpoints
		api.POST("/documents/:id/analyze", limited, analysisHandler.Analyze)
		api.GET("/documents/:id/analysis", analysisHandler.GetAnalysis)
		api.GET("/documents/:id/highlights", analysisHandler.GetHighlights)
		api.GET("/documents/:id/variables", analysisHandler.GetVariables)
		api.PUT("/documents/:id/variables", analysisHandler.SetVariables)
		api.POST("/documents/:id/normalize", analysisHandler.Normalize)

		// Chat endpoints
		api.POST("/documents/:id/chat", limited, chatHandler.SendMessage)
		api.GET("/documents/:id/chat", chatHandler.ListMessages)

		// File endpoints
		api.GET("/files/:id", fileHandler.GetFile)
	}

	return r
}
