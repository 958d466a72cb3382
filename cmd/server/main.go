package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"contractdesk-backend/cache"
	"contractdesk-backend/config"
	"contractdesk-backend/handlers"
	"contractdesk-backend/llm"
	"contractdesk-backend/logger"
	"contractdesk-backend/repository"
	"contractdesk-backend/service"
	"contractdesk-backend/storage"
	"contractdesk-backend/textmatch"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg := config.Load()

	appLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer appLogger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// Initialize database connections
	db, err := initPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize Postgres:", err)
	}
	defer db.Close()
	appLogger.Info("SERVER", "Postgres connection established", nil)

	// Initialize storage
	fileStorage, err := storage.NewStorage(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	appLogger.Info("SERVER", "Storage initialized", map[string]interface{}{"type": cfg.Storage.Type})

	stageCache, err := cache.New(cache.Config{
		Backend:  cfg.Cache.Backend,
		RedisURL: cfg.Cache.RedisURL,
		TTL:      cfg.Cache.TTL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	appLogger.Info("SERVER", "Stage cache initialized", map[string]interface{}{"backend": cfg.Cache.Backend})

	// Initialize Gemini client; an empty key is fatal
	geminiClient, err := llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model,
		llm.GeminiWithTemperature(float32(cfg.Gemini.Temperature)),
		llm.GeminiWithLogger(appLogger),
		llm.GeminiWithMaxPrompt(cfg.Gemini.MaxPromptChars),
	)
	if err != nil {
		log.Fatal("Failed to initialize Gemini:", err)
	}
	defer geminiClient.Close()

	// Initialize repositories
	documentRepo := repository.NewDocumentRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	fileRepo := repository.NewFileRepository(db)
	chatRepo := repository.NewChatRepository(db)

	// Initialize services
	documentService := service.NewDocumentService(
		service.WithDocumentStore(documentRepo),
		service.WithVersionStore(versionRepo),
		service.WithFileStore(fileRepo),
		service.WithStorage(fileStorage),
		service.WithLogger(appLogger),
		service.WithMaxUploadBytes(cfg.App.MaxUploadBytes),
		service.WithStaleAfter(cfg.Analysis.StaleAfter),
	)

	analysisService := service.NewAnalysisService(
		service.AnalysisWithDocumentStore(documentRepo),
		service.AnalysisWithLLM(geminiClient),
		service.AnalysisWithCache(stageCache, cfg.Cache.TTL),
		service.AnalysisWithLogger(appLogger),
		service.AnalysisWithRetry(cfg.Analysis.MaxRetries, cfg.Analysis.InitialBackoff),
		service.AnalysisWithStaleAfter(cfg.Analysis.StaleAfter),
		service.AnalysisWithLocator(locator(cfg.Analysis)),
	)

	chatService := service.NewChatService(
		service.ChatWithDocumentStore(documentRepo),
		service.ChatWithChatStore(chatRepo),
		service.ChatWithLLM(geminiClient),
		service.ChatWithLogger(appLogger),
		service.ChatWithHistory(cfg.Analysis.ChatHistory),
	)

	r := handlers.NewRouter(handlers.RouterConfig{
		Documents:          documentService,
		Analysis:           analysisService,
		Chat:               chatService,
		Logger:             appLogger,
		RateLimitPerMinute: cfg.App.RateLimitPerMinute,
		MaxUploadBytes:     cfg.App.MaxUploadBytes,
		AnalysisTimeout:    cfg.Analysis.RunTimeout,
	})

	appLogger.Info("SERVER", fmt.Sprintf("Server starting on port %s", cfg.App.Port), map[string]interface{}{
		"environment": cfg.App.Environment,
		"model":       geminiClient.Model(),
	})
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func locator(cfg config.AnalysisConfig) textmatch.Locator {
	l := textmatch.DefaultLocator
	if cfg.FuzzyThreshold > 0 && cfg.FuzzyThreshold <= 1 {
		l.FuzzyThreshold = cfg.FuzzyThreshold
	}
	return l
}

func initPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
