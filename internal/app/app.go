// Package app wires configuration, storage, the language model and the HTTP
// layer into one application object.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/virtual-ta/ta-backend/internal/api"
	"github.com/virtual-ta/ta-backend/internal/auth"
	"github.com/virtual-ta/ta-backend/internal/config"
	"github.com/virtual-ta/ta-backend/internal/core"
	"github.com/virtual-ta/ta-backend/internal/ingest"
	"github.com/virtual-ta/ta-backend/internal/llm"
	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
)

type App struct {
	Config   config.Config
	Log      *logger.Logger
	Store    *store.SQLiteStore
	Gemini   *llm.Gemini // nil when GEMINI_API_KEY is unset
	Chapters *core.ChapterService
	Router   http.Handler
}

func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{Config: cfg, Log: log, Store: db}

	var (
		generator core.Generator
		embedder  core.QueryEmbedder
		indexer   core.FolderIndexer
	)
	if cfg.GeminiAPIKey != "" {
		g, err := llm.NewGemini(ctx, llm.Options{
			APIKey:         cfg.GeminiAPIKey,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: cfg.EmbeddingModel,
			Temperature:    cfg.LLMTemperature,
		}, log.With("component", "gemini"))
		if err != nil {
			db.Close()
			return nil, err
		}
		a.Gemini = g
		generator, embedder = g, g
		indexer = ingest.NewIndexer(g, log.With("component", "indexer"))
		log.Info("Gemini client initialized", "chat_model", cfg.ChatModel, "embedding_model", cfg.EmbeddingModel)
	} else {
		log.Warn("GEMINI_API_KEY is not set; question answering, quizzes and reindexing are disabled")
	}

	var provider auth.Provider
	if cfg.GoogleClientID != "" {
		provider = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	} else {
		log.Warn("GOOGLE_CLIENT_ID is not set; Google login is disabled")
	}

	tokens := auth.NewTokenIssuer(cfg.SecretKey, time.Duration(cfg.TokenExpireMinutes)*time.Minute)
	resolver := core.NewRetrieverResolver(db, embedder)
	a.Chapters = core.NewChapterService(db, indexer, cfg.IndexRoot, log)

	handler := api.NewHandler(api.Services{
		Auth:      auth.NewService(db, provider, tokens, cfg.IsAdminEmail, log),
		Chapters:  a.Chapters,
		Resources: core.NewResourceService(db, log),
		Answers:   core.NewAnswerService(db, resolver, generator, log),
		Quizzes:   core.NewQuizService(db, resolver, generator, log),
		Analytics: core.NewAnalyticsService(db, generator, log),
	}, cfg.FrontendURL, log)
	a.Router = api.NewRouter(handler, cfg.CORSOrigins, log)

	return a, nil
}

// MigrateFolders registers chapter folders that exist on disk but not in the database.
func (a *App) MigrateFolders(ctx context.Context) error {
	registered, err := a.Chapters.RegisterOrphanFolders(ctx)
	if err != nil {
		return err
	}
	if len(registered) > 0 {
		a.Log.Info("Registered existing chapter folders", "count", len(registered), "index_root", a.Config.IndexRoot)
	}
	return nil
}

func (a *App) Close() {
	if a.Gemini != nil {
		a.Gemini.Close()
	}
	if err := a.Store.Close(); err != nil {
		a.Log.Warn("Error closing database", "error", err)
	}
}
