package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/virtual-ta/ta-backend/internal/app"
	"github.com/virtual-ta/ta-backend/internal/config"
	"github.com/virtual-ta/ta-backend/internal/logger"
)

func main() {
	// Command line flag for offline indexing
	indexChapter := flag.String("index", "", "Rebuild the vector index of the named chapter and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if cfg.DotenvMissing {
		log.Info("No .env file found, using process environment")
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", "error", err)
	}
	defer application.Close()

	if err := application.MigrateFolders(ctx); err != nil {
		log.Fatal("Failed to register chapter folders", "error", err)
	}

	if *indexChapter != "" {
		log.Info("Starting indexing", "chapter", *indexChapter)
		n, err := application.Chapters.ReindexByName(ctx, *indexChapter)
		if err != nil {
			log.Error("Indexing failed", "chapter", *indexChapter, "error", err)
			application.Close()
			os.Exit(1)
		}
		log.Info("Indexing complete", "chapter", *indexChapter, "chunks", n)
		return
	}

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      application.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Could not listen", "addr", serverAddr, "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	log.Info("Server exiting gracefully")
}
