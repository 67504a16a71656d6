// Package main is the entry point for the fact-check API server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/veritube/factcheck-api/internal/config"
	"github.com/veritube/factcheck-api/internal/database"
	"github.com/veritube/factcheck-api/internal/router"
	"github.com/veritube/factcheck-api/internal/services/factcheck"
	"github.com/veritube/factcheck-api/internal/services/gemini"
	"github.com/veritube/factcheck-api/internal/services/media"
	"github.com/veritube/factcheck-api/internal/services/tasks"
	"github.com/veritube/factcheck-api/internal/services/transcript"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("🚀 Fact-Check API %s starting...", Version)

	// Step 1: Load Configuration (.env is optional, real env wins)
	if err := godotenv.Load(); err == nil {
		log.Println("📋 Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	log.Printf("📋 Config loaded: port=%s, gin_mode=%s, model=%s", cfg.Port, cfg.GinMode, cfg.GeminiModel)
	log.Printf("🔧 yt-dlp path: %s, temp dir: %s", cfg.YtDlpPath, cfg.TempDir)

	os.Setenv("GIN_MODE", cfg.GinMode)

	// Step 2: Connect to Database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("✅ Database connected")

	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	// Step 3: Create Services
	fetcher := transcript.NewFetcher(cfg.YtDlpPath, cfg.TempDir)
	downloader := media.NewDownloader(cfg.YtDlpPath, cfg.TempDir, cfg.PlayerClients, cfg.Formats)
	analyzer := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel)

	// Step 4: Create and Start the Task Runner
	runner := tasks.NewRunner(cfg.TaskWorkers, cfg.TaskQueueSize)
	runner.Start()
	defer runner.Stop()

	pipeline := factcheck.New(db, fetcher, downloader, analyzer, runner)

	// Hourly stale-file sweep, independent of request traffic.
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runner.Submit(tasks.Job{
					Name: "hourly temp sweep",
					Run: func(ctx context.Context) error {
						downloader.SweepStale()
						return nil
					},
				})
			case <-sweepDone:
				return
			}
		}
	}()
	defer close(sweepDone)

	// Step 5: Setup HTTP Router
	r := router.Setup(db, pipeline, runner, cfg.JWTSecret, cfg.AllowedOrigins, cfg.DefaultRateLimit)

	// Step 6: Start the HTTP Server
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Media analysis can legitimately take minutes.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://localhost:%s", cfg.Port)
		log.Printf("📖 Health check: http://localhost:%s/api/v1/health", cfg.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	// Step 7: Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("🛑 Received signal %v, shutting down gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	log.Println("👋 Server stopped. Goodbye!")
}
