package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/tpelligrinomid/midrag/internal/api/handlers"
	"github.com/tpelligrinomid/midrag/internal/config"
	"github.com/tpelligrinomid/midrag/internal/database"
	"github.com/tpelligrinomid/midrag/internal/jobs"
	"github.com/tpelligrinomid/midrag/internal/openai"
	"github.com/tpelligrinomid/midrag/internal/repository"
	"github.com/tpelligrinomid/midrag/internal/server"
	"github.com/tpelligrinomid/midrag/internal/service"
	"github.com/tpelligrinomid/midrag/internal/storage"
	"github.com/tpelligrinomid/midrag/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the midrag API server and the ingest worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetString("port")
	}

	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: 10,
		MinConns: 2,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("MIDRAG_OPENAI_API_KEY is required")
	}

	provider, err := openai.NewClient(openai.Config{
		APIKey:          cfg.OpenAIAPIKey,
		EmbeddingModel:  goopenai.EmbeddingModel(cfg.EmbeddingModel),
		GenerationModel: cfg.GenerationModel,
	})
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}

	var archive service.SourceArchive
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		archive = s3Client
	}

	chunkRepo := repository.NewChunkRepository(pool)
	ingestJobRepo := repository.NewIngestJobRepository(pool)
	structuredRepo := repository.NewStructuredRepository(pool)

	chunkOpts := service.ChunkOptions{
		MaxTokens:        cfg.ChunkMaxTokens,
		OverlapSentences: cfg.ChunkOverlapSentences,
		HardTokenCap:     cfg.ChunkHardTokenCap,
	}

	ingestionSvc := service.NewIngestionServiceWithArchive(provider, chunkRepo, archive, chunkOpts)
	searchSvc := service.NewSearchService(provider, chunkRepo)
	classifier := service.NewIntentClassifier(provider)
	fetchers := service.NewFetcherRegistry(structuredRepo)
	answerSvc := service.NewAnswerService(classifier, fetchers, searchSvc, provider)

	ingestProcessor := jobs.NewIngestWorker(ingestJobRepo, ingestionSvc)
	ingestWorker := jobs.NewWorker(ingestProcessor, time.Duration(cfg.WorkerPollSeconds)*time.Second)
	go ingestWorker.Start(ctx)
	log.Println("ingest worker started")

	router := server.NewRouter(server.RouterConfig{
		IngestHandler: handlers.NewIngestHandler(ingestionSvc, ingestJobRepo),
		SearchHandler: handlers.NewSearchHandler(searchSvc),
		AskHandler:    handlers.NewAskHandler(answerSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	ingestWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
