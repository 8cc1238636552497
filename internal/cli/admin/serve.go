package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/counsel-labs/lexrag/internal/api/handlers"
	"github.com/counsel-labs/lexrag/internal/cache"
	"github.com/counsel-labs/lexrag/internal/config"
	"github.com/counsel-labs/lexrag/internal/database"
	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/jobs"
	"github.com/counsel-labs/lexrag/internal/openai"
	"github.com/counsel-labs/lexrag/internal/repository"
	"github.com/counsel-labs/lexrag/internal/server"
	"github.com/counsel-labs/lexrag/internal/service"
	"github.com/counsel-labs/lexrag/internal/storage"
	"github.com/counsel-labs/lexrag/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	sdkopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the lexrag API server on the specified port",
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
	if !cfg.HasOpenAI() {
		return fmt.Errorf("LEXRAG_OPENAI_API_KEY is required")
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.PoolConfig{DSN: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	quotaDefaults := domain.DefaultQuotaSettings()
	quotaDefaults.MonthlyBudget = cfg.MonthlyBudget
	quotaDefaults.MaxQueriesPerMonth = cfg.MaxQueriesPerMonth
	quotaRepo := repository.NewQuotaRepository(pool, quotaDefaults)
	usageRepo := repository.NewUsageRepository(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, apiKeyRepo, uuidGen)
	tenantSvc := service.NewTenantService(tenantRepo, cfg.DocumentsRoot)

	if cfg.InitTenantName != "" {
		if err := bootstrapInitialTenant(ctx, cfg, tenantSvc, authSvc); err != nil {
			return fmt.Errorf("failed to bootstrap initial tenant: %w", err)
		}
	}

	var objectStore service.ObjectStore
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		s3Client, err := storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		objectStore = &S3ObjectStoreAdapter{client: s3Client}
	}

	openaiClient := openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: sdkopenai.EmbeddingModel(cfg.EmbeddingModel),
	})

	embeddingSvc := service.NewEmbeddingService(openaiClient)
	quotaSvc := service.NewQuotaService(quotaRepo, usageRepo)
	locatorSvc := service.NewLocatorService(objectStore, cfg.S3Prefix)
	ingestSvc := service.NewIngestService(chunkRepo, embeddingSvc)

	caches := cache.NewTenantProvider(func(tenantID string) cache.Store {
		return repository.NewQueryCacheStore(pool, &domain.Tenant{ID: tenantID})
	})

	ragSvc := service.NewRagService(
		chunkRepo,
		embeddingSvc,
		&CompletionAdapter{client: openaiClient},
		quotaSvc,
		usageRepo,
		caches,
		uuidGen,
		cfg.GenerativeModel,
	)

	backfill := jobs.NewEmbeddingWorker(tenantRepo, chunkRepo, embeddingSvc)
	embeddingWorker := jobs.NewWorker(backfill, 10*time.Second)
	go embeddingWorker.Start(ctx)
	log.Println("embedding backfill worker started")

	routerCfg := server.RouterConfig{
		Authenticator:   authSvc,
		SearchHandler:   handlers.NewSearchHandler(ragSvc),
		RagHandler:      handlers.NewRagHandler(ragSvc),
		DocumentHandler: handlers.NewDocumentHandler(locatorSvc, ingestSvc),
		HealthHandler:   handlers.NewHealthHandler(pool, chunkRepo),
		AdminHandler:    handlers.NewAdminHandler(usageRepo, quotaSvc),
	}

	router := server.NewRouter(routerCfg)

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

	embeddingWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// S3ObjectStoreAdapter exposes the S3 client as the locator's cloud leg,
// translating the storage package's not-found sentinel.
type S3ObjectStoreAdapter struct {
	client *storage.S3Client
}

func (a *S3ObjectStoreAdapter) GetObject(ctx context.Context, key string) ([]byte, error) {
	content, err := a.client.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, service.ErrObjectNotFound
		}
		return nil, err
	}
	return content, nil
}

// CompletionAdapter bridges the OpenAI client's request types to the
// service-layer completion interface.
type CompletionAdapter struct {
	client *openai.Client
}

func (a *CompletionAdapter) GenerateCompletion(ctx context.Context, req service.CompletionRequest) (*service.Completion, error) {
	messages := make([]openai.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.Message{Role: m.Role, Content: m.Content}
	}

	completion, err := a.client.GenerateCompletion(ctx, openai.CompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	return &service.Completion{
		Content:      completion.Content,
		Model:        completion.Model,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		TotalTokens:  completion.TotalTokens,
	}, nil
}

func bootstrapInitialTenant(ctx context.Context, cfg *config.Config, tenantSvc *service.TenantService, authSvc *service.AuthService) error {
	tenant, err := tenantSvc.GetByName(ctx, cfg.InitTenantName)
	if err != nil && !errors.Is(err, domain.ErrTenantNotFound) {
		return fmt.Errorf("failed to check existing tenant: %w", err)
	}

	if tenant == nil {
		tenant, err = tenantSvc.Provision(ctx, cfg.InitTenantName, cfg.InitAdminEmail)
		if err != nil {
			return fmt.Errorf("failed to provision tenant: %w", err)
		}
		log.Printf("bootstrap: provisioned tenant '%s' (id: %s)", tenant.Name, tenant.ID)
	} else {
		log.Printf("bootstrap: tenant '%s' already exists (id: %s)", tenant.Name, tenant.ID)
	}

	if cfg.InitAPIKey != "" {
		if !service.IsValidAPIToken(cfg.InitAPIKey) {
			return fmt.Errorf("invalid LEXRAG_INIT_API_KEY format (expected 'lxr_<64 hex chars>')")
		}

		existingKey, err := authSvc.ValidateAPIKey(ctx, cfg.InitAPIKey)
		if err == nil && existingKey != nil {
			log.Printf("bootstrap: API key already exists (id: %s)", existingKey.ID)
			return nil
		}

		if err := authSvc.CreateAPIKeyWithToken(ctx, tenant.ID, "bootstrap", cfg.InitAPIKey, true); err != nil {
			return fmt.Errorf("failed to create API key: %w", err)
		}
		log.Printf("bootstrap: created admin API key")
	}

	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
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
