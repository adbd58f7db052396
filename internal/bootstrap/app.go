package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"docdiff-backend/internal/documents"
	"docdiff-backend/internal/inference"
	ollamaclient "docdiff-backend/internal/inference/ollama"
	openaiclient "docdiff-backend/internal/inference/openai"
	"docdiff-backend/internal/jobs"
	"docdiff-backend/internal/queue"
	"docdiff-backend/internal/reports"
	"docdiff-backend/internal/shared/config"
	"docdiff-backend/internal/shared/server"
	"docdiff-backend/internal/shared/storage/db"
)

// App holds shared dependencies for the API server and the worker.
type App struct {
	Config        config.Config
	Router        *gin.Engine
	DB            *sql.DB
	Queue         queue.Client
	DocumentsRepo documents.Repo
	JobsRepo      jobs.Repo
	JobsService   *jobs.Service
	JobProcessor  JobProcessor
	Reconciler    *jobs.Reconciler
	Inference     inference.Client
	Reports       jobs.ReportTrigger
	JobsHandler   *jobs.Handler
}

// JobProcessor allows callers to override job processing for tests.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	return build(cfg, db.DefaultServerOptions())
}

// BuildWorker is Build with a connection pool sized for queue consumption.
func BuildWorker(cfg config.Config) (*App, error) {
	return build(cfg, db.DefaultWorkerOptions())
}

func build(cfg config.Config, poolDefaults db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, poolDefaults)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Queue:  queueClient,
	}

	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      app.Config,
		JobsHandler: app.JobsHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config, poolDefaults db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(poolDefaults)
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.JobsQueueURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DD_SQS_QUEUE_URL empty; using in-memory queue")
			return queue.NewMemoryClient(), nil
		}
		return nil, fmt.Errorf("DD_SQS_QUEUE_URL is required")
	}
	client, err := queue.NewSQSClient(ctx, cfg.JobsQueueURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func buildInference(cfg config.Config) (inference.Client, error) {
	switch cfg.InferenceProvider {
	case "openai":
		client, err := openaiclient.NewClient(cfg.OpenAIAPIKey, cfg.InferenceModel)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "ollama":
		client, err := ollamaclient.NewClient(cfg.OllamaBaseURL, cfg.InferenceModel, cfg.TaskTimeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.InferenceProvider)
	}
}

func buildReports(ctx context.Context, cfg config.Config) (jobs.ReportTrigger, error) {
	var publisher reports.Publisher
	if strings.TrimSpace(cfg.ReportsQueueURL) == "" {
		log.Printf("bootstrap: DD_REPORTS_QUEUE_URL empty; report requests stay in memory")
		publisher = reports.NewMemoryPublisher()
	} else {
		sqsPublisher, err := reports.NewSQSPublisher(ctx, cfg.ReportsQueueURL)
		if err != nil {
			return nil, err
		}
		publisher = sqsPublisher
	}
	return &reports.Trigger{Publisher: publisher, Format: cfg.ReportFormat}, nil
}

func buildServices(app *App) error {
	var docsRepo documents.Repo
	var jobsRepo jobs.Repo

	if app.DB != nil {
		docsRepo = &documents.PGRepo{DB: app.DB}
		jobsRepo = &jobs.PGRepo{DB: app.DB}
	} else {
		docsRepo = documents.NewMemoryRepo()
		jobsRepo = jobs.NewMemoryRepo()
	}

	inferenceClient, err := buildInference(app.Config)
	if err != nil {
		return err
	}

	reportTrigger, err := buildReports(context.Background(), app.Config)
	if err != nil {
		return err
	}

	jobsSvc := &jobs.Service{
		Repo:         jobsRepo,
		Docs:         docsRepo,
		Queue:        app.Queue,
		DefaultModel: app.Config.InferenceModel,
	}

	processor := &jobs.Processor{
		Repo:        jobsRepo,
		Docs:        docsRepo,
		Inference:   inferenceClient,
		Reports:     reportTrigger,
		Queue:       app.Queue,
		TaskTimeout: app.Config.TaskTimeout,
		MaxRetries:  app.Config.MaxRetries,
	}

	reconciler := &jobs.Reconciler{
		Repo:         jobsRepo,
		Queue:        app.Queue,
		MaxRetries:   app.Config.MaxRetries,
		PendingGrace: app.Config.PendingGrace,
	}

	app.DocumentsRepo = docsRepo
	app.JobsRepo = jobsRepo
	app.JobsService = jobsSvc
	app.JobProcessor = processor
	app.Reconciler = reconciler
	app.Inference = inferenceClient
	app.Reports = reportTrigger
	app.JobsHandler = jobs.NewHandler(jobsSvc)

	if app.JobsHandler == nil {
		return errors.New("failed to initialize handlers")
	}

	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
