package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port              string
	DatabaseURL       string
	Env               string
	JobsQueueURL      string
	ReportsQueueURL   string
	InferenceProvider string
	InferenceModel    string
	OllamaBaseURL     string
	OpenAIAPIKey      string
	TaskTimeout       time.Duration
	MaxRetries        int
	WorkerConcurrency int
	ReconcileInterval time.Duration
	PendingGrace      time.Duration
	ReportFormat      string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	_ = godotenv.Load(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       dbURL,
		Env:               env,
		JobsQueueURL:      getEnv("DD_SQS_QUEUE_URL", ""),
		ReportsQueueURL:   getEnv("DD_REPORTS_QUEUE_URL", ""),
		InferenceProvider: normalizeProvider(getEnv("INFERENCE_PROVIDER", "ollama")),
		InferenceModel:    getEnv("INFERENCE_MODEL", "llama3"),
		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		TaskTimeout:       getEnvSeconds("DD_TASK_TIMEOUT_SECONDS", 1800),
		MaxRetries:        getEnvInt("DD_MAX_RETRIES", 3),
		WorkerConcurrency: getEnvInt("DD_WORKER_CONCURRENCY", 1),
		ReconcileInterval: getEnvSeconds("DD_RECONCILE_INTERVAL_SECONDS", 60),
		PendingGrace:      getEnvSeconds("DD_PENDING_GRACE_SECONDS", 300),
		ReportFormat:      normalizeReportFormat(getEnv("DD_REPORT_FORMAT", "pdf")),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func getEnvSeconds(key string, def int) time.Duration {
	return time.Duration(getEnvInt(key, def)) * time.Second
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	default:
		return "ollama"
	}
}

func normalizeReportFormat(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "docx":
		return "docx"
	default:
		return "pdf"
	}
}
