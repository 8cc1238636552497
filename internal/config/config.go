package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Generative/embedding service credentials are startup-fatal when
	// missing; see MustLoad.
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	GenerativeModel string `envconfig:"GENERATIVE_MODEL" default:"gpt-4-turbo"`

	// Root under which per-tenant document directories live.
	DocumentsRoot string `envconfig:"DOCUMENTS_ROOT" default:"./data/documents"`

	// Cloud storage is optional; absence degrades to local-only lookup.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"lexrag-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Prefix    string `envconfig:"S3_PREFIX"`

	// Quota defaults applied to newly provisioned tenants.
	MonthlyBudget      float64 `envconfig:"MONTHLY_BUDGET" default:"30.0"`
	MaxQueriesPerMonth int     `envconfig:"MAX_QUERIES_PER_MONTH" default:"100"`

	// Bootstrap: create an initial tenant and API key on startup
	InitTenantName string `envconfig:"INIT_TENANT_NAME"`
	InitAdminEmail string `envconfig:"INIT_ADMIN_EMAIL"`
	InitAPIKey     string `envconfig:"INIT_API_KEY"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("LEXRAG", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !cfg.HasOpenAI() {
		log.Fatal("LEXRAG_OPENAI_API_KEY is required")
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
