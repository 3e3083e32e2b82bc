package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the search service and the indexer jobs.
// Environment variables are parsed from the CATALOG_SEARCH_ prefix. Credentials
// tagged with a bare name (OPENAI_API_KEY, VOYAGE_API_KEY, ...) are also read
// from the unprefixed variable when the prefixed one is absent.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"9080"`

	// Catalog store: mongo | postgres | weaviate | sqlite | memory
	StoreDriver string `envconfig:"STORE_DRIVER" default:"mongo"`

	MongoURI              string        `envconfig:"CLUSTER_URI" default:""`
	MongoDatabase         string        `envconfig:"MONGO_DATABASE" default:"mercasmart"`
	MongoCollection       string        `envconfig:"MONGO_COLLECTION" default:"products"`
	MongoSelectionTimeout time.Duration `envconfig:"MONGO_SELECTION_TIMEOUT" default:"5s"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"catalog.db"`

	WeaviateURL   string `envconfig:"WEAVIATE_URL" default:"localhost:8081"`
	WeaviateClass string `envconfig:"WEAVIATE_CLASS" default:"Product"`

	// Embedding providers. One model+dimension per vector space.
	OpenAIAPIKey         string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL        string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIEmbedModel     string `envconfig:"OPENAI_EMBED_MODEL" default:"text-embedding-ada-002"`
	OpenAIEmbedDimension int    `envconfig:"OPENAI_EMBED_DIMENSION" default:"1536"`

	VoyageAPIKey         string `envconfig:"VOYAGE_API_KEY" default:""`
	VoyageBaseURL        string `envconfig:"VOYAGE_BASE_URL" default:"https://api.voyageai.com/v1"`
	VoyageTextModel      string `envconfig:"VOYAGE_TEXT_MODEL" default:"voyage-3-large"`
	VoyageTextDimension  int    `envconfig:"VOYAGE_TEXT_DIMENSION" default:"1024"`
	VoyageImageModel     string `envconfig:"VOYAGE_IMAGE_MODEL" default:"voyage-multimodal-3"`
	VoyageImageDimension int    `envconfig:"VOYAGE_IMAGE_DIMENSION" default:"1024"`
	VoyageRerankModel    string `envconfig:"VOYAGE_RERANK_MODEL" default:"rerank-2"`

	// Every provider call is bounded by ProviderTimeout; transient failures are
	// retried ProviderMaxRetries times inside the adapter.
	ProviderTimeout       time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
	ProviderMaxRetries    int           `envconfig:"PROVIDER_MAX_RETRIES" default:"3"`
	ProviderRetryInterval time.Duration `envconfig:"PROVIDER_RETRY_INTERVAL" default:"500ms"`

	// Generation
	AzureOpenAIAPIKey     string        `envconfig:"AZURE_OPENAI_API_KEY" default:""`
	AzureOpenAIEndpoint   string        `envconfig:"AZURE_OPENAI_ENDPOINT" default:""`
	AzureOpenAIAPIVersion string        `envconfig:"AZURE_OPENAI_API_VERSION" default:"2024-07-01-preview"`
	ChatModel             string        `envconfig:"CHAT_MODEL" default:"gpt-35-turbo"`
	ChatTimeout           time.Duration `envconfig:"CHAT_TIMEOUT" default:"60s"`
	AnswerCurrency        string        `envconfig:"ANSWER_CURRENCY" default:"euros"`

	// Normalization
	LabelLocale  string `envconfig:"LABEL_LOCALE" default:"en"`
	ImageCaption string `envconfig:"IMAGE_CAPTION" default:"this is a photo of a dish"`
	PhotoIndex   int    `envconfig:"PHOTO_INDEX" default:"1"`

	// Indexer
	IndexSpace      string        `envconfig:"INDEX_SPACE" default:"text-voyage"`
	TextBatchSize   int           `envconfig:"TEXT_BATCH_SIZE" default:"100"`
	ImageBatchSize  int           `envconfig:"IMAGE_BATCH_SIZE" default:"10"`
	IndexCooldown   time.Duration `envconfig:"INDEX_COOLDOWN" default:"400ms"`
	ImageFetchLimit int64         `envconfig:"IMAGE_FETCH_LIMIT_BYTES" default:"10485760"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates driver and indexer settings.
func (c *Config) ResolveDefaults() error {
	allowedStore := map[string]bool{"mongo": true, "postgres": true, "weaviate": true, "sqlite": true, "memory": true}
	if !allowedStore[c.StoreDriver] {
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.StoreDriver)
	}
	switch c.IndexSpace {
	case "text-openai", "text-voyage", "image-voyage":
	default:
		return fmt.Errorf("unsupported INDEX_SPACE: %s", c.IndexSpace)
	}
	switch c.LabelLocale {
	case "en", "es":
	default:
		return fmt.Errorf("unsupported LABEL_LOCALE: %s", c.LabelLocale)
	}
	if c.TextBatchSize <= 0 || c.ImageBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be > 0")
	}
	if c.IndexCooldown < 0 {
		return fmt.Errorf("INDEX_COOLDOWN must be >= 0")
	}
	if c.ProviderTimeout <= 0 || c.ChatTimeout <= 0 {
		return fmt.Errorf("provider timeouts must be > 0")
	}
	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must be >= 0")
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Example: CATALOG_SEARCH_STORE_DRIVER=postgres, CATALOG_SEARCH_HTTP_PORT=9080
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CATALOG_SEARCH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("store_driver", cfg.StoreDriver).
		Int("port", cfg.HTTPPort).
		Bool("openai_key_present", cfg.OpenAIAPIKey != "").
		Bool("voyage_key_present", cfg.VoyageAPIKey != "").
		Bool("azure_present", cfg.AzureOpenAIAPIKey != "" && cfg.AzureOpenAIEndpoint != "").
		Str("index_space", cfg.IndexSpace).
		Dur("index_cooldown", cfg.IndexCooldown).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment: EnvTesting,
		LogLevel:    "debug",
		HTTPPort:    9080,
		StoreDriver: "memory",

		MongoDatabase:         "mercasmart",
		MongoCollection:       "products",
		MongoSelectionTimeout: 5 * time.Second,
		SQLitePath:            "catalog.db",
		WeaviateURL:           "localhost:8082",
		WeaviateClass:         "Product",

		OpenAIBaseURL:        "https://api.openai.com/v1",
		OpenAIEmbedModel:     "text-embedding-ada-002",
		OpenAIEmbedDimension: 1536,

		VoyageBaseURL:         "https://api.voyageai.com/v1",
		VoyageTextModel:       "voyage-3-large",
		VoyageTextDimension:   1024,
		VoyageImageModel:      "voyage-multimodal-3",
		VoyageImageDimension:  1024,
		VoyageRerankModel:     "rerank-2",
		ProviderTimeout:       10 * time.Second,
		ProviderMaxRetries:    3,
		ProviderRetryInterval: 10 * time.Millisecond,

		AzureOpenAIAPIVersion: "2024-07-01-preview",
		ChatModel:             "gpt-35-turbo",
		ChatTimeout:           60 * time.Second,
		AnswerCurrency:        "euros",

		LabelLocale:  "en",
		ImageCaption: "this is a photo of a dish",
		PhotoIndex:   1,

		IndexSpace:      "text-voyage",
		TextBatchSize:   100,
		ImageBatchSize:  10,
		IndexCooldown:   400 * time.Millisecond,
		ImageFetchLimit: 10 << 20,

		HealthIntervalSeconds:     30,
		HealthProbeTimeoutSeconds: 5,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
