package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSupabase = "supabase"
	BackendDynamoDB = "dynamodb"
	BackendMongo    = "mongo"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port        int      `env:"PORT" envDefault:"8080"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string   `env:"LOG_FILE"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`

	// Storage substrate
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"file"`
	StorageDir     string `env:"STORAGE_DIR" envDefault:"./data"`
	StoragePrefix  string `env:"STORAGE_PREFIX" envDefault:"burger_place_"`
	MemoryMaxBytes int    `env:"MEMORY_MAX_BYTES" envDefault:"5242880"`

	// Supabase
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseKVTable    string `env:"SUPABASE_KV_TABLE" envDefault:"kv_items"`

	// DynamoDB
	DynamoTable    string `env:"DYNAMODB_TABLE" envDefault:"burger_place_kv"`
	DynamoEndpoint string `env:"DYNAMODB_ENDPOINT"`
	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKey   string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`

	// Mongo
	MongoURI        string `env:"MONGO_URI"`
	MongoDatabase   string `env:"MONGO_DATABASE" envDefault:"burger_place"`
	MongoCollection string `env:"MONGO_COLLECTION" envDefault:"kv_items"`

	// HTTP client
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// Resilience
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"100ms"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"50"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Sessions
	SessionSecret     string        `env:"SESSION_SECRET" envDefault:"burger-place-dev-secret-change-me"`
	AdminUsername     string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword     string        `env:"ADMIN_PASSWORD" envDefault:"admin"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	AdminIdleTimeout  time.Duration `env:"ADMIN_IDLE_TIMEOUT" envDefault:"5m"`
	CustomerTTL       time.Duration `env:"CUSTOMER_SESSION_TTL" envDefault:"720h"`
	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"10"`

	// Domain
	ActivityLimit       int           `env:"ACTIVITY_LIMIT" envDefault:"8"`
	DefaultEtaMinutes   int           `env:"DEFAULT_ETA_MINUTES" envDefault:"25"`
	AllowStatusRollback bool          `env:"ALLOW_STATUS_ROLLBACK" envDefault:"false"`
	SeedDemo            bool          `env:"SEED_DEMO" envDefault:"true"`
	IdempotencyTTL      time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"10m"`

	// Notifications
	WhatsAppWebhookURL string `env:"WHATSAPP_WEBHOOK_URL"`
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the selected backend depends on.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case BackendMemory, BackendFile:
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			errs = append(errs, errors.New("supabase backend needs SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY"))
		}
	case BackendDynamoDB:
		if c.DynamoTable == "" {
			errs = append(errs, errors.New("dynamodb backend needs DYNAMODB_TABLE"))
		}
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("mongo backend needs MONGO_URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET must not be empty"))
	}
	if c.AdminIdleTimeout <= 0 {
		errs = append(errs, errors.New("ADMIN_IDLE_TIMEOUT must be positive"))
	}
	if c.ActivityLimit <= 0 {
		errs = append(errs, errors.New("ACTIVITY_LIMIT must be positive"))
	}
	if c.DefaultEtaMinutes <= 0 {
		errs = append(errs, errors.New("DEFAULT_ETA_MINUTES must be positive"))
	}
	return errors.Join(errs...)
}
