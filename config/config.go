package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Environment Environment

	// Server configuration
	ServerPort  string
	ServerHost  string
	MetricsPort string
	CORSOrigins []string
	LogLevel    string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisURL      string

	// JWT configuration
	JWTSecret string

	// Submissions allowed per tenant per hour
	SubmitRateLimit int

	// Directory holding DejaVuSans*.ttf; empty uses the core PDF fonts
	FontDir string

	Generation GenerationConfig
	Queue      QueueConfig
	Storage    StorageConfig
}

// GenerationConfig controls the generation provider and its cost accounting.
type GenerationConfig struct {
	Provider  string // openai, gemini or fixture
	Model     string
	MaxTokens int
	APIKey    string
	BaseURL   string

	// USD per million tokens
	InputCostPerMillion  float64
	OutputCostPerMillion float64

	MaxAttempts int
}

// QueueConfig is shared by the job runner and the status estimator so the
// worker count and the ETA heuristic cannot drift apart.
type QueueConfig struct {
	Concurrency       int
	AvgSecondsPerPlan int
	ETACapMinutes     int
	StaleThreshold    time.Duration
}

// StorageConfig configures the optional PDF archive.
type StorageConfig struct {
	S3Bucket  string
	AWSRegion string
}

// Provider names
const (
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderFixture = "fixture"
)

// Default returns a configuration populated with defaults only.
func Default() *Config {
	return &Config{
		Environment:     Development,
		ServerPort:      "8080",
		ServerHost:      "0.0.0.0",
		MetricsPort:     "9091",
		CORSOrigins:     []string{"http://localhost:5173"},
		LogLevel:        "info",
		DBHost:          "localhost",
		DBPort:          "5432",
		DBName:          "platecoach",
		DBSSLMode:       "disable",
		RedisHost:       "localhost",
		RedisPort:       "6379",
		SubmitRateLimit: 20,
		Generation: GenerationConfig{
			Provider:             ProviderFixture,
			Model:                "gpt-4o",
			MaxTokens:            8000,
			InputCostPerMillion:  3.00,
			OutputCostPerMillion: 15.00,
			MaxAttempts:          3,
		},
		Queue: QueueConfig{
			Concurrency:       5,
			AvgSecondsPerPlan: 30,
			ETACapMinutes:     10,
			StaleThreshold:    10 * time.Minute,
		},
	}
}

// LoadConfig creates a new Config instance with values from environment variables or secrets
func LoadConfig() (*Config, error) {
	env := GetEnvironment()
	if env == Development || env == Test {
		// .env is optional outside production
		_ = godotenv.Load()
	}

	cfg := Default()
	cfg.Environment = env

	switch env {
	case CI:
		// CI passes sensitive values as plain environment variables
		loadFromEnv(cfg, os.Getenv)
	case Development, Test:
		loadFromEnv(cfg, envOrSecret)
	case Production:
		loadFromEnv(cfg, envOrSecret)
		// Sensitive values come exclusively from Docker secrets in production
		cfg.DBPassword = readSecret("db_password")
		cfg.JWTSecret = readSecret("jwt_secret")
		cfg.RedisPassword = readSecret("redis_password")
		cfg.Generation.APIKey = readSecret("generation_api_key")
	default:
		return nil, fmt.Errorf("unknown environment: %s", env)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadFromEnv(cfg *Config, get func(string) string) {
	str := func(key string, dst *string) {
		if v := get(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, err := strconv.Atoi(get(key)); err == nil {
			*dst = v
		}
	}
	money := func(key string, dst *float64) {
		if v, err := strconv.ParseFloat(get(key), 64); err == nil {
			*dst = v
		}
	}

	str("SERVER_PORT", &cfg.ServerPort)
	str("SERVER_HOST", &cfg.ServerHost)
	str("METRICS_PORT", &cfg.MetricsPort)
	str("LOG_LEVEL", &cfg.LogLevel)
	if origins := get("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}

	str("DB_HOST", &cfg.DBHost)
	str("DB_PORT", &cfg.DBPort)
	str("DB_USER", &cfg.DBUser)
	str("DB_PASSWORD", &cfg.DBPassword)
	str("DB_NAME", &cfg.DBName)
	str("DB_SSL_MODE", &cfg.DBSSLMode)

	str("REDIS_HOST", &cfg.RedisHost)
	str("REDIS_PORT", &cfg.RedisPort)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	str("REDIS_URL", &cfg.RedisURL)
	num("REDIS_DB", &cfg.RedisDB)

	str("JWT_SECRET", &cfg.JWTSecret)
	num("SUBMIT_RATE_LIMIT", &cfg.SubmitRateLimit)
	str("PDF_FONT_DIR", &cfg.FontDir)

	str("GENERATION_PROVIDER", &cfg.Generation.Provider)
	str("GENERATION_MODEL", &cfg.Generation.Model)
	num("GENERATION_MAX_TOKENS", &cfg.Generation.MaxTokens)
	str("GENERATION_API_KEY", &cfg.Generation.APIKey)
	str("GENERATION_BASE_URL", &cfg.Generation.BaseURL)
	money("GENERATION_INPUT_COST_PER_MILLION", &cfg.Generation.InputCostPerMillion)
	money("GENERATION_OUTPUT_COST_PER_MILLION", &cfg.Generation.OutputCostPerMillion)
	num("GENERATION_MAX_ATTEMPTS", &cfg.Generation.MaxAttempts)

	num("GENERATION_CONCURRENCY", &cfg.Queue.Concurrency)
	num("GENERATION_AVG_SECONDS", &cfg.Queue.AvgSecondsPerPlan)
	num("GENERATION_ETA_CAP_MINUTES", &cfg.Queue.ETACapMinutes)
	if d, err := time.ParseDuration(get("GENERATION_STALE_THRESHOLD")); err == nil {
		cfg.Queue.StaleThreshold = d
	}

	str("S3_BUCKET_NAME", &cfg.Storage.S3Bucket)
	str("AWS_REGION", &cfg.Storage.AWSRegion)
}

// envOrSecret prefers the environment and falls back to a Docker secret
// named after the lower-cased key.
func envOrSecret(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return readSecret(strings.ToLower(key))
}

// readSecret reads a Docker secret from the secrets directory
func readSecret(name string) string {
	secretsDir := os.Getenv("SECRETS_DIR")
	if secretsDir == "" {
		secretsDir = "/run/secrets"
	}
	if data, err := os.ReadFile(filepath.Join(secretsDir, name)); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}

// DatabaseDSN returns the libpq connection string for the configured database.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}
