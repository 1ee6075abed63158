package common

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Extractor ExtractorConfig
	LLM       LLMConfig
	Calendar  CalendarConfig
	Blob      BlobConfig
	Crypto    CryptoConfig
	Secrets   SecretsConfig
	Log       LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
	HTTPAddr string
}

// ExtractorConfig holds text extraction configuration
type ExtractorConfig struct {
	Pdftotext string
	MaxBytes  int64
	Timeout   time.Duration
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Model         string
	APIKey        string
	BaseURL       string
	Temperature   float32
	Timeout       time.Duration
	MaxRetries    int
	MaxInputChars int
}

// CalendarConfig holds calendar provider and sync configuration
type CalendarConfig struct {
	ClientID            string
	ClientSecret        string
	RedirectURL         string
	StateSecret         string
	AuthorizationWindow time.Duration
	CalendarName        string
	TimeZone            string
	EventTimeout        time.Duration
	MaxRetries          int
	Backoff             time.Duration
	Concurrency         int
	SuccessRedirect     string
}

// BlobConfig holds source document storage configuration
type BlobConfig struct {
	Bucket string
	Region string
	Prefix string
	URLTTL time.Duration
}

// CryptoConfig holds credential encryption configuration
type CryptoConfig struct {
	KMSKeyID string
}

// SecretsConfig controls where secrets are resolved from
type SecretsConfig struct {
	SSMPrefix string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory is read first when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, NewAppError("CONFIG_ERROR", "failed to read .env", err)
	}
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
			HTTPAddr: getEnv("HTTP_ADDR", ":8081"),
		},
		Extractor: ExtractorConfig{
			Pdftotext: getEnv("PDFTOTEXT_BIN", "pdftotext"),
			MaxBytes:  int64(getEnvAsInt("MAX_UPLOAD_BYTES", 20<<20)),
			Timeout:   getEnvAsDuration("EXTRACT_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Model:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			BaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature:   getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:       getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			MaxRetries:    getEnvAsInt("LLM_MAX_RETRIES", 2),
			MaxInputChars: getEnvAsInt("LLM_MAX_INPUT_CHARS", 20000),
		},
		Calendar: CalendarConfig{
			ClientID:            getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret:        getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:         getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8081/oauth/google/callback"),
			StateSecret:         getEnv("OAUTH_STATE_SECRET", ""),
			AuthorizationWindow: getEnvAsDuration("CALENDAR_AUTH_WINDOW", 30*time.Minute),
			CalendarName:        getEnv("CALENDAR_NAME", "School"),
			TimeZone:            getEnv("CALENDAR_TIMEZONE", "America/New_York"),
			EventTimeout:        getEnvAsDuration("CALENDAR_EVENT_TIMEOUT", 15*time.Second),
			MaxRetries:          getEnvAsInt("CALENDAR_MAX_RETRIES", 3),
			Backoff:             getEnvAsDuration("CALENDAR_BACKOFF", 500*time.Millisecond),
			Concurrency:         getEnvAsInt("CALENDAR_SYNC_CONCURRENCY", 1),
			SuccessRedirect:     getEnv("CALENDAR_SUCCESS_REDIRECT", ""),
		},
		Blob: BlobConfig{
			Bucket: getEnv("S3_BUCKET", ""),
			Region: getEnv("AWS_REGION", ""),
			Prefix: getEnv("S3_PREFIX", "syllabi"),
			URLTTL: getEnvAsDuration("FILE_URL_TTL", 15*time.Minute),
		},
		Crypto: CryptoConfig{
			KMSKeyID: getEnv("KMS_KEY_ID", ""),
		},
		Secrets: SecretsConfig{
			SSMPrefix: getEnv("SSM_PREFIX", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration. Secrets resolved later from
// SSM are not checked here.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	if c.Calendar.ClientID == "" {
		return NewAppError("CONFIG_ERROR", "GOOGLE_CLIENT_ID is required", ErrInvalidInput)
	}
	if c.Calendar.Concurrency <= 0 {
		return NewAppError("CONFIG_ERROR", "CALENDAR_SYNC_CONCURRENCY must be positive", ErrInvalidInput)
	}
	if c.LLM.MaxRetries < 0 {
		return NewAppError("CONFIG_ERROR", "LLM_MAX_RETRIES must not be negative", ErrInvalidInput)
	}
	return nil
}
