package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names where submission mirrors or document bytes live.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Server captures process-level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	AllowedOrigins  []string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	AdminToken    string

	MirrorBackend Backend
	BlobBackend   Backend
	PolicyFile    string

	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Compliance ComplianceConfig
}

type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig selects where lifecycle events go. No brokers disables the relay.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ComplianceConfig points at the pre-screen service. An empty URL selects
// the static in-process checker.
type ComplianceConfig struct {
	URL        string
	APIKey     string
	Guidelines string
	Timeout    time.Duration
}

// FromEnv builds a Server config from environment variables so main stays
// lean. A .env file in the working directory is loaded first when present.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:            getEnv("KYC_ADDR", ":8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_BYTES", 64<<20)),
		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     getEnv("JWT_ISSUER", "kycreview"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "kycreview"),
		AdminToken:    os.Getenv("ADMIN_API_TOKEN"),

		MirrorBackend: Backend(getEnv("MIRROR_BACKEND", string(BackendMemory))),
		BlobBackend:   Backend(getEnv("BLOB_BACKEND", string(BackendMemory))),
		PolicyFile:    os.Getenv("POLICY_FILE"),

		Postgres: PostgresConfig{
			DSN:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getEnvInt("DATABASE_MAX_CONNS", 20),
			MaxIdleConns: getEnvInt("DATABASE_MAX_IDLE", 5),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "kyc.submission.events"),
		},
		Compliance: ComplianceConfig{
			URL:        os.Getenv("COMPLIANCE_URL"),
			APIKey:     os.Getenv("COMPLIANCE_API_KEY"),
			Guidelines: os.Getenv("COMPLIANCE_GUIDELINES"),
			Timeout:    getEnvDuration("COMPLIANCE_TIMEOUT", 10*time.Second),
		},
	}

	if cfg.JWTSigningKey == "" {
		if cfg.Environment == "production" {
			return Server{}, errors.New("JWT_SIGNING_KEY is required in production")
		}
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks that each selected backend has its connection settings.
func (c Server) Validate() error {
	switch c.MirrorBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("MIRROR_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("MIRROR_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown MIRROR_BACKEND %q", c.MirrorBackend)
	}
	switch c.BlobBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("BLOB_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs with production defaults.
func (c Server) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
