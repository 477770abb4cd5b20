package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	ObjectStore ObjectStoreConfig
	Anomaly     AnomalyConfig
	Privacy     PrivacyConfig
	Logging     LoggingConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN returns the connection string for the hot store.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// ObjectStoreConfig holds the cold-store (MinIO) connection settings.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AnomalyConfig holds the scoring and archival tunables. The threshold and
// batch-size defaults are the values the model was calibrated against; change
// them only together with a recalibration.
type AnomalyConfig struct {
	BatchSize       int
	HighThreshold   float64
	MediumThreshold float64
}

// PrivacyConfig holds PII handling settings. Rotating the salt breaks linkage
// between historical and new records for the same patient.
type PrivacyConfig struct {
	PIISalt string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "biostream"),
			Password: getEnv("DB_PASSWORD", "biostream"),
			Database: getEnv("DB_NAME", "biostream"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 5)),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minio_admin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minio_secure_pass"),
			Bucket:    getEnv("MINIO_BUCKET_RAW", "telemetry-raw"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Anomaly: AnomalyConfig{
			BatchSize:       getEnvInt("ARCHIVE_BATCH_SIZE", 50),
			HighThreshold:   getEnvFloat("RISK_HIGH_THRESHOLD", -0.15),
			MediumThreshold: getEnvFloat("RISK_MEDIUM_THRESHOLD", -0.05),
		},
		Privacy: PrivacyConfig{
			PIISalt: getEnv("PII_SALT", "default_unsafe_salt_for_dev"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
