package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port                string
	GinMode             string
	LogLevel            string
	LogFormat           string
	DecimalPlaces       int
	WorkerCount         int
	StoreBackend        string
	SQLitePath          string
	FirebaseProjectID   string
	FirebaseCredsBase64 string
	FirebaseCredsFile   string
	FirestoreDatabase   string
	FirestoreEmulator   string
	KafkaBrokers        []string
	KafkaTopic          string
	KafkaGroupID        string
	IngestBatchSize     int
	IngestFlush         time.Duration
	MetricsEnabled      bool
	AllowedOrigins      string
}

// Load reads environment variables into a Config with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		GinMode:             getEnv("GIN_MODE", "release"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		StoreBackend:        strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		SQLitePath:          getEnv("SQLITE_PATH", "grocery.sqlite"),
		FirebaseProjectID:   strings.TrimSpace(os.Getenv("FIREBASE_PROJECT_ID")),
		FirebaseCredsBase64: strings.TrimSpace(os.Getenv("FIREBASE_CREDS_BASE64")),
		FirebaseCredsFile:   strings.TrimSpace(os.Getenv("FIREBASE_CREDS_FILE")),
		FirestoreDatabase:   getEnv("FIRESTORE_DATABASE", "(default)"),
		FirestoreEmulator:   strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST")),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "grocery.raw-records"),
		KafkaGroupID:        getEnv("KAFKA_GROUP_ID", "grocery-ingest"),
		AllowedOrigins:      strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")),
	}

	var err error
	if cfg.DecimalPlaces, err = parseIntEnv("DECIMAL_PLACES", 2); err != nil {
		return Config{}, fmt.Errorf("parse DECIMAL_PLACES: %w", err)
	}
	if cfg.WorkerCount, err = parseIntEnv("WORKER_COUNT", 5); err != nil {
		return Config{}, fmt.Errorf("parse WORKER_COUNT: %w", err)
	}
	if cfg.IngestBatchSize, err = parseIntEnv("INGEST_BATCH_SIZE", 100); err != nil {
		return Config{}, fmt.Errorf("parse INGEST_BATCH_SIZE: %w", err)
	}
	flush := getEnv("INGEST_FLUSH_INTERVAL", "5s")
	if cfg.IngestFlush, err = time.ParseDuration(flush); err != nil {
		return Config{}, fmt.Errorf("parse INGEST_FLUSH_INTERVAL: %w", err)
	}
	if cfg.MetricsEnabled, err = parseBoolEnv("METRICS_ENABLED", true); err != nil {
		return Config{}, fmt.Errorf("parse METRICS_ENABLED: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures required fields are present. Firebase credentials are only required for
// the firestore backend.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.DecimalPlaces < 1 || c.DecimalPlaces > 8 {
		return fmt.Errorf("DECIMAL_PLACES must be between 1 and 8, got %d", c.DecimalPlaces)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.IngestBatchSize < 1 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", c.IngestBatchSize)
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendFirestore:
		if c.FirebaseProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required")
		}
		if c.FirestoreEmulator == "" && c.FirebaseCredsBase64 == "" && c.FirebaseCredsFile == "" {
			return errors.New("provide FIREBASE_CREDS_BASE64 or FIREBASE_CREDS_FILE for Firestore auth")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q (want memory, sqlite or firestore)", c.StoreBackend)
	}
	return nil
}

// KafkaEnabled reports whether brokers are configured for ingest.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// FirebaseCredentialsJSON returns the service account JSON bytes and the source used.
func (c Config) FirebaseCredentialsJSON() ([]byte, string, error) {
	if c.FirebaseCredsBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(c.FirebaseCredsBase64)
		if err != nil {
			return nil, "base64", fmt.Errorf("decode FIREBASE_CREDS_BASE64: %w", err)
		}
		return decoded, "base64", nil
	}
	if c.FirebaseCredsFile != "" {
		data, err := os.ReadFile(c.FirebaseCredsFile)
		if err != nil {
			return nil, "file", fmt.Errorf("read FIREBASE_CREDS_FILE: %w", err)
		}
		return data, "file", nil
	}
	return nil, "", errors.New("no firebase credentials found")
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func parseBoolEnv(key string, defaultVal bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, err
	}
	return parsed, nil
}

func parseIntEnv(key string, defaultVal int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(val)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
