package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the configuration for the upload server
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Upload  UploadConfig
	Gate    GateConfig
	History HistoryConfig
	Web     WebConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StorageConfig holds the upload root directory settings
type StorageConfig struct {
	RootDir string
}

// UploadConfig holds admission and session lifecycle settings
type UploadConfig struct {
	MaxFileSizeMB uint64
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// GateConfig holds the shared-secret gate settings
type GateConfig struct {
	Secret      string
	MinDigits   int
	MaxDigits   int
	TokenSecret string
	TokenTTL    time.Duration
}

// HistoryConfig holds the transfer ledger settings
type HistoryConfig struct {
	DBPath string
}

// WebConfig holds the static client settings
type WebConfig struct {
	Dir string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json, text
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	rootDir := getEnv("UPLOAD_DIR", "./uploads")

	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Minute),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Minute),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Storage: StorageConfig{
			RootDir: rootDir,
		},
		Upload: UploadConfig{
			MaxFileSizeMB: getEnvUint("MAX_FILE_SIZE_MB", 1024),
			SessionTTL:    getEnvDuration("SESSION_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		},
		Gate: GateConfig{
			Secret:      getEnv("UPLOAD_SECRET", ""),
			MinDigits:   getEnvInt("SECRET_MIN_DIGITS", 4),
			MaxDigits:   getEnvInt("SECRET_MAX_DIGITS", 12),
			TokenSecret: getEnv("TOKEN_SECRET", ""),
			TokenTTL:    getEnvDuration("TOKEN_TTL", 24*time.Hour),
		},
		History: HistoryConfig{
			DBPath: getEnv("HISTORY_DB", filepath.Join(rootDir, ".skiff", "history.db")),
		},
		Web: WebConfig{
			Dir: getEnv("WEB_DIR", "./web"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// MaxBytes returns the upload size ceiling in bytes
func (u *UploadConfig) MaxBytes() uint64 {
	return u.MaxFileSizeMB * 1024 * 1024
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
