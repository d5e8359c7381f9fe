package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka (risk alert egress; empty topic disables publishing)
	KafkaBrokers []string
	AlertTopic   string
	AlertSource  string

	// Risk model
	ModelArtifactPath string
	VitalRulesPath    string
	AnonymizerSalt    string

	// Caching
	PredictionCacheTTL time.Duration
	DashboardCacheTTL  time.Duration

	// Query limits
	VitalsHistoryLimit int
	AuditQueryLimit    int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "ews"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "ews123"),
		PostgresDB:       getEnv("POSTGRES_DB", "clinical_ews"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		AlertTopic:   getEnv("ALERT_TOPIC", ""),
		AlertSource:  getEnv("ALERT_SOURCE", "ews-server"),

		ModelArtifactPath: getEnv("MODEL_ARTIFACT_PATH", "artifacts/risk_model.json"),
		VitalRulesPath:    getEnv("VITAL_RULES_PATH", ""),
		AnonymizerSalt:    getEnv("ANONYMIZER_SALT", ""),

		PredictionCacheTTL: getDuration("PREDICTION_CACHE_TTL", 5*time.Minute),
		DashboardCacheTTL:  getDuration("DASHBOARD_CACHE_TTL", 30*time.Second),

		VitalsHistoryLimit: getIntEnv("VITALS_HISTORY_LIMIT", 50),
		AuditQueryLimit:    getIntEnv("AUDIT_QUERY_LIMIT", 200),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
