package config

import (
	"fmt"
	"os"
	"strings"
)

// Config holds application configuration
type Config struct {
	Port               string
	DBConn             string
	LogLevel           string
	JWTSecret          string
	AggregatorURL      string
	AggregatorClientID string
	AggregatorSecret   string
	SMTPHost           string
	SMTPPort           string
	SMTPUsername       string
	SMTPPassword       string
	SenderEmail        string
	AlertEmail         string
	KafkaBrokers       []string
	KafkaTopic         string
	SyncSchedule       string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DBConn:             getEnv("DB_CONN", "host=localhost port=5432 user=test password=test dbname=ledger sslmode=disable"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:          getEnv("JWT_SECRET", "secret"),
		AggregatorURL:      getEnv("AGGREGATOR_URL", "https://sandbox.bankfeed.example.com"),
		AggregatorClientID: getEnv("AGGREGATOR_CLIENT_ID", ""),
		AggregatorSecret:   getEnv("AGGREGATOR_SECRET", ""),
		SMTPHost:           getEnv("SMTP_HOST", "localhost"),
		SMTPPort:           getEnv("SMTP_PORT", "587"),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SenderEmail:        getEnv("SENDER_EMAIL", "alerts@finacct.example.com"),
		AlertEmail:         getEnv("ALERT_EMAIL", ""),
		KafkaBrokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "ledger_events"),
		SyncSchedule:       getEnv("SYNC_SCHEDULE", "0 */6 * * *"),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AggregatorURL == "" {
		return nil, fmt.Errorf("AGGREGATOR_URL is required")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
