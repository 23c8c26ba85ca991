package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	Environment     string
	ProviderBaseURL string
	ProviderTimeout time.Duration
	ScanSymbols     []string
	ScanPeriod      string
	ScanIndicators  []string
	ScanInterval    time.Duration
	ScanStaleness   time.Duration
	RecorderPath    string
}

var AppConfig *Config

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "http://localhost:5000"),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second),
		ScanSymbols:     getEnvList("SCAN_SYMBOLS", "AAPL,MSFT,GOOGL,AMZN,NVDA"),
		ScanPeriod:      getEnv("SCAN_PERIOD", "1y"),
		ScanIndicators:  getEnvList("SCAN_INDICATORS", "RSI,RMI,MACD,SMA,EMA,BB"),
		ScanInterval:    getEnvDuration("SCAN_INTERVAL", 5*time.Minute),
		ScanStaleness:   getEnvDuration("SCAN_STALENESS", 15*time.Minute),
		RecorderPath:    getEnv("RECORDER_PATH", "data/scans.db"),
	}

	AppConfig = config
	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvList parses a comma-separated environment variable
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvDuration parses a duration (e.g. "5m") or a plain number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Warning: invalid duration for %s: %q, using default %v", key, raw, defaultValue)
	return defaultValue
}
