package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the API server configuration.
type Config struct {
	DBSource      string
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := getenv("SERVER_PORT", "8080")
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("SERVER_PORT must be numeric, got %q", port)
	}

	return &Config{
		DBSource:      dbSource,
		Port:          port,
		Env:           getenv("ENVIRONMENT", "development"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
	}, nil
}

// ClientConfig configures the qrpay command line client.
type ClientConfig struct {
	APIURL    string
	AccountID int64
	Timeout   time.Duration
	LogLevel  string
}

// LoadClient reads the client settings. The account id is optional here;
// commands that act on behalf of an account check it themselves.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		APIURL:   strings.TrimRight(getenv("QRPAY_API_URL", "http://localhost:8080"), "/"),
		Timeout:  10 * time.Second,
		LogLevel: os.Getenv("LOG_LEVEL"),
	}

	if v := os.Getenv("QRPAY_ACCOUNT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("QRPAY_ACCOUNT_ID must be a positive integer, got %q", v)
		}
		cfg.AccountID = id
	}

	if v := os.Getenv("QRPAY_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("QRPAY_HTTP_TIMEOUT must be a positive duration, got %q", v)
		}
		cfg.Timeout = d
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
