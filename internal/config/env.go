package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// APIConfig locates the remote order-processing service.
type APIConfig struct {
	BaseURL        string
	HealthPath     string
	BooksPath      string
	OrdersPath     string
	HealthTimeout  time.Duration
	RequestTimeout time.Duration
}

// PricingConfig holds the per-page rate and the deposit share.
type PricingConfig struct {
	PricePerPage float64
	DepositRatio float64
}

// SourceConfig controls how material files are fetched from remote locations.
type SourceConfig struct {
	AWSRegion      string
	AWSAccessKey   string
	AWSSecretKey   string
	GCSEndpoint    string
	MaxDownloadMB  int
	RequestTimeout time.Duration
}

// MetricsConfig controls the prometheus textfile export.
type MetricsConfig struct {
	Textfile string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	API     APIConfig
	Pricing PricingConfig
	Source  SourceConfig
	Metrics MetricsConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "20"), 20),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "5"), 5),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_copyshop",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.API = APIConfig{
		BaseURL:        strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3000"), "/"),
		HealthPath:     getEnv("API_HEALTH_PATH", "/api/health"),
		BooksPath:      getEnv("API_BOOKS_PATH", "/api/libros/public"),
		OrdersPath:     getEnv("API_ORDERS_PATH", "/api/solicitudes"),
		HealthTimeout:  parseDuration(getEnv("HEALTH_TIMEOUT", "5s"), 5*time.Second),
		RequestTimeout: parseDuration(getEnv("REQUEST_TIMEOUT", "60s"), 60*time.Second),
	}

	cfg.Pricing = PricingConfig{
		PricePerPage: parseFloat(getEnv("PRICE_PER_PAGE", "40"), 40),
		DepositRatio: parseFloat(getEnv("DEPOSIT_RATIO", "0.5"), 0.5),
	}
	if cfg.Pricing.PricePerPage < 0 {
		cfg.Pricing.PricePerPage = 0
	}
	if cfg.Pricing.DepositRatio < 0 || cfg.Pricing.DepositRatio > 1 {
		cfg.Pricing.DepositRatio = 0.5
	}

	cfg.Source = SourceConfig{
		AWSRegion:      getEnv("AWS_REGION", ""),
		AWSAccessKey:   getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		GCSEndpoint:    getEnv("GCS_ENDPOINT", ""),
		MaxDownloadMB:  parseInt(getEnv("SOURCE_MAX_DOWNLOAD_MB", "0"), 0),
		RequestTimeout: parseDuration(getEnv("SOURCE_TIMEOUT", ""), 0),
	}
	if cfg.Source.RequestTimeout <= 0 {
		cfg.Source.RequestTimeout = cfg.API.RequestTimeout
	}

	cfg.Metrics = MetricsConfig{
		Textfile: getEnv("METRICS_TEXTFILE", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
