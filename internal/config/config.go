// Package config handles application configuration and environment loading.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkflowDefaults are the workflow parameters loaded from the optional
// YAML config file. They seed scheduled runs and fill request defaults.
type WorkflowDefaults struct {
	MetadataSourceID string   `yaml:"metadata_source_id"`
	MetadataTableID  string   `yaml:"metadata_table_id"`
	TargetSourceIDs  []string `yaml:"target_source_ids"`
	BatchSize        int      `yaml:"batch_size"`
	MaxConcurrent    int      `yaml:"max_concurrent"`
	Categories       []string `yaml:"categories"`
	AutoUpdate       *bool    `yaml:"auto_update"`
	QualityThreshold float64  `yaml:"quality_threshold"`
}

// Config holds the configuration for the HTTP API and its backing services.
type Config struct {
	ListenAddr string // HTTP listen address (default ":8080")
	MetaDBPath string // path to SQLite control-plane file
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Completion provider
	GeminiAPIKey string
	GeminiAPIURL string // override for testing (default: public endpoint)
	GeminiModel  string

	// Tabular-data gateway
	GatewayURL    string
	GatewayAPIKey string

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// WorkflowCron enables scheduled workflow runs when non-empty
	// (standard 5-field cron syntax).
	WorkflowCron string

	// Workflow holds defaults from the optional WORKFLOW_CONFIG_FILE.
	Workflow WorkflowDefaults

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables, plus workflow
// defaults from WORKFLOW_CONFIG_FILE when set.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:    os.Getenv("LISTEN_ADDR"),
		MetaDBPath:    os.Getenv("META_DB_PATH"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		Env:           os.Getenv("ENV"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiAPIURL:  os.Getenv("GEMINI_API_URL"),
		GeminiModel:   os.Getenv("GEMINI_MODEL"),
		GatewayURL:    os.Getenv("GATEWAY_URL"),
		GatewayAPIKey: os.Getenv("GATEWAY_API_KEY"),
		WorkflowCron:  os.Getenv("WORKFLOW_CRON"),
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	if path := os.Getenv("WORKFLOW_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read workflow config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg.Workflow); err != nil {
			return nil, fmt.Errorf("parse workflow config %s: %w", path, err)
		}
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "tablelens_meta.sqlite"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = "http://localhost:8001"
		cfg.Warnings = append(cfg.Warnings, "GATEWAY_URL not set, using http://localhost:8001")
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.GeminiAPIKey == "" {
		cfg.Warnings = append(cfg.Warnings, "GEMINI_API_KEY not set, provider calls will be rejected")
	}
	if cfg.WorkflowCron != "" && (cfg.Workflow.MetadataSourceID == "" || cfg.Workflow.MetadataTableID == "") {
		cfg.Warnings = append(cfg.Warnings, "WORKFLOW_CRON is set but workflow defaults lack a metadata table, scheduled runs will skip metadata updates")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}
