package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "contextengine.yaml"

// CLIFlags holds command-line flag values. Nil pointers indicate unset flags
// that should not override the config. Use ParseFlags to populate this struct.
type CLIFlags struct {
	ConfigPath  *string
	ProjectPath *string
	LogLevel    *string
	DatabaseURL *string
}

// ParseFlags parses command-line arguments into CLIFlags.
// Call this before Load/LoadWithCLI. Passing nil args parses os.Args[1:].
func ParseFlags(args []string) (CLIFlags, error) {
	var flags CLIFlags

	fs := flag.NewFlagSet("contextengine", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	fs.StringVar(configPath, "c", "", "path to YAML config file (shorthand)")
	projectPath := fs.String("project", "", "working tree root to retrieve context from")
	logLevel := fs.String("log-level", "", "logging level (debug, info, warn, error)")
	databaseURL := fs.String("database-url", "", "storage connection string")

	if args == nil {
		args = os.Args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return flags, fmt.Errorf("parse flags: %w", err)
	}

	// Only set pointers for flags that were explicitly provided.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = configPath
		case "project":
			flags.ProjectPath = projectPath
		case "log-level":
			flags.LogLevel = logLevel
		case "database-url":
			flags.DatabaseURL = databaseURL
		}
	})

	return flags, nil
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadWithCLI returns a Config using the full hierarchy:
// defaults < YAML < ENV < CLI flags. The YAML path can be overridden
// via CLIFlags.ConfigPath.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	yamlPath := DefaultConfigFile
	if flags.ConfigPath != nil {
		yamlPath = *flags.ConfigPath
	}

	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}

	return &cfg, yamlPath, nil
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overlays CLI flag values onto cfg. Only non-nil flags override.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.ProjectPath != nil {
		cfg.Project.Path = *flags.ProjectPath
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DatabaseURL != nil {
		cfg.Storage.DatabaseURL = *flags.DatabaseURL
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.HTTPAddr, "CONTEXTENGINE_HTTP_ADDR")

	setString(&cfg.Storage.DatabaseURL, "TURSO_DATABASE_URL")
	setString(&cfg.Storage.AuthToken, "TURSO_AUTH_TOKEN")
	setInt32(&cfg.Storage.MaxConns, "CONTEXTENGINE_STORAGE_MAX_CONNS")
	setInt32(&cfg.Storage.MinConns, "CONTEXTENGINE_STORAGE_MIN_CONNS")
	setDuration(&cfg.Storage.MaxConnLifetime, "CONTEXTENGINE_STORAGE_MAX_CONN_LIFETIME")
	setDuration(&cfg.Storage.MaxConnIdleTime, "CONTEXTENGINE_STORAGE_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Storage.HealthCheck, "CONTEXTENGINE_STORAGE_HEALTH_CHECK")

	setString(&cfg.Project.Path, "PROJECT_PATH")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Service, "CONTEXTENGINE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CONTEXTENGINE_LOG_ASYNC")

	setInt(&cfg.Ingest.MaxTextFileSizeMB, "MAX_TEXT_FILE_SIZE_MB")
	setStringList(&cfg.Ingest.TreeSitterLanguages, "TREE_SITTER_LANGUAGES")

	setString(&cfg.AI.BaseURL, "AI_BASE_URL")
	setString(&cfg.AI.APIKey, "AI_API_KEY")
	setString(&cfg.AI.ModelName, "AI_MODEL_NAME")
	setInt(&cfg.AI.ThinkingBudget, "AI_THINKING_BUDGET")

	setInt(&cfg.Job.Concurrency, "AI_JOB_CONCURRENCY")
	setDurationMillis(&cfg.Job.Delay, "AI_JOB_DELAY_MS")
	setInt(&cfg.Job.MaxAttempts, "MAX_AI_JOB_ATTEMPTS")
	setDurationMillis(&cfg.Job.PollingInterval, "AI_JOB_POLLING_INTERVAL_MS")

	setInt(&cfg.Graph.MaxSeedEntitiesForExpansion, "MAX_SEED_ENTITIES_FOR_EXPANSION")

	setDurationMillis(&cfg.GitMon.Interval, "GIT_MONITOR_INTERVAL_MS")

	// OpenTelemetry
	setBool(&cfg.OTEL.Enabled, "CONTEXTENGINE_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "CONTEXTENGINE_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "CONTEXTENGINE_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "CONTEXTENGINE_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "CONTEXTENGINE_OTEL_SAMPLE_RATE")

	// NATS job-status publishing
	setString(&cfg.NATS.URL, "CONTEXTENGINE_NATS_URL")

	// Hydration cache
	setInt64(&cfg.Cache.MaxCounters, "CONTEXTENGINE_CACHE_MAX_COUNTERS")
	setInt64(&cfg.Cache.MaxCostMB, "CONTEXTENGINE_CACHE_MAX_COST_MB")
	setDuration(&cfg.Cache.TTL, "CONTEXTENGINE_CACHE_TTL")
}

// validate checks that required fields are set; a failure here aborts
// startup.
func validate(cfg *Config) error {
	if cfg.Storage.DatabaseURL == "" {
		return errors.New("storage.database_url is required")
	}
	if cfg.Project.Path == "" {
		return errors.New("project.path is required")
	}
	if cfg.Storage.MaxConns < 1 {
		return errors.New("storage.max_conns must be >= 1")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	if cfg.Ingest.MaxTextFileSizeMB < 1 {
		return errors.New("max_text_file_size_mb must be >= 1")
	}
	if len(cfg.Ingest.TreeSitterLanguages) == 0 {
		return errors.New("tree_sitter_languages must not be empty")
	}
	if cfg.Job.Concurrency < 1 {
		return errors.New("ai_job_concurrency must be >= 1")
	}
	if cfg.Job.MaxAttempts < 1 {
		return errors.New("max_ai_job_attempts must be >= 1")
	}
	if cfg.Graph.MaxSeedEntitiesForExpansion < 1 {
		return errors.New("max_seed_entities_for_expansion must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStringList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setDurationMillis reads an integer-milliseconds env var into a
// time.Duration field, for the "_MS"-suffixed option names.
func setDurationMillis(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
