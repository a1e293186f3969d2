package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for nlq2sql.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Schema is substituted for <SCHEMA> in every rendered query.
	Schema string `yaml:"schema" env:"OMOP_SCHEMA" env-default:"cmsdesynpuf23m"`

	Detection  DetectionConfig  `yaml:"detection"`
	NER        NERConfig        `yaml:"ner"`
	Coding     CodingConfig     `yaml:"coding"`
	Translator TranslatorConfig `yaml:"translator"`

	// Datasource is the clinical database rendered queries run against.
	Datasource DatasourceConfig `yaml:"datasource"`

	// Database stores feedback records (optional).
	Database DatabaseConfig `yaml:"database"`

	// Redis caches coding lookups (optional).
	Redis RedisConfig `yaml:"redis"`

	Feedback FeedbackConfig `yaml:"feedback"`
}

// DetectionConfig holds the NER confidence thresholds. Scores must be strictly greater.
type DetectionConfig struct {
	EntityScoreThreshold       float64 `yaml:"entity_score_threshold" env:"ENTITY_SCORE_THRESHOLD" env-default:"0.7"`
	RelationshipScoreThreshold float64 `yaml:"relationship_score_threshold" env:"RELATIONSHIP_SCORE_THRESHOLD" env-default:"0.7"`
}

// NERConfig selects the entity detector.
type NERConfig struct {
	// Provider is one of "http", "hugot" or "none".
	Provider  string        `yaml:"provider" env:"NER_PROVIDER" env-default:"none"`
	URL       string        `yaml:"url" env:"NER_URL" env-default:""`
	APIKey    string        `yaml:"-" env:"NER_API_KEY"` // Secret - not in YAML
	Timeout   time.Duration `yaml:"timeout" env:"NER_TIMEOUT" env-default:"10s"`
	ModelPath string        `yaml:"model_path" env:"NER_MODEL_PATH" env-default:""`

	// LabelMapStr maps model labels for the hugot provider.
	// Format: "LABEL=CATEGORY/TYPE,LABEL=CATEGORY/TYPE"
	LabelMapStr string `yaml:"label_map" env:"NER_LABEL_MAP" env-default:""`

	// LabelMap is the parsed map from LabelMapStr (not from config file).
	LabelMap map[string]string `yaml:"-"`
}

// CodingConfig configures condition and drug code lookup.
type CodingConfig struct {
	// Provider is one of "http", "omop" (concept table in the datasource) or "none".
	Provider    string        `yaml:"provider" env:"CODING_PROVIDER" env-default:"none"`
	URL         string        `yaml:"url" env:"CODING_URL" env-default:""`
	APIKey      string        `yaml:"-" env:"CODING_API_KEY"` // Secret - not in YAML
	Timeout     time.Duration `yaml:"timeout" env:"CODING_TIMEOUT" env-default:"10s"`
	Concurrency int           `yaml:"concurrency" env:"CODING_CONCURRENCY" env-default:"1"`
	CacheTTL    time.Duration `yaml:"cache_ttl" env:"CODING_CACHE_TTL" env-default:"24h"`
	Limit       int           `yaml:"limit" env:"CODING_LIMIT" env-default:"5"`
}

// TranslatorConfig configures the question-to-skeleton model.
type TranslatorConfig struct {
	// Provider is one of "http", "openai" or "anthropic".
	Provider        string `yaml:"provider" env:"TRANSLATOR_PROVIDER" env-default:"http"`
	Endpoint        string `yaml:"endpoint" env:"TRANSLATOR_ENDPOINT" env-default:""`
	Model           string `yaml:"model" env:"TRANSLATOR_MODEL" env-default:""`
	APIKey          string `yaml:"-" env:"TRANSLATOR_API_KEY"` // Secret - not in YAML
	InputMaxLength  int    `yaml:"input_max_length" env:"TRANSLATOR_INPUT_MAX_LENGTH" env-default:"256"`
	OutputMaxLength int    `yaml:"output_max_length" env:"TRANSLATOR_OUTPUT_MAX_LENGTH" env-default:"750"`
}

// DatasourceConfig holds the clinical database connection.
type DatasourceConfig struct {
	// Type is one of "postgres", "redshift" or "sqlserver". Empty disables execution.
	Type     string `yaml:"type" env:"DATASOURCE_TYPE" env-default:""`
	Host     string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"DATASOURCE_USER" env-default:""`
	Password string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:"require"`
	RowLimit int    `yaml:"row_limit" env:"DATASOURCE_ROW_LIMIT" env-default:"100"`

	// TrustServerCertificate skips certificate validation (SQL Server only).
	TrustServerCertificate bool `yaml:"trust_server_certificate" env:"DATASOURCE_TRUST_SERVER_CERTIFICATE" env-default:"false"`
}

// Enabled reports whether query execution is configured.
func (c *DatasourceConfig) Enabled() bool {
	return c.Type != ""
}

// DatabaseConfig holds the feedback store PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:""`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"nlq2sql"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"nlq2sql"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// Enabled reports whether a feedback database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds the coding cache connection.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// FeedbackConfig controls where feedback goes when no database is configured.
type FeedbackConfig struct {
	Dir string `yaml:"dir" env:"FEEDBACK_DIR" env-default:"feedback"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A .env file in the working directory is loaded first, if present. When config.yaml is
// absent only the environment is used.
func Load(version string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from path with environment variable overrides.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	labels, err := parseLabelMap(c.NER.LabelMapStr)
	if err != nil {
		return err
	}
	c.NER.LabelMap = labels
	return nil
}

func (c *Config) validate() error {
	for name, v := range map[string]float64{
		"entity_score_threshold":       c.Detection.EntityScoreThreshold,
		"relationship_score_threshold": c.Detection.RelationshipScoreThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}

	switch c.NER.Provider {
	case "none", "":
	case "http":
		if c.NER.URL == "" {
			return fmt.Errorf("ner.url is required for the http provider")
		}
	case "hugot":
		if c.NER.ModelPath == "" {
			return fmt.Errorf("ner.model_path is required for the hugot provider")
		}
	default:
		return fmt.Errorf("unknown ner provider %q", c.NER.Provider)
	}

	switch c.Coding.Provider {
	case "none", "", "omop":
	case "http":
		if c.Coding.URL == "" {
			return fmt.Errorf("coding.url is required for the http provider")
		}
	default:
		return fmt.Errorf("unknown coding provider %q", c.Coding.Provider)
	}
	if c.Coding.Provider == "omop" && c.Datasource.Type == "" {
		return fmt.Errorf("coding provider omop requires a datasource")
	}

	switch c.Datasource.Type {
	case "", "postgres", "redshift", "sqlserver":
	default:
		return fmt.Errorf("unknown datasource type %q", c.Datasource.Type)
	}

	return nil
}

// parseLabelMap parses the NER label map string.
// Format: "LABEL=CATEGORY/TYPE,LABEL=CATEGORY/TYPE"
func parseLabelMap(value string) (map[string]string, error) {
	labels := make(map[string]string)
	if value == "" {
		return labels, nil
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.Split(pair, "=")
		if len(parts) != 2 || !strings.Contains(parts[1], "/") {
			return nil, fmt.Errorf("invalid label mapping %q", pair)
		}
		labels[strings.ToUpper(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return labels, nil
}

// ConnectionString returns a PostgreSQL URL for the feedback database.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), ResolveHostForDocker(c.Host), c.Port,
		url.QueryEscape(c.Database), c.SSLMode,
	)
}
