package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Engine   EngineConfig
	Pipeline PipelineConfig
	Profiles ProfilesConfig
	S3       S3Config
	DB       DBConfig
	Email    EmailConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// ProviderConfig holds settings for a single analysis engine provider.
type ProviderConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// GenerationConfig holds sampling settings shared by every provider.
type GenerationConfig struct {
	Temperature     float64 `mapstructure:"temperature"`
	TopP            float64 `mapstructure:"top_p"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

// EngineConfig holds analysis engine settings with multi-provider support.
type EngineConfig struct {
	// Legacy flat fields (single provider)
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`

	// Fallback chain
	Primary   ProviderConfig `mapstructure:"primary"`
	Secondary ProviderConfig `mapstructure:"secondary"`
	Tertiary  ProviderConfig `mapstructure:"tertiary"`

	Generation GenerationConfig `mapstructure:"generation"`

	// Client-side pacing across the whole chain. Zero disables it.
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	Burst             int     `mapstructure:"burst"`
}

// PrimaryConfig returns the primary provider config, falling back to the flat fields.
func (e *EngineConfig) PrimaryConfig() *ProviderConfig {
	if e.Primary.Provider != "" {
		return &e.Primary
	}
	return &ProviderConfig{
		Provider:     e.Provider,
		APIKey:       e.APIKey,
		DefaultModel: e.DefaultModel,
		TimeoutSecs:  e.TimeoutSecs,
	}
}

// SecondaryConfig returns the secondary provider config, or nil if not configured.
func (e *EngineConfig) SecondaryConfig() *ProviderConfig {
	if e.Secondary.Provider != "" {
		return &e.Secondary
	}
	return nil
}

// TertiaryConfig returns the tertiary provider config, or nil if not configured.
func (e *EngineConfig) TertiaryConfig() *ProviderConfig {
	if e.Tertiary.Provider != "" {
		return &e.Tertiary
	}
	return nil
}

// Chain returns the configured providers in fallback order.
func (e *EngineConfig) Chain() []*ProviderConfig {
	chain := []*ProviderConfig{e.PrimaryConfig()}
	if s := e.SecondaryConfig(); s != nil {
		chain = append(chain, s)
	}
	if t := e.TertiaryConfig(); t != nil {
		chain = append(chain, t)
	}
	return chain
}

// PipelineConfig holds folder layout, chunking and retry settings.
type PipelineConfig struct {
	InputDir   string        `mapstructure:"input_dir"`
	OutputDir  string        `mapstructure:"output_dir"`
	DebugDir   string        `mapstructure:"debug_dir"`
	ReportDir  string        `mapstructure:"report_dir"`
	Extensions []string      `mapstructure:"extensions"`
	ChunkSize  int           `mapstructure:"chunk_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// ProfilesConfig points at an optional YAML file overriding stage instructions.
type ProfilesConfig struct {
	File string `mapstructure:"file"`
}

// S3Config holds settings for mirroring written artifacts to S3.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// Enabled reports whether an S3 mirror is configured.
func (s *S3Config) Enabled() bool {
	return s.Bucket != ""
}

// DBConfig holds PostgreSQL settings for the run ledger.
type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// EmailConfig holds run summary notification settings.
type EmailConfig struct {
	Provider    string `mapstructure:"provider"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	ToAddress   string `mapstructure:"to_address"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// Load reads configuration from environment variables with the IDEAFORGE_ prefix.
// If IDEAFORGE_CONFIG_FILE is set, that file is read first and env vars override it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IDEAFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Engine defaults
	v.SetDefault("engine.provider", "gemini")
	v.SetDefault("engine.api_key", "")
	v.SetDefault("engine.default_model", "gemini-2.5-pro")
	v.SetDefault("engine.timeout_secs", 300)
	v.SetDefault("engine.primary.provider", "")
	v.SetDefault("engine.primary.api_key", "")
	v.SetDefault("engine.primary.default_model", "")
	v.SetDefault("engine.primary.timeout_secs", 300)
	v.SetDefault("engine.secondary.provider", "")
	v.SetDefault("engine.secondary.api_key", "")
	v.SetDefault("engine.secondary.default_model", "")
	v.SetDefault("engine.secondary.timeout_secs", 300)
	v.SetDefault("engine.tertiary.provider", "")
	v.SetDefault("engine.tertiary.api_key", "")
	v.SetDefault("engine.tertiary.default_model", "")
	v.SetDefault("engine.tertiary.timeout_secs", 300)
	v.SetDefault("engine.generation.temperature", 0.1)
	v.SetDefault("engine.generation.top_p", 0.95)
	v.SetDefault("engine.generation.max_output_tokens", 8192)
	v.SetDefault("engine.requests_per_minute", 0)
	v.SetDefault("engine.burst", 1)

	// Pipeline defaults
	v.SetDefault("pipeline.input_dir", "./inputs")
	v.SetDefault("pipeline.output_dir", "./outputs")
	v.SetDefault("pipeline.debug_dir", "./outputs/debug_logs")
	v.SetDefault("pipeline.report_dir", "./final_report")
	v.SetDefault("pipeline.extensions", ".md,.txt")
	v.SetDefault("pipeline.chunk_size", 30000)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_delay", "10s")

	v.SetDefault("profiles.file", "")

	// S3 mirror defaults (disabled until a bucket is set)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "ideaforge")
	v.SetDefault("s3.endpoint", "")

	// Ledger defaults
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "ideaforge")
	v.SetDefault("db.password", "ideaforge_secret")
	v.SetDefault("db.name", "ideaforge_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 5)
	v.SetDefault("db.max_idle", 2)

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from_address", "noreply@ideaforge.local")
	v.SetDefault("email.from_name", "ideaforge")
	v.SetDefault("email.to_address", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.textfile_path", "")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"engine.provider":                      "IDEAFORGE_ENGINE_PROVIDER",
		"engine.api_key":                       "IDEAFORGE_ENGINE_API_KEY",
		"engine.default_model":                 "IDEAFORGE_ENGINE_DEFAULT_MODEL",
		"engine.timeout_secs":                  "IDEAFORGE_ENGINE_TIMEOUT_SECS",
		"engine.primary.provider":              "IDEAFORGE_ENGINE_PRIMARY_PROVIDER",
		"engine.primary.api_key":               "IDEAFORGE_ENGINE_PRIMARY_API_KEY",
		"engine.primary.default_model":         "IDEAFORGE_ENGINE_PRIMARY_DEFAULT_MODEL",
		"engine.primary.timeout_secs":          "IDEAFORGE_ENGINE_PRIMARY_TIMEOUT_SECS",
		"engine.secondary.provider":            "IDEAFORGE_ENGINE_SECONDARY_PROVIDER",
		"engine.secondary.api_key":             "IDEAFORGE_ENGINE_SECONDARY_API_KEY",
		"engine.secondary.default_model":       "IDEAFORGE_ENGINE_SECONDARY_DEFAULT_MODEL",
		"engine.secondary.timeout_secs":        "IDEAFORGE_ENGINE_SECONDARY_TIMEOUT_SECS",
		"engine.tertiary.provider":             "IDEAFORGE_ENGINE_TERTIARY_PROVIDER",
		"engine.tertiary.api_key":              "IDEAFORGE_ENGINE_TERTIARY_API_KEY",
		"engine.tertiary.default_model":        "IDEAFORGE_ENGINE_TERTIARY_DEFAULT_MODEL",
		"engine.tertiary.timeout_secs":         "IDEAFORGE_ENGINE_TERTIARY_TIMEOUT_SECS",
		"engine.generation.temperature":        "IDEAFORGE_ENGINE_TEMPERATURE",
		"engine.generation.top_p":              "IDEAFORGE_ENGINE_TOP_P",
		"engine.generation.max_output_tokens":  "IDEAFORGE_ENGINE_MAX_OUTPUT_TOKENS",
		"engine.requests_per_minute":           "IDEAFORGE_ENGINE_REQUESTS_PER_MINUTE",
		"engine.burst":                         "IDEAFORGE_ENGINE_BURST",
		"pipeline.input_dir":                   "IDEAFORGE_PIPELINE_INPUT_DIR",
		"pipeline.output_dir":                  "IDEAFORGE_PIPELINE_OUTPUT_DIR",
		"pipeline.debug_dir":                   "IDEAFORGE_PIPELINE_DEBUG_DIR",
		"pipeline.report_dir":                  "IDEAFORGE_PIPELINE_REPORT_DIR",
		"pipeline.extensions":                  "IDEAFORGE_PIPELINE_EXTENSIONS",
		"pipeline.chunk_size":                  "IDEAFORGE_PIPELINE_CHUNK_SIZE",
		"pipeline.max_retries":                 "IDEAFORGE_PIPELINE_MAX_RETRIES",
		"pipeline.retry_delay":                 "IDEAFORGE_PIPELINE_RETRY_DELAY",
		"profiles.file":                        "IDEAFORGE_PROFILES_FILE",
		"s3.region":                            "IDEAFORGE_S3_REGION",
		"s3.bucket":                            "IDEAFORGE_S3_BUCKET",
		"s3.prefix":                            "IDEAFORGE_S3_PREFIX",
		"s3.endpoint":                          "IDEAFORGE_S3_ENDPOINT",
		"s3.access_key":                        "IDEAFORGE_S3_ACCESS_KEY",
		"s3.secret_key":                        "IDEAFORGE_S3_SECRET_KEY",
		"db.enabled":                           "IDEAFORGE_DB_ENABLED",
		"db.host":                              "IDEAFORGE_DB_HOST",
		"db.port":                              "IDEAFORGE_DB_PORT",
		"db.user":                              "IDEAFORGE_DB_USER",
		"db.password":                          "IDEAFORGE_DB_PASSWORD",
		"db.name":                              "IDEAFORGE_DB_NAME",
		"db.sslmode":                           "IDEAFORGE_DB_SSLMODE",
		"db.max_open":                          "IDEAFORGE_DB_MAX_OPEN",
		"db.max_idle":                          "IDEAFORGE_DB_MAX_IDLE",
		"email.provider":                       "IDEAFORGE_EMAIL_PROVIDER",
		"email.region":                         "IDEAFORGE_EMAIL_REGION",
		"email.from_address":                   "IDEAFORGE_EMAIL_FROM_ADDRESS",
		"email.from_name":                      "IDEAFORGE_EMAIL_FROM_NAME",
		"email.to_address":                     "IDEAFORGE_EMAIL_TO_ADDRESS",
		"log.level":                            "IDEAFORGE_LOG_LEVEL",
		"log.format":                           "IDEAFORGE_LOG_FORMAT",
		"metrics.textfile_path":                "IDEAFORGE_METRICS_TEXTFILE_PATH",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if path := os.Getenv("IDEAFORGE_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{}

	cfg.Engine = EngineConfig{
		Provider:     v.GetString("engine.provider"),
		APIKey:       v.GetString("engine.api_key"),
		DefaultModel: v.GetString("engine.default_model"),
		TimeoutSecs:  v.GetInt("engine.timeout_secs"),
		Primary:      providerConfig(v, "engine.primary"),
		Secondary:    providerConfig(v, "engine.secondary"),
		Tertiary:     providerConfig(v, "engine.tertiary"),
		Generation: GenerationConfig{
			Temperature:     v.GetFloat64("engine.generation.temperature"),
			TopP:            v.GetFloat64("engine.generation.top_p"),
			MaxOutputTokens: v.GetInt("engine.generation.max_output_tokens"),
		},
		RequestsPerMinute: v.GetFloat64("engine.requests_per_minute"),
		Burst:             v.GetInt("engine.burst"),
	}

	cfg.Pipeline = PipelineConfig{
		InputDir:   v.GetString("pipeline.input_dir"),
		OutputDir:  v.GetString("pipeline.output_dir"),
		DebugDir:   v.GetString("pipeline.debug_dir"),
		ReportDir:  v.GetString("pipeline.report_dir"),
		Extensions: stringList(v, "pipeline.extensions"),
		ChunkSize:  v.GetInt("pipeline.chunk_size"),
		MaxRetries: v.GetInt("pipeline.max_retries"),
		RetryDelay: v.GetDuration("pipeline.retry_delay"),
	}
	if cfg.Pipeline.ChunkSize <= 0 {
		return nil, fmt.Errorf("pipeline.chunk_size must be positive, got %d", cfg.Pipeline.ChunkSize)
	}
	if cfg.Pipeline.MaxRetries <= 0 {
		return nil, fmt.Errorf("pipeline.max_retries must be positive, got %d", cfg.Pipeline.MaxRetries)
	}

	cfg.Profiles = ProfilesConfig{
		File: v.GetString("profiles.file"),
	}

	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Prefix:    v.GetString("s3.prefix"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}

	cfg.DB = DBConfig{
		Enabled:  v.GetBool("db.enabled"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}

	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
		ToAddress:   v.GetString("email.to_address"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	cfg.Metrics = MetricsConfig{
		TextfilePath: v.GetString("metrics.textfile_path"),
	}

	return cfg, nil
}

func providerConfig(v *viper.Viper, prefix string) ProviderConfig {
	return ProviderConfig{
		Provider:     v.GetString(prefix + ".provider"),
		APIKey:       v.GetString(prefix + ".api_key"),
		DefaultModel: v.GetString(prefix + ".default_model"),
		TimeoutSecs:  v.GetInt(prefix + ".timeout_secs"),
	}
}

// stringList reads a key that may be a comma-separated string (env) or a list (config file).
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return splitList(raw)
	}
	return v.GetStringSlice(key)
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
