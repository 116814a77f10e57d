package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = eris.New("config: invalid configuration")

// Config holds the full application configuration.
type Config struct {
	Pipeline    PipelineConfig          `yaml:"pipeline" mapstructure:"pipeline"`
	Processing  ProcessingConfig        `yaml:"processing" mapstructure:"processing"`
	DataQuality DataQualityConfig       `yaml:"data_quality" mapstructure:"data_quality"`
	Sources     map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
	Breaker     BreakerConfig           `yaml:"breaker" mapstructure:"breaker"`
	Cache       CacheConfig             `yaml:"cache" mapstructure:"cache"`
	Store       StoreConfig             `yaml:"store" mapstructure:"store"`
	Server      ServerConfig            `yaml:"server" mapstructure:"server"`
	Log         LogConfig               `yaml:"log" mapstructure:"log"`
	Monitoring  MonitoringConfig        `yaml:"monitoring" mapstructure:"monitoring"`
	Paths       PathsConfig             `yaml:"paths" mapstructure:"paths"`
}

// PipelineConfig names the pipeline and selects the environment overlay.
type PipelineConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Version     string `yaml:"version" mapstructure:"version"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// ProcessingConfig controls batching, concurrency and per-source retries.
type ProcessingConfig struct {
	MaxConcurrentRequests int     `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
	BatchSize             int     `yaml:"batch_size" mapstructure:"batch_size"`
	RateLimitDelaySeconds float64 `yaml:"rate_limit_delay_seconds" mapstructure:"rate_limit_delay_seconds"`
	SampleSize            int     `yaml:"sample_size" mapstructure:"sample_size"`
	MaxRetries            int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelaySeconds     float64 `yaml:"retry_delay_seconds" mapstructure:"retry_delay_seconds"`
	TimeoutSeconds        float64 `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// DataQualityConfig holds the scoring and strategy thresholds.
type DataQualityConfig struct {
	MinimumConfidenceThreshold float64  `yaml:"minimum_confidence_threshold" mapstructure:"minimum_confidence_threshold"`
	HighConfidenceThreshold    float64  `yaml:"high_confidence_threshold" mapstructure:"high_confidence_threshold"`
	DefaultThreshold           float64  `yaml:"default_threshold" mapstructure:"default_threshold"`
	RichRegistryThreshold      float64  `yaml:"rich_registry_threshold" mapstructure:"rich_registry_threshold"`
	RichRegistryStates         []string `yaml:"rich_registry_states" mapstructure:"rich_registry_states"`
	TargetFieldCount           int      `yaml:"target_field_count" mapstructure:"target_field_count"`
	RequiredFields             []string `yaml:"required_fields" mapstructure:"required_fields"`
	AuthoritativeSource        string   `yaml:"authoritative_source" mapstructure:"authoritative_source"`
}

// SourceConfig configures one named enrichment source.
type SourceConfig struct {
	Enabled         *bool   `yaml:"enabled" mapstructure:"enabled"`
	RPS             float64 `yaml:"rps" mapstructure:"rps"`
	Burst           int     `yaml:"burst" mapstructure:"burst"`
	Key             string  `yaml:"key" mapstructure:"key"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
}

// IsEnabled treats an unset flag as enabled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// BreakerConfig configures per-source circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// CacheConfig configures the source result cache.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	TTLMinutes int  `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig holds alerting thresholds.
type MonitoringConfig struct {
	LowSuccessRateThreshold    float64 `yaml:"low_success_rate_threshold" mapstructure:"low_success_rate_threshold"`
	HighProcessingTimeSeconds  float64 `yaml:"high_processing_time_seconds" mapstructure:"high_processing_time_seconds"`
	LowConfidenceRateThreshold float64 `yaml:"low_confidence_rate_threshold" mapstructure:"low_confidence_rate_threshold"`
	WebhookURL                 string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs          int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours        int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	// DLQBacklogThreshold raises an alert once this many records wait for
	// replay. Zero disables the check.
	DLQBacklogThreshold int `yaml:"dlq_backlog_threshold" mapstructure:"dlq_backlog_threshold"`
	// AlertCooldownMinutes suppresses a repeat of the same alert type from
	// the background checker.
	AlertCooldownMinutes int `yaml:"alert_cooldown_minutes" mapstructure:"alert_cooldown_minutes"`
}

// PathsConfig holds default input and output locations.
type PathsConfig struct {
	InputFile   string `yaml:"input_file" mapstructure:"input_file"`
	OutputJSON  string `yaml:"output_json" mapstructure:"output_json"`
	OutputExcel string `yaml:"output_excel" mapstructure:"output_excel"`
	// StrategyFile optionally replaces the built-in source plans.
	StrategyFile string `yaml:"strategy_file" mapstructure:"strategy_file"`
}

// Load reads config.yaml from the working directory or ./config, then the
// ENRICH_* environment. A missing file is not an error.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config path; when path is set the file
// must exist. When pipeline.environment names a block under environments,
// that block is merged over the base file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config")
	}

	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	if env := v.GetString("pipeline.environment"); env != "" {
		if overlay := v.GetStringMap("environments." + env); len(overlay) > 0 {
			if err := v.MergeConfigMap(overlay); err != nil {
				return nil, eris.Wrapf(err, "config: merge environment %s", env)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.name", "franchisee-enrichment-pipeline")
	v.SetDefault("pipeline.version", "1.0.0")
	v.SetDefault("pipeline.environment", "development")
	v.SetDefault("processing.max_concurrent_requests", 3)
	v.SetDefault("processing.batch_size", 5)
	v.SetDefault("processing.rate_limit_delay_seconds", 2.0)
	v.SetDefault("processing.sample_size", 0)
	v.SetDefault("processing.max_retries", 3)
	v.SetDefault("processing.retry_delay_seconds", 1.0)
	v.SetDefault("processing.timeout_seconds", 30)
	v.SetDefault("data_quality.minimum_confidence_threshold", 0.5)
	v.SetDefault("data_quality.high_confidence_threshold", 0.8)
	v.SetDefault("data_quality.default_threshold", 0.7)
	v.SetDefault("data_quality.rich_registry_threshold", 0.8)
	v.SetDefault("data_quality.rich_registry_states", []string{"TX"})
	v.SetDefault("data_quality.target_field_count", 6)
	v.SetDefault("data_quality.required_fields", []string{"franchisee_owner", "corporate_address"})
	v.SetDefault("data_quality.authoritative_source", "business_registry")
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_secs", 30)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_minutes", 60)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.low_success_rate_threshold", 0.8)
	v.SetDefault("monitoring.high_processing_time_seconds", 300)
	v.SetDefault("monitoring.low_confidence_rate_threshold", 0.7)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.dlq_backlog_threshold", 100)
	v.SetDefault("monitoring.alert_cooldown_minutes", 60)
	v.SetDefault("paths.output_json", "data/enriched_franchisees.json")
	v.SetDefault("paths.output_excel", "data/enriched_franchisees.xlsx")
}

// Validate checks settings shared by every command plus those specific to
// mode ("enrich", "serve" or "store"). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	p := c.Processing
	if p.MaxConcurrentRequests < 1 || p.MaxConcurrentRequests > 100 {
		errs = append(errs, "processing.max_concurrent_requests must be between 1 and 100")
	}
	if p.BatchSize <= 0 {
		errs = append(errs, "processing.batch_size must be > 0")
	}
	if p.MaxRetries <= 0 {
		errs = append(errs, "processing.max_retries must be > 0")
	}
	if p.SampleSize < 0 {
		errs = append(errs, "processing.sample_size must be >= 0")
	}
	if p.RateLimitDelaySeconds < 0 || p.RetryDelaySeconds < 0 {
		errs = append(errs, "processing delays must be >= 0")
	}
	if p.TimeoutSeconds <= 0 {
		errs = append(errs, "processing.timeout_seconds must be > 0")
	}

	dq := c.DataQuality
	for name, v := range map[string]float64{
		"minimum_confidence_threshold": dq.MinimumConfidenceThreshold,
		"high_confidence_threshold":    dq.HighConfidenceThreshold,
		"default_threshold":            dq.DefaultThreshold,
		"rich_registry_threshold":      dq.RichRegistryThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("data_quality.%s must be between 0 and 1", name))
		}
	}
	if dq.MinimumConfidenceThreshold > dq.HighConfidenceThreshold {
		errs = append(errs, "data_quality.minimum_confidence_threshold must be <= high_confidence_threshold")
	}
	if dq.TargetFieldCount <= 0 {
		errs = append(errs, "data_quality.target_field_count must be > 0")
	}

	switch mode {
	case "enrich", "":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store":
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", mode))
	}

	if len(errs) == 0 {
		return nil
	}
	slices.Sort(errs)
	return eris.Wrap(ErrInvalidConfig, strings.Join(errs, "; "))
}

// SourceEnabled reports whether the named source is switched on.
func (c *Config) SourceEnabled(name string) bool {
	sc, ok := c.Sources[name]
	return !ok || sc.IsEnabled()
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
