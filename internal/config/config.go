// Package config loads ozcheck settings from config.yaml, a .env file and
// OZCHECK_* environment variables, and initializes the global logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ozinsight/ozcheck/internal/source"
)

// EnvPrefix prefixes every environment override, e.g. OZCHECK_SERVER_PORT.
const EnvPrefix = "OZCHECK"

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Source   SourceConfig   `yaml:"source" mapstructure:"source"`
	Optimize OptimizeConfig `yaml:"optimize" mapstructure:"optimize"`
	Checker  CheckerConfig  `yaml:"checker" mapstructure:"checker"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DataConfig locates dataset artifacts.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// SourceConfig configures the ArcGIS feature service download.
type SourceConfig struct {
	ArcGISURL  string        `yaml:"arcgis_url" mapstructure:"arcgis_url"`
	PageSize   int           `yaml:"page_size" mapstructure:"page_size"`
	PageDelay  time.Duration `yaml:"page_delay" mapstructure:"page_delay"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent  string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// OptimizeConfig holds checker dataset build defaults.
type OptimizeConfig struct {
	Precision        int      `yaml:"precision" mapstructure:"precision"`
	Simplify         bool     `yaml:"simplify" mapstructure:"simplify"`
	Tolerance        string   `yaml:"tolerance" mapstructure:"tolerance"`
	IdentifierFields []string `yaml:"identifier_fields" mapstructure:"identifier_fields"`
}

// CheckerConfig configures the runtime zone checker.
type CheckerConfig struct {
	Document     string `yaml:"document" mapstructure:"document"`
	Lookup       string `yaml:"lookup" mapstructure:"lookup"`
	SpatialIndex bool   `yaml:"spatial_index" mapstructure:"spatial_index"`
}

// GeocodeConfig configures address resolution.
type GeocodeConfig struct {
	GoogleAPIKey     string        `yaml:"google_api_key" mapstructure:"google_api_key"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit        float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	CircuitThreshold int           `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitReset     time.Duration `yaml:"circuit_reset" mapstructure:"circuit_reset"`
}

// CacheConfig configures the geocode result cache.
type CacheConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	TTLDays  int    `yaml:"ttl_days" mapstructure:"ttl_days"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TTL returns the cache entry lifetime. Zero keeps entries forever.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLDays <= 0 {
		return 0
	}
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// BatchConfig configures batch checks.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// Load reads configuration from .env, the config file and the environment.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.dir", "data")
	v.SetDefault("source.arcgis_url", source.DefaultArcGISURL)
	v.SetDefault("source.page_size", 2000)
	v.SetDefault("source.page_delay", 500*time.Millisecond)
	v.SetDefault("source.retry_delay", 2*time.Second)
	v.SetDefault("source.timeout", 60*time.Second)
	v.SetDefault("source.user_agent", "ozcheck/1.0")
	v.SetDefault("optimize.precision", 5)
	v.SetDefault("optimize.simplify", true)
	v.SetDefault("optimize.tolerance", "low")
	v.SetDefault("optimize.identifier_fields", []string{"GEOID", "geoid", "GEOID10", "TRACTCE"})
	v.SetDefault("checker.document", "data/opportunity-zones.geojson")
	v.SetDefault("checker.lookup", "")
	v.SetDefault("checker.spatial_index", true)
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.timeout", 10*time.Second)
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("geocode.circuit_threshold", 5)
	v.SetDefault("geocode.circuit_reset", 30*time.Second)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.dsn", "data/geocode-cache.db")
	v.SetDefault("cache.ttl_days", 30)
	v.SetDefault("cache.max_conns", 4)
	v.SetDefault("cache.min_conns", 1)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout", 30*time.Second)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path into the process environment.
// A missing file is ignored; variables already set win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return eris.Wrapf(err, "config: load %s", path)
	}
	return nil
}

// Validate checks the settings a command mode depends on. Modes are
// "dataset", "check" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "dataset":
		if c.Source.ArcGISURL == "" {
			errs = append(errs, "source.arcgis_url is required")
		}
		if c.Source.PageSize < 1 {
			errs = append(errs, "source.page_size must be > 0")
		}
		switch c.Optimize.Precision {
		case 3, 4, 5:
		default:
			errs = append(errs, "optimize.precision must be 3, 4 or 5")
		}
		switch strings.ToLower(c.Optimize.Tolerance) {
		case "low", "med", "medium", "high":
		default:
			errs = append(errs, "optimize.tolerance must be low, med or high")
		}
	case "check", "serve":
		if c.Checker.Document == "" {
			errs = append(errs, "checker.document is required")
		}
		switch strings.ToLower(c.Cache.Driver) {
		case "", "none", "sqlite", "postgres", "postgresql":
		default:
			errs = append(errs, fmt.Sprintf("cache.driver %q is not supported", c.Cache.Driver))
		}
		if d := strings.ToLower(c.Cache.Driver); (d == "sqlite" || strings.HasPrefix(d, "postgres")) && c.Cache.DSN == "" {
			errs = append(errs, "cache.dsn is required")
		}
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 64 {
			errs = append(errs, "batch.concurrency must be between 1 and 64")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
