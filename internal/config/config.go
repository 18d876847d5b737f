package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lidarhd/internal/wfs"
)

// DefaultBaseURL is the catalog WFS endpoint used when none is configured.
const DefaultBaseURL = wfs.DefaultBaseURL

// Config holds the full application configuration.
type Config struct {
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	PDAL    PDALConfig    `yaml:"pdal" mapstructure:"pdal"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// CatalogConfig configures where the tile catalog lives and how it is fetched.
type CatalogConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	PageSize     int    `yaml:"page_size" mapstructure:"page_size"`
	MaxPages     int    `yaml:"max_pages" mapstructure:"max_pages"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
	SRSName      string `yaml:"srs_name" mapstructure:"srs_name"`
	OutputFormat string `yaml:"output_format" mapstructure:"output_format"`
}

// FetchConfig configures the HTTP client used against the WFS.
type FetchConfig struct {
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// PDALConfig locates the point-cloud engine.
type PDALConfig struct {
	BinPath string `yaml:"bin_path" mapstructure:"bin_path"`
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LIDARHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.dir", "./lidarhd_data/")
	v.SetDefault("catalog.base_url", DefaultBaseURL)
	v.SetDefault("catalog.page_size", 5000)
	v.SetDefault("catalog.max_pages", 100)
	v.SetDefault("catalog.concurrency", 12)
	v.SetDefault("catalog.srs_name", "urn:ogc:def:crs:EPSG::2154")
	v.SetDefault("catalog.output_format", "application/json")
	v.SetDefault("fetch.user_agent", "lidarhd/1.0")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 1)
	v.SetDefault("fetch.rate_per_sec", 20)
	v.SetDefault("pdal.bin_path", "pdal")
	v.SetDefault("pdal.temp_dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command depends on. mode is "catalog" for
// commands that only touch the catalog, "download" for those that also run PDAL.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "catalog", "download":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if strings.TrimSpace(c.Catalog.Dir) == "" {
		errs = append(errs, "catalog.dir is required")
	}
	if u, err := url.Parse(c.Catalog.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "catalog.base_url must be an absolute URL")
	}
	if c.Catalog.PageSize < 1 {
		errs = append(errs, "catalog.page_size must be > 0")
	}
	if c.Catalog.MaxPages < 1 {
		errs = append(errs, "catalog.max_pages must be > 0")
	}
	if c.Catalog.Concurrency < 1 || c.Catalog.Concurrency > 64 {
		errs = append(errs, "catalog.concurrency must be between 1 and 64")
	}
	if c.Fetch.MaxRetries < 1 {
		errs = append(errs, "fetch.max_retries must be >= 1")
	}
	if c.Fetch.RatePerSec < 0 {
		errs = append(errs, "fetch.rate_per_sec must be >= 0")
	}
	if mode == "download" && strings.TrimSpace(c.PDAL.BinPath) == "" {
		errs = append(errs, "pdal.bin_path is required")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// InitLogger installs the global zap logger. Logs go to stderr so command
// output on stdout stays machine readable; stack traces only at debug level.
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
	zapCfg.DisableStacktrace = level > zapcore.DebugLevel
	zapCfg.OutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger.Named("lidarhd"))

	return nil
}
