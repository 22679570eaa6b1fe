package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig     `yaml:"store" mapstructure:"store"`
	Warehouse  WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Fetch      FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Link       LinkConfig      `yaml:"link" mapstructure:"link"`
	Merge      MergeConfig     `yaml:"merge" mapstructure:"merge"`
	Validation ValidateConfig  `yaml:"validate" mapstructure:"validate"`
	Derive     DeriveConfig    `yaml:"derive" mapstructure:"derive"`
	Pipeline   PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig    `yaml:"server" mapstructure:"server"`
	Log        LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// WarehouseConfig configures the research data warehouse connection.
type WarehouseConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	QuerySecs   int    `yaml:"query_secs" mapstructure:"query_secs"`
}

// FetchConfig configures remote dataset acquisition.
type FetchConfig struct {
	FTPHost     string  `yaml:"ftp_host" mapstructure:"ftp_host"`
	FTPUser     string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string  `yaml:"ftp_password" mapstructure:"ftp_password"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LinkConfig configures identifier link resolution.
type LinkConfig struct {
	Priority     []string `yaml:"priority" mapstructure:"priority"`
	EndExclusive bool     `yaml:"end_exclusive" mapstructure:"end_exclusive"`
}

// MergeConfig configures the merge engine.
type MergeConfig struct {
	Mode  string `yaml:"mode" mapstructure:"mode"`
	Align string `yaml:"align" mapstructure:"align"`
}

// ValidateConfig configures panel diagnostics.
type ValidateConfig struct {
	ByBucket    bool `yaml:"by_bucket" mapstructure:"by_bucket"`
	SampleLimit int  `yaml:"sample_limit" mapstructure:"sample_limit"`
}

// DeriveConfig configures variable construction and cleanup.
type DeriveConfig struct {
	SpecPath       string   `yaml:"spec_path" mapstructure:"spec_path"`
	Variables      []string `yaml:"variables" mapstructure:"variables"`
	Winsorize      []string `yaml:"winsorize" mapstructure:"winsorize"`
	WinsorizeLower float64  `yaml:"winsorize_lower" mapstructure:"winsorize_lower"`
	WinsorizeUpper float64  `yaml:"winsorize_upper" mapstructure:"winsorize_upper"`
}

// PipelineConfig configures run-wide behavior.
type PipelineConfig struct {
	Workers int    `yaml:"workers" mapstructure:"workers"`
	OutDir  string `yaml:"out_dir" mapstructure:"out_dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("PANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "panel.db")
	v.SetDefault("warehouse.query_secs", 120)
	v.SetDefault("fetch.rate_per_sec", 2.0)
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("link.priority", []string{"LU", "LC", "LS"})
	v.SetDefault("link.end_exclusive", false)
	v.SetDefault("merge.mode", "via-link")
	v.SetDefault("merge.align", "exact")
	v.SetDefault("validate.sample_limit", 20)
	v.SetDefault("derive.winsorize_lower", 0.01)
	v.SetDefault("derive.winsorize_upper", 0.99)
	v.SetDefault("pipeline.workers", 0) // 0 = GOMAXPROCS
	v.SetDefault("pipeline.out_dir", "out")
	v.SetDefault("server.port", 8080)
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

// Validate checks that the configuration is usable for the given mode
// ("run", "pull", "serve"). All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Derive.WinsorizeLower >= 0 && c.Derive.WinsorizeLower < 1,
		"derive.winsorize_lower must be in [0, 1)")
	check(c.Derive.WinsorizeUpper > 0 && c.Derive.WinsorizeUpper <= 1,
		"derive.winsorize_upper must be in (0, 1]")
	check(c.Derive.WinsorizeLower < c.Derive.WinsorizeUpper,
		"derive.winsorize_lower must be below derive.winsorize_upper")
	check(c.Pipeline.Workers >= 0, "pipeline.workers must be >= 0")

	switch mode {
	case "run":
		check(c.Pipeline.OutDir != "", "pipeline.out_dir is required")
		if c.Store.Driver == "postgres" {
			check(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
		} else {
			check(c.Store.Path != "", "store.path is required for the sqlite driver")
		}
	case "pull":
		check(c.Warehouse.DatabaseURL != "", "warehouse.database_url is required")
		check(c.Warehouse.QuerySecs > 0, "warehouse.query_secs must be > 0")
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
