// Package config loads ledgerd and ledgerctl settings from a YAML file,
// LEDGER_* environment variables and built-in defaults, in that order of
// precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_STORAGE_DRIVER.
const EnvPrefix = "LEDGER"

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
	RateLimitRPS int      `mapstructure:"rate_limit_rps"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type LedgerConfig struct {
	OnCorrupt string `mapstructure:"on_corrupt"`
}

type TrackingConfig struct {
	EnforceTransitions bool `mapstructure:"enforce_transitions"`
}

type AuthConfig struct {
	UsersFile     string        `mapstructure:"users_file"`
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	AdminSecret   string        `mapstructure:"admin_secret"`
}

type IntegrityConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Integrity IntegrityConfig `mapstructure:"integrity"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("storage.driver", DriverFile)
	v.SetDefault("storage.path", "data/ledger.json")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("ledger.on_corrupt", "refuse")
	v.SetDefault("tracking.enforce_transitions", false)
	v.SetDefault("auth.users_file", "data/users.yaml")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.admin_secret", "")
	v.SetDefault("integrity.interval", "10m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New returns a viper instance with defaults, env binding and the config
// search path set up. cfgFile, when non-empty, replaces the search path.
func New(cfgFile string) *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the config file, if any, and decodes v into a Config. A missing
// file from the search path is not an error; a missing explicit file is.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed as defaults.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.Path == "" {
			return errors.New("config: storage.path is required for the file driver")
		}
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if _, err := ledger.ParseRecoveryPolicy(c.Ledger.OnCorrupt); err != nil {
		return fmt.Errorf("config: ledger.on_corrupt: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}

// RecoveryPolicy returns the parsed ledger.on_corrupt value.
func (c *Config) RecoveryPolicy() ledger.RecoveryPolicy {
	p, _ := ledger.ParseRecoveryPolicy(c.Ledger.OnCorrupt)
	return p
}

// NewLogger builds a zap logger: JSON production output by default, a
// colourised console logger when development is set.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
