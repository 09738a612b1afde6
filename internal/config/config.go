// Package config holds app wide settings unmarshalled from Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides,
// e.g. BCRVIEW_SERVER_ADDR.
const EnvPrefix = "BCRVIEW"

// FileName is the config file name looked up in the home directory.
const FileName = ".bcrview.yaml"

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// RegistryConfig locates the project database.
type RegistryConfig struct {
	// DuckDB file; empty for in-memory
	Path string `mapstructure:"path"`
}

// GermlineConfig locates the germline reference files.
type GermlineConfig struct {
	Dir string `mapstructure:"dir"`
}

// AlignerConfig selects and tunes the multiple sequence aligner.
type AlignerConfig struct {
	// executable name or path; "none" pads instead of aligning
	Program string        `mapstructure:"program"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TranslateConfig tunes batch translation.
type TranslateConfig struct {
	// 0 uses all CPUs
	Workers int `mapstructure:"workers"`
}

// Config is the root-level settings struct.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DataDir   string          `mapstructure:"data_dir"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Germline  GermlineConfig  `mapstructure:"germline"`
	Aligner   AlignerConfig   `mapstructure:"aligner"`
	Log       LogConfig       `mapstructure:"log"`
	Translate TranslateConfig `mapstructure:"translate"`
}

// AlignerNone disables the external aligner.
const AlignerNone = "none"

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("data_dir", filepath.Join("instance", "uploads"))
	v.SetDefault("registry.path", filepath.Join("instance", "bcrview.duckdb"))
	v.SetDefault("germline.dir", filepath.Join("data", "germline"))
	v.SetDefault("aligner.program", "mafft")
	v.SetDefault("aligner.args", []string{"--auto", "--quiet", "--amino"})
	v.SetDefault("aligner.timeout", "2m")
	v.SetDefault("log.level", "info")
	v.SetDefault("translate.workers", 0)
}

// Init prepares v: defaults, environment overrides and the config file.
// An explicit cfgFile must exist; otherwise ~/.bcrview.yaml is read when
// present.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(home, FileName)
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Load decodes v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if c.Aligner.Timeout <= 0 {
		return nil, fmt.Errorf("aligner.timeout must be positive, got %s", c.Aligner.Timeout)
	}
	return &c, nil
}

// Workers returns the effective translation worker count.
func (c *Config) Workers() int {
	if c.Translate.Workers > 0 {
		return c.Translate.Workers
	}
	return runtime.NumCPU()
}
