// Package config loads idbdump settings from defaults, an optional TOML file
// and IDBDUMP_* environment variables, in increasing precedence. Command-line
// flags are applied on top by the caller.
package config

import (
	"os"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/roach88/idbforensics/internal/extract"
)

// DefaultFile is read from the working directory when no file is named.
const DefaultFile = "idbdump.toml"

// EnvPrefix prefixes every environment override, e.g. IDBDUMP_EXTRACT_FILTER.
const EnvPrefix = "IDBDUMP"

// Config is the resolved configuration.
type Config struct {
	Extract ExtractConfig `mapstructure:"extract"`
	Logs    LogsConfig    `mapstructure:"logs"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ExtractConfig struct {
	Allowlist []string `mapstructure:"allowlist"`
	Filter    bool     `mapstructure:"filter"`
	RawDump   bool     `mapstructure:"raw_dump"`
	// RequiredFields maps a store name to the fields its records must carry.
	// Records missing one are reported as failures.
	RequiredFields map[string][]string `mapstructure:"required_fields"`
}

type LogsConfig struct {
	// Dir holds the audit logs. Empty means the directory of the output file.
	Dir string `mapstructure:"dir"`
}

type MetricsConfig struct {
	// File receives a Prometheus textfile after each run. Empty disables it.
	File string `mapstructure:"file"`
}

// ExtractOptions converts the extract section into pipeline options.
func (c *Config) ExtractOptions() extract.Options {
	opts := extract.Options{
		Allowlist: c.Extract.Allowlist,
		Filter:    c.Extract.Filter,
		RawDump:   c.Extract.RawDump,
	}
	if len(c.Extract.RequiredFields) > 0 {
		opts.Normalizers = append(opts.Normalizers, extract.RequireFields(c.Extract.RequiredFields))
	}
	return opts
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("extract.allowlist", slices.Clone(extract.DefaultAllowlist))
	v.SetDefault("extract.filter", true)
	v.SetDefault("extract.raw_dump", false)
	v.SetDefault("logs.dir", "")
	v.SetDefault("metrics.file", "")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads path, or DefaultFile when path is empty and that file exists.
// A named file that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := New()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil || explicit {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	return Unmarshal(v)
}

// Unmarshal decodes v into a Config.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}
