// Package config loads daemon configuration from defaults, an optional
// YAML file, and DIAGD_-prefixed environment variables. Precedence is
// file < environment, with built-in defaults underneath both.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/silvermint/diagd/pkg/sysconfig"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// DiagnosticsConfig holds tunables for the routine implementations.
type DiagnosticsConfig struct {
	// CacheRoot is the directory used for disk-read test files.
	CacheRoot string `mapstructure:"cache_root"`

	// DiskReadHeadroomMiB is the free space that must remain after the
	// disk-read test file is created.
	DiskReadHeadroomMiB uint32 `mapstructure:"disk_read_headroom_mib"`

	// FileCreationSecondsPerMiB estimates how long fio takes to prepare
	// one MiB of test file.
	FileCreationSecondsPerMiB float64 `mapstructure:"file_creation_seconds_per_mib"`

	// NVMe identify-controller log page used by the wear-level routine.
	NvmeLogPageID     uint32 `mapstructure:"nvme_log_page_id"`
	NvmeLogDataLength uint32 `mapstructure:"nvme_log_data_length"`
	NvmeLogRawBinary  bool   `mapstructure:"nvme_log_raw_binary"`

	// URandomTimeout is the default urandom routine duration.
	URandomTimeout time.Duration `mapstructure:"urandom_timeout"`
}

// CapabilitiesConfig overrides hardware probing. A nil field means
// "probe"; a set field forces the capability on or off.
type CapabilitiesConfig struct {
	Battery        *bool `mapstructure:"battery"`
	Nvme           *bool `mapstructure:"nvme"`
	Smartctl       *bool `mapstructure:"smartctl"`
	Fio            *bool `mapstructure:"fio"`
	VendorSpecific *bool `mapstructure:"vendor_specific"`
	SkuNumber      *bool `mapstructure:"sku_number"`
}

// Override converts the capability settings into a sysconfig override.
func (c CapabilitiesConfig) Override() sysconfig.Override {
	return sysconfig.Override{
		HasBattery:        c.Battery,
		NvmeSupported:     c.Nvme,
		SmartCtlSupported: c.Smartctl,
		FioSupported:      c.Fio,
		VendorSpecific:    c.VendorSpecific,
		HasSkuNumber:      c.SkuNumber,
	}
}

// Config is the root configuration document.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Diagnostics  DiagnosticsConfig  `mapstructure:"diagnostics"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8848)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)

	v.SetDefault("logging.level", "info")

	v.SetDefault("diagnostics.cache_root", "/var/cache/diagnostics")
	v.SetDefault("diagnostics.disk_read_headroom_mib", 1024)
	v.SetDefault("diagnostics.file_creation_seconds_per_mib", 0.005)
	v.SetDefault("diagnostics.nvme_log_page_id", 6)
	v.SetDefault("diagnostics.nvme_log_data_length", 16)
	v.SetDefault("diagnostics.nvme_log_raw_binary", true)
	v.SetDefault("diagnostics.urandom_timeout", "10s")
}

// Load reads configuration. path names an explicit YAML file; when empty,
// diagd.yaml is searched in /etc/diagd and the working directory, and a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DIAGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("diagd")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/diagd")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Diagnostics.FileCreationSecondsPerMiB <= 0 {
		return fmt.Errorf("file_creation_seconds_per_mib must be positive, got %g",
			c.Diagnostics.FileCreationSecondsPerMiB)
	}
	if c.Diagnostics.NvmeLogDataLength == 0 {
		return fmt.Errorf("nvme_log_data_length must be positive")
	}
	if c.Diagnostics.URandomTimeout <= 0 {
		return fmt.Errorf("urandom_timeout must be positive, got %s", c.Diagnostics.URandomTimeout)
	}
	return nil
}
