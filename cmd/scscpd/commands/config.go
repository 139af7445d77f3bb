package commands

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the operator-facing configuration for the scscpd launcher,
// populated from defaults, environment variables (SCSCPD_* prefix) and an
// optional config file named by the --config flag, the way marmos91-dittofs's pkg/config.Load layers
// viper over a plain struct.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	ServiceID      string        `mapstructure:"service_id"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"` // "text" or "json"
	AcceptGrace    time.Duration `mapstructure:"accept_grace"`
	ReapInterval   time.Duration `mapstructure:"reap_interval"`
	ReapMaxAge     time.Duration `mapstructure:"reap_max_age"`
	MetricsAddr    string        `mapstructure:"metrics_addr"` // empty disables the metrics endpoint
}

func defaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:26133",
		ServiceName:    "scscpd",
		ServiceVersion: Version,
		ServiceID:      "0",
		LogLevel:       "info",
		LogFormat:      "text",
		AcceptGrace:    5 * time.Second,
		ReapInterval:   30 * time.Second,
		ReapMaxAge:     10 * time.Minute,
	}
}

// loadConfig builds a Config from defaults, an optional file at configPath,
// and SCSCPD_-prefixed environment variables, in that order of precedence.
func loadConfig(configPath string) (Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetEnvPrefix("SCSCPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Registering each key's default with viper is what makes AutomaticEnv
	// pick up its corresponding SCSCPD_* variable; Unmarshal only considers
	// keys viper already knows about.
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("service_name", cfg.ServiceName)
	v.SetDefault("service_version", cfg.ServiceVersion)
	v.SetDefault("service_id", cfg.ServiceID)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("accept_grace", cfg.AcceptGrace)
	v.SetDefault("reap_interval", cfg.ReapInterval)
	v.SetDefault("reap_max_age", cfg.ReapMaxAge)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
