package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is AFD's fully resolved runtime configuration: the on-disk
// layout from Paths plus every knob the query/resend engine, the Send
// Worker, and the scheduler daemon read at startup.
type Config struct {
	Paths

	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`

	QueryListLimit int `mapstructure:"query_list_limit"`

	RedisAddr             string        `mapstructure:"redis_addr"`
	DefaultDupCheckWindow time.Duration `mapstructure:"default_dupcheck_window"`

	SchedulerTickInterval time.Duration `mapstructure:"scheduler_tick_interval"`

	APIAddr        string   `mapstructure:"api_addr"`
	APICORSOrigins []string `mapstructure:"api_cors_origins"`

	ArchiveMirror ArchiveMirrorConfig `mapstructure:"archive_mirror"`
}

// ArchiveMirrorConfig configures the optional S3-compatible off-box
// copy of archived files (SPEC_FULL.md §4.8).
type ArchiveMirrorConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "text")
	v.SetDefault("query_list_limit", 5000)
	v.SetDefault("redis_addr", "")
	v.SetDefault("default_dupcheck_window", 24*time.Hour)
	v.SetDefault("scheduler_tick_interval", 10*time.Second)
	v.SetDefault("api_addr", ":9999")
	v.SetDefault("api_cors_origins", []string{"*"})
	v.SetDefault("archive_mirror.enabled", false)
	v.SetDefault("archive_mirror.use_ssl", true)
}

// Load reads AFD's YAML config file (named "afd", resolved the same
// way the teacher resolves "admin.yaml": an explicit --config flag if
// cfgFile is non-empty, else the resolver's ConfigDir) and environment
// overrides prefixed AFD_, e.g. AFD_REDIS_ADDR.
func Load(cfgFile string) (*Config, error) {
	resolver := DefaultResolver()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("afd")
		v.AddConfigPath(resolver.ConfigDir)
	}

	v.SetEnvPrefix("AFD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Paths = resolver.Paths

	return &cfg, nil
}
