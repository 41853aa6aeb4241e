// Package config provides configuration loading, validation, and defaults
// for the botgram mirror daemon. Values come from config.yaml and from
// BOTGRAM_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// Config holds all application configuration sections.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Media     MediaConfig     `mapstructure:"media"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retention RetentionConfig `mapstructure:"retention"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot authentication token. A missing token means
// ingestion cannot run; it is reported as a startup (login) failure rather
// than retried.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	// BotInfo is populated at runtime after a successful GetMe call.
	BotInfo *models.User `mapstructure:"-"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// MediaConfig controls the on-disk media cache.
type MediaConfig struct {
	Dir                 string        `mapstructure:"dir"                  validate:"required"`
	MaxConcurrent       int64         `mapstructure:"max_concurrent"       validate:"min=1,max=32"`
	DownloadTimeout     time.Duration `mapstructure:"download_timeout"     validate:"min=1s,max=10m"`
	MaxDownloadSizeByte int64         `mapstructure:"max_download_size"    validate:"min=1024"`
}

// IngestConfig controls the update loop.
type IngestConfig struct {
	RestartDelay time.Duration `mapstructure:"restart_delay" validate:"min=1s,max=5m"`
}

// RetentionConfig controls the scheduled message retention sweep.
type RetentionConfig struct {
	MaxAge time.Duration `mapstructure:"max_age" validate:"min=1h"`
}

// TaskConfig enables and schedules a single background task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// LoadConfig reads configuration from the given YAML file (optional),
// overlays BOTGRAM_* environment variables, applies defaults, and validates
// the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("BOTGRAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults may be enough.
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.path", "botgram.db")

	v.SetDefault("media.dir", "cache")
	v.SetDefault("media.max_concurrent", 3)
	v.SetDefault("media.download_timeout", 30*time.Second)
	v.SetDefault("media.max_download_size", 50*1024*1024)

	v.SetDefault("ingest.restart_delay", 5*time.Second)

	v.SetDefault("retention.max_age", 90*24*time.Hour)

	v.SetDefault("scheduler.tasks", map[string]TaskConfig{
		"message_retention": {Enabled: false, Schedule: "0 0 4 * * *"},
		"cache_sweep":       {Enabled: true, Schedule: "0 30 4 * * *"},
		"sql_maintenance":   {Enabled: true, Schedule: "0 0 5 * * 0"},
	})
}
