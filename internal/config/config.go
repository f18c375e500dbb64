package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

type Config struct {
	Addr              string        `mapstructure:"addr"`
	DataDir           string        `mapstructure:"data_dir"`
	DBPath            string        `mapstructure:"db_path"`
	BackendURL        string        `mapstructure:"backend_url"`
	Environment       string        `mapstructure:"environment"`
	ResourceType      string        `mapstructure:"resource_type"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	TimeOffset        time.Duration `mapstructure:"time_offset"`
	BucketDuration    time.Duration `mapstructure:"bucket_duration"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RetentionDays     int           `mapstructure:"retention_days"`
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFile           string        `mapstructure:"log_file"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	TelegramBotToken  string        `mapstructure:"telegram_bot_token"`
	TelegramChatID    string        `mapstructure:"telegram_chat_id"`
}

// Load reads defaults, then the optional config file, then HAWKVIEW_*
// environment variables. An empty path searches ./hawkview.yaml and
// /etc/hawkview/hawkview.yaml.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("db_path", "")
	v.SetDefault("backend_url", "http://localhost:8080")
	v.SetDefault("environment", "test")
	v.SetDefault("resource_type", "WildFly Server")
	v.SetDefault("refresh_interval", 20*time.Second)
	v.SetDefault("time_offset", time.Hour)
	v.SetDefault("bucket_duration", time.Duration(0))
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("retention_days", 14)
	v.SetDefault("retention_interval", 6*time.Hour)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", "")

	v.SetEnvPrefix("HAWKVIEW")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hawkview")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hawkview")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "hawkview.db")
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr must not be empty"))
	}
	if u, perr := url.Parse(c.BackendURL); perr != nil || !u.IsAbs() {
		err = multierr.Append(err, fmt.Errorf("backend_url %q must be an absolute URL", c.BackendURL))
	}
	if c.Environment == "" {
		err = multierr.Append(err, errors.New("environment must not be empty"))
	}
	if c.RefreshInterval < time.Second {
		err = multierr.Append(err, fmt.Errorf("refresh_interval %s must be at least 1s", c.RefreshInterval))
	}
	if c.TimeOffset <= 0 {
		err = multierr.Append(err, fmt.Errorf("time_offset %s must be positive", c.TimeOffset))
	}
	if c.BucketDuration < 0 {
		err = multierr.Append(err, fmt.Errorf("bucket_duration %s must not be negative", c.BucketDuration))
	}
	if c.RequestTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("request_timeout %s must be positive", c.RequestTimeout))
	}
	if c.RetentionDays <= 0 {
		err = multierr.Append(err, fmt.Errorf("retention_days %d must be positive", c.RetentionDays))
	}
	if c.RetentionInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("retention_interval %s must be positive", c.RetentionInterval))
	}
	if c.ShutdownTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("shutdown_timeout %s must be positive", c.ShutdownTimeout))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel))
	}
	return err
}
