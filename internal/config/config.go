package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ogulcanaydogan/pool-watcher/pkg/parser"
)

// Config holds all watcher configuration.
type Config struct {
	Alerts          AlertsConfig    `mapstructure:"alerts" yaml:"alerts"`
	Detection       DetectionConfig `mapstructure:"detection" yaml:"detection"`
	Source          SourceConfig    `mapstructure:"source" yaml:"source"`
	MaintenanceMode bool            `mapstructure:"maintenance_mode" yaml:"maintenance_mode"`
	Storage         StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Status          StatusConfig    `mapstructure:"status" yaml:"status"`
	Logging         LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// AlertsConfig defines alerting integrations.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack" yaml:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook" yaml:"webhook"`
}

// SlackConfig defines Slack webhook settings. Slack is enabled when a
// webhook URL is set.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Secret string `mapstructure:"secret" yaml:"secret"`
}

// DetectionConfig defines the error-rate window and alert pacing.
type DetectionConfig struct {
	ErrorRateThreshold float64 `mapstructure:"error_rate_threshold" yaml:"error_rate_threshold"`
	WindowSize         int     `mapstructure:"window_size" yaml:"window_size"`
	AlertCooldownSec   int     `mapstructure:"alert_cooldown_sec" yaml:"alert_cooldown_sec"`
}

// SourceConfig defines the followed log file.
type SourceConfig struct {
	Path         string `mapstructure:"path" yaml:"path"`
	PollInterval string `mapstructure:"poll_interval" yaml:"poll_interval"`
	Pattern      string `mapstructure:"pattern" yaml:"pattern"`
}

// StorageConfig defines the alert journal database.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// StatusConfig defines the optional status HTTP server.
type StatusConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// legacyEnv maps config keys to the environment variable names used by
// existing deployments.
var legacyEnv = map[string]string{
	"alerts.slack.webhook_url":       "SLACK_WEBHOOK_URL",
	"detection.error_rate_threshold": "ERROR_RATE_THRESHOLD",
	"detection.window_size":          "WINDOW_SIZE",
	"detection.alert_cooldown_sec":   "ALERT_COOLDOWN_SEC",
	"source.path":                    "LOG_PATH",
	"maintenance_mode":               "MAINTENANCE_MODE",
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".watcher"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("alerts.slack.webhook_url", "")
	v.SetDefault("alerts.slack.channel", "")
	v.SetDefault("alerts.webhook.url", "")
	v.SetDefault("alerts.webhook.secret", "")
	v.SetDefault("detection.error_rate_threshold", 2.0)
	v.SetDefault("detection.window_size", 200)
	v.SetDefault("detection.alert_cooldown_sec", 300)
	v.SetDefault("source.path", "/var/log/nginx/access.log")
	v.SetDefault("source.poll_interval", "500ms")
	v.SetDefault("source.pattern", parser.DefaultPattern)
	v.SetDefault("maintenance_mode", false)
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.path", filepath.Join(home, ".watcher", "watcher.db"))
	v.SetDefault("status.listen", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "WATCHER_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.DecodeHookFuncType(lenientBool),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// lenientBool decodes strings strconv.ParseBool rejects as false, so
// MAINTENANCE_MODE=yes leaves maintenance off instead of failing startup.
func lenientBool(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(reflect.ValueOf(data).String()))
	if err != nil {
		return false, nil
	}
	return b, nil
}

// Validate checks that the configuration can drive the watcher.
func (c *Config) Validate() error {
	var errs []error
	if c.Detection.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("detection.window_size must be positive, got %d", c.Detection.WindowSize))
	}
	if c.Detection.AlertCooldownSec < 0 {
		errs = append(errs, fmt.Errorf("detection.alert_cooldown_sec must not be negative, got %d", c.Detection.AlertCooldownSec))
	}
	if c.Detection.ErrorRateThreshold < 0 {
		errs = append(errs, fmt.Errorf("detection.error_rate_threshold must not be negative, got %g", c.Detection.ErrorRateThreshold))
	}
	if c.Source.Path == "" {
		errs = append(errs, errors.New("source.path is required"))
	}
	if _, err := c.PollInterval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parser.New(c.Source.Pattern); err != nil {
		errs = append(errs, fmt.Errorf("source.pattern: %w", err))
	}
	return errors.Join(errs...)
}

// Cooldown returns the alert cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Detection.AlertCooldownSec) * time.Second
}

// PollInterval parses source.poll_interval.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Source.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("source.poll_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("source.poll_interval must be positive, got %s", d)
	}
	return d, nil
}

// Redacted returns a copy of the configuration with secrets masked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Alerts.Slack.WebhookURL != "" {
		out.Alerts.Slack.WebhookURL = redact(out.Alerts.Slack.WebhookURL)
	}
	if out.Alerts.Webhook.Secret != "" {
		out.Alerts.Webhook.Secret = "****"
	}
	return out
}

// redact keeps the scheme and host of a webhook URL.
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return "****"
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/****"
}
