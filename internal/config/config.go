// Package config provides configuration loading for taskd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the taskd daemon.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Log         LogConfig         `koanf:"log"`
	Monitor     MonitorConfig     `koanf:"monitor"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Alerting    AlertingConfig    `koanf:"alerting"`
	// Tagged "mailer" rather than "mail": login shells commonly export
	// MAIL, which would otherwise collide with this section.
	Mail MailConfig `koanf:"mailer"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// IssueRate and IssueBurst bound credential issuance per remote IP.
	IssueRate  float64 `koanf:"issue_rate"`
	IssueBurst int     `koanf:"issue_burst"`

	// MetricsPrincipals are pattern strings (path.Match syntax) naming the
	// principals allowed to read and reset the monitoring snapshot.
	MetricsPrincipals []string `koanf:"metrics_principals"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MonitorConfig holds health-monitor thresholds and windows.
type MonitorConfig struct {
	ErrorRateThreshold float64  `koanf:"error_rate_threshold"`
	ErrorRateWindow    Duration `koanf:"error_rate_window"`
	AuthSpikeThreshold float64  `koanf:"auth_spike_threshold"`
	AlertCooldown      Duration `koanf:"alert_cooldown"`
	EvaluateInterval   Duration `koanf:"evaluate_interval"`
	HistorySize        int      `koanf:"history_size"`
}

// CredentialsConfig holds credential-manager settings.
type CredentialsConfig struct {
	DefaultLifetime Duration `koanf:"default_lifetime"`
}

// AlertingConfig holds external notification channel settings.
// A channel with no configuration is disabled, not an error.
type AlertingConfig struct {
	ServiceName         string   `koanf:"service_name"`
	PagerDutyRoutingKey Secret   `koanf:"pagerduty_routing_key"`
	SlackWebhookURL     Secret   `koanf:"slack_webhook_url"`
	DeliveryTimeout     Duration `koanf:"delivery_timeout"`
}

// MailConfig holds settings for the mail-sending collaborator.
type MailConfig struct {
	From     string `koanf:"from"`
	SMTPHost string `koanf:"smtp_host"`
	SMTPPort int    `koanf:"smtp_port"`
	SMTPPass Secret `koanf:"smtp_pass"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.IssueRate == 0 {
		cfg.Server.IssueRate = 1
	}
	if cfg.Server.IssueBurst == 0 {
		cfg.Server.IssueBurst = 5
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Monitor.ErrorRateThreshold == 0 {
		cfg.Monitor.ErrorRateThreshold = 0.005
	}
	if cfg.Monitor.ErrorRateWindow == 0 {
		cfg.Monitor.ErrorRateWindow = Duration(5 * time.Minute)
	}
	if cfg.Monitor.AuthSpikeThreshold == 0 {
		cfg.Monitor.AuthSpikeThreshold = 0.10
	}
	if cfg.Monitor.AlertCooldown == 0 {
		cfg.Monitor.AlertCooldown = Duration(15 * time.Minute)
	}
	if cfg.Monitor.EvaluateInterval == 0 {
		cfg.Monitor.EvaluateInterval = Duration(time.Minute)
	}
	if cfg.Monitor.HistorySize == 0 {
		cfg.Monitor.HistorySize = 10
	}

	if cfg.Credentials.DefaultLifetime == 0 {
		cfg.Credentials.DefaultLifetime = Duration(24 * time.Hour)
	}

	if cfg.Alerting.ServiceName == "" {
		cfg.Alerting.ServiceName = "taskd"
	}
	if cfg.Alerting.DeliveryTimeout == 0 {
		cfg.Alerting.DeliveryTimeout = Duration(10 * time.Second)
	}

	if cfg.Mail.From == "" {
		cfg.Mail.From = "taskd@localhost"
	}
	if cfg.Mail.SMTPPort == 0 {
		cfg.Mail.SMTPPort = 587
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.IssueRate <= 0 {
		return fmt.Errorf("server issue_rate must be > 0, got %v", c.Server.IssueRate)
	}
	if c.Server.IssueBurst < 1 {
		return fmt.Errorf("server issue_burst must be >= 1, got %d", c.Server.IssueBurst)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got %q", c.Log.Format)
	}
	if c.Monitor.ErrorRateThreshold <= 0 || c.Monitor.ErrorRateThreshold >= 1 {
		return fmt.Errorf("monitor error_rate_threshold must be in (0, 1), got %v", c.Monitor.ErrorRateThreshold)
	}
	if c.Monitor.ErrorRateWindow.Duration() <= 0 {
		return fmt.Errorf("monitor error_rate_window must be > 0")
	}
	if c.Monitor.AuthSpikeThreshold <= 0 {
		return fmt.Errorf("monitor auth_spike_threshold must be > 0, got %v", c.Monitor.AuthSpikeThreshold)
	}
	if c.Monitor.AlertCooldown.Duration() <= 0 {
		return fmt.Errorf("monitor alert_cooldown must be > 0")
	}
	if c.Monitor.EvaluateInterval.Duration() <= 0 {
		return fmt.Errorf("monitor evaluate_interval must be > 0")
	}
	if c.Monitor.HistorySize < 1 {
		return fmt.Errorf("monitor history_size must be >= 1, got %d", c.Monitor.HistorySize)
	}
	if c.Credentials.DefaultLifetime.Duration() <= 0 {
		return fmt.Errorf("credentials default_lifetime must be > 0")
	}
	if c.Alerting.DeliveryTimeout.Duration() <= 0 {
		return fmt.Errorf("alerting delivery_timeout must be > 0")
	}
	return nil
}
