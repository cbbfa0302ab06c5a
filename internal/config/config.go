package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	API struct {
		RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
		RateLimitBurst     int `yaml:"rate_limit_burst"`
		CacheTTLSeconds    int `yaml:"cache_ttl_seconds"`
	} `yaml:"api"`

	Reminders struct {
		Enabled             bool   `yaml:"enabled"`
		SendTime            string `yaml:"send_time"` // "09:00"
		Timezone            string `yaml:"timezone"`  // IANA name
		RatePerMinute       int    `yaml:"rate_per_minute"`
		SentRetentionDays   int    `yaml:"sent_retention_days"`
		FailedRetentionDays int    `yaml:"failed_retention_days"`
	} `yaml:"reminders"`

	Email struct {
		Transport string `yaml:"transport"` // "smtp" or "resend"
		From      string `yaml:"from"`
		SMTP      struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"smtp"`
		Resend struct {
			APIKey string `yaml:"api_key"`
		} `yaml:"resend"`
	} `yaml:"email"`

	WhatsApp struct {
		BaseURL       string `yaml:"base_url"`
		APIVersion    string `yaml:"api_version"`
		PhoneNumberID string `yaml:"phone_number_id"`
		AccessToken   string `yaml:"access_token"`
	} `yaml:"whatsapp"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	Google struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURL  string `yaml:"redirect_url"`
	} `yaml:"google"`

	Secrets struct {
		Key string `yaml:"key"` // 64 hex chars
	} `yaml:"secrets"`

	Catalog struct {
		Path                  string `yaml:"path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"catalog"`

	Audit struct {
		Enabled         bool   `yaml:"enabled"`
		ExportDir       string `yaml:"export_dir"`
		RetentionMonths int    `yaml:"retention_months"`
	} `yaml:"audit"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/subwatch.db"
	}
	if cfg.Reminders.SendTime == "" {
		cfg.Reminders.SendTime = "09:00"
	}
	if cfg.Reminders.Timezone == "" {
		cfg.Reminders.Timezone = "UTC"
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "configs/catalog.yaml"
	}
	if cfg.Email.Transport == "" {
		cfg.Email.Transport = "smtp"
	}

	if _, err = time.Parse("15:04", cfg.Reminders.SendTime); err != nil {
		return nil, fmt.Errorf("reminders.send_time: expected HH:MM, got %q", cfg.Reminders.SendTime)
	}
	if _, err = time.LoadLocation(cfg.Reminders.Timezone); err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) APICacheTTL() time.Duration {
	if c.API.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.API.CacheTTLSeconds) * time.Second
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Catalog.ReloadIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Catalog.ReloadIntervalSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) SentReminderRetention() time.Duration {
	if c.Reminders.SentRetentionDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Reminders.SentRetentionDays) * 24 * time.Hour
}

func (c *Config) FailedReminderRetention() time.Duration {
	if c.Reminders.FailedRetentionDays <= 0 {
		return 3 * 24 * time.Hour
	}
	return time.Duration(c.Reminders.FailedRetentionDays) * 24 * time.Hour
}
