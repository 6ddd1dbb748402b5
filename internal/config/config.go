// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     int
	DataFile string
	LogLevel slog.Level

	AdminUser     string
	AdminPassword string

	RateLimitRPS   float64
	RateLimitBurst int

	DatabaseURL  string
	KafkaBrokers []string
	KafkaTopic   string

	OTLPEndpoint string
	ServiceName  string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("data_file", "categories.json")
	v.SetDefault("log_level", "info")
	v.SetDefault("admin_user", "")
	v.SetDefault("admin_password", "")
	v.SetDefault("rate_limit_rps", 5)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("database_url", "")
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "category-events")
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("service_name", "categoryhub")
	v.SetDefault("http_read_timeout", "10s")
	v.SetDefault("http_write_timeout", "15s")
	v.SetDefault("shutdown_timeout", "10s")
}

// Load reads .env (if present), then the optional config file at path, with
// environment variables taking precedence over both file sources.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetInt("port"),
		DataFile:        v.GetString("data_file"),
		AdminUser:       v.GetString("admin_user"),
		AdminPassword:   v.GetString("admin_password"),
		RateLimitRPS:    v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:  v.GetInt("rate_limit_burst"),
		DatabaseURL:     v.GetString("database_url"),
		KafkaBrokers:    splitList(v.GetString("kafka_brokers")),
		KafkaTopic:      v.GetString("kafka_topic"),
		OTLPEndpoint:    v.GetString("otel_exporter_otlp_endpoint"),
		ServiceName:     v.GetString("service_name"),
		ReadTimeout:     v.GetDuration("http_read_timeout"),
		WriteTimeout:    v.GetDuration("http_write_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if strings.TrimSpace(c.DataFile) == "" {
		return errors.New("data file must not be empty")
	}
	if (c.AdminUser == "") != (c.AdminPassword == "") {
		return errors.New("admin user and admin password must be set together")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("kafka topic must be set when brokers are configured")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
