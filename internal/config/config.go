// Package config loads navigator settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/phillip-england/navigator/internal/middleware"
)

type Config struct {
	APIAddr        string        `mapstructure:"api_addr"`
	ClientAddr     string        `mapstructure:"client_addr"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	DBDSN          string        `mapstructure:"db_dsn"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	PDFTemplate    string        `mapstructure:"pdf_template"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	RedisURL       string        `mapstructure:"redis_url"`
	TrustedProxies string        `mapstructure:"trusted_proxies"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

func Default() Config {
	return Config{
		APIAddr:        ":8080",
		ClientAddr:     ":3000",
		APIBaseURL:     "http://localhost:8080",
		DBDSN:          "navigator.db",
		LogLevel:       "INFO",
		LogFormat:      "json",
		RateLimitRPS:   10,
		RateLimitBurst: 20,
		TrustedProxies: "127.0.0.1,::1",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   30 * time.Second,
	}
}

// Keys lists every setting. Environment variables use the upper-case form.
func Keys() []string {
	return []string{
		"api_addr", "client_addr", "api_base_url", "db_dsn", "log_level", "log_format",
		"pdf_template", "rate_limit_rps", "rate_limit_burst", "redis_url", "trusted_proxies",
		"read_timeout", "write_timeout",
	}
}

func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("api_addr", d.APIAddr)
	v.SetDefault("client_addr", d.ClientAddr)
	v.SetDefault("api_base_url", d.APIBaseURL)
	v.SetDefault("db_dsn", d.DBDSN)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("pdf_template", d.PDFTemplate)
	v.SetDefault("rate_limit_rps", d.RateLimitRPS)
	v.SetDefault("rate_limit_burst", d.RateLimitBurst)
	v.SetDefault("redis_url", d.RedisURL)
	v.SetDefault("trusted_proxies", d.TrustedProxies)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
}

// Load reads envFile when it exists, then lets the environment override it.
func Load(v *viper.Viper, envFile string) (Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range Keys() {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIAddr) == "" {
		errs = append(errs, errors.New("api_addr is required"))
	}
	if strings.TrimSpace(c.ClientAddr) == "" {
		errs = append(errs, errors.New("client_addr is required"))
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api_base_url %q must be an http(s) URL", c.APIBaseURL))
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		errs = append(errs, errors.New("db_dsn is required"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be json or text", c.LogFormat))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate_limit_rps cannot be negative"))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, errors.New("rate_limit_burst must be at least 1"))
	}
	if _, err := middleware.ParseTrustedProxies(c.TrustedProxyList()); err != nil {
		errs = append(errs, fmt.Errorf("trusted_proxies: %w", err))
	}
	return errors.Join(errs...)
}

// TrustedProxyList splits the comma separated trusted_proxies setting.
func (c Config) TrustedProxyList() []string {
	var out []string
	for _, entry := range strings.Split(c.TrustedProxies, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// EnvValues renders the config as .env entries.
func (c Config) EnvValues() map[string]string {
	return map[string]string{
		"API_ADDR":         c.APIAddr,
		"CLIENT_ADDR":      c.ClientAddr,
		"API_BASE_URL":     c.APIBaseURL,
		"DB_DSN":           c.DBDSN,
		"LOG_LEVEL":        c.LogLevel,
		"LOG_FORMAT":       c.LogFormat,
		"PDF_TEMPLATE":     c.PDFTemplate,
		"RATE_LIMIT_RPS":   fmt.Sprintf("%g", c.RateLimitRPS),
		"RATE_LIMIT_BURST": fmt.Sprintf("%d", c.RateLimitBurst),
		"REDIS_URL":        c.RedisURL,
		"TRUSTED_PROXIES":  c.TrustedProxies,
		"READ_TIMEOUT":     c.ReadTimeout.String(),
		"WRITE_TIMEOUT":    c.WriteTimeout.String(),
	}
}
