package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/i474232898/energy-consumption-aggregation/internal/consumption"
)

const envPrefix = "OCTOPUS"

type AppConfig struct {
	// Octopus account and meter.
	URL    string `mapstructure:"url" validate:"required,url"`
	APIKey string `mapstructure:"apikey" validate:"required"`
	MPAN   string `mapstructure:"mpan" validate:"required"`
	Serial string `mapstructure:"serial" validate:"required"`

	// CSVPath is the store file; defaults to octopus-<mpan>-<serial>.csv.
	CSVPath string `mapstructure:"csv"`

	Timezone string         `mapstructure:"timezone" validate:"required"`
	Location *time.Location `mapstructure:"-"`

	DayStart    string `mapstructure:"day_start" validate:"datetime=15:04"`
	AverageDays []int  `mapstructure:"average_days" validate:"min=1,unique,dive,min=1"`

	PageSpanDays int           `mapstructure:"page_span_days" validate:"min=1,max=365"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`

	// SyncInterval controls how often a sync is triggered; 0 disables it.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	Port     string `mapstructure:"port" validate:"required,numeric"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

var defaults = map[string]any{
	"url":            "https://api.octopus.energy",
	"apikey":         "",
	"mpan":           "",
	"serial":         "",
	"csv":            "",
	"timezone":       "Local",
	"day_start":      "00:00",
	"average_days":   consumption.DefaultWindows,
	"page_span_days": 90,
	"page_timeout":   "30s",
	"http_timeout":   "60s",
	"sync_interval":  "6h",
	"port":           "8080",
	"log_level":      "info",
}

// Load reads configuration from config.json (searched in paths, default the
// working directory), a .env file and OCTOPUS_* environment variables.
// Environment wins over the file, the file over defaults.
func Load(paths ...string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("config: no .env file loaded", slog.Any("error", err))
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, def := range defaults {
		v.SetDefault(key, def)
		if key == "port" {
			continue
		}
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("%w: bind %s: %v", consumption.ErrConfiguration, key, err)
		}
	}
	// PORT is honoured for container platforms that inject it.
	if err := v.BindEnv("port", envPrefix+"_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("%w: bind port: %v", consumption.ErrConfiguration, err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config file: %v", consumption.ErrConfiguration, err)
		}
		slog.Info("config: no config.json found; using defaults and environment")
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", consumption.ErrConfiguration, err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish validates the config and fills in derived fields.
func (c *AppConfig) finish() error {
	c.URL = strings.TrimRight(c.URL, "/")

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", consumption.ErrConfiguration, err)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("%w: invalid timezone %q: %v", consumption.ErrConfiguration, c.Timezone, err)
	}
	c.Location = loc

	if c.CSVPath == "" {
		c.CSVPath = strings.Join([]string{"octopus", c.MPAN, c.Serial}, "-") + ".csv"
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
