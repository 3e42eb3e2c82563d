package matchbot

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log     LogConfig     `toml:"log"`
	DB      DBConfig      `toml:"db"`
	Trading TradingConfig `toml:"trading"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type TradingConfig struct {
	RetentionDays    int `toml:"retention_days"`
	SweepIntervalMin int `toml:"sweep_interval_minutes"`
	SweepConcurrency int `toml:"sweep_concurrency"`
}

// Retention is the age past which an open trade is force-cancelled.
func (c TradingConfig) Retention() time.Duration {
	days := c.RetentionDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// SweepInterval is how often the expiry sweeper wakes up.
func (c TradingConfig) SweepInterval() time.Duration {
	if c.SweepIntervalMin <= 0 {
		return time.Hour
	}
	return time.Duration(c.SweepIntervalMin) * time.Minute
}
