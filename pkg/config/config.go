package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Engine EngineConfig `yaml:"engine"`
	Notify NotifyConfig `yaml:"notify"`
	Logger LoggerConfig `yaml:"logger"`
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for client authentication (optional, if empty, auth is disabled)
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN returns the MySQL connection string. clientFoundRows makes the driver
// report matched rows instead of changed rows in RowsAffected; the admission
// compare-and-set reads RowsAffected as "the WHERE guard held", which breaks
// for zero-delta debits without it.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EngineConfig tick engine configuration
type EngineConfig struct {
	TickInterval     int `yaml:"tick_interval"`      // Sweep interval (seconds)
	SweepBatchSize   int `yaml:"sweep_batch_size"`   // Max records advanced per sweep
	ArchiveAfterDays int `yaml:"archive_after_days"` // Age before terminal rows leave the hot set
}

// TickIntervalDuration returns the sweep interval, defaulting to one second.
func (c EngineConfig) TickIntervalDuration() time.Duration {
	if c.TickInterval <= 0 {
		return time.Second
	}
	return time.Duration(c.TickInterval) * time.Second
}

// ArchiveRetention returns how long terminal rows stay in the hot table.
func (c EngineConfig) ArchiveRetention() time.Duration {
	days := c.ArchiveAfterDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// NotifyConfig webhook notification configuration
type NotifyConfig struct {
	Concurrency int `yaml:"concurrency"` // delivery worker concurrency
	MaxRetry    int `yaml:"max_retry"`   // maximum delivery retries
	TimeoutSecs int `yaml:"timeout"`     // per-delivery timeout (seconds)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	GlobalConfig = &cfg
	return nil
}
