package models

import "time"

// APIConfig holds the remote task API settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PushConfig holds the push channel settings.
type PushConfig struct {
	URL      string `yaml:"url" mapstructure:"url"`
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Greeting string `yaml:"greeting,omitempty" mapstructure:"greeting"`
}

// SessionConfig selects where the session record lives.
type SessionConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"` // file or redis
	Key       string `yaml:"key" mapstructure:"key"`
	RedisAddr string `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisDB   int    `yaml:"redis_db,omitempty" mapstructure:"redis_db"`
}

// BoardConfig holds board view defaults.
type BoardConfig struct {
	DefaultOrder SortOrder `yaml:"default_order" mapstructure:"default_order"`
}

// LogConfig controls the diagnostic logger.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

// Config holds all settings read from .taskboard.yaml via Viper.
type Config struct {
	API        APIConfig     `yaml:"api" mapstructure:"api"`
	Push       PushConfig    `yaml:"push" mapstructure:"push"`
	Session    SessionConfig `yaml:"session" mapstructure:"session"`
	Board      BoardConfig   `yaml:"board" mapstructure:"board"`
	Log        LogConfig     `yaml:"log" mapstructure:"log"`
	EventsFile string        `yaml:"events_file" mapstructure:"events_file"`
}
