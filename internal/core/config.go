// Package core contains the board logic for taskboard: the task store, board
// projection, drag-and-drop status resolution, form validation, the session
// record, the push event bus, and configuration.
package core

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// ConfigFileName is the config file looked up in the base directory.
const ConfigFileName = ".taskboard"

// ConfigurationManager loads and validates the taskboard configuration.
type ConfigurationManager interface {
	Load() (*models.Config, error)
	ValidateConfig(cfg *models.Config) error
}

// viperConfigManager implements ConfigurationManager using Viper for reading
// the YAML configuration file and TASKBOARD_* environment overrides.
type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .taskboard.yaml from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a Config populated with the defaults of a local
// development backend.
func DefaultConfig() *models.Config {
	return &models.Config{
		API: models.APIConfig{
			BaseURL: "http://localhost:5245",
		},
		Push: models.PushConfig{
			URL:      "ws://localhost:5245/ws",
			Enabled:  true,
			Greeting: "Hello from the client!",
		},
		Session: models.SessionConfig{
			Backend: "file",
			Key:     models.SessionKey,
		},
		Board: models.BoardConfig{
			DefaultOrder: models.SortAsc,
		},
		Log: models.LogConfig{
			Level: "info",
			File:  "taskboard.log",
		},
		EventsFile: ".taskboard_events.jsonl",
	}
}

// Load reads .taskboard.yaml from the base path. A missing file yields the
// defaults; environment variables override file values.
func (cm *viperConfigManager) Load() (*models.Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("TASKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("push.url", cfg.Push.URL)
	v.SetDefault("push.enabled", cfg.Push.Enabled)
	v.SetDefault("push.greeting", cfg.Push.Greeting)
	v.SetDefault("session.backend", cfg.Session.Backend)
	v.SetDefault("session.key", cfg.Session.Key)
	v.SetDefault("session.redis_addr", cfg.Session.RedisAddr)
	v.SetDefault("session.redis_db", cfg.Session.RedisDB)
	v.SetDefault("board.default_order", string(cfg.Board.DefaultOrder))
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("events.file", cfg.EventsFile)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s.yaml: %w", ConfigFileName, err)
		}
	}

	cfg.API.BaseURL = strings.TrimRight(v.GetString("api.base_url"), "/")
	cfg.API.Timeout = v.GetDuration("api.timeout")
	cfg.Push.URL = v.GetString("push.url")
	cfg.Push.Enabled = v.GetBool("push.enabled")
	cfg.Push.Greeting = v.GetString("push.greeting")
	cfg.Session.Backend = strings.ToLower(v.GetString("session.backend"))
	cfg.Session.Key = v.GetString("session.key")
	cfg.Session.RedisAddr = v.GetString("session.redis_addr")
	cfg.Session.RedisDB = v.GetInt("session.redis_db")
	cfg.Board.DefaultOrder = models.SortOrder(strings.ToLower(v.GetString("board.default_order")))
	cfg.Log.Level = strings.ToLower(v.GetString("log.level"))
	cfg.Log.File = v.GetString("log.file")
	cfg.EventsFile = v.GetString("events.file")

	return cfg, nil
}

var validSessionBackends = map[string]bool{
	"file":  true,
	"redis": true,
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks the configuration for invalid values and returns a
// single error listing every problem found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if err := checkURL(cfg.API.BaseURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Sprintf("api.base_url %q is invalid: %v", cfg.API.BaseURL, err))
	}
	if cfg.API.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("api.timeout must be non-negative, got %s", cfg.API.Timeout))
	}
	if cfg.Push.Enabled {
		if err := checkURL(cfg.Push.URL, "ws", "wss"); err != nil {
			errs = append(errs, fmt.Sprintf("push.url %q is invalid: %v", cfg.Push.URL, err))
		}
	}
	if !validSessionBackends[cfg.Session.Backend] {
		errs = append(errs, fmt.Sprintf("session.backend %q is invalid, must be one of: file, redis", cfg.Session.Backend))
	}
	if cfg.Session.Key == "" {
		errs = append(errs, "session.key must not be empty")
	}
	if cfg.Session.Backend == "redis" && cfg.Session.RedisAddr == "" {
		errs = append(errs, "session.redis_addr is required when session.backend is redis")
	}
	if !cfg.Board.DefaultOrder.Valid() {
		errs = append(errs, fmt.Sprintf("board.default_order %q is invalid, must be asc or desc", cfg.Board.DefaultOrder))
	}
	if !validLogLevels[cfg.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: trace, debug, info, warn, error", cfg.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if u.Host == "" {
				return fmt.Errorf("missing host")
			}
			return nil
		}
	}
	return fmt.Errorf("scheme must be one of %s", strings.Join(schemes, ", "))
}
