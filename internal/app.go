// Package internal provides the App struct that wires all components of
// taskboard together and initializes the CLI layer.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/valter-silva-au/taskboard/internal/cli"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/integration"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// App holds all service dependencies of taskboard.
type App struct {
	BasePath string
	Config   *models.Config

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Observability
	Logger   *logrus.Logger
	EventLog observability.EventLog

	// Storage layer
	KV    storage.KVStore
	Redis *redis.Client

	// Integration services
	API *integration.TaskAPI

	// Core services
	Session  core.SessionManager
	Store    core.TaskStore
	BoardSvc core.BoardService
	Bus      core.EventBus

	events  core.EventLogger
	closers []io.Closer
}

// NewApp creates and wires all components. basePath is the directory holding
// .taskboard.yaml, the session file and the logs.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.Load()
	if err != nil {
		return nil, err
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Observability ---
	var logOut io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := observability.OpenLogFile(app.resolvePath(cfg.Log.File))
		if err != nil {
			// Non-fatal: keep running without a diagnostic log.
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		} else {
			logOut = f
			app.closers = append(app.closers, f)
		}
	}
	app.Logger, err = observability.NewLogger(cfg.Log.Level, logOut)
	if err != nil {
		return nil, err
	}

	if cfg.EventsFile != "" {
		app.EventLog, err = observability.NewJSONLEventLog(app.resolvePath(cfg.EventsFile))
		if err != nil {
			// Non-fatal: disable the event log if it can't be created.
			app.Logger.WithError(err).Warn("event log disabled")
			app.EventLog = nil
		}
	}
	var evtAdapter core.EventLogger
	if app.EventLog != nil {
		evtAdapter = &eventLogAdapter{log: app.EventLog}
	}
	app.events = evtAdapter

	// --- Storage layer ---
	switch cfg.Session.Backend {
	case "redis":
		app.Redis = redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr, DB: cfg.Session.RedisDB})
		app.KV = storage.NewRedisKVStore(app.Redis)
		app.closers = append(app.closers, app.Redis)
	default:
		app.KV = storage.NewFileKVStore(basePath)
	}

	// --- Integration services ---
	// The token source reads the session lazily, so it can be wired before
	// the session manager exists.
	app.API = integration.NewTaskAPI(integration.TaskAPIConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Token:   app.sessionToken,
	})

	// --- Core services ---
	app.Session = core.NewSessionManager(app.KV, cfg.Session.Key, app.API, evtAdapter, app.Logger)
	app.Store = core.NewTaskStore()
	app.BoardSvc = core.NewBoardService(app.Store, app.API, app.Session, evtAdapter, app.Logger, core.BoardServiceOpts{
		ListOrder: cfg.Board.DefaultOrder,
	})
	app.Bus = core.NewEventBus()

	// --- Wire CLI package-level variables ---
	cli.Config = cfg
	cli.BoardSvc = app.BoardSvc
	cli.Session = app.Session
	cli.Bus = app.Bus
	cli.EventLog = app.EventLog
	cli.Logger = app.Logger
	if cfg.Push.Enabled {
		cli.StartPush = app.runPush
	}

	return app, nil
}

// runPush connects the push channel for the lifetime of ctx.
func (a *App) runPush(ctx context.Context) error {
	header := http.Header{}
	if token := a.sessionToken(ctx); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	pc := integration.NewPushChannel(integration.PushChannelConfig{
		URL:      a.Config.Push.URL,
		Greeting: a.Config.Push.Greeting,
		Header:   header,
	}, a.Bus, a.Logger.WithField("component", "push"))
	sub := a.recordPushEvents()
	defer sub.Unsubscribe()
	return pc.Run(ctx)
}

// recordPushEvents writes a push.received event for every message published
// on the bus.
func (a *App) recordPushEvents() core.Subscription {
	return a.Bus.Subscribe(core.AnyKind, func(msg models.PushMessage) {
		if a.events == nil {
			return
		}
		if err := a.events.LogEvent("push.received", map[string]any{"type": msg.Type}); err != nil {
			a.Logger.WithError(err).Warn("recording push event")
		}
	})
}

func (a *App) sessionToken(ctx context.Context) string {
	if a.Session == nil {
		return ""
	}
	user, err := a.Session.Current(ctx)
	if err != nil {
		return ""
	}
	return user.Token
}

func (a *App) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.BasePath, p)
}

// Close releases resources held by the App: the event log, the log file and
// the Redis client. It is safe to call on a partially wired App.
func (a *App) Close() error {
	var errs []error
	if a.EventLog != nil {
		errs = append(errs, a.EventLog.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// ResolveBasePath determines the taskboard data directory. It checks the
// TASKBOARD_HOME env var, then walks up from the current directory looking
// for .taskboard.yaml, and finally falls back to ~/.taskboard.
func ResolveBasePath() string {
	if home := os.Getenv("TASKBOARD_HOME"); home != "" {
		return home
	}
	if dir, err := os.Getwd(); err == nil {
		for {
			if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName+".yaml")); err == nil {
				return dir
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".taskboard")
	}
	return "."
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.Event{
		Level:   observability.LevelFor(eventType),
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}
