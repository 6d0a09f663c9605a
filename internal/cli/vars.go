package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	Config   *models.Config
	BoardSvc core.BoardService
	Session  core.SessionManager
	Bus      core.EventBus
	EventLog observability.EventLog
	Logger   logrus.FieldLogger

	// StartPush runs the push channel until its context ends. Nil when the
	// push channel is disabled.
	StartPush PushRunner
)
