package core

import (
	"context"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// TaskGateway performs task CRUD against the remote task API. It is defined
// here so core does not import the integration package.
type TaskGateway interface {
	ListTasks(ctx context.Context, requestorID string, order models.SortOrder, status string) ([]models.Task, error)
	CreateTask(ctx context.Context, requestorID string, payload models.TaskPayload) (models.Task, error)
	UpdateTask(ctx context.Context, requestorID, taskID string, payload models.TaskPayload) (models.Task, error)
	DeleteTask(ctx context.Context, requestorID, taskID string) error
}

// AuthGateway performs the login and change-role calls.
type AuthGateway interface {
	Login(ctx context.Context, creds models.Credentials) (models.User, error)
	ChangeRole(ctx context.Context, requestorID string) (models.User, error)
}

// KVStore is a key-value string store holding the session record.
// Implementations live in the storage package.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// RequestorProvider yields the identity sent with every gateway call.
type RequestorProvider interface {
	RequestorID(ctx context.Context) (string, error)
}

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

func logEvent(l EventLogger, eventType string, data map[string]any) {
	if l == nil {
		return
	}
	_ = l.LogEvent(eventType, data) // Non-fatal: the event log is best effort.
}
