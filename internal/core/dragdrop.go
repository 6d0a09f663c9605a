package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// DragEnd is the signal produced when a dragged card is released. TargetID is
// empty when the card was dropped outside any column.
type DragEnd struct {
	ItemID   string
	TargetID string
}

// DropOutcome describes what a drag-end did.
type DropOutcome int

const (
	// DropIgnored means there was no valid target or no such task.
	DropIgnored DropOutcome = iota
	// DropUnchanged means the card was dropped on its own column.
	DropUnchanged
	// DropMoved means the server confirmed the new status.
	DropMoved
	// DropSuperseded means a later request for the same task was confirmed
	// before this one, so its response was discarded.
	DropSuperseded
	// DropFailed means the update request failed; the store is unchanged.
	DropFailed
)

func (o DropOutcome) String() string {
	switch o {
	case DropIgnored:
		return "ignored"
	case DropUnchanged:
		return "unchanged"
	case DropMoved:
		return "moved"
	case DropSuperseded:
		return "superseded"
	case DropFailed:
		return "failed"
	default:
		return fmt.Sprintf("DropOutcome(%d)", int(o))
	}
}

// DropResult reports the outcome of a drag-end.
type DropResult struct {
	Outcome DropOutcome
	From    models.Status
	To      models.Status
	// Task is the server-confirmed task for DropMoved, otherwise the task as
	// it was in the store (zero when the item was unknown).
	Task models.Task
}

// requestSequencer numbers update requests per task so that a slow response
// cannot overwrite the result of a request issued after it.
type requestSequencer struct {
	mu      sync.Mutex
	last    map[string]uint64
	applied map[string]uint64
}

func newRequestSequencer() *requestSequencer {
	return &requestSequencer{
		last:    make(map[string]uint64),
		applied: make(map[string]uint64),
	}
}

// next issues a new sequence number for id.
func (s *requestSequencer) next(id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[id]++
	return s.last[id]
}

// settle runs apply for a confirmed response unless a response to a later
// request for id has already been applied. Failed requests never settle, so
// they do not block an earlier success.
func (s *requestSequencer) settle(id string, seq uint64, apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.applied[id] {
		return false
	}
	s.applied[id] = seq
	apply()
	return true
}

func (s *requestSequencer) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, id)
	delete(s.applied, id)
}

// StatusResolver turns drag-end events into persisted status changes.
//
// The store only changes after the server confirms the update, so a failed
// request leaves nothing to roll back.
type StatusResolver struct {
	store     TaskStore
	gateway   TaskGateway
	requestor RequestorProvider
	events    EventLogger
	log       logrus.FieldLogger
	seq       *requestSequencer
}

// NewStatusResolver creates a StatusResolver. events and log may be nil.
func NewStatusResolver(store TaskStore, gateway TaskGateway, requestor RequestorProvider, events EventLogger, log logrus.FieldLogger) *StatusResolver {
	return newStatusResolver(store, gateway, requestor, events, log, newRequestSequencer())
}

func newStatusResolver(store TaskStore, gateway TaskGateway, requestor RequestorProvider, events EventLogger, log logrus.FieldLogger, seq *requestSequencer) *StatusResolver {
	if log == nil {
		log = discardLogger()
	}
	return &StatusResolver{
		store:     store,
		gateway:   gateway,
		requestor: requestor,
		events:    events,
		log:       log,
		seq:       seq,
	}
}

// ResolveTarget maps a drop-target id to a status. Only the three column
// keys resolve.
func ResolveTarget(targetID string) (models.Status, bool) {
	if targetID == "" {
		return 0, false
	}
	return models.ParseStatusKey(targetID)
}

// HandleDragEnd applies a drag-end. Drops without a valid target, of unknown
// tasks, or onto the task's current column issue no request. Otherwise
// exactly one update carrying the full task payload is sent and, on success,
// the server's task replaces the stored one.
func (r *StatusResolver) HandleDragEnd(ctx context.Context, ev DragEnd) (DropResult, error) {
	to, ok := ResolveTarget(ev.TargetID)
	if !ok {
		return DropResult{Outcome: DropIgnored}, nil
	}

	task, ok := r.store.Get(ev.ItemID)
	if !ok {
		return DropResult{Outcome: DropIgnored}, nil
	}

	result := DropResult{From: task.Status, To: to, Task: task}
	if task.Status == to {
		result.Outcome = DropUnchanged
		return result, nil
	}

	requestor, err := r.requestor.RequestorID(ctx)
	if err != nil {
		result.Outcome = DropFailed
		return result, fmt.Errorf("moving task %s: %w", task.ID, err)
	}

	moved := task
	moved.Status = to
	seq := r.seq.next(task.ID)

	fields := logrus.Fields{"task_id": task.ID, "from": task.Status.Key(), "to": to.Key()}
	updated, err := r.gateway.UpdateTask(ctx, requestor, task.ID, moved.Payload())
	if err != nil {
		r.log.WithFields(fields).WithError(err).Error("task move failed")
		logEvent(r.events, "task.move_failed", map[string]any{
			"task_id": task.ID,
			"from":    task.Status.Key(),
			"to":      to.Key(),
			"error":   err.Error(),
		})
		result.Outcome = DropFailed
		return result, fmt.Errorf("moving task %s to %s: %w", task.ID, to.Key(), err)
	}

	if updated.ID == "" {
		updated.ID = task.ID
	}
	if !r.seq.settle(task.ID, seq, func() { r.store.Upsert(updated) }) {
		r.log.WithFields(fields).Warn("discarding superseded move response")
		result.Outcome = DropSuperseded
		return result, nil
	}

	r.log.WithFields(fields).Info("task moved")
	logEvent(r.events, "task.moved", map[string]any{
		"task_id": task.ID,
		"from":    task.Status.Key(),
		"to":      updated.Status.Key(),
	})

	result.Outcome = DropMoved
	result.Task = updated
	return result, nil
}
