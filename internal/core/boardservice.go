package core

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// BoardService keeps the task store in step with the remote task API. Every
// store mutation follows a confirmed gateway response.
type BoardService interface {
	// Refresh rebuilds the store from the server listing.
	Refresh(ctx context.Context) error
	Create(ctx context.Context, form TaskForm) (models.Task, error)
	Edit(ctx context.Context, taskID string, form TaskForm) (models.Task, error)
	// Delete removes a task remotely and locally. Unknown ids are a no-op.
	Delete(ctx context.Context, taskID string) error
	// Move handles a drag-end of itemID onto the column targetID.
	Move(ctx context.Context, itemID, targetID string) (DropResult, error)
	// Board projects the current store.
	Board(q BoardQuery) Board
	Store() TaskStore
}

// BoardServiceOpts configures the server-side listing parameters.
type BoardServiceOpts struct {
	// ListOrder is passed as the order parameter when listing (default asc).
	ListOrder models.SortOrder
	// ListStatus is passed as the status filter when listing (default all).
	ListStatus string
}

type boardService struct {
	store     TaskStore
	gateway   TaskGateway
	requestor RequestorProvider
	events    EventLogger
	log       logrus.FieldLogger
	seq       *requestSequencer
	resolver  *StatusResolver
	opts      BoardServiceOpts
}

// NewBoardService creates a BoardService over store. events and log may be nil.
func NewBoardService(store TaskStore, gateway TaskGateway, requestor RequestorProvider, events EventLogger, log logrus.FieldLogger, opts BoardServiceOpts) BoardService {
	if log == nil {
		log = discardLogger()
	}
	if !opts.ListOrder.Valid() {
		opts.ListOrder = models.SortAsc
	}
	seq := newRequestSequencer()
	return &boardService{
		store:     store,
		gateway:   gateway,
		requestor: requestor,
		events:    events,
		log:       log,
		seq:       seq,
		resolver:  newStatusResolver(store, gateway, requestor, events, log, seq),
		opts:      opts,
	}
}

func (s *boardService) Store() TaskStore { return s.store }

func (s *boardService) Board(q BoardQuery) Board {
	return Project(s.store.Snapshot(), q)
}

func (s *boardService) Refresh(ctx context.Context) error {
	requestor, err := s.requestor.RequestorID(ctx)
	if err != nil {
		return fmt.Errorf("refreshing board: %w", err)
	}

	tasks, err := s.gateway.ListTasks(ctx, requestor, s.opts.ListOrder, s.opts.ListStatus)
	if err != nil {
		s.log.WithError(err).Error("fetching tasks failed")
		return fmt.Errorf("refreshing board: %w", err)
	}

	s.store.Load(tasks)
	s.log.WithField("count", len(tasks)).Debug("board refreshed")
	return nil
}

func (s *boardService) Create(ctx context.Context, form TaskForm) (models.Task, error) {
	payload, err := form.Validate()
	if err != nil {
		return models.Task{}, err
	}
	requestor, err := s.requestor.RequestorID(ctx)
	if err != nil {
		return models.Task{}, fmt.Errorf("creating task: %w", err)
	}

	task, err := s.gateway.CreateTask(ctx, requestor, payload)
	if err != nil {
		s.log.WithField("title", payload.Title).WithError(err).Error("creating task failed")
		return models.Task{}, fmt.Errorf("creating task: %w", err)
	}
	if task.ID == "" {
		return models.Task{}, fmt.Errorf("creating task: server returned a task without id")
	}

	s.store.Upsert(task)
	logEvent(s.events, "task.created", map[string]any{"task_id": task.ID, "status": task.Status.Key()})
	return task, nil
}

func (s *boardService) Edit(ctx context.Context, taskID string, form TaskForm) (models.Task, error) {
	payload, err := form.Validate()
	if err != nil {
		return models.Task{}, err
	}
	requestor, err := s.requestor.RequestorID(ctx)
	if err != nil {
		return models.Task{}, fmt.Errorf("updating task %s: %w", taskID, err)
	}

	seq := s.seq.next(taskID)
	task, err := s.gateway.UpdateTask(ctx, requestor, taskID, payload)
	if err != nil {
		s.log.WithField("task_id", taskID).WithError(err).Error("updating task failed")
		return models.Task{}, fmt.Errorf("updating task %s: %w", taskID, err)
	}
	if task.ID == "" {
		task.ID = taskID
	}
	if !s.seq.settle(taskID, seq, func() { s.store.Upsert(task) }) {
		s.log.WithField("task_id", taskID).Warn("discarding superseded update response")
		return task, nil
	}

	logEvent(s.events, "task.updated", map[string]any{"task_id": task.ID, "status": task.Status.Key()})
	return task, nil
}

func (s *boardService) Delete(ctx context.Context, taskID string) error {
	if _, ok := s.store.Get(taskID); !ok {
		return nil
	}
	requestor, err := s.requestor.RequestorID(ctx)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", taskID, err)
	}

	if err := s.gateway.DeleteTask(ctx, requestor, taskID); err != nil {
		s.log.WithField("task_id", taskID).WithError(err).Error("deleting task failed")
		return fmt.Errorf("deleting task %s: %w", taskID, err)
	}

	s.store.Remove(taskID)
	s.seq.forget(taskID)
	logEvent(s.events, "task.deleted", map[string]any{"task_id": taskID})
	return nil
}

func (s *boardService) Move(ctx context.Context, itemID, targetID string) (DropResult, error) {
	return s.resolver.HandleDragEnd(ctx, DragEnd{ItemID: itemID, TargetID: targetID})
}
