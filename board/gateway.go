package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Store is the persistence surface the gateway mutates: the task store, the
// activity recorder and the user directory. GetTask returns (nil, nil) when
// the id is unknown.
type Store interface {
	FetchBoard(ctx context.Context) (domain.BoardState, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	EnsureUser(ctx context.Context, u domain.User) error
	AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error
	ListActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error)
}

// Broadcaster receives the post-mutation board snapshot and the new activity
// entry. Delivery is best effort; a failed broadcast never rolls back the
// mutation.
type Broadcaster interface {
	Publish(ctx context.Context, board domain.BoardState, entry domain.ActivityLogEntry)
}

// Gateway validates and applies task mutations. Every mutation path funnels
// through here: the conflict gate runs before any write, the activity entry
// is appended with the write as one unit, and the broadcaster fires exactly
// once per successful mutation.
type Gateway struct {
	store  Store
	bcast  Broadcaster
	logger *log.Logger
}

// NewGateway creates a Gateway. The broadcaster may be nil, in which case
// mutations are applied without notifying subscribers.
func NewGateway(store Store, bcast Broadcaster, logger *log.Logger) *Gateway {
	if store == nil {
		panic("board: store is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gateway{store: store, bcast: bcast, logger: logger}
}

// CreateFields carries the request to create a task. Status and Priority
// default to Todo and Medium when empty.
type CreateFields struct {
	Title       string
	Description string
	Priority    domain.Priority
	Status      domain.Status
}

// UpdateFields carries a partial update; nil fields are left unchanged.
type UpdateFields struct {
	Title        *string
	Description  *string
	Priority     *domain.Priority
	Status       *domain.Status
	AssignedUser *domain.User
}

// CreateTask validates and persists a new task attributed to actor.
func (g *Gateway) CreateTask(ctx context.Context, actor domain.User, fields CreateFields) (domain.Task, error) {
	title := strings.TrimSpace(fields.Title)
	if title == "" {
		return domain.Task{}, &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	status := fields.Status
	if status == "" {
		status = domain.StatusTodo
	}
	if !status.Valid() {
		return domain.Task{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", fields.Status)}
	}
	priority := fields.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Task{}, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", fields.Priority)}
	}

	if err := g.store.EnsureUser(ctx, actor); err != nil {
		return domain.Task{}, fmt.Errorf("ensure user: %w", err)
	}

	now := nextStamp()
	task := domain.Task{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  fields.Description,
		Priority:     priority,
		Status:       status,
		CreatedAt:    now,
		LastModified: now,
	}
	if err := g.store.InsertTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := g.finish(ctx, actor, "created task "+title); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// UpdateTask applies a partial update to the task with the given id. The
// conflict gate runs against lastFetched before anything is written.
func (g *Gateway) UpdateTask(ctx context.Context, actor domain.User, id string, fields UpdateFields, lastFetched *time.Time) (domain.Task, error) {
	current, err := g.store.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	if current == nil {
		return domain.Task{}, ErrNotFound
	}
	if err := CheckConflict(lastFetched, current.LastModified); err != nil {
		return domain.Task{}, err
	}

	task := *current
	statusChanged := false
	if fields.Title != nil {
		title := strings.TrimSpace(*fields.Title)
		if title == "" {
			return domain.Task{}, &ValidationError{Field: "title", Reason: "must not be empty"}
		}
		task.Title = title
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.Priority != nil {
		if !fields.Priority.Valid() {
			return domain.Task{}, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *fields.Priority)}
		}
		task.Priority = *fields.Priority
	}
	if fields.Status != nil {
		if !fields.Status.Valid() {
			return domain.Task{}, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *fields.Status)}
		}
		statusChanged = *fields.Status != task.Status
		task.Status = *fields.Status
	}
	if fields.AssignedUser != nil {
		task.AssignedUser = fields.AssignedUser
	}

	if err := g.store.EnsureUser(ctx, actor); err != nil {
		return domain.Task{}, fmt.Errorf("ensure user: %w", err)
	}

	task.LastModified = nextStamp()
	if err := g.store.UpdateTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}

	action := "updated " + task.Title
	if statusChanged {
		action = fmt.Sprintf("moved %s to %s", task.Title, task.Status)
	}
	if err := g.finish(ctx, actor, action); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// DeleteTask removes the task permanently. There is no tombstone; the task
// simply stops appearing in any column.
func (g *Gateway) DeleteTask(ctx context.Context, actor domain.User, id string) error {
	current, err := g.store.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if current == nil {
		return ErrNotFound
	}
	if err := g.store.EnsureUser(ctx, actor); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if err := g.store.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return g.finish(ctx, actor, "deleted task "+current.Title)
}

// finish appends the activity entry for a committed mutation and publishes
// the refreshed board. The append must succeed for the mutation to report
// success; the broadcast is best effort.
func (g *Gateway) finish(ctx context.Context, actor domain.User, action string) error {
	entry := domain.ActivityLogEntry{
		ID:        uuid.NewString(),
		User:      actor.Email,
		Action:    action,
		Timestamp: nextStamp(),
	}
	if err := g.store.AppendActivity(ctx, entry); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	if g.bcast == nil {
		return nil
	}
	snapshot, err := g.store.FetchBoard(ctx)
	if err != nil {
		g.logger.WithError(err).Error("fetch board for broadcast")
		return nil
	}
	g.bcast.Publish(ctx, snapshot, entry)
	return nil
}
