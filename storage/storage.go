package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"board-api/domain"
)

const (
	boardPartition    = "board"
	userPartition     = "user"
	activityPartition = "activity"
)

// Storage persists tasks, users and the activity log in Azure Table Storage.
// The board is shared: every authenticated user reads and writes the same
// partition.
type Storage struct {
	taskTable *aztables.Client
	userTable *aztables.Client
	logTable  *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, usersTable, logsTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable: svc.NewClient(tasksTable),
		userTable: svc.NewClient(usersTable),
		logTable:  svc.NewClient(logsTable),
	}, nil
}

// FetchBoard loads every task and groups it into columns, ordered by creation
// time within each column.
func (s *Storage) FetchBoard(ctx context.Context) (domain.BoardState, error) {
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.BoardState{}, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return domain.BoardState{}, err
			}
			tasks = append(tasks, ent.task())
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	board := domain.NewBoardState()
	for _, t := range tasks {
		board.Add(t)
	}
	return board, nil
}

// GetTask retrieves a task if present; (nil, nil) when the id is unknown.
func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	ent, err := s.taskTable.GetEntity(ctx, boardPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var te taskEntity
	if err := json.Unmarshal(ent.Value, &te); err != nil {
		return nil, err
	}
	task := te.task()
	return &task, nil
}

// InsertTask creates a new task row.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(newTaskEntity(t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// UpdateTask replaces the stored task row.
func (s *Storage) UpdateTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(newTaskEntity(t))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

// DeleteTask removes the task row. A concurrent delete is not an error.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, boardPartition, id, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// ListUsers returns every known board member.
func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	filter := "PartitionKey eq '" + userPartition + "'"
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	users := []domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent userEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			users = append(users, ent.user())
		}
	}
	return users, nil
}

// EnsureUser creates or refreshes the user row.
func (s *Storage) EnsureUser(ctx context.Context, u domain.User) error {
	payload, err := json.Marshal(newUserEntity(u))
	if err != nil {
		return err
	}
	_, err = s.userTable.UpsertEntity(ctx, payload, nil)
	return err
}

// AppendActivity writes one immutable activity row.
func (s *Storage) AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error {
	payload, err := json.Marshal(newActivityEntity(e))
	if err != nil {
		return err
	}
	_, err = s.logTable.AddEntity(ctx, payload, nil)
	return err
}

// ListActivity returns up to limit entries, newest first. Row keys embed the
// inverted timestamp, so listing order is already newest-first.
func (s *Storage) ListActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = domain.DefaultLogLimit
	}
	if limit > domain.MaxLogLimit {
		limit = domain.MaxLogLimit
	}
	filter := "PartitionKey eq '" + activityPartition + "'"
	top := int32(limit)
	pager := s.logTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	entries := []domain.ActivityLogEntry{}
	for pager.More() && len(entries) < limit {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent activityEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			entries = append(entries, ent.entry())
			if len(entries) == limit {
				break
			}
		}
	}
	return entries, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
