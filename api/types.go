package api

import (
	"context"
	"time"

	"board-api/board"
	"board-api/domain"
)

// Storage is the read surface handlers use directly.
type Storage interface {
	FetchBoard(ctx context.Context) (domain.BoardState, error)
	ListActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error)
}

// Gateway applies task mutations on behalf of an authenticated user.
type Gateway interface {
	CreateTask(ctx context.Context, actor domain.User, fields board.CreateFields) (domain.Task, error)
	UpdateTask(ctx context.Context, actor domain.User, id string, fields board.UpdateFields, lastFetched *time.Time) (domain.Task, error)
	DeleteTask(ctx context.Context, actor domain.User, id string) error
	SmartAssign(ctx context.Context, actor domain.User, id string) (domain.Task, error)
}

// Authenticator resolves the calling user from an Authorization header.
type Authenticator interface {
	UserFromAuthHeader(string) (domain.User, error)
}
