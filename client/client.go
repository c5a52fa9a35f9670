package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"board-api/board"
	"board-api/domain"
)

// ErrUnauthorized is returned when the server rejects the bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// Client talks to the board REST API. All calls attach the configured bearer
// token and translate the server's error taxonomy back into board error kinds.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. baseURL is the server root, e.g. "http://localhost:8080".
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchBoard retrieves the full board snapshot.
func (c *Client) FetchBoard(ctx context.Context) (domain.BoardState, error) {
	var state domain.BoardState
	err := c.do(ctx, http.MethodGet, "/api/tasks", nil, http.StatusOK, &state)
	return state, err
}

// ListActivity retrieves the recent activity window, newest first.
func (c *Client) ListActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	path := "/api/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var entries []domain.ActivityLogEntry
	err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &entries)
	return entries, err
}

type createRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Priority    domain.Priority `json:"priority,omitempty"`
	Status      domain.Status   `json:"status,omitempty"`
}

// CreateTask creates a task and returns the stored version.
func (c *Client) CreateTask(ctx context.Context, fields board.CreateFields) (domain.Task, error) {
	req := createRequest{
		Title:       fields.Title,
		Description: fields.Description,
		Priority:    fields.Priority,
		Status:      fields.Status,
	}
	var task domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", req, http.StatusCreated, &task)
	return task, err
}

type updateRequest struct {
	Title        *string          `json:"title,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Priority     *domain.Priority `json:"priority,omitempty"`
	Status       *domain.Status   `json:"status,omitempty"`
	AssignedUser *domain.User     `json:"assignedUser,omitempty"`
	LastFetched  string           `json:"lastFetched,omitempty"`
}

// UpdateTask applies a partial update. lastFetched, when non-nil, is the
// timestamp of the snapshot the edit was based on; the server rejects the
// write with board.ErrStaleWrite if the task changed since.
func (c *Client) UpdateTask(ctx context.Context, id string, fields board.UpdateFields, lastFetched *time.Time) (domain.Task, error) {
	req := updateRequest{
		Title:        fields.Title,
		Description:  fields.Description,
		Priority:     fields.Priority,
		Status:       fields.Status,
		AssignedUser: fields.AssignedUser,
	}
	if lastFetched != nil {
		req.LastFetched = lastFetched.Format(time.RFC3339Nano)
	}
	var task domain.Task
	err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id), req, http.StatusOK, &task)
	return task, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

// SmartAssign asks the server to assign the task to the least-loaded user.
func (c *Client) SmartAssign(ctx context.Context, id string) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/smart-assign", nil, http.StatusOK, &task)
	return task, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return errorFromResponse(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type errorBody struct {
	Error string `json:"error"`
}

func errorFromResponse(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &board.ValidationError{Field: "request", Reason: body.Error}
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return board.ErrNotFound
	case http.StatusConflict:
		return board.ErrStaleWrite
	case http.StatusUnprocessableEntity:
		return board.ErrNoEligibleUser
	}
	if body.Error != "" {
		return fmt.Errorf("server error %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
