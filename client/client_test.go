package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"board-api/board"
	"board-api/domain"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(domain.NewBoardState())
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "tok.en.z")
	if _, err := c.FetchBoard(context.Background()); err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if gotAuth != "Bearer tok.en.z" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestClientFetchBoard(t *testing.T) {
	want := domain.NewBoardState()
	want.Add(domain.Task{ID: "t1", Title: "x", Status: domain.StatusInProgress})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(want)
	}))
	t.Cleanup(srv.Close)

	got, err := New(srv.URL, "t").FetchBoard(context.Background())
	if err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if len(got.InProgress) != 1 || got.InProgress[0].ID != "t1" {
		t.Fatalf("unexpected board: %#v", got)
	}
}

func TestClientCreateTaskBodyShape(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.Task{ID: "t1"})
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, "t").CreateTask(context.Background(), board.CreateFields{
		Title:    "Ship it",
		Priority: domain.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gotBody["title"] != "Ship it" || gotBody["priority"] != "High" {
		t.Fatalf("unexpected body: %#v", gotBody)
	}
	for key := range gotBody {
		if key != strings.ToLower(key[:1])+key[1:] {
			t.Fatalf("field %q must use a lowercase json tag", key)
		}
	}
}

func TestClientUpdateTaskCarriesLastFetched(t *testing.T) {
	stamp := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/tasks/t1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(domain.Task{ID: "t1"})
	}))
	t.Cleanup(srv.Close)

	title := "new title"
	_, err := New(srv.URL, "t").UpdateTask(context.Background(), "t1", board.UpdateFields{Title: &title}, &stamp)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if gotBody["title"] != "new title" {
		t.Fatalf("unexpected body: %#v", gotBody)
	}
	if gotBody["lastFetched"] != stamp.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected lastFetched: %#v", gotBody["lastFetched"])
	}
}

func TestClientErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, wantErr: board.ErrNotFound},
		{name: "conflict", status: http.StatusConflict, wantErr: board.ErrStaleWrite},
		{name: "no eligible user", status: http.StatusUnprocessableEntity, wantErr: board.ErrNoEligibleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
			}))
			t.Cleanup(srv.Close)

			_, err := New(srv.URL, "t").SmartAssign(context.Background(), "t1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClientValidationErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid title: must not be empty"})
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, "t").CreateTask(context.Background(), board.CreateFields{})
	var verr *board.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Reason != "invalid title: must not be empty" {
		t.Fatalf("unexpected reason: %q", verr.Reason)
	}
}

func TestClientDeleteTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/tasks/t1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	if err := New(srv.URL, "t").DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestClientListActivityLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("unexpected limit: %q", got)
		}
		json.NewEncoder(w).Encode([]domain.ActivityLogEntry{{ID: "e1"}})
	}))
	t.Cleanup(srv.Close)

	entries, err := New(srv.URL, "t").ListActivity(context.Background(), 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "e1" {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}
