package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"board-api/domain"
)

// fakeStore is an in-memory Store for gateway tests.
type fakeStore struct {
	tasks   map[string]domain.Task
	users   map[string]domain.User
	entries []domain.ActivityLogEntry

	getErr    error
	insertErr error
	updateErr error
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks: map[string]domain.Task{},
		users: map[string]domain.User{},
	}
}

func (f *fakeStore) FetchBoard(ctx context.Context) (domain.BoardState, error) {
	b := domain.NewBoardState()
	for _, t := range f.tasks {
		b.Add(t)
	}
	return b, nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, t domain.Task) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, t domain.Task) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) error {
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	out := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) EnsureUser(ctx context.Context, u domain.User) error {
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) ListActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	out := make([]domain.ActivityLogEntry, 0, limit)
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.entries[i])
	}
	return out, nil
}

// recordingBroadcaster captures every Publish call.
type recordingBroadcaster struct {
	boards  []domain.BoardState
	entries []domain.ActivityLogEntry
}

func (r *recordingBroadcaster) Publish(ctx context.Context, board domain.BoardState, entry domain.ActivityLogEntry) {
	r.boards = append(r.boards, board)
	r.entries = append(r.entries, entry)
}

var alice = domain.User{ID: "auth0|alice", Email: "alice@example.com"}

func TestCreateTaskAppliesDefaults(t *testing.T) {
	store := newFakeStore()
	bcast := &recordingBroadcaster{}
	gw := NewGateway(store, bcast, nil)

	task, err := gw.CreateTask(context.Background(), alice, CreateFields{Title: "  Ship it  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Title != "Ship it" {
		t.Fatalf("expected trimmed title, got %q", task.Title)
	}
	if task.Status != domain.StatusTodo {
		t.Fatalf("expected default status Todo, got %q", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("expected default priority Medium, got %q", task.Priority)
	}
	if task.ID == "" {
		t.Fatal("expected a generated id")
	}
	if task.CreatedAt.IsZero() || !task.LastModified.Equal(task.CreatedAt) {
		t.Fatalf("expected createdAt == lastModified, got %v / %v", task.CreatedAt, task.LastModified)
	}
	if _, ok := store.users[alice.ID]; !ok {
		t.Fatal("expected actor to be recorded in the user directory")
	}
}

func TestCreateTaskValidation(t *testing.T) {
	gw := NewGateway(newFakeStore(), nil, nil)
	ctx := context.Background()

	var verr *ValidationError
	if _, err := gw.CreateTask(ctx, alice, CreateFields{Title: "   "}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for blank title, got %v", err)
	}
	if _, err := gw.CreateTask(ctx, alice, CreateFields{Title: "x", Status: "Archived"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
	if _, err := gw.CreateTask(ctx, alice, CreateFields{Title: "x", Priority: "Urgent"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown priority, got %v", err)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	gw := NewGateway(newFakeStore(), nil, nil)
	title := "x"
	_, err := gw.UpdateTask(context.Background(), alice, "missing", UpdateFields{Title: &title}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Two clients fetch the same task; the first write lands, the second must be
// rejected as stale and leave the first write untouched.
func TestUpdateTaskStaleWriteLosesRace(t *testing.T) {
	store := newFakeStore()
	gw := NewGateway(store, nil, nil)
	ctx := context.Background()

	task, err := gw.CreateTask(ctx, alice, CreateFields{Title: "Draft"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fetched := task.LastModified

	first := "Draft v2"
	updated, err := gw.UpdateTask(ctx, alice, task.ID, UpdateFields{Title: &first}, &fetched)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if !updated.LastModified.After(fetched) {
		t.Fatalf("lastModified must advance: %v -> %v", fetched, updated.LastModified)
	}

	second := "Draft v3"
	_, err = gw.UpdateTask(ctx, alice, task.ID, UpdateFields{Title: &second}, &fetched)
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}
	if store.tasks[task.ID].Title != first {
		t.Fatalf("stale write must not land, got %q", store.tasks[task.ID].Title)
	}
}

func TestUpdateTaskWithoutLastFetchedSkipsGate(t *testing.T) {
	store := newFakeStore()
	gw := NewGateway(store, nil, nil)
	ctx := context.Background()

	task, err := gw.CreateTask(ctx, alice, CreateFields{Title: "Draft"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	title := "Overwritten"
	if _, err := gw.UpdateTask(ctx, alice, task.ID, UpdateFields{Title: &title}, nil); err != nil {
		t.Fatalf("update without lastFetched: %v", err)
	}
}

func TestUpdateTaskStatusChangeProducesMoveAction(t *testing.T) {
	store := newFakeStore()
	gw := NewGateway(store, nil, nil)
	ctx := context.Background()

	task, err := gw.CreateTask(ctx, alice, CreateFields{Title: "Deploy"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done := domain.StatusDone
	if _, err := gw.UpdateTask(ctx, alice, task.ID, UpdateFields{Status: &done}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	last := store.entries[len(store.entries)-1]
	if last.Action != "moved Deploy to Done" {
		t.Fatalf("unexpected action: %q", last.Action)
	}

	desc := "notes"
	if _, err := gw.UpdateTask(ctx, alice, task.ID, UpdateFields{Description: &desc}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	last = store.entries[len(store.entries)-1]
	if last.Action != "updated Deploy" {
		t.Fatalf("unexpected action: %q", last.Action)
	}
}

func TestDeleteTask(t *testing.T) {
	store := newFakeStore()
	bcast := &recordingBroadcaster{}
	gw := NewGateway(store, bcast, nil)
	ctx := context.Background()

	task, err := gw.CreateTask(ctx, alice, CreateFields{Title: "Old"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gw.DeleteTask(ctx, alice, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := store.tasks[task.ID]; ok {
		t.Fatal("expected task to be gone")
	}
	last := store.entries[len(store.entries)-1]
	if last.Action != "deleted task Old" {
		t.Fatalf("unexpected action: %q", last.Action)
	}

	if err := gw.DeleteTask(ctx, alice, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestEveryMutationBroadcastsExactlyOnce(t *testing.T) {
	store := newFakeStore()
	bcast := &recordingBroadcaster{}
	gw := NewGateway(store, bcast, nil)
	ctx := context.Background()

	task, err := gw.CreateTask(ctx, alice, CreateFields{Title: "One"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	title := "Two"
	if _, err := gw.UpdateTask(ctx, alice, task.ID, UpdateFields{Title: &title}, nil); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := gw.DeleteTask(ctx, alice, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(bcast.boards) != 3 || len(bcast.entries) != 3 {
		t.Fatalf("expected 3 broadcasts, got %d boards / %d entries", len(bcast.boards), len(bcast.entries))
	}
	if len(store.entries) != 3 {
		t.Fatalf("expected 3 activity entries, got %d", len(store.entries))
	}
	for i, e := range bcast.entries {
		if e.ID != store.entries[i].ID {
			t.Fatalf("broadcast entry %d does not match stored entry", i)
		}
	}
}

func TestFailedMutationDoesNotBroadcast(t *testing.T) {
	store := newFakeStore()
	bcast := &recordingBroadcaster{}
	gw := NewGateway(store, bcast, nil)
	ctx := context.Background()

	if _, err := gw.CreateTask(ctx, alice, CreateFields{Title: " "}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := gw.UpdateTask(ctx, alice, "missing", UpdateFields{}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(bcast.boards) != 0 {
		t.Fatalf("failed mutations must not broadcast, got %d", len(bcast.boards))
	}
}

func TestAppendActivityFailureFailsMutation(t *testing.T) {
	store := newFakeStore()
	store.appendErr = errors.New("table down")
	bcast := &recordingBroadcaster{}
	gw := NewGateway(store, bcast, nil)

	if _, err := gw.CreateTask(context.Background(), alice, CreateFields{Title: "x"}); err == nil {
		t.Fatal("expected error when activity append fails")
	}
	if len(bcast.boards) != 0 {
		t.Fatal("must not broadcast when the activity append fails")
	}
}

func TestLastModifiedMonotonicAcrossMutations(t *testing.T) {
	store := newFakeStore()
	gw := NewGateway(store, nil, nil)
	ctx := context.Background()

	task, err := gw.CreateTask(ctx, alice, CreateFields{Title: "tick"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	prev := task.LastModified
	for i := 0; i < 20; i++ {
		title := "tick"
		updated, err := gw.UpdateTask(ctx, alice, task.ID, UpdateFields{Title: &title}, &prev)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !updated.LastModified.After(prev) {
			t.Fatalf("lastModified did not advance: %v -> %v", prev, updated.LastModified)
		}
		prev = updated.LastModified
	}
}

func TestActivityEntriesHaveStrictlyIncreasingTimestamps(t *testing.T) {
	store := newFakeStore()
	gw := NewGateway(store, nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := gw.CreateTask(ctx, alice, CreateFields{Title: "t"}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	var prev time.Time
	for i, e := range store.entries {
		if !e.Timestamp.After(prev) {
			t.Fatalf("entry %d timestamp %v not after %v", i, e.Timestamp, prev)
		}
		prev = e.Timestamp
	}
}
