package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewBoardStateMarshalsEmptyColumns(t *testing.T) {
	data, err := json.Marshal(NewBoardState())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	if strings.Contains(got, "null") {
		t.Fatalf("empty columns must marshal as arrays, got %s", got)
	}
	for _, key := range []string{`"Todo"`, `"In Progress"`, `"Done"`} {
		if !strings.Contains(got, key) {
			t.Fatalf("missing column key %s in %s", key, got)
		}
	}
}

func TestBoardStateAddPlacesTaskByStatus(t *testing.T) {
	b := NewBoardState()
	b.Add(Task{ID: "1", Status: StatusTodo})
	b.Add(Task{ID: "2", Status: StatusInProgress})
	b.Add(Task{ID: "3", Status: StatusDone})
	b.Add(Task{ID: "4", Status: "Bogus"})

	if len(b.Todo) != 1 || b.Todo[0].ID != "1" {
		t.Fatalf("unexpected Todo column: %#v", b.Todo)
	}
	if len(b.InProgress) != 1 || b.InProgress[0].ID != "2" {
		t.Fatalf("unexpected In Progress column: %#v", b.InProgress)
	}
	if len(b.Done) != 1 || b.Done[0].ID != "3" {
		t.Fatalf("unexpected Done column: %#v", b.Done)
	}
	if got := len(b.Tasks()); got != 3 {
		t.Fatalf("expected unknown status to be dropped, got %d tasks", got)
	}
}

func TestBoardStateFind(t *testing.T) {
	b := NewBoardState()
	b.Add(Task{ID: "a", Status: StatusTodo})
	b.Add(Task{ID: "b", Status: StatusDone})

	if task, ok := b.Find("b"); !ok || task.ID != "b" {
		t.Fatalf("expected to find task b, got %#v ok=%v", task, ok)
	}
	if _, ok := b.Find("missing"); ok {
		t.Fatal("expected missing id to not be found")
	}
}

func TestBoardStateColumn(t *testing.T) {
	b := NewBoardState()
	b.Add(Task{ID: "a", Status: StatusInProgress})

	if col := b.Column(StatusInProgress); len(col) != 1 || col[0].ID != "a" {
		t.Fatalf("unexpected column: %#v", col)
	}
	if col := b.Column("Bogus"); col != nil {
		t.Fatalf("expected nil for unknown column, got %#v", col)
	}
}
