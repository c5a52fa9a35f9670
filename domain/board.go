package domain

// BoardState is the full board snapshot grouped by column. It is always
// recomputed from storage, never persisted, and replaces client state
// wholesale on every broadcast. The JSON keys are the column names.
type BoardState struct {
	Todo       []Task `json:"Todo"`
	InProgress []Task `json:"In Progress"`
	Done       []Task `json:"Done"`
}

// NewBoardState returns an empty board with non-nil columns so snapshots
// marshal as empty arrays rather than null.
func NewBoardState() BoardState {
	return BoardState{
		Todo:       []Task{},
		InProgress: []Task{},
		Done:       []Task{},
	}
}

// Add appends the task to the column matching its status. Tasks with an
// unknown status are dropped; storage never produces them.
func (b *BoardState) Add(t Task) {
	switch t.Status {
	case StatusTodo:
		b.Todo = append(b.Todo, t)
	case StatusInProgress:
		b.InProgress = append(b.InProgress, t)
	case StatusDone:
		b.Done = append(b.Done, t)
	}
}

// Column returns the tasks in the given column.
func (b BoardState) Column(s Status) []Task {
	switch s {
	case StatusTodo:
		return b.Todo
	case StatusInProgress:
		return b.InProgress
	case StatusDone:
		return b.Done
	}
	return nil
}

// Tasks returns every task on the board in column display order.
func (b BoardState) Tasks() []Task {
	out := make([]Task, 0, len(b.Todo)+len(b.InProgress)+len(b.Done))
	out = append(out, b.Todo...)
	out = append(out, b.InProgress...)
	out = append(out, b.Done...)
	return out
}

// Find locates a task by id across all columns.
func (b BoardState) Find(id string) (Task, bool) {
	for _, t := range b.Tasks() {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}
