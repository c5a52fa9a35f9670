package client

import (
	"errors"
	"sync"
	"time"

	"board-api/board"
	"board-api/domain"
)

// ConnState reports whether the realtime channel is delivering updates.
type ConnState int

const (
	// Connected means broadcasts are flowing and the view is live.
	Connected ConnState = iota
	// Degraded means the channel is down; the view may be stale but REST
	// mutations keep working.
	Degraded
)

// User-facing messages for mutation failures. The conflict text tells the
// user the one remedial action that differs from a blind retry.
const (
	msgConflict     = "Conflict detected! Another user modified this task. Please refresh and try again."
	msgNotFound     = "This task no longer exists. It may have been deleted by another user."
	msgUnauthorized = "Your session has expired. Please sign in again."
	msgNoEligible   = "No users are available for assignment."
	msgDegraded     = "Live updates paused. Reconnecting..."
	msgGeneric      = "Something went wrong. Please try again."
)

// pendingEdit is a local, not-yet-confirmed edit keyed by task id.
type pendingEdit struct {
	Fields  board.UpdateFields
	Started time.Time
}

// Reconciler holds the client's disposable view of the board: the latest
// snapshot, a bounded activity window, pending local edits, and the channel
// state. Every server broadcast replaces view state wholesale; local state
// never merges with remote state.
type Reconciler struct {
	mu       sync.Mutex
	board    domain.BoardState
	log      []domain.ActivityLogEntry
	pending  map[string]pendingEdit
	state    ConnState
	logLimit int
	notice   string
}

// NewReconciler creates a Reconciler with the given activity window size.
func NewReconciler(logLimit int) *Reconciler {
	if logLimit <= 0 {
		logLimit = domain.DefaultLogLimit
	}
	return &Reconciler{
		board:    domain.NewBoardState(),
		log:      []domain.ActivityLogEntry{},
		pending:  map[string]pendingEdit{},
		state:    Degraded,
		logLimit: logLimit,
		notice:   msgDegraded,
	}
}

// Board returns the current snapshot.
func (r *Reconciler) Board() domain.BoardState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.board
}

// Log returns the current activity window, newest first.
func (r *Reconciler) Log() []domain.ActivityLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ActivityLogEntry, len(r.log))
	copy(out, r.log)
	return out
}

// State returns the channel state.
func (r *Reconciler) State() ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Notice returns the current user-facing message, if any.
func (r *Reconciler) Notice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notice
}

// BeginEdit records a local edit in flight for the task.
func (r *Reconciler) BeginEdit(id string, fields board.UpdateFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[id] = pendingEdit{Fields: fields, Started: time.Now()}
}

// PendingEdit reports whether a local edit is in flight for the task.
func (r *Reconciler) PendingEdit(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// OnBoardUpdate replaces the snapshot with the broadcast one. Remote wins:
// all pending local edits are discarded, since the authoritative state may
// have invalidated any of them.
func (r *Reconciler) OnBoardUpdate(b domain.BoardState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.board = b
	r.pending = map[string]pendingEdit{}
}

// OnLogEntry prepends a new activity entry and trims to the window.
func (r *Reconciler) OnLogEntry(e domain.ActivityLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append([]domain.ActivityLogEntry{e}, r.log...)
	if len(r.log) > r.logLimit {
		r.log = r.log[:r.logLimit]
	}
}

// OnLogHistory replaces the activity window. Sent on resync; buffered state
// from before a disconnect is never trusted.
func (r *Reconciler) OnLogHistory(entries []domain.ActivityLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(entries) > r.logLimit {
		entries = entries[:r.logLimit]
	}
	r.log = append([]domain.ActivityLogEntry{}, entries...)
}

// OnConnected marks the channel live and clears the degraded notice.
func (r *Reconciler) OnConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Connected
	if r.notice == msgDegraded {
		r.notice = ""
	}
}

// OnDisconnected marks the channel down. The view stays visible but stale.
func (r *Reconciler) OnDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Degraded
	r.notice = msgDegraded
}

// OnMutationError translates a failed mutation into the user-facing message
// and drops the pending edit for the task, if any.
func (r *Reconciler) OnMutationError(id string, err error) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)

	msg := mutationMessage(err)
	r.notice = msg
	return msg
}

func mutationMessage(err error) string {
	var verr *board.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, board.ErrStaleWrite):
		return msgConflict
	case errors.Is(err, board.ErrNotFound):
		return msgNotFound
	case errors.Is(err, ErrUnauthorized):
		return msgUnauthorized
	case errors.Is(err, board.ErrNoEligibleUser):
		return msgNoEligible
	default:
		return msgGeneric
	}
}
