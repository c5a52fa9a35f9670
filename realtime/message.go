package realtime

import "encoding/json"

// Event names on the realtime channel. These are part of the wire contract
// with connected clients.
const (
	// EventTaskUpdate carries the full board snapshot. Emitted after every
	// successful mutation and on resync; clients replace their state with it.
	EventTaskUpdate = "taskUpdate"
	// EventLogUpdate carries a single new activity entry.
	EventLogUpdate = "logUpdate"
	// EventLogHistory carries the recent activity window; resync only.
	EventLogHistory = "logHistory"
	// EventClientTaskUpdate is a client-sent advisory nudge asking the server
	// to recompute and broadcast the board.
	EventClientTaskUpdate = "clientTaskUpdate"
	// EventResync is a client-sent request to replay the board and the recent
	// activity window to that connection only.
	EventResync = "resync"
)

// Message is the envelope for every frame on the channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientUpdateInfo is the optional advisory metadata on a clientTaskUpdate
// frame.
type ClientUpdateInfo struct {
	Action    string `json:"action,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// EncodeMessage wraps the payload in a Message envelope ready to send.
func EncodeMessage(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Data: raw})
}
