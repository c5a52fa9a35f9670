package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
	"board-api/realtime"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Stream consumes the realtime channel and feeds frames into a Reconciler.
// It reconnects with exponential backoff and requests a full resync after
// every successful connect, so state buffered across a disconnect is never
// trusted.
type Stream struct {
	url    string
	token  string
	rec    *Reconciler
	dialer *websocket.Dialer
	logger *log.Logger
}

// NewStream creates a Stream. url is the websocket endpoint, e.g.
// "ws://localhost:8080/api/ws".
func NewStream(url, token string, rec *Reconciler, logger *log.Logger) *Stream {
	if rec == nil {
		panic("client: reconciler is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Stream{
		url:    url,
		token:  token,
		rec:    rec,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Run connects and keeps consuming until ctx is canceled.
func (s *Stream) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := s.connect(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("stream connect failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff
		s.rec.OnConnected()
		s.consume(ctx, conn)
		s.rec.OnDisconnected()
	}
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	// Ask for the authoritative state before processing anything else.
	if err := conn.WriteJSON(realtime.Message{Event: realtime.EventResync}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (s *Stream) consume(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WithError(err).Warn("stream read failed")
			}
			return
		}
		s.dispatch(raw)
	}
}

func (s *Stream) dispatch(raw []byte) {
	var msg realtime.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.WithError(err).Warn("malformed frame")
		return
	}
	switch msg.Event {
	case realtime.EventTaskUpdate:
		var b domain.BoardState
		if err := json.Unmarshal(msg.Data, &b); err != nil {
			s.logger.WithError(err).Warn("malformed board frame")
			return
		}
		s.rec.OnBoardUpdate(b)
	case realtime.EventLogUpdate:
		var e domain.ActivityLogEntry
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			s.logger.WithError(err).Warn("malformed log frame")
			return
		}
		s.rec.OnLogEntry(e)
	case realtime.EventLogHistory:
		var entries []domain.ActivityLogEntry
		if err := json.Unmarshal(msg.Data, &entries); err != nil {
			s.logger.WithError(err).Warn("malformed history frame")
			return
		}
		s.rec.OnLogHistory(entries)
	default:
		s.logger.WithField("event", msg.Event).Debug("ignoring frame")
	}
}
