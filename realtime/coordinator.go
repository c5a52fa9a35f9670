package realtime

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Snapshotter recomputes the authoritative state pushed to clients.
type Snapshotter interface {
	FetchBoard(ctx context.Context) (domain.BoardState, error)
	ListActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error)
}

// Coordinator publishes board and activity updates to every connected client.
// When a Redis client is configured, frames travel through a pub/sub channel
// so every instance fans out the same stream; otherwise they go straight to
// the local hub.
type Coordinator struct {
	hub      *Hub
	store    Snapshotter
	redis    *redis.Client
	channel  string
	logLimit int
	logger   *log.Logger
}

// NewCoordinator creates a Coordinator. redis may be nil for single-instance
// deployments.
func NewCoordinator(hub *Hub, store Snapshotter, rc *redis.Client, channel string, logLimit int, logger *log.Logger) *Coordinator {
	if hub == nil {
		panic("realtime: hub is required")
	}
	if store == nil {
		panic("realtime: snapshotter is required")
	}
	if logLimit <= 0 {
		logLimit = domain.DefaultLogLimit
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Coordinator{hub: hub, store: store, redis: rc, channel: channel, logLimit: logLimit, logger: logger}
}

// Publish sends the full board and the new activity entry to all subscribers.
// The mutation gateway calls this exactly once per successful mutation.
func (c *Coordinator) Publish(ctx context.Context, board domain.BoardState, entry domain.ActivityLogEntry) {
	c.send(ctx, EventTaskUpdate, board)
	c.send(ctx, EventLogUpdate, entry)
}

// RefreshAll recomputes the board and broadcasts it to everyone. Driven by
// clientTaskUpdate nudges; the metadata is advisory and only logged.
func (c *Coordinator) RefreshAll(ctx context.Context, from domain.User, info ClientUpdateInfo) {
	if info.Action != "" || info.TaskID != "" {
		c.logger.WithFields(log.Fields{
			"user":   from.Email,
			"action": info.Action,
			"task":   info.TaskID,
		}).Debug("client update nudge")
	}
	board, err := c.store.FetchBoard(ctx)
	if err != nil {
		c.logger.WithError(err).Error("fetch board for refresh")
		return
	}
	c.send(ctx, EventTaskUpdate, board)
}

// Resync replays the board and the recent activity window to a single
// connection. Used for post-reconnect recovery; other clients see nothing.
func (c *Coordinator) Resync(ctx context.Context, conn *Conn) {
	board, err := c.store.FetchBoard(ctx)
	if err != nil {
		c.logger.WithError(err).Error("fetch board for resync")
		return
	}
	if frame, err := EncodeMessage(EventTaskUpdate, board); err == nil {
		conn.deliver(frame)
	}
	entries, err := c.store.ListActivity(ctx, c.logLimit)
	if err != nil {
		c.logger.WithError(err).Error("list activity for resync")
		return
	}
	if frame, err := EncodeMessage(EventLogHistory, entries); err == nil {
		conn.deliver(frame)
	}
}

func (c *Coordinator) send(ctx context.Context, event string, data any) {
	frame, err := EncodeMessage(event, data)
	if err != nil {
		c.logger.WithError(err).WithField("event", event).Error("encode frame")
		return
	}
	if c.redis != nil {
		if err := c.redis.Publish(ctx, c.channel, frame).Err(); err == nil {
			return
		} else {
			c.logger.WithError(err).Error("publish update, falling back to local broadcast")
		}
	}
	c.hub.Broadcast(frame)
}

// Run forwards frames published on the Redis channel to the local hub,
// reconnecting if the subscription drops. No-op without Redis.
func (c *Coordinator) Run(ctx context.Context) {
	if c.redis == nil {
		return
	}
	for {
		sub := c.redis.Subscribe(ctx, c.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				c.hub.Broadcast([]byte(msg.Payload))
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
