package eventsink

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis is an EventSink that publishes TaskStateChange events on a Redis
// Pub/Sub channel, for deployments where the placement engine and any
// other subscribers run out-of-process from the scheduler core.
type Redis struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedis creates a Redis-backed EventSink publishing on channel.
func NewRedis(client *redis.Client, channel string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, channel: channel, logger: logger}
}

// Publish marshals change to JSON and publishes it on the configured
// channel. Post-commit side-effect failures are logged but never
// propagate back to the caller or undo committed state.
func (r *Redis) Publish(change TaskStateChange) {
	payload, err := json.Marshal(change)
	if err != nil {
		r.logger.Error("eventsink: marshal task state change", "error", err, "task_id", change.TaskID)
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, payload).Err(); err != nil {
		r.logger.Error("eventsink: publish task state change", "error", err, "task_id", change.TaskID)
	}
}
