// Package events announces terminal job statuses on a Redis list so other
// services can react without polling the videos table.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"manimrender/internal/pkg/errors"
)

type Event struct {
	VideoID         string    `json:"video_id"`
	Status          string    `json:"status"`
	VideoURL        *string   `json:"video_url"`
	ThumbnailURL    *string   `json:"thumbnail_url"`
	DurationSeconds *int      `json:"duration_seconds"`
	RunID           string    `json:"run_id"`
	At              time.Time `json:"at"`
	Error           string    `json:"error,omitempty"`
}

type RedisPublisher struct {
	rdb  *redis.Client
	list string
}

func NewRedisPublisher(rdb *redis.Client, list string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, list: list}
}

// Publish LPUSHes e as JSON. Consumers BRPOP the list to read in order.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "events.publish", "encode event")
	}
	if err := p.rdb.LPush(ctx, p.list, b).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "events.publish", "lpush "+p.list)
	}
	return nil
}
