package kv

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const queueKeyPrefix = "queue:"

// Queue is a FIFO over Redis lists with at-least-once semantics; consumers
// must tolerate redelivery.
type Queue struct {
	client *redis.Client
}

func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Enqueue(ctx context.Context, name string, item any) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "marshalling queue item")
	}
	return errors.Wrapf(q.client.RPush(ctx, queueKeyPrefix+name, raw).Err(), "enqueueing to %s", name)
}

// Dequeue pops the head of the queue into dest; returns false when the queue
// is empty.
func (q *Queue) Dequeue(ctx context.Context, name string, dest any) (bool, error) {
	raw, err := q.client.LPop(ctx, queueKeyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "dequeueing from %s", name)
	}
	return true, errors.Wrap(json.Unmarshal(raw, dest), "unmarshalling queue item")
}

// Len reports the number of items waiting in the queue.
func (q *Queue) Len(ctx context.Context, name string) (int64, error) {
	n, err := q.client.LLen(ctx, queueKeyPrefix+name).Result()
	return n, errors.Wrapf(err, "measuring %s", name)
}
