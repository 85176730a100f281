package kv

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Store is a JSON-valued key-value facade over Redis. Entries expire after
// their TTL; a missing or expired key reads as not found, never as an error.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshalling value")
	}
	return errors.Wrapf(s.client.Set(ctx, key, raw, ttl).Err(), "setting %s", key)
}

// SetNXJSON stores the value only when the key does not exist yet. Returns
// true when this call took the key.
func (s *Store) SetNXJSON(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, errors.Wrap(err, "marshalling value")
	}
	ok, err := s.client.SetNX(ctx, key, raw, ttl).Result()
	return ok, errors.Wrapf(err, "reserving %s", key)
}

// GetJSON reads the key into dest; returns false when the key is absent.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting %s", key)
	}
	return true, errors.Wrapf(json.Unmarshal(raw, dest), "unmarshalling %s", key)
}

// Delete removes the key; deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(s.client.Del(ctx, key).Err(), "deleting %s", key)
}

// GetRaw returns the stored JSON without decoding it.
func (s *Store) GetRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "getting %s", key)
	}
	return raw, true, nil
}
