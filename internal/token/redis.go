package token

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "token:"

// Redis implements Store on a Redis backend. GETDEL gives the atomic
// read-and-delete consume; TTL handles passive expiry.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a Redis-backed token store using the provided client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Generate(ctx context.Context, p Payload, ttl time.Duration) (string, error) {
	p.ID = uuid.NewString()
	p.ValidUntil = time.Now().UTC().Add(ttl)

	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+p.ID, raw, ttl).Err(); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return p.ID, nil
}

func (r *Redis) Consume(ctx context.Context, id string) (*Payload, error) {
	raw, err := r.client.GetDel(ctx, keyPrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume token: %w", err)
	}
	return decode([]byte(raw))
}

func (r *Redis) Peek(ctx context.Context, id string) (*Payload, error) {
	raw, err := r.client.Get(ctx, keyPrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("peek token: %w", err)
	}
	return decode([]byte(raw))
}

func decode(raw []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal token payload: %w", err)
	}
	return &p, nil
}
