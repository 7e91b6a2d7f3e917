package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Flow is the pre-authentication state of one authorization-code round
// trip: the CSRF state and the PKCE verifier.
type Flow struct {
	State        string `json:"state"`
	CodeVerifier string `json:"code_verifier"`
}

// FlowStore keeps flows between the redirect to the provider and the
// callback. Get returns nil, nil when the flow is unknown or expired.
type FlowStore interface {
	Put(ctx context.Context, flowID string, f Flow, ttl time.Duration) error
	Get(ctx context.Context, flowID string) (*Flow, error)
	Remove(ctx context.Context, flowID string) error
}

type RedisFlowStore struct {
	client *redis.Client
	prefix string
}

func NewRedisFlowStore(client *redis.Client) *RedisFlowStore {
	return &RedisFlowStore{
		client: client,
		prefix: "oauthflow:",
	}
}

func (r *RedisFlowStore) Put(ctx context.Context, flowID string, f Flow, ttl time.Duration) error {
	if flowID == "" || f.State == "" {
		return fmt.Errorf("session: missing flow id or state")
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("session: failed to marshal flow: %w", err)
	}

	return r.client.Set(ctx, r.prefix+flowID, data, ttl).Err()
}

func (r *RedisFlowStore) Get(ctx context.Context, flowID string) (*Flow, error) {
	if flowID == "" {
		return nil, nil
	}

	val, err := r.client.Get(ctx, r.prefix+flowID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var f Flow
	if err := json.Unmarshal([]byte(val), &f); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal flow: %w", err)
	}

	return &f, nil
}

func (r *RedisFlowStore) Remove(ctx context.Context, flowID string) error {
	if flowID == "" {
		return nil
	}
	return r.client.Del(ctx, r.prefix+flowID).Err()
}
