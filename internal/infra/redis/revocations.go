package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations stores logged-out token IDs as keys that expire with the token.
type Revocations struct {
	client *redis.Client
	clock  func() time.Time
}

func NewRevocations(client *redis.Client) *Revocations {
	return &Revocations{client: client, clock: time.Now}
}

func (r *Revocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(r.clock())
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, r.key(tokenID), "1", ttl).Err()
}

func (r *Revocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Revocations) key(tokenID string) string {
	return "auth:revoked:" + tokenID
}
