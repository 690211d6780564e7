package memory

import (
	"context"
	"sync"
	"time"
)

// Revocations is an in-memory app.TokenRevocations. Entries are purged once
// the token would have expired anyway.
type Revocations struct {
	mu      sync.Mutex
	clock   func() time.Time
	revoked map[string]time.Time
}

func NewRevocations() *Revocations {
	return &Revocations{clock: time.Now, revoked: make(map[string]time.Time)}
}

func (r *Revocations) Revoke(_ context.Context, tokenID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()
	r.revoked[tokenID] = until
	return nil
}

func (r *Revocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.revoked[tokenID]
	return ok && r.clock().Before(until), nil
}

func (r *Revocations) purgeLocked() {
	now := r.clock()
	for id, until := range r.revoked {
		if !now.Before(until) {
			delete(r.revoked, id)
		}
	}
}
