// Package memory provides in-process repository implementations used when no
// Redis instance is configured or reachable.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/user/pulse-ops/internal/domain"
)

type runEntry struct {
	result    domain.RunResult
	expiresAt time.Time
}

// RunRepository implements domain.RunRepository in process memory with the
// same TTL semantics as the Redis implementation. Expired entries are
// dropped lazily on access.
type RunRepository struct {
	mu   sync.RWMutex
	runs map[string]runEntry
	ttl  time.Duration
}

// NewRunRepository creates an in-memory run repository.
func NewRunRepository(ttl time.Duration) *RunRepository {
	return &RunRepository{
		runs: make(map[string]runEntry),
		ttl:  ttl,
	}
}

// SaveRun stores the result under its run ID.
func (r *RunRepository) SaveRun(ctx context.Context, result domain.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, entry := range r.runs {
		if now.After(entry.expiresAt) {
			delete(r.runs, id)
		}
	}

	r.runs[result.ID] = runEntry{result: result, expiresAt: now.Add(r.ttl)}
	return nil
}

// GetRun retrieves a stored run result by ID.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.RunResult, error) {
	r.mu.RLock()
	entry, ok := r.runs[id]
	r.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, domain.ErrRunNotFound
	}
	result := entry.result
	return &result, nil
}
