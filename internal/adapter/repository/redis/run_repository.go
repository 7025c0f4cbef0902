package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/pulse-ops/internal/domain"
)

const runKeyPrefix = "pulseops:runs:"

// RunRepository implements domain.RunRepository on Redis. Runs are stored as
// JSON with a TTL so history expires without an external sweeper.
type RunRepository struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewRunRepository creates a new Redis run repository.
func NewRunRepository(client *redis.Client, logger *slog.Logger, ttl time.Duration) *RunRepository {
	return &RunRepository{
		client: client,
		logger: logger.With("component", "redis_run_repository"),
		ttl:    ttl,
	}
}

// SaveRun stores the result under its run ID.
func (r *RunRepository) SaveRun(ctx context.Context, result domain.RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	if err := r.client.Set(ctx, runKeyPrefix+result.ID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store run %s: %w", result.ID, err)
	}
	return nil
}

// GetRun retrieves a stored run result by ID.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.RunResult, error) {
	data, err := r.client.Get(ctx, runKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch run %s: %w", id, err)
	}

	var result domain.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &result, nil
}
