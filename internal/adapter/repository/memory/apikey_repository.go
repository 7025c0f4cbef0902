package memory

import (
	"context"
	"crypto/subtle"
)

// APIKeyRepository implements domain.APIKeyRepository against a single
// configured key. An empty configured key accepts every request, intended
// for local use only.
type APIKeyRepository struct {
	key []byte
}

// NewAPIKeyRepository creates a static API key repository.
func NewAPIKeyRepository(key string) *APIKeyRepository {
	return &APIKeyRepository{key: []byte(key)}
}

// IsValid compares the presented key in constant time.
func (r *APIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if len(r.key) == 0 {
		return true, nil
	}
	return subtle.ConstantTimeCompare(r.key, []byte(key)) == 1, nil
}
