package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// ClaimRegistry is the in-memory claim table: movement ID to the line holding
// it. Claim performs the conditional insert under a single lock, which makes
// it the atomic primitive the claim-uniqueness invariant relies on.
type ClaimRegistry struct {
	mu     sync.Mutex
	claims map[string]string
}

// NewClaimRegistry creates an empty registry.
func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{
		claims: make(map[string]string),
	}
}

// Claim implements store.ClaimRegistry.
func (r *ClaimRegistry) Claim(ctx context.Context, movementID, lineID string) error {
	if movementID == "" || lineID == "" {
		return fmt.Errorf("claim: movement and line IDs are required: %w", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	holder, claimed := r.claims[movementID]
	if claimed && holder != lineID {
		return fmt.Errorf("claim movement %s: held by line %s: %w", movementID, holder, domain.ErrConflict)
	}

	r.claims[movementID] = lineID
	return nil
}

// Release implements store.ClaimRegistry.
func (r *ClaimRegistry) Release(ctx context.Context, movementID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.claims, movementID)
	return nil
}

// Holder implements store.ClaimRegistry.
func (r *ClaimRegistry) Holder(ctx context.Context, movementID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	holder, claimed := r.claims[movementID]
	return holder, claimed, nil
}

// Ensure ClaimRegistry implements the registry interface.
var _ store.ClaimRegistry = (*ClaimRegistry)(nil)
