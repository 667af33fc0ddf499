package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// CandidatePool is an in-memory candidate pool fed from the ledger and
// payment subsystems. In production those subsystems are queried directly;
// this implementation backs the CLI and tests.
type CandidatePool struct {
	mu        sync.RWMutex
	movements map[string]*domain.Movement

	// failing simulates an unreachable pool so retry semantics can be
	// exercised in tests.
	failing bool
}

// NewCandidatePool creates an empty pool.
func NewCandidatePool() *CandidatePool {
	return &CandidatePool{
		movements: make(map[string]*domain.Movement),
	}
}

// AddMovement registers a movement as eligible for matching.
func (p *CandidatePool) AddMovement(movement *domain.Movement) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := *movement
	p.movements[movement.MovementID] = &cp
}

// SetFailing toggles simulated unavailability.
func (p *CandidatePool) SetFailing(failing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failing = failing
}

// FindCandidates implements store.CandidatePool.
func (p *CandidatePool) FindCandidates(ctx context.Context, tenantID, accountID string, dateFrom, dateTo time.Time) ([]*domain.Movement, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.failing {
		return nil, fmt.Errorf("find candidates: pool unreachable: %w", domain.ErrTransient)
	}

	var result []*domain.Movement
	for _, movement := range p.movements {
		if movement.TenantID != tenantID || movement.AccountID != accountID {
			continue
		}
		if movement.Date.Before(dateFrom) || movement.Date.After(dateTo) {
			continue
		}
		cp := *movement
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].MovementID < result[j].MovementID })
	return result, nil
}

// GetMovement implements store.CandidatePool.
func (p *CandidatePool) GetMovement(ctx context.Context, tenantID, movementID string) (*domain.Movement, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.failing {
		return nil, fmt.Errorf("get movement: pool unreachable: %w", domain.ErrTransient)
	}

	movement, exists := p.movements[movementID]
	if !exists || movement.TenantID != tenantID {
		return nil, fmt.Errorf("movement %s: %w", movementID, domain.ErrNotFound)
	}

	cp := *movement
	return &cp, nil
}

// Ensure CandidatePool implements the pool interface.
var _ store.CandidatePool = (*CandidatePool)(nil)
