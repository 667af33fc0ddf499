package inmemory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

func poolMovement(id, tenantID, accountID string, date time.Time) *domain.Movement {
	return &domain.Movement{
		MovementID: id,
		Kind:       domain.MovementKindJournalEntry,
		TenantID:   tenantID,
		AccountID:  accountID,
		Amount:     decimal.NewFromInt(10),
		Date:       date,
	}
}

func TestCandidatePool_FindCandidates(t *testing.T) {
	p := NewCandidatePool()
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	p.AddMovement(poolMovement("m1", "t1", "acc-1", day))
	p.AddMovement(poolMovement("m2", "t1", "acc-1", day.AddDate(0, 0, 10)))
	p.AddMovement(poolMovement("m3", "t1", "acc-2", day))
	p.AddMovement(poolMovement("m4", "t2", "acc-1", day))

	candidates, err := p.FindCandidates(ctx, "t1", "acc-1", day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	if len(candidates) != 1 || candidates[0].MovementID != "m1" {
		t.Errorf("candidates = %v, want only m1", candidates)
	}
}

func TestCandidatePool_GetMovement(t *testing.T) {
	p := NewCandidatePool()
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	p.AddMovement(poolMovement("m1", "t1", "acc-1", day))

	if _, err := p.GetMovement(ctx, "t1", "m1"); err != nil {
		t.Fatalf("GetMovement failed: %v", err)
	}
	if _, err := p.GetMovement(ctx, "t1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown movement error = %v, want ErrNotFound", err)
	}
	// Tenant isolation hides other tenants' movements entirely.
	if _, err := p.GetMovement(ctx, "t2", "m1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cross-tenant error = %v, want ErrNotFound", err)
	}
}

func TestCandidatePool_Failing(t *testing.T) {
	p := NewCandidatePool()
	ctx := context.Background()
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	p.AddMovement(poolMovement("m1", "t1", "acc-1", day))

	p.SetFailing(true)
	if _, err := p.FindCandidates(ctx, "t1", "acc-1", day, day); !errors.Is(err, domain.ErrTransient) {
		t.Errorf("FindCandidates error = %v, want ErrTransient", err)
	}
	if _, err := p.GetMovement(ctx, "t1", "m1"); !errors.Is(err, domain.ErrTransient) {
		t.Errorf("GetMovement error = %v, want ErrTransient", err)
	}

	p.SetFailing(false)
	if _, err := p.GetMovement(ctx, "t1", "m1"); err != nil {
		t.Errorf("GetMovement after recovery failed: %v", err)
	}
}
