package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

func TestClaimRegistry_ConditionalInsert(t *testing.T) {
	r := NewClaimRegistry()
	ctx := context.Background()

	if err := r.Claim(ctx, "m1", "l1"); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	// Re-claiming by the same line is a no-op.
	if err := r.Claim(ctx, "m1", "l1"); err != nil {
		t.Fatalf("re-claim by holder failed: %v", err)
	}

	// A different line loses.
	if err := r.Claim(ctx, "m1", "l2"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("claim by rival error = %v, want ErrConflict", err)
	}

	holder, claimed, err := r.Holder(ctx, "m1")
	if err != nil || !claimed || holder != "l1" {
		t.Errorf("Holder = %q/%v/%v, want l1/true/nil", holder, claimed, err)
	}
}

func TestClaimRegistry_Release(t *testing.T) {
	r := NewClaimRegistry()
	ctx := context.Background()

	r.Claim(ctx, "m1", "l1")
	if err := r.Release(ctx, "m1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, claimed, _ := r.Holder(ctx, "m1"); claimed {
		t.Error("movement should be unclaimed after release")
	}

	// Releasing an unclaimed movement is harmless.
	if err := r.Release(ctx, "m1"); err != nil {
		t.Errorf("double release error = %v, want nil", err)
	}

	// The movement is claimable again.
	if err := r.Claim(ctx, "m1", "l2"); err != nil {
		t.Errorf("re-claim after release failed: %v", err)
	}
}

func TestClaimRegistry_RejectsEmptyIDs(t *testing.T) {
	r := NewClaimRegistry()
	ctx := context.Background()

	if err := r.Claim(ctx, "", "l1"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty movement ID error = %v, want ErrValidation", err)
	}
	if err := r.Claim(ctx, "m1", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty line ID error = %v, want ErrValidation", err)
	}
}

// Many goroutines race to claim the same movement; exactly one may win.
func TestClaimRegistry_ConcurrentClaimsAreExclusive(t *testing.T) {
	r := NewClaimRegistry()
	ctx := context.Background()

	const contenders = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := make([]string, 0, 1)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lineID := fmt.Sprintf("line-%d", i)
			if err := r.Claim(ctx, "m1", lineID); err == nil {
				mu.Lock()
				winners = append(winners, lineID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("winners = %d, want exactly 1", len(winners))
	}
	holder, claimed, _ := r.Holder(ctx, "m1")
	if !claimed || holder != winners[0] {
		t.Errorf("Holder = %q, want the single winner %q", holder, winners[0])
	}
}
