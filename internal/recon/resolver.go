package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// Resolver applies human-selected pairings, overriding or supplementing
// automatic results. It uses the same claim primitive as the engine, so a
// manual match can never double-claim a movement.
type Resolver struct {
	statements store.StatementRepository
	pool       store.CandidatePool
	claims     store.ClaimRegistry
	tracker    *Tracker
	exporter   ClaimExporter
	log        zerolog.Logger
}

// NewResolver creates a manual match resolver.
func NewResolver(statements store.StatementRepository, pool store.CandidatePool, claims store.ClaimRegistry, tracker *Tracker, exporter ClaimExporter, log zerolog.Logger) *Resolver {
	return &Resolver{
		statements: statements,
		pool:       pool,
		claims:     claims,
		tracker:    tracker,
		exporter:   exporter,
		log:        log,
	}
}

// ManualMatch pairs a line with a movement chosen by a human. The status
// becomes MANUALLY_MATCHED, distinct from MATCHED, so audit trails show the
// intervention. Re-matching the same line+movement pair is an idempotent
// no-op; a movement held by a different line is a conflict. A line already
// matched to another movement is overridden: the old claim is released.
// The caller must hold the account lock.
func (r *Resolver) ManualMatch(ctx context.Context, tenantID, lineID, movementID string) (*domain.BankStatementLine, error) {
	line, statement, err := r.loadLine(ctx, tenantID, lineID)
	if err != nil {
		return nil, fmt.Errorf("manual match: %w", err)
	}

	movement, err := r.pool.GetMovement(ctx, tenantID, movementID)
	if err != nil {
		return nil, fmt.Errorf("manual match: %w", err)
	}
	if movement.AccountID != statement.AccountID {
		return nil, fmt.Errorf("manual match: movement %s belongs to account %s, line belongs to %s: %w",
			movementID, movement.AccountID, statement.AccountID, domain.ErrValidation)
	}

	// Idempotent re-match of the same pair.
	if line.Status.IsMatched() && line.MatchedMovementID == movementID {
		return line, nil
	}

	if holder, claimed, err := r.claims.Holder(ctx, movementID); err != nil {
		return nil, fmt.Errorf("manual match: claim lookup: %w", asTransient(err))
	} else if claimed && holder != lineID {
		return nil, fmt.Errorf("manual match: movement %s held by line %s: %w", movementID, holder, domain.ErrConflict)
	}

	if err := r.claims.Claim(ctx, movementID, lineID); err != nil {
		return nil, fmt.Errorf("manual match: %w", err)
	}

	wasMatched := line.Status.IsMatched()
	previousMovementID := line.MatchedMovementID

	now := time.Now()
	updated := *line
	updated.Status = domain.LineStatusManuallyMatched
	updated.MatchedMovementID = movementID
	updated.MatchedMovementKind = movement.Kind
	updated.MatchedAt = &now

	if err := r.statements.UpdateLine(ctx, &updated); err != nil {
		if releaseErr := r.claims.Release(ctx, movementID); releaseErr != nil {
			r.log.Error().Err(releaseErr).Str("movement_id", movementID).Msg("Failed to release claim after write failure")
		}
		return nil, fmt.Errorf("manual match: write line: %w", asTransient(err))
	}

	// The override releases the previous claim only after the new state is
	// durable.
	if wasMatched && previousMovementID != "" && previousMovementID != movementID {
		if err := r.claims.Release(ctx, previousMovementID); err != nil {
			r.log.Error().Err(err).Str("movement_id", previousMovementID).Msg("Failed to release overridden claim")
		}
	}

	if _, err := r.tracker.RecomputeStatement(ctx, statement.ID); err != nil {
		return nil, fmt.Errorf("manual match: %w", err)
	}

	// An override does not change the line's balance contribution; a fresh
	// match adds it.
	delta := decimal.Zero
	if !wasMatched {
		delta = updated.SignedAmount()
	}
	if _, err := r.tracker.ApplyBalanceDelta(ctx, statement.AccountID, delta); err != nil {
		return nil, fmt.Errorf("manual match: %w", err)
	}

	record := domain.ClaimRecord{
		MovementID:      movementID,
		MovementKind:    movement.Kind,
		StatementLineID: lineID,
		StatementID:     statement.ID,
		TenantID:        tenantID,
		Manual:          true,
		MatchedAt:       now,
	}
	if err := r.exporter.ExportClaims(ctx, []domain.ClaimRecord{record}); err != nil {
		r.log.Warn().Err(err).Str("line_id", lineID).Msg("Claim export failed, match remains committed")
	}

	r.log.Info().
		Str("line_id", lineID).
		Str("movement_id", movementID).
		Bool("override", wasMatched).
		Msg("Line manually matched")

	return &updated, nil
}

// Unmatch reverses a MATCHED or MANUALLY_MATCHED line back to UNMATCHED,
// releases its claim and re-triggers the trackers. Unmatching an UNMATCHED
// line is a no-op. The caller must hold the account lock.
func (r *Resolver) Unmatch(ctx context.Context, tenantID, lineID string) (*domain.BankStatementLine, error) {
	line, statement, err := r.loadLine(ctx, tenantID, lineID)
	if err != nil {
		return nil, fmt.Errorf("unmatch: %w", err)
	}

	if line.Status == domain.LineStatusUnmatched {
		return line, nil
	}

	releasedMovementID := line.MatchedMovementID

	updated := *line
	updated.Status = domain.LineStatusUnmatched
	updated.MatchedMovementID = ""
	updated.MatchedMovementKind = ""
	updated.MatchedAt = nil

	if err := r.statements.UpdateLine(ctx, &updated); err != nil {
		return nil, fmt.Errorf("unmatch: write line: %w", asTransient(err))
	}

	if err := r.claims.Release(ctx, releasedMovementID); err != nil {
		return nil, fmt.Errorf("unmatch: release claim: %w", asTransient(err))
	}

	if _, err := r.tracker.RecomputeStatement(ctx, statement.ID); err != nil {
		return nil, fmt.Errorf("unmatch: %w", err)
	}
	if _, err := r.tracker.ApplyBalanceDelta(ctx, statement.AccountID, updated.SignedAmount().Neg()); err != nil {
		return nil, fmt.Errorf("unmatch: %w", err)
	}

	r.log.Info().
		Str("line_id", lineID).
		Str("movement_id", releasedMovementID).
		Msg("Line unmatched, claim released")

	return &updated, nil
}

// loadLine fetches a line and its owning statement, enforcing tenant
// isolation.
func (r *Resolver) loadLine(ctx context.Context, tenantID, lineID string) (*domain.BankStatementLine, *domain.BankStatement, error) {
	line, err := r.statements.GetLine(ctx, lineID)
	if err != nil {
		return nil, nil, err
	}

	statement, err := r.statements.GetStatement(ctx, line.StatementID)
	if err != nil {
		return nil, nil, err
	}
	if statement.TenantID != tenantID {
		return nil, nil, fmt.Errorf("line %s: %w", lineID, domain.ErrPermissionDenied)
	}

	return line, statement, nil
}
