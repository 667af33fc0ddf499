package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// Engine runs automatic matching over a statement: it generates and scores
// candidates for every unmatched line, applies the acceptance policy, commits
// the accepted pairings atomically and triggers the trackers once at the end
// of the run.
type Engine struct {
	statements store.StatementRepository
	pool       store.CandidatePool
	claims     store.ClaimRegistry
	tracker    *Tracker
	exporter   ClaimExporter
	cfg        Config
	log        zerolog.Logger
}

// NewEngine creates a matching engine.
func NewEngine(statements store.StatementRepository, pool store.CandidatePool, claims store.ClaimRegistry, tracker *Tracker, exporter ClaimExporter, cfg Config, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}
	return &Engine{
		statements: statements,
		pool:       pool,
		claims:     claims,
		tracker:    tracker,
		exporter:   exporter,
		cfg:        cfg,
		log:        log,
	}, nil
}

// proposal is one staged pairing awaiting commit.
type proposal struct {
	line     *domain.BankStatementLine
	movement *domain.Movement
}

// Run matches every UNMATCHED line of the statement against the candidate
// pool. The run commits all accepted pairings or none: a pool or storage
// failure reports a retryable error with no partial writes. The caller must
// hold the account lock so runs and manual matches on shared claim state do
// not interleave.
func (e *Engine) Run(ctx context.Context, tenantID, statementID string) (domain.ReconciliationResult, error) {
	statement, err := e.statements.GetStatement(ctx, statementID)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("run matching: %w", err)
	}
	if statement.TenantID != tenantID {
		return domain.ReconciliationResult{}, fmt.Errorf("run matching: statement %s: %w", statementID, domain.ErrPermissionDenied)
	}

	unmatched := make([]*domain.BankStatementLine, 0, len(statement.Lines))
	for _, line := range statement.Lines {
		if line.Status == domain.LineStatusUnmatched {
			unmatched = append(unmatched, line)
		}
	}
	if len(unmatched) == 0 {
		return resultFromStatement(statement, 0), nil
	}

	candidates, err := e.fetchCandidates(ctx, statement, unmatched)
	if err != nil {
		return domain.ReconciliationResult{}, err
	}

	proposals, err := e.evaluate(ctx, unmatched, candidates)
	if err != nil {
		return domain.ReconciliationResult{}, err
	}

	applied, err := e.commit(ctx, proposals)
	if err != nil {
		return domain.ReconciliationResult{}, err
	}

	progress, err := e.tracker.RecomputeStatement(ctx, statementID)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("run matching %s: %w", statementID, err)
	}

	delta := decimal.Zero
	for _, p := range applied {
		delta = delta.Add(p.line.SignedAmount())
	}
	if _, err := e.tracker.ApplyBalanceDelta(ctx, statement.AccountID, delta); err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("run matching %s: %w", statementID, err)
	}

	e.export(ctx, statement, applied)

	e.log.Info().
		Str("statement_id", statementID).
		Int("new_matches", len(applied)).
		Int("matched_lines", progress.MatchedLines).
		Int("total_lines", statement.TotalLines).
		Msg("Matching run completed")

	return domain.ReconciliationResult{
		StatementID:     statementID,
		TotalLines:      statement.TotalLines,
		MatchedLines:    progress.MatchedLines,
		MatchPercentage: progress.MatchPercentage,
		NewMatches:      len(applied),
	}, nil
}

// fetchCandidates queries the pool once for the whole run, spanning the
// unmatched lines' dates padded by the configured window, and drops movements
// already claimed elsewhere.
func (e *Engine) fetchCandidates(ctx context.Context, statement *domain.BankStatement, unmatched []*domain.BankStatementLine) ([]*domain.Movement, error) {
	from, to := unmatched[0].LineDate, unmatched[0].LineDate
	for _, line := range unmatched[1:] {
		if line.LineDate.Before(from) {
			from = line.LineDate
		}
		if line.LineDate.After(to) {
			to = line.LineDate
		}
	}
	window := time.Duration(e.cfg.DateWindowDays) * 24 * time.Hour

	candidates, err := e.pool.FindCandidates(ctx, statement.TenantID, statement.AccountID, from.Add(-window), to.Add(window))
	if err != nil {
		return nil, fmt.Errorf("run matching %s: candidate pool: %w", statement.ID, asTransient(err))
	}

	available := make([]*domain.Movement, 0, len(candidates))
	for _, movement := range candidates {
		_, claimed, err := e.claims.Holder(ctx, movement.MovementID)
		if err != nil {
			return nil, fmt.Errorf("run matching %s: claim lookup: %w", statement.ID, asTransient(err))
		}
		if claimed {
			continue
		}
		available = append(available, movement)
	}
	return available, nil
}

// evaluate scores each line independently against the still-available
// candidates and stages accepted pairings. Movements proposed for one line
// are excluded for the rest of the run, independent of persistence ordering.
func (e *Engine) evaluate(ctx context.Context, unmatched []*domain.BankStatementLine, available []*domain.Movement) ([]proposal, error) {
	var proposals []proposal
	inRun := make(map[string]bool)

	for _, line := range unmatched {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run matching: canceled: %w", asTransient(err))
		}

		eligible := make([]*domain.Movement, 0, len(available))
		for _, movement := range available {
			if inRun[movement.MovementID] {
				continue
			}
			if dateDistanceDays(line.LineDate, movement.Date) > e.cfg.DateWindowDays {
				continue
			}
			eligible = append(eligible, movement)
		}

		decision := EvaluateLine(line, eligible, e.cfg)
		switch {
		case decision.Accepted:
			proposals = append(proposals, proposal{line: line, movement: decision.Best.Movement})
			inRun[decision.Best.Movement.MovementID] = true
		case decision.Ambiguous:
			e.log.Debug().
				Str("line_id", line.ID).
				Float64("best_score", decision.Best.Score).
				Msg("Near-tie between candidates, line left unmatched")
		}
	}
	return proposals, nil
}

// commit claims the proposed movements and writes the line states. A claim
// lost to a concurrent run on another account's statement simply drops that
// proposal; a storage failure rolls back everything written by this run.
func (e *Engine) commit(ctx context.Context, proposals []proposal) ([]proposal, error) {
	var applied []proposal
	now := time.Now()

	rollback := func() {
		for _, p := range applied {
			restored := *p.line
			restored.Status = domain.LineStatusUnmatched
			restored.MatchedMovementID = ""
			restored.MatchedMovementKind = ""
			restored.MatchedAt = nil
			if err := e.statements.UpdateLine(ctx, &restored); err != nil {
				e.log.Error().Err(err).Str("line_id", p.line.ID).Msg("Rollback failed to restore line")
			}
			if err := e.claims.Release(ctx, p.movement.MovementID); err != nil {
				e.log.Error().Err(err).Str("movement_id", p.movement.MovementID).Msg("Rollback failed to release claim")
			}
		}
	}

	for _, p := range proposals {
		if err := e.claims.Claim(ctx, p.movement.MovementID, p.line.ID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				e.log.Warn().
					Str("movement_id", p.movement.MovementID).
					Str("line_id", p.line.ID).
					Msg("Movement claimed by a concurrent run, skipping line")
				continue
			}
			rollback()
			return nil, fmt.Errorf("run matching: claim: %w", asTransient(err))
		}

		updated := *p.line
		updated.Status = domain.LineStatusMatched
		updated.MatchedMovementID = p.movement.MovementID
		updated.MatchedMovementKind = p.movement.Kind
		updated.MatchedAt = &now

		if err := e.statements.UpdateLine(ctx, &updated); err != nil {
			if releaseErr := e.claims.Release(ctx, p.movement.MovementID); releaseErr != nil {
				e.log.Error().Err(releaseErr).Str("movement_id", p.movement.MovementID).Msg("Failed to release claim after write failure")
			}
			rollback()
			return nil, fmt.Errorf("run matching: write line %s: %w", p.line.ID, asTransient(err))
		}

		p.line.Status = updated.Status
		p.line.MatchedMovementID = updated.MatchedMovementID
		p.line.MatchedMovementKind = updated.MatchedMovementKind
		p.line.MatchedAt = updated.MatchedAt
		applied = append(applied, p)
	}
	return applied, nil
}

// export emits claim records for the committed matches, best effort.
func (e *Engine) export(ctx context.Context, statement *domain.BankStatement, applied []proposal) {
	if len(applied) == 0 {
		return
	}

	records := make([]domain.ClaimRecord, 0, len(applied))
	for _, p := range applied {
		records = append(records, domain.ClaimRecord{
			MovementID:      p.movement.MovementID,
			MovementKind:    p.movement.Kind,
			StatementLineID: p.line.ID,
			StatementID:     statement.ID,
			TenantID:        statement.TenantID,
			Manual:          false,
			MatchedAt:       *p.line.MatchedAt,
		})
	}

	if err := e.exporter.ExportClaims(ctx, records); err != nil {
		e.log.Warn().Err(err).Str("statement_id", statement.ID).Msg("Claim export failed, matches remain committed")
	}
}

func resultFromStatement(statement *domain.BankStatement, newMatches int) domain.ReconciliationResult {
	return domain.ReconciliationResult{
		StatementID:     statement.ID,
		TotalLines:      statement.TotalLines,
		MatchedLines:    statement.MatchedLines,
		MatchPercentage: statement.MatchPercentage,
		NewMatches:      newMatches,
	}
}

// asTransient classifies infrastructure failures as retryable unless they
// already carry a taxonomy sentinel.
func asTransient(err error) error {
	if errors.Is(err, domain.ErrTransient) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrPermissionDenied) {
		return err
	}
	return fmt.Errorf("%s: %w", err, domain.ErrTransient)
}
