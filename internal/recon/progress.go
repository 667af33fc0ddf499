package recon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// Tracker recomputes the derived aggregate state after line mutations: the
// statement's matched count, percentage and status, and the owning account's
// running balance. It is invoked after every tracked mutation; readers never
// derive these values lazily.
type Tracker struct {
	statements store.StatementRepository
	accounts   store.AccountRepository
	log        zerolog.Logger
}

// NewTracker creates a tracker over the given repositories.
func NewTracker(statements store.StatementRepository, accounts store.AccountRepository, log zerolog.Logger) *Tracker {
	return &Tracker{
		statements: statements,
		accounts:   accounts,
		log:        log,
	}
}

// StatementProgress is the persisted aggregate snapshot of one statement.
type StatementProgress struct {
	MatchedLines    int
	MatchPercentage float64
	Status          domain.StatementStatus
}

// RecomputeStatement counts matched lines, derives percentage and status per
// the statement state machine, and persists all three fields.
func (t *Tracker) RecomputeStatement(ctx context.Context, statementID string) (StatementProgress, error) {
	statement, err := t.statements.GetStatement(ctx, statementID)
	if err != nil {
		return StatementProgress{}, fmt.Errorf("recompute statement: %w", err)
	}

	matched := 0
	for _, line := range statement.Lines {
		if line.Status.IsMatched() {
			matched++
		}
	}

	status, err := domain.DeriveStatementStatus(matched, statement.TotalLines)
	if err != nil {
		return StatementProgress{}, fmt.Errorf("recompute statement %s: %w", statementID, err)
	}

	var reconciledAt *time.Time
	if status == domain.StatementStatusReconciled {
		if statement.ReconciledAt != nil {
			reconciledAt = statement.ReconciledAt
		} else {
			now := time.Now()
			reconciledAt = &now
		}
	}

	progress := StatementProgress{
		MatchedLines:    matched,
		MatchPercentage: domain.MatchPercentage(matched, statement.TotalLines),
		Status:          status,
	}

	if err := t.statements.UpdateStatementProgress(ctx, statementID, progress.MatchedLines, progress.MatchPercentage, progress.Status, reconciledAt); err != nil {
		return StatementProgress{}, fmt.Errorf("recompute statement %s: persist: %w", statementID, err)
	}

	t.log.Debug().
		Str("statement_id", statementID).
		Int("matched_lines", progress.MatchedLines).
		Float64("match_percentage", progress.MatchPercentage).
		Str("status", string(progress.Status)).
		Msg("Statement progress recomputed")

	return progress, nil
}

// ApplyBalanceDelta adjusts the account balance incrementally by the signed
// delta of the changed lines. Incremental and full recomputation converge to
// the same value; RecomputeBalance exists for repair and audit.
func (t *Tracker) ApplyBalanceDelta(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	account, err := t.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apply balance delta: %w", err)
	}

	balance := account.CurrentBalance.Add(delta)
	if delta.IsZero() {
		return account.CurrentBalance, nil
	}

	if err := t.accounts.UpdateAccountBalance(ctx, accountID, balance); err != nil {
		return decimal.Zero, fmt.Errorf("apply balance delta: %w", err)
	}

	t.log.Debug().
		Str("account_id", accountID).
		Str("delta", delta.String()).
		Str("balance", balance.String()).
		Msg("Account balance adjusted")

	return balance, nil
}

// RecomputeBalance rebuilds the account balance from scratch:
// InitialBalance plus the signed sum of every matched line across all of the
// account's statements, ordered by line date then import order.
func (t *Tracker) RecomputeBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := t.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("recompute balance: %w", err)
	}

	statements, err := t.statements.ListAccountStatements(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("recompute balance: %w", err)
	}

	type datedLine struct {
		line       *domain.BankStatementLine
		importedAt time.Time
	}

	var matched []datedLine
	for _, statement := range statements {
		for _, line := range statement.Lines {
			if line.Status.IsMatched() {
				matched = append(matched, datedLine{line: line, importedAt: statement.ImportedAt})
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].line.LineDate.Equal(matched[j].line.LineDate) {
			return matched[i].line.LineDate.Before(matched[j].line.LineDate)
		}
		if !matched[i].importedAt.Equal(matched[j].importedAt) {
			return matched[i].importedAt.Before(matched[j].importedAt)
		}
		return matched[i].line.Seq < matched[j].line.Seq
	})

	balance := account.InitialBalance
	for _, entry := range matched {
		balance = balance.Add(entry.line.SignedAmount())
	}

	if err := t.accounts.UpdateAccountBalance(ctx, accountID, balance); err != nil {
		return decimal.Zero, fmt.Errorf("recompute balance: persist: %w", err)
	}

	return balance, nil
}
