package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// StatementStatus is the aggregate reconciliation state of one imported
// statement. It is derived from the line states, never set directly.
type StatementStatus string

const (
	StatementStatusImported            StatementStatus = "IMPORTED"
	StatementStatusPartiallyReconciled StatementStatus = "PARTIALLY_RECONCILED"
	StatementStatusReconciled          StatementStatus = "RECONCILED"
)

// LineStatus is the reconciliation state of a single statement line.
type LineStatus string

const (
	LineStatusUnmatched       LineStatus = "UNMATCHED"
	LineStatusMatched         LineStatus = "MATCHED"
	LineStatusManuallyMatched LineStatus = "MANUALLY_MATCHED"
)

// IsMatched reports whether the line claims an internal movement.
func (s LineStatus) IsMatched() bool {
	return s == LineStatusMatched || s == LineStatusManuallyMatched
}

// CanTransition reports whether a line may move from s to next.
// UNMATCHED lines may be matched either automatically or manually; matched
// lines may be unmatched or overridden by a manual match. Everything else is
// rejected so illegal states never reach storage.
func (s LineStatus) CanTransition(next LineStatus) bool {
	switch s {
	case LineStatusUnmatched:
		return next == LineStatusMatched || next == LineStatusManuallyMatched
	case LineStatusMatched:
		return next == LineStatusUnmatched || next == LineStatusManuallyMatched
	case LineStatusManuallyMatched:
		return next == LineStatusUnmatched || next == LineStatusManuallyMatched
	}
	return false
}

// BankStatement is one imported batch of bank-reported lines. Lines attach at
// creation and are never added later; a new statement covers a new period.
type BankStatement struct {
	ID        string
	AccountID string
	TenantID  string
	FileName  string

	PeriodStart time.Time
	PeriodEnd   time.Time

	Status          StatementStatus
	TotalLines      int
	MatchedLines    int
	MatchPercentage float64

	ImportedAt   time.Time
	ReconciledAt *time.Time

	Lines []*BankStatementLine
}

// BankStatementLine is one bank-reported movement inside a statement. At most
// one of Debit/Credit is non-zero; debit decreases the bank balance, credit
// increases it.
type BankStatementLine struct {
	ID          string
	StatementID string

	// Seq preserves the import order inside the statement.
	Seq int

	LineDate    time.Time
	Description string
	Reference   string

	Debit  decimal.Decimal
	Credit decimal.Decimal

	// Balance is the running balance as reported by the bank, when present.
	Balance *decimal.Decimal

	Status LineStatus

	// MatchedMovementID and MatchedMovementKind identify the claimed internal
	// movement. Both are set exactly when Status != UNMATCHED.
	MatchedMovementID   string
	MatchedMovementKind MovementKind
	MatchedAt           *time.Time
}

// SignedAmount is the line's effect on the bank balance: Credit - Debit.
func (l *BankStatementLine) SignedAmount() decimal.Decimal {
	return l.Credit.Sub(l.Debit)
}

// MatchPercentage computes the 2-decimal matched percentage for a statement.
func MatchPercentage(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(matched)/float64(total)*100*100) / 100
}

// DeriveStatementStatus maps line counts onto the statement state machine:
// zero matched lines is IMPORTED, all matched is RECONCILED, anything in
// between is PARTIALLY_RECONCILED.
func DeriveStatementStatus(matched, total int) (StatementStatus, error) {
	if matched < 0 || total < 0 || matched > total {
		return "", fmt.Errorf("derive statement status: invalid counts %d/%d: %w", matched, total, ErrValidation)
	}
	switch {
	case matched == 0:
		return StatementStatusImported, nil
	case matched == total:
		return StatementStatusReconciled, nil
	default:
		return StatementStatusPartiallyReconciled, nil
	}
}

// ReconciliationResult summarizes one matching run. It is returned to the
// caller and never persisted.
type ReconciliationResult struct {
	StatementID     string  `json:"statement_id"`
	TotalLines      int     `json:"total_lines"`
	MatchedLines    int     `json:"matched_lines"`
	MatchPercentage float64 `json:"match_percentage"`
	NewMatches      int     `json:"new_matches"`
}
