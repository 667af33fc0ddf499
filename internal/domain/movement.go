package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementKind distinguishes the two sources of internal movements.
type MovementKind string

const (
	MovementKindJournalEntry MovementKind = "JOURNAL_ENTRY"
	MovementKindPayment      MovementKind = "PAYMENT"
)

// Valid reports whether the kind is one of the known movement sources.
func (k MovementKind) Valid() bool {
	return k == MovementKindJournalEntry || k == MovementKindPayment
}

// Movement is an internal financial movement (journal entry or recorded
// payment) eligible to be matched against a statement line. The candidate
// pool exposes these read-only; this module never mutates them.
type Movement struct {
	MovementID string       `json:"movement_id"`
	Kind       MovementKind `json:"kind"`
	TenantID   string       `json:"tenant_id"`
	AccountID  string       `json:"account_id"`

	// Amount is signed from the bank's perspective: positive increases the
	// bank balance, negative decreases it.
	Amount decimal.Decimal `json:"amount"`

	Date      time.Time `json:"date"`
	Reference string    `json:"reference,omitempty"`
}

// RawLine is one already-validated record from the statement parsing adapter.
// The importer turns an ordered sequence of these into a statement plus its
// UNMATCHED lines.
type RawLine struct {
	LineDate    time.Time        `json:"line_date"`
	Description string           `json:"description"`
	Reference   string           `json:"reference,omitempty"`
	Debit       decimal.Decimal  `json:"debit"`
	Credit      decimal.Decimal  `json:"credit"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
}

// ClaimRecord is the outbound notification emitted when a line claims a
// movement. The ledger subsystem may use it to mark the movement reconciled
// on its own side.
type ClaimRecord struct {
	MovementID      string
	MovementKind    MovementKind
	StatementLineID string
	StatementID     string
	TenantID        string
	Manual          bool
	MatchedAt       time.Time
}
