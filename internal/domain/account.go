package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies a bank account.
type AccountType string

const (
	AccountTypeChecking AccountType = "CHECKING"
	AccountTypeSavings  AccountType = "SAVINGS"
)

// Valid reports whether the account type is one of the known values.
func (t AccountType) Valid() bool {
	return t == AccountTypeChecking || t == AccountTypeSavings
}

// BankAccount is a tenant-scoped financial account that owns imported
// statements. CurrentBalance is derived: it always equals InitialBalance plus
// the signed sum of every matched line across all of the account's statements.
// Only the balance tracker mutates it.
type BankAccount struct {
	ID            string
	TenantID      string
	Name          string
	BankName      string
	AccountNumber string
	Type          AccountType
	Currency      string

	InitialBalance decimal.Decimal
	CurrentBalance decimal.Decimal

	// Active is cleared instead of deleting the account while statements
	// still reference it.
	Active bool

	// LedgerAccountID links to the chart-of-accounts entry in the ledger
	// subsystem.
	LedgerAccountID string

	CreatedAt time.Time
	UpdatedAt time.Time
}
