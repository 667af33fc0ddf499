// Package store defines the persistence and candidate-pool interfaces the
// reconciliation engine depends on. Implementations live in subpackages
// (inmemory for single-instance deployments and tests).
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// AccountRepository persists bank accounts.
type AccountRepository interface {
	// CreateAccount stores a new account.
	CreateAccount(ctx context.Context, account *domain.BankAccount) error

	// GetAccount retrieves an account by ID. Returns domain.ErrNotFound if
	// it does not exist.
	GetAccount(ctx context.Context, accountID string) (*domain.BankAccount, error)

	// ListAccounts retrieves all accounts for a tenant.
	ListAccounts(ctx context.Context, tenantID string) ([]*domain.BankAccount, error)

	// UpdateAccountBalance overwrites the derived CurrentBalance. Only the
	// balance tracker calls this.
	UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error

	// SetAccountActive toggles the soft-deactivate flag.
	SetAccountActive(ctx context.Context, accountID string, active bool) error
}

// StatementRepository persists statements together with their lines.
// A statement exclusively owns its lines: they are created with it and
// removed with it, never independently.
type StatementRepository interface {
	// CreateStatement stores a statement and all of its lines.
	CreateStatement(ctx context.Context, statement *domain.BankStatement) error

	// GetStatement retrieves a statement including its lines, ordered by Seq.
	GetStatement(ctx context.Context, statementID string) (*domain.BankStatement, error)

	// ListAccountStatements retrieves every statement of an account,
	// including lines.
	ListAccountStatements(ctx context.Context, accountID string) ([]*domain.BankStatement, error)

	// GetLine retrieves a single line by ID.
	GetLine(ctx context.Context, lineID string) (*domain.BankStatementLine, error)

	// UpdateLine overwrites a line's mutable match fields. The transition
	// from the stored status to the new one must be legal.
	UpdateLine(ctx context.Context, line *domain.BankStatementLine) error

	// UpdateStatementProgress persists the three tracker-derived fields.
	UpdateStatementProgress(ctx context.Context, statementID string, matched int, percentage float64, status domain.StatementStatus, reconciledAt *time.Time) error

	// DeleteStatement removes a statement and its lines.
	DeleteStatement(ctx context.Context, statementID string) error
}

// ClaimRegistry is the global index of which movements are taken. Claim is an
// atomic conditional insert: it succeeds only if the movement is unclaimed or
// already held by the same line, so double-claiming is impossible even under
// concurrent matching runs. Both the automatic and the manual path go through
// this primitive.
type ClaimRegistry interface {
	// Claim associates a movement with a line. Returns domain.ErrConflict if
	// a different line already holds the movement. Claiming the same
	// line+movement pair again is a no-op.
	Claim(ctx context.Context, movementID, lineID string) error

	// Release frees a movement. Releasing an unclaimed movement is a no-op.
	Release(ctx context.Context, movementID string) error

	// Holder returns the line currently holding the movement, if any.
	Holder(ctx context.Context, movementID string) (lineID string, claimed bool, err error)
}

// CandidatePool is the read-only view of internal movements eligible for
// matching. The ledger and payment subsystems own the data behind it.
type CandidatePool interface {
	// FindCandidates returns movements for the tenant and account dated
	// within [dateFrom, dateTo]. The lookup is idempotent.
	FindCandidates(ctx context.Context, tenantID, accountID string, dateFrom, dateTo time.Time) ([]*domain.Movement, error)

	// GetMovement retrieves a single movement visible to the tenant.
	// Returns domain.ErrNotFound if it does not exist.
	GetMovement(ctx context.Context, tenantID, movementID string) (*domain.Movement, error)
}
