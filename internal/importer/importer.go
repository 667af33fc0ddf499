// Package importer turns already-parsed raw statement lines into persisted
// statements, and provides the file adapters (CSV, OFX, GCS fetch) that
// produce raw lines. Adapters are pure producers; the matching engine never
// parses files.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// StatementMeta describes the batch being imported.
type StatementMeta struct {
	TenantID    string    `json:"tenant_id"`
	AccountID   string    `json:"account_id"`
	FileName    string    `json:"file_name"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Importer persists imported statements.
type Importer struct {
	accounts   store.AccountRepository
	statements store.StatementRepository
	log        zerolog.Logger
}

// New creates an importer over the given repositories.
func New(accounts store.AccountRepository, statements store.StatementRepository, log zerolog.Logger) *Importer {
	return &Importer{
		accounts:   accounts,
		statements: statements,
		log:        log,
	}
}

// Import validates the ordered raw line sequence and creates one statement
// plus N UNMATCHED lines. Any invalid line rejects the whole batch and no
// statement is created.
func (i *Importer) Import(ctx context.Context, meta StatementMeta, rawLines []domain.RawLine) (*domain.BankStatement, error) {
	account, err := i.accounts.GetAccount(ctx, meta.AccountID)
	if err != nil {
		return nil, fmt.Errorf("import statement: %w", err)
	}
	if account.TenantID != meta.TenantID {
		return nil, fmt.Errorf("import statement: account %s: %w", meta.AccountID, domain.ErrPermissionDenied)
	}
	if !account.Active {
		return nil, fmt.Errorf("import statement: account %s is deactivated: %w", meta.AccountID, domain.ErrValidation)
	}
	if len(rawLines) == 0 {
		return nil, fmt.Errorf("import statement: no lines: %w", domain.ErrValidation)
	}

	for n, raw := range rawLines {
		if err := ValidateRawLine(raw); err != nil {
			return nil, fmt.Errorf("import statement: line %d: %w", n+1, err)
		}
	}

	now := time.Now()
	statement := &domain.BankStatement{
		ID:          uuid.NewString(),
		AccountID:   meta.AccountID,
		TenantID:    meta.TenantID,
		FileName:    meta.FileName,
		PeriodStart: meta.PeriodStart,
		PeriodEnd:   meta.PeriodEnd,
		Status:      domain.StatementStatusImported,
		TotalLines:  len(rawLines),
		ImportedAt:  now,
	}

	statement.Lines = make([]*domain.BankStatementLine, 0, len(rawLines))
	for n, raw := range rawLines {
		statement.Lines = append(statement.Lines, &domain.BankStatementLine{
			ID:          uuid.NewString(),
			StatementID: statement.ID,
			Seq:         n,
			LineDate:    raw.LineDate,
			Description: raw.Description,
			Reference:   raw.Reference,
			Debit:       raw.Debit,
			Credit:      raw.Credit,
			Balance:     raw.Balance,
			Status:      domain.LineStatusUnmatched,
		})
	}

	if err := i.statements.CreateStatement(ctx, statement); err != nil {
		return nil, fmt.Errorf("import statement: %w", err)
	}

	i.log.Info().
		Str("statement_id", statement.ID).
		Str("account_id", meta.AccountID).
		Str("file_name", meta.FileName).
		Int("total_lines", statement.TotalLines).
		Msg("Statement imported")

	return statement, nil
}

// ValidateRawLine enforces the import contract: non-negative amounts, at most
// one of debit/credit populated, and exactly one of them non-zero.
func ValidateRawLine(raw domain.RawLine) error {
	if raw.LineDate.IsZero() {
		return fmt.Errorf("missing line date: %w", domain.ErrValidation)
	}
	if raw.Debit.IsNegative() || raw.Credit.IsNegative() {
		return fmt.Errorf("negative amount: %w", domain.ErrValidation)
	}
	if !raw.Debit.IsZero() && !raw.Credit.IsZero() {
		return fmt.Errorf("both debit and credit set: %w", domain.ErrValidation)
	}
	if raw.Debit.IsZero() && raw.Credit.IsZero() {
		return fmt.Errorf("neither debit nor credit set: %w", domain.ErrValidation)
	}
	return nil
}
