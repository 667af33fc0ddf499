// Package inmemory provides mutex-guarded implementations of the store
// interfaces. Data is lost on restart - for multi-instance deployments,
// migrate to a database-backed store.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// Store holds accounts, statements and lines in memory. It is safe for
// concurrent use and hands out defensive copies so callers cannot mutate
// stored state behind its back.
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]*domain.BankAccount
	statements map[string]*domain.BankStatement
	// lineIndex maps line ID to its owning statement ID.
	lineIndex map[string]string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts:   make(map[string]*domain.BankAccount),
		statements: make(map[string]*domain.BankStatement),
		lineIndex:  make(map[string]string),
	}
}

// CreateAccount implements store.AccountRepository.
func (s *Store) CreateAccount(ctx context.Context, account *domain.BankAccount) error {
	if account.ID == "" {
		return fmt.Errorf("create account: missing ID: %w", domain.ErrValidation)
	}
	if !account.Type.Valid() {
		return fmt.Errorf("create account: unknown account type %q: %w", account.Type, domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("create account %s: %w", account.ID, domain.ErrConflict)
	}

	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

// GetAccount implements store.AccountRepository.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[accountID]
	if !exists {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}

	cp := *account
	return &cp, nil
}

// ListAccounts implements store.AccountRepository.
func (s *Store) ListAccounts(ctx context.Context, tenantID string) ([]*domain.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BankAccount
	for _, account := range s.accounts {
		if account.TenantID != tenantID {
			continue
		}
		cp := *account
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// UpdateAccountBalance implements store.AccountRepository.
func (s *Store) UpdateAccountBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[accountID]
	if !exists {
		return fmt.Errorf("update balance: account %s: %w", accountID, domain.ErrNotFound)
	}

	account.CurrentBalance = balance
	account.UpdatedAt = time.Now()
	return nil
}

// SetAccountActive implements store.AccountRepository.
func (s *Store) SetAccountActive(ctx context.Context, accountID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, exists := s.accounts[accountID]
	if !exists {
		return fmt.Errorf("set active: account %s: %w", accountID, domain.ErrNotFound)
	}

	account.Active = active
	account.UpdatedAt = time.Now()
	return nil
}

// CreateStatement implements store.StatementRepository.
func (s *Store) CreateStatement(ctx context.Context, statement *domain.BankStatement) error {
	if statement.ID == "" {
		return fmt.Errorf("create statement: missing ID: %w", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.statements[statement.ID]; exists {
		return fmt.Errorf("create statement %s: %w", statement.ID, domain.ErrConflict)
	}
	if _, exists := s.accounts[statement.AccountID]; !exists {
		return fmt.Errorf("create statement: account %s: %w", statement.AccountID, domain.ErrNotFound)
	}

	cp := copyStatement(statement)
	s.statements[statement.ID] = cp
	for _, line := range cp.Lines {
		s.lineIndex[line.ID] = statement.ID
	}
	return nil
}

// GetStatement implements store.StatementRepository.
func (s *Store) GetStatement(ctx context.Context, statementID string) (*domain.BankStatement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statement, exists := s.statements[statementID]
	if !exists {
		return nil, fmt.Errorf("statement %s: %w", statementID, domain.ErrNotFound)
	}

	return copyStatement(statement), nil
}

// ListAccountStatements implements store.StatementRepository.
func (s *Store) ListAccountStatements(ctx context.Context, accountID string) ([]*domain.BankStatement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BankStatement
	for _, statement := range s.statements {
		if statement.AccountID != accountID {
			continue
		}
		result = append(result, copyStatement(statement))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ImportedAt.Before(result[j].ImportedAt)
	})
	return result, nil
}

// GetLine implements store.StatementRepository.
func (s *Store) GetLine(ctx context.Context, lineID string) (*domain.BankStatementLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, err := s.findLine(lineID)
	if err != nil {
		return nil, err
	}

	cp := *line
	return &cp, nil
}

// UpdateLine implements store.StatementRepository. The status transition from
// the stored line to the new one is validated here so illegal transitions
// never reach storage, regardless of which component attempted them.
func (s *Store) UpdateLine(ctx context.Context, line *domain.BankStatementLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.findLine(line.ID)
	if err != nil {
		return err
	}

	if stored.Status != line.Status && !stored.Status.CanTransition(line.Status) {
		return fmt.Errorf("update line %s: illegal transition %s -> %s: %w",
			line.ID, stored.Status, line.Status, domain.ErrValidation)
	}

	stored.Status = line.Status
	stored.MatchedMovementID = line.MatchedMovementID
	stored.MatchedMovementKind = line.MatchedMovementKind
	stored.MatchedAt = line.MatchedAt
	return nil
}

// UpdateStatementProgress implements store.StatementRepository.
func (s *Store) UpdateStatementProgress(ctx context.Context, statementID string, matched int, percentage float64, status domain.StatementStatus, reconciledAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statement, exists := s.statements[statementID]
	if !exists {
		return fmt.Errorf("update progress: statement %s: %w", statementID, domain.ErrNotFound)
	}

	statement.MatchedLines = matched
	statement.MatchPercentage = percentage
	statement.Status = status
	statement.ReconciledAt = reconciledAt
	return nil
}

// DeleteStatement implements store.StatementRepository.
func (s *Store) DeleteStatement(ctx context.Context, statementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statement, exists := s.statements[statementID]
	if !exists {
		return fmt.Errorf("delete statement %s: %w", statementID, domain.ErrNotFound)
	}

	for _, line := range statement.Lines {
		delete(s.lineIndex, line.ID)
	}
	delete(s.statements, statementID)
	return nil
}

// findLine locates a stored line. Callers must hold s.mu.
func (s *Store) findLine(lineID string) (*domain.BankStatementLine, error) {
	statementID, exists := s.lineIndex[lineID]
	if !exists {
		return nil, fmt.Errorf("line %s: %w", lineID, domain.ErrNotFound)
	}
	statement := s.statements[statementID]
	for _, line := range statement.Lines {
		if line.ID == lineID {
			return line, nil
		}
	}
	return nil, fmt.Errorf("line %s: %w", lineID, domain.ErrNotFound)
}

func copyStatement(statement *domain.BankStatement) *domain.BankStatement {
	cp := *statement
	cp.Lines = make([]*domain.BankStatementLine, len(statement.Lines))
	for i, line := range statement.Lines {
		lineCopy := *line
		cp.Lines[i] = &lineCopy
	}
	sort.Slice(cp.Lines, func(i, j int) bool { return cp.Lines[i].Seq < cp.Lines[j].Seq })
	return &cp
}

// Ensure Store implements the repository interfaces.
var _ store.AccountRepository = (*Store)(nil)
var _ store.StatementRepository = (*Store)(nil)
