package recon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/importer"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// Service is the reconciliation orchestrator: the unit the API layer invokes.
// It sequences import, matching runs, manual resolution and the trackers, and
// serializes all claim-mutating work per account so runs and manual matches
// on shared claim state never interleave.
type Service struct {
	accounts   store.AccountRepository
	statements store.StatementRepository
	pool       store.CandidatePool
	claims     store.ClaimRegistry
	engine     *Engine
	resolver   *Resolver
	tracker    *Tracker
	importer   *importer.Importer
	log        zerolog.Logger

	mu           sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// NewService wires the reconciliation components over the given stores.
func NewService(accounts store.AccountRepository, statements store.StatementRepository, pool store.CandidatePool, claims store.ClaimRegistry, exporter ClaimExporter, cfg Config, log zerolog.Logger) (*Service, error) {
	tracker := NewTracker(statements, accounts, log)
	engine, err := NewEngine(statements, pool, claims, tracker, exporter, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("new service: %w", err)
	}

	return &Service{
		accounts:     accounts,
		statements:   statements,
		pool:         pool,
		claims:       claims,
		engine:       engine,
		resolver:     NewResolver(statements, pool, claims, tracker, exporter, log),
		tracker:      tracker,
		importer:     importer.New(accounts, statements, log),
		log:          log,
		accountLocks: make(map[string]*sync.Mutex),
	}, nil
}

// lockAccount serializes claim commits per account. Claims span statements,
// so the account is the conservative transaction scope.
func (s *Service) lockAccount(accountID string) func() {
	s.mu.Lock()
	lock, exists := s.accountLocks[accountID]
	if !exists {
		lock = &sync.Mutex{}
		s.accountLocks[accountID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CreateAccount registers a bank account. CurrentBalance starts at
// InitialBalance.
func (s *Service) CreateAccount(ctx context.Context, account *domain.BankAccount) (*domain.BankAccount, error) {
	if account.TenantID == "" || account.Name == "" {
		return nil, fmt.Errorf("create account: tenant and name are required: %w", domain.ErrValidation)
	}
	if !account.Type.Valid() {
		return nil, fmt.Errorf("create account: unknown account type %q: %w", account.Type, domain.ErrValidation)
	}

	now := time.Now()
	cp := *account
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CurrentBalance = cp.InitialBalance
	cp.Active = true
	cp.CreatedAt = now
	cp.UpdatedAt = now

	if err := s.accounts.CreateAccount(ctx, &cp); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.log.Info().Str("account_id", cp.ID).Str("tenant_id", cp.TenantID).Msg("Bank account created")
	return &cp, nil
}

// DeactivateAccount soft-deactivates an account. Accounts are never deleted
// while statements reference them.
func (s *Service) DeactivateAccount(ctx context.Context, tenantID, accountID string) error {
	if _, err := s.tenantAccount(ctx, tenantID, accountID); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	if err := s.accounts.SetAccountActive(ctx, accountID, false); err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	return nil
}

// ListAccounts returns the tenant's accounts.
func (s *Service) ListAccounts(ctx context.Context, tenantID string) ([]*domain.BankAccount, error) {
	return s.accounts.ListAccounts(ctx, tenantID)
}

// ImportStatement validates the raw lines from the parsing adapter and
// persists one statement plus its UNMATCHED lines.
func (s *Service) ImportStatement(ctx context.Context, meta importer.StatementMeta, rawLines []domain.RawLine) (*domain.BankStatement, error) {
	return s.importer.Import(ctx, meta, rawLines)
}

// RunMatching executes an automatic matching run over the statement.
func (s *Service) RunMatching(ctx context.Context, tenantID, statementID string) (domain.ReconciliationResult, error) {
	statement, err := s.tenantStatement(ctx, tenantID, statementID)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("run matching: %w", err)
	}

	unlock := s.lockAccount(statement.AccountID)
	defer unlock()

	return s.engine.Run(ctx, tenantID, statementID)
}

// ManualMatch applies a human-selected pairing of a line and a movement.
func (s *Service) ManualMatch(ctx context.Context, tenantID, lineID, movementID string) (*domain.BankStatementLine, error) {
	statement, err := s.lineStatement(ctx, tenantID, lineID)
	if err != nil {
		return nil, fmt.Errorf("manual match: %w", err)
	}

	unlock := s.lockAccount(statement.AccountID)
	defer unlock()

	return s.resolver.ManualMatch(ctx, tenantID, lineID, movementID)
}

// Unmatch reverses a matched line back to UNMATCHED.
func (s *Service) Unmatch(ctx context.Context, tenantID, lineID string) (*domain.BankStatementLine, error) {
	statement, err := s.lineStatement(ctx, tenantID, lineID)
	if err != nil {
		return nil, fmt.Errorf("unmatch: %w", err)
	}

	unlock := s.lockAccount(statement.AccountID)
	defer unlock()

	return s.resolver.Unmatch(ctx, tenantID, lineID)
}

// GetStatement returns a statement with its lines.
func (s *Service) GetStatement(ctx context.Context, tenantID, statementID string) (*domain.BankStatement, error) {
	return s.tenantStatement(ctx, tenantID, statementID)
}

// ListStatements returns every statement of an account.
func (s *Service) ListStatements(ctx context.Context, tenantID, accountID string) ([]*domain.BankStatement, error) {
	if _, err := s.tenantAccount(ctx, tenantID, accountID); err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	return s.statements.ListAccountStatements(ctx, accountID)
}

// GetReconciliationResult reports the statement's current reconciliation
// snapshot. The tracker keeps the persisted aggregates consistent, so this is
// a plain read.
func (s *Service) GetReconciliationResult(ctx context.Context, tenantID, statementID string) (domain.ReconciliationResult, error) {
	statement, err := s.tenantStatement(ctx, tenantID, statementID)
	if err != nil {
		return domain.ReconciliationResult{}, fmt.Errorf("get reconciliation result: %w", err)
	}
	return resultFromStatement(statement, 0), nil
}

// DeleteStatement administratively removes a statement, releasing its claims
// and rolling its matched contribution back out of the account balance.
func (s *Service) DeleteStatement(ctx context.Context, tenantID, statementID string) error {
	statement, err := s.tenantStatement(ctx, tenantID, statementID)
	if err != nil {
		return fmt.Errorf("delete statement: %w", err)
	}

	unlock := s.lockAccount(statement.AccountID)
	defer unlock()

	// Re-read under the lock so the delta reflects the final line states.
	statement, err = s.statements.GetStatement(ctx, statementID)
	if err != nil {
		return fmt.Errorf("delete statement: %w", err)
	}

	delta := decimal.Zero
	for _, line := range statement.Lines {
		if !line.Status.IsMatched() {
			continue
		}
		delta = delta.Add(line.SignedAmount())
		if err := s.claims.Release(ctx, line.MatchedMovementID); err != nil {
			return fmt.Errorf("delete statement: release claim %s: %w", line.MatchedMovementID, asTransient(err))
		}
	}

	if err := s.statements.DeleteStatement(ctx, statementID); err != nil {
		return fmt.Errorf("delete statement: %w", err)
	}
	if _, err := s.tracker.ApplyBalanceDelta(ctx, statement.AccountID, delta.Neg()); err != nil {
		return fmt.Errorf("delete statement: %w", err)
	}

	s.log.Info().Str("statement_id", statementID).Msg("Statement deleted, balance contribution rolled back")
	return nil
}

// RecomputeAccountBalance rebuilds the account balance from all matched
// lines. Repair and audit path; converges with the incremental updates.
func (s *Service) RecomputeAccountBalance(ctx context.Context, tenantID, accountID string) (decimal.Decimal, error) {
	if _, err := s.tenantAccount(ctx, tenantID, accountID); err != nil {
		return decimal.Zero, fmt.Errorf("recompute account balance: %w", err)
	}

	unlock := s.lockAccount(accountID)
	defer unlock()

	return s.tracker.RecomputeBalance(ctx, accountID)
}

func (s *Service) tenantAccount(ctx context.Context, tenantID, accountID string) (*domain.BankAccount, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TenantID != tenantID {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrPermissionDenied)
	}
	return account, nil
}

func (s *Service) tenantStatement(ctx context.Context, tenantID, statementID string) (*domain.BankStatement, error) {
	statement, err := s.statements.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if statement.TenantID != tenantID {
		return nil, fmt.Errorf("statement %s: %w", statementID, domain.ErrPermissionDenied)
	}
	return statement, nil
}

func (s *Service) lineStatement(ctx context.Context, tenantID, lineID string) (*domain.BankStatement, error) {
	line, err := s.statements.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	return s.tenantStatement(ctx, tenantID, line.StatementID)
}
