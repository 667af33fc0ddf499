package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store/inmemory"
)

func newTestImporter(t *testing.T) (*Importer, *inmemory.Store, *domain.BankAccount) {
	t.Helper()

	store := inmemory.NewStore()
	account := &domain.BankAccount{
		ID:       "acc-1",
		TenantID: "t1",
		Name:     "checking",
		Type:     domain.AccountTypeChecking,
		Currency: "EUR",
		Active:   true,
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return New(store, store, zerolog.Nop()), store, account
}

func validRawLine(amount float64) domain.RawLine {
	return domain.RawLine{
		LineDate:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Description: "payment",
		Credit:      decimal.NewFromFloat(amount),
	}
}

func TestImport(t *testing.T) {
	imp, store, account := newTestImporter(t)
	ctx := context.Background()

	statement, err := imp.Import(ctx, StatementMeta{
		TenantID:  "t1",
		AccountID: account.ID,
		FileName:  "march.csv",
	}, []domain.RawLine{validRawLine(100), validRawLine(50)})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if statement.Status != domain.StatementStatusImported {
		t.Errorf("Status = %s, want IMPORTED", statement.Status)
	}
	if statement.TotalLines != 2 || statement.MatchedLines != 0 {
		t.Errorf("counts = %d/%d, want 2 total / 0 matched", statement.TotalLines, statement.MatchedLines)
	}
	for i, line := range statement.Lines {
		if line.Status != domain.LineStatusUnmatched {
			t.Errorf("line %d status = %s, want UNMATCHED", i, line.Status)
		}
		if line.Seq != i {
			t.Errorf("line %d Seq = %d, import order must be preserved", i, line.Seq)
		}
		if line.ID == "" || line.StatementID != statement.ID {
			t.Errorf("line %d has bad identity %q/%q", i, line.ID, line.StatementID)
		}
	}

	// The statement is persisted.
	stored, err := store.GetStatement(ctx, statement.ID)
	if err != nil {
		t.Fatalf("GetStatement failed: %v", err)
	}
	if len(stored.Lines) != 2 {
		t.Errorf("stored lines = %d, want 2", len(stored.Lines))
	}
}

func TestImport_Rejections(t *testing.T) {
	imp, _, account := newTestImporter(t)
	ctx := context.Background()

	meta := StatementMeta{TenantID: "t1", AccountID: account.ID, FileName: "march.csv"}

	tests := []struct {
		name    string
		meta    StatementMeta
		lines   []domain.RawLine
		wantErr error
	}{
		{
			name:    "unknown account",
			meta:    StatementMeta{TenantID: "t1", AccountID: "missing"},
			lines:   []domain.RawLine{validRawLine(1)},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "wrong tenant",
			meta:    StatementMeta{TenantID: "t2", AccountID: account.ID},
			lines:   []domain.RawLine{validRawLine(1)},
			wantErr: domain.ErrPermissionDenied,
		},
		{
			name:    "empty batch",
			meta:    meta,
			lines:   nil,
			wantErr: domain.ErrValidation,
		},
		{
			name: "line with both debit and credit",
			meta: meta,
			lines: []domain.RawLine{{
				LineDate:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
				Description: "bad",
				Debit:       decimal.NewFromInt(1),
				Credit:      decimal.NewFromInt(1),
			}},
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := imp.Import(ctx, tt.meta, tt.lines)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestImport_OneBadLineRejectsWholeBatch(t *testing.T) {
	imp, store, account := newTestImporter(t)
	ctx := context.Background()

	_, err := imp.Import(ctx, StatementMeta{
		TenantID:  "t1",
		AccountID: account.ID,
		FileName:  "march.csv",
	}, []domain.RawLine{
		validRawLine(100),
		{LineDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Description: "zero amount"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}

	// Nothing was persisted.
	statements, _ := store.ListAccountStatements(ctx, account.ID)
	if len(statements) != 0 {
		t.Errorf("statements = %d, want 0 after rejected batch", len(statements))
	}
}

func TestValidateRawLine(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		line    domain.RawLine
		wantErr bool
	}{
		{"valid credit", domain.RawLine{LineDate: date, Credit: decimal.NewFromInt(5)}, false},
		{"valid debit", domain.RawLine{LineDate: date, Debit: decimal.NewFromInt(5)}, false},
		{"zero date", domain.RawLine{Credit: decimal.NewFromInt(5)}, true},
		{"negative debit", domain.RawLine{LineDate: date, Debit: decimal.NewFromInt(-5)}, true},
		{"negative credit", domain.RawLine{LineDate: date, Credit: decimal.NewFromInt(-5)}, true},
		{"both set", domain.RawLine{LineDate: date, Debit: decimal.NewFromInt(5), Credit: decimal.NewFromInt(5)}, true},
		{"neither set", domain.RawLine{LineDate: date}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRawLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRawLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}
