package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLineStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from LineStatus
		to   LineStatus
		want bool
	}{
		{"unmatched to matched", LineStatusUnmatched, LineStatusMatched, true},
		{"unmatched to manually matched", LineStatusUnmatched, LineStatusManuallyMatched, true},
		{"matched to unmatched", LineStatusMatched, LineStatusUnmatched, true},
		{"matched to manually matched", LineStatusMatched, LineStatusManuallyMatched, true},
		{"manually matched to unmatched", LineStatusManuallyMatched, LineStatusUnmatched, true},
		{"manual override of manual match", LineStatusManuallyMatched, LineStatusManuallyMatched, true},
		{"matched to matched", LineStatusMatched, LineStatusMatched, false},
		{"manually matched to matched", LineStatusManuallyMatched, LineStatusMatched, false},
		{"unmatched to unknown", LineStatusUnmatched, LineStatus("BOGUS"), false},
		{"unknown source", LineStatus("BOGUS"), LineStatusMatched, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestLineStatus_IsMatched(t *testing.T) {
	if LineStatusUnmatched.IsMatched() {
		t.Error("UNMATCHED should not count as matched")
	}
	if !LineStatusMatched.IsMatched() {
		t.Error("MATCHED should count as matched")
	}
	if !LineStatusManuallyMatched.IsMatched() {
		t.Error("MANUALLY_MATCHED should count as matched")
	}
}

func TestDeriveStatementStatus(t *testing.T) {
	tests := []struct {
		name    string
		matched int
		total   int
		want    StatementStatus
		wantErr bool
	}{
		{"none matched", 0, 4, StatementStatusImported, false},
		{"some matched", 3, 4, StatementStatusPartiallyReconciled, false},
		{"all matched", 4, 4, StatementStatusReconciled, false},
		{"single line matched", 1, 1, StatementStatusReconciled, false},
		{"zero lines", 0, 0, StatementStatusReconciled, false},
		{"matched exceeds total", 5, 4, "", true},
		{"negative matched", -1, 4, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveStatementStatus(tt.matched, tt.total)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DeriveStatementStatus(%d, %d) error = %v, wantErr %v", tt.matched, tt.total, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("error = %v, want ErrValidation", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("DeriveStatementStatus(%d, %d) = %s, want %s", tt.matched, tt.total, got, tt.want)
			}
		})
	}
}

func TestMatchPercentage(t *testing.T) {
	tests := []struct {
		matched int
		total   int
		want    float64
	}{
		{0, 4, 0},
		{3, 4, 75.00},
		{4, 4, 100.00},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{0, 0, 0},
	}

	for _, tt := range tests {
		got := MatchPercentage(tt.matched, tt.total)
		if got != tt.want {
			t.Errorf("MatchPercentage(%d, %d) = %v, want %v", tt.matched, tt.total, got, tt.want)
		}
	}
}

func TestBankStatementLine_SignedAmount(t *testing.T) {
	credit := &BankStatementLine{Credit: decimal.NewFromFloat(100.50)}
	if !credit.SignedAmount().Equal(decimal.NewFromFloat(100.50)) {
		t.Errorf("credit line SignedAmount = %s, want 100.5", credit.SignedAmount())
	}

	debit := &BankStatementLine{Debit: decimal.NewFromFloat(42.25)}
	if !debit.SignedAmount().Equal(decimal.NewFromFloat(-42.25)) {
		t.Errorf("debit line SignedAmount = %s, want -42.25", debit.SignedAmount())
	}
}
