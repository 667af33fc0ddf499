package recon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

var scoreDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func creditLine(amount float64, reference string) *domain.BankStatementLine {
	return &domain.BankStatementLine{
		ID:          "line-1",
		LineDate:    scoreDate,
		Description: "incoming transfer",
		Reference:   reference,
		Credit:      decimal.NewFromFloat(amount),
		Status:      domain.LineStatusUnmatched,
	}
}

func movement(id string, amount float64, date time.Time, reference string) *domain.Movement {
	return &domain.Movement{
		MovementID: id,
		Kind:       domain.MovementKindJournalEntry,
		TenantID:   "t1",
		AccountID:  "acc-1",
		Amount:     decimal.NewFromFloat(amount),
		Date:       date,
		Reference:  reference,
	}
}

func TestScoreCandidate(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name            string
		line            *domain.BankStatementLine
		movement        *domain.Movement
		wantExact       bool
		wantScore       float64
		wantDateDays    int
	}{
		{
			name:         "exact amount same day exact reference",
			line:         creditLine(100.00, "INV-2041"),
			movement:     movement("m1", 100.00, scoreDate, "INV-2041"),
			wantExact:    true,
			wantScore:    100, // 60 + 25 + 15
			wantDateDays: 0,
		},
		{
			name:         "exact amount one day off no reference",
			line:         creditLine(100.00, ""),
			movement:     movement("m1", 100.00, scoreDate.AddDate(0, 0, 1), ""),
			wantExact:    true,
			wantScore:    72.5, // 60 + 25/2
			wantDateDays: 1,
		},
		{
			name:         "amount mismatch",
			line:         creditLine(100.00, ""),
			movement:     movement("m1", 90.00, scoreDate, ""),
			wantExact:    false,
			wantScore:    25, // date bonus only
			wantDateDays: 0,
		},
		{
			name:         "sign mismatch is never exact",
			line:         creditLine(100.00, ""),
			movement:     movement("m1", -100.00, scoreDate, ""),
			wantExact:    false,
			wantScore:    25,
			wantDateDays: 0,
		},
		{
			name:         "within epsilon counts as exact",
			line:         creditLine(100.004, ""),
			movement:     movement("m1", 100.00, scoreDate, ""),
			wantExact:    true,
			wantScore:    85,
			wantDateDays: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreCandidate(tt.line, tt.movement, cfg)
			if got.AmountExact != tt.wantExact {
				t.Errorf("AmountExact = %v, want %v", got.AmountExact, tt.wantExact)
			}
			if got.Score != tt.wantScore {
				t.Errorf("Score = %v, want %v", got.Score, tt.wantScore)
			}
			if got.DateDistanceDays != tt.wantDateDays {
				t.Errorf("DateDistanceDays = %d, want %d", got.DateDistanceDays, tt.wantDateDays)
			}
		})
	}
}

func TestScoreCandidate_ZeroAmountLineNeverExact(t *testing.T) {
	line := &domain.BankStatementLine{LineDate: scoreDate, Status: domain.LineStatusUnmatched}
	got := ScoreCandidate(line, movement("m1", 0, scoreDate, ""), DefaultConfig())
	if got.AmountExact {
		t.Error("zero-amount line must never be an exact amount match")
	}
}

func TestEvaluateLine(t *testing.T) {
	cfg := DefaultConfig()
	line := creditLine(100.00, "INV-2041")

	t.Run("no candidates", func(t *testing.T) {
		decision := EvaluateLine(line, nil, cfg)
		if decision.Best != nil || decision.Accepted || decision.Ambiguous {
			t.Errorf("empty candidate set should yield an empty decision, got %+v", decision)
		}
	})

	t.Run("single exact candidate accepted", func(t *testing.T) {
		decision := EvaluateLine(line, []*domain.Movement{
			movement("m1", 100.00, scoreDate, "INV-2041"),
		}, cfg)
		if !decision.Accepted {
			t.Fatalf("expected acceptance, got %+v", decision)
		}
		if decision.Best.Movement.MovementID != "m1" {
			t.Errorf("Best = %s, want m1", decision.Best.Movement.MovementID)
		}
	})

	t.Run("clear winner among rivals", func(t *testing.T) {
		decision := EvaluateLine(line, []*domain.Movement{
			movement("m1", 100.00, scoreDate, "INV-2041"),
			movement("m2", 100.00, scoreDate.AddDate(0, 0, 3), ""),
		}, cfg)
		if !decision.Accepted {
			t.Fatalf("expected acceptance, got %+v", decision)
		}
		if decision.Best.Movement.MovementID != "m1" {
			t.Errorf("Best = %s, want m1", decision.Best.Movement.MovementID)
		}
	})

	t.Run("near tie rejected", func(t *testing.T) {
		decision := EvaluateLine(line, []*domain.Movement{
			movement("m1", 100.00, scoreDate, "INV-2041"),
			movement("m2", 100.00, scoreDate, "INV-2041"),
		}, cfg)
		if decision.Accepted {
			t.Fatal("tied candidates must not be auto-accepted")
		}
		if !decision.Ambiguous {
			t.Error("expected Ambiguous to be set")
		}
	})

	t.Run("inexact amount rejected even above threshold", func(t *testing.T) {
		cfgLow := cfg
		cfgLow.AcceptThreshold = 20
		decision := EvaluateLine(line, []*domain.Movement{
			movement("m1", 90.00, scoreDate, "INV-2041"),
		}, cfgLow)
		if decision.Accepted {
			t.Error("amount mismatch must gate acceptance regardless of score")
		}
	})

	t.Run("below threshold rejected", func(t *testing.T) {
		cfgHigh := cfg
		cfgHigh.AcceptThreshold = 90
		decision := EvaluateLine(line, []*domain.Movement{
			movement("m1", 100.00, scoreDate.AddDate(0, 0, 2), ""),
		}, cfgHigh)
		if decision.Accepted {
			t.Error("score below threshold must not be accepted")
		}
	})
}

func TestReferenceSimilarity(t *testing.T) {
	tests := []struct {
		name      string
		line      *domain.BankStatementLine
		reference string
		want      float64
	}{
		{
			name:      "exact reference",
			line:      &domain.BankStatementLine{Reference: "INV-2041"},
			reference: "INV-2041",
			want:      1,
		},
		{
			name:      "substring of description",
			line:      &domain.BankStatementLine{Description: "payment for INV-2041 march"},
			reference: "INV-2041",
			want:      1,
		},
		{
			name:      "empty movement reference",
			line:      &domain.BankStatementLine{Reference: "INV-2041"},
			reference: "",
			want:      0,
		},
		{
			name:      "no overlap",
			line:      &domain.BankStatementLine{Reference: "ZZZZZZZZ"},
			reference: "ABC-1",
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mv := &domain.Movement{Reference: tt.reference}
			got := referenceSimilarity(tt.line, mv)
			if got != tt.want {
				t.Errorf("referenceSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDateDistanceDays(t *testing.T) {
	tests := []struct {
		name string
		a    time.Time
		b    time.Time
		want int
	}{
		{"same day", scoreDate, scoreDate, 0},
		{"same day different hours", scoreDate.Add(2 * time.Hour), scoreDate.Add(23 * time.Hour), 0},
		{"one day apart", scoreDate, scoreDate.AddDate(0, 0, 1), 1},
		{"symmetric", scoreDate.AddDate(0, 0, 3), scoreDate, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dateDistanceDays(tt.a, tt.b); got != tt.want {
				t.Errorf("dateDistanceDays() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	bad := DefaultConfig()
	bad.AcceptThreshold = 500
	if err := bad.Validate(); err == nil {
		t.Error("unreachable accept threshold must be rejected")
	}

	bad = DefaultConfig()
	bad.DateWindowDays = -1
	if err := bad.Validate(); err == nil {
		t.Error("negative date window must be rejected")
	}
}
