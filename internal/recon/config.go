// Package recon implements the bank reconciliation engine: candidate scoring,
// the automatic matching run, the manual match resolver and the statement
// progress and account balance trackers.
package recon

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// Config holds the matching policy knobs. Real-world tuning varies with bank
// data quality, so none of these are hard-coded at call sites.
type Config struct {
	// DateWindowDays bounds the candidate lookup: movements dated within
	// +-DateWindowDays of the line date are considered.
	DateWindowDays int

	// AmountEpsilon absorbs floating rounding when comparing absolute
	// amounts, in currency units.
	AmountEpsilon decimal.Decimal

	// AmountScore is the base score contributed by an exact amount match.
	AmountScore float64

	// DateScoreMax is the maximum date-proximity bonus; it decays inversely
	// with the distance in days.
	DateScoreMax float64

	// ReferenceScoreMax is the maximum reference/description overlap bonus.
	ReferenceScoreMax float64

	// AcceptThreshold is the minimum score for an automatic match.
	AcceptThreshold float64

	// NearTieMargin leaves a line unmatched when the runner-up candidate
	// scores within this margin of the best one. Ambiguity is never guessed
	// away automatically.
	NearTieMargin float64
}

// DefaultConfig returns the conservative default policy: exact amount is a
// hard gate for automatic acceptance, date and reference proximity only rank
// candidates among exact-amount matches.
func DefaultConfig() Config {
	return Config{
		DateWindowDays:    3,
		AmountEpsilon:     decimal.NewFromFloat(0.005),
		AmountScore:       60,
		DateScoreMax:      25,
		ReferenceScoreMax: 15,
		AcceptThreshold:   70,
		NearTieMargin:     5,
	}
}

// Validate rejects configurations that would make the policy degenerate.
func (c Config) Validate() error {
	if c.DateWindowDays < 0 {
		return fmt.Errorf("config: date window must be >= 0: %w", domain.ErrValidation)
	}
	if c.AmountEpsilon.IsNegative() {
		return fmt.Errorf("config: amount epsilon must be >= 0: %w", domain.ErrValidation)
	}
	if c.AmountScore <= 0 {
		return fmt.Errorf("config: amount score must be > 0: %w", domain.ErrValidation)
	}
	if c.AcceptThreshold > c.AmountScore+c.DateScoreMax+c.ReferenceScoreMax {
		return fmt.Errorf("config: accept threshold %v exceeds maximum possible score: %w", c.AcceptThreshold, domain.ErrValidation)
	}
	if c.NearTieMargin < 0 {
		return fmt.Errorf("config: near-tie margin must be >= 0: %w", domain.ErrValidation)
	}
	return nil
}
