package recon

import (
	"sort"
	"strings"
	"time"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// CandidateScore is the scored pairing of one statement line with one
// candidate movement.
type CandidateScore struct {
	Movement *domain.Movement

	// Score is the combined ranking score.
	Score float64

	// AmountExact reports whether the amounts match within epsilon with the
	// correct direction. Only exact-amount candidates may be auto-accepted.
	AmountExact bool

	// DateDistanceDays is the absolute distance between line and movement
	// dates, in whole days.
	DateDistanceDays int
}

// Decision is the outcome of evaluating one line against its candidates.
type Decision struct {
	// Best is the highest-scoring candidate, nil when there were none.
	Best *CandidateScore

	// Accepted reports whether Best clears the acceptance policy.
	Accepted bool

	// Ambiguous reports that the runner-up scored within the near-tie margin
	// of the best candidate, so the line stays unmatched.
	Ambiguous bool
}

// ScoreCandidate scores a single line/movement pairing. It is a pure function
// of its inputs so the policy can be unit-tested without storage.
func ScoreCandidate(line *domain.BankStatementLine, movement *domain.Movement, cfg Config) CandidateScore {
	result := CandidateScore{
		Movement:         movement,
		DateDistanceDays: dateDistanceDays(line.LineDate, movement.Date),
		AmountExact:      amountsMatch(line, movement, cfg),
	}

	if result.AmountExact {
		result.Score += cfg.AmountScore
	}

	// Closer dates score higher: full bonus on the same day, half at one day
	// of drift, and so on.
	result.Score += cfg.DateScoreMax / float64(1+result.DateDistanceDays)

	result.Score += referenceSimilarity(line, movement) * cfg.ReferenceScoreMax

	return result
}

// EvaluateLine scores all candidates for a line and applies the acceptance
// policy: the best candidate wins only if it clears the threshold, has an
// exact amount, and no rival is within the near-tie margin.
func EvaluateLine(line *domain.BankStatementLine, candidates []*domain.Movement, cfg Config) Decision {
	if len(candidates) == 0 {
		return Decision{}
	}

	scores := make([]CandidateScore, 0, len(candidates))
	for _, movement := range candidates {
		scores = append(scores, ScoreCandidate(line, movement, cfg))
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	best := scores[0]
	decision := Decision{Best: &best}

	if !best.AmountExact || best.Score < cfg.AcceptThreshold {
		return decision
	}
	if len(scores) > 1 && best.Score-scores[1].Score <= cfg.NearTieMargin {
		decision.Ambiguous = true
		return decision
	}

	decision.Accepted = true
	return decision
}

// amountsMatch compares absolute amounts within epsilon and requires the
// direction to agree: a credit line increases the bank balance and must pair
// with a positive movement, a debit line with a negative one.
func amountsMatch(line *domain.BankStatementLine, movement *domain.Movement, cfg Config) bool {
	lineAmount := line.SignedAmount()
	if lineAmount.IsZero() {
		return false
	}
	if lineAmount.Sign() != movement.Amount.Sign() {
		return false
	}
	diff := lineAmount.Abs().Sub(movement.Amount.Abs()).Abs()
	return diff.LessThanOrEqual(cfg.AmountEpsilon)
}

// referenceSimilarity measures textual overlap between the movement reference
// and the line's reference or description, in [0, 1]. Case-insensitive
// substring containment counts as full overlap; otherwise normalized token
// overlap and levenshtein ratio provide partial credit.
func referenceSimilarity(line *domain.BankStatementLine, movement *domain.Movement) float64 {
	target := normalizeText(movement.Reference)
	if target == "" {
		return 0
	}

	best := 0.0
	for _, source := range []string{normalizeText(line.Reference), normalizeText(line.Description)} {
		if source == "" {
			continue
		}
		if sim := textOverlap(source, target); sim > best {
			best = sim
		}
	}
	return best
}

func textOverlap(a, b string) float64 {
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 1
	}

	if overlap := tokenOverlap(a, b); overlap > 0 {
		return overlap
	}

	ratio := levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
	// Low ratios are noise rather than signal.
	if ratio < 0.5 {
		return 0
	}
	return ratio
}

// tokenOverlap returns the fraction of tokens of the shorter string present
// in the longer one.
func tokenOverlap(a, b string) float64 {
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}
	if len(tokensB) < len(tokensA) {
		tokensA, tokensB = tokensB, tokensA
	}

	set := make(map[string]bool, len(tokensB))
	for _, token := range tokensB {
		set[token] = true
	}

	shared := 0
	for _, token := range tokensA {
		if set[token] {
			shared++
		}
	}
	return float64(shared) / float64(len(tokensA))
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func dateDistanceDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	dayA := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	dayB := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	days := int(dayA.Sub(dayB).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
