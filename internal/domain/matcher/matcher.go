// Package matcher ranks unpaid passports against a parsed payment and
// classifies the outcome.
//
// Candidates arrive pre-filtered to the exact payment amount, so the
// only question left is whose name this is. Scoring is a normalized
// Levenshtein ratio in [0,100] over canonical name keys; the threshold
// and the runner-up margin are the only knobs operators tune.
package matcher

import (
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"

	"github.com/minipass/reconciler/internal/domain/normalize"
	"github.com/minipass/reconciler/internal/domain/parser"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

// Config holds matcher tuning.
type Config struct {
	// Threshold is the minimum score for an automatic match.
	Threshold int
	// RunnerUpMargin is the minimum gap between best and second-best
	// required to avoid AMBIGUOUS.
	RunnerUpMargin int
}

// DefaultConfig returns the operational defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:      85,
		RunnerUpMargin: 5,
	}
}

// Scored is one candidate with its similarity score.
type Scored struct {
	PassportID int64 `json:"passport_id"`
	Score      int   `json:"score"`
}

// MatchResult carries the classification plus the ranking diagnostics
// the attempt log preserves for after-the-fact audits.
type MatchResult struct {
	Classification storage.Result
	Best           *Scored
	RunnerUp       *Scored
	Considered     int
	Reason         string
}

// Matcher classifies payments against candidate passports.
type Matcher struct {
	config Config
}

// NewMatcher creates a matcher with the given config.
func NewMatcher(config Config) *Matcher {
	return &Matcher{config: config}
}

// Match ranks candidates by similarity to the payer name and
// classifies the outcome. Candidates must already be filtered to the
// payment amount; ties are broken by creation time so the oldest
// unpaid passport wins when two people share a name and amount.
func (m *Matcher) Match(payment *parser.ParsedPayment, candidates []*storage.Passport) MatchResult {
	if len(candidates) == 0 {
		return MatchResult{
			Classification: storage.ResultNoMatch,
			Considered:     0,
			Reason:         fmt.Sprintf("no unpaid passport at amount %s", payment.Amount.StringFixed(2)),
		}
	}

	scored := make([]struct {
		passport *storage.Passport
		score    int
	}, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, struct {
			passport *storage.Passport
			score    int
		}{c, Score(payment.PayerNameNormalized, c.MatchName())})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].passport.CreatedAt.Before(scored[j].passport.CreatedAt)
	})

	best := &Scored{PassportID: scored[0].passport.ID, Score: scored[0].score}
	var runnerUp *Scored
	if len(scored) > 1 {
		runnerUp = &Scored{PassportID: scored[1].passport.ID, Score: scored[1].score}
	}

	result := MatchResult{
		Best:       best,
		RunnerUp:   runnerUp,
		Considered: len(candidates),
	}

	switch {
	case best.Score < m.config.Threshold:
		result.Classification = storage.ResultNoMatch
		result.Reason = fmt.Sprintf("best score %d for passport %d below threshold %d",
			best.Score, best.PassportID, m.config.Threshold)
	case runnerUp != nil && best.Score-runnerUp.Score < m.config.RunnerUpMargin:
		result.Classification = storage.ResultAmbiguous
		result.Reason = fmt.Sprintf("passports %d (%d) and %d (%d) within margin %d, operator must decide",
			best.PassportID, best.Score, runnerUp.PassportID, runnerUp.Score, m.config.RunnerUpMargin)
	default:
		result.Classification = storage.ResultMatched
		result.Reason = fmt.Sprintf("passport %d scored %d against %q",
			best.PassportID, best.Score, payment.PayerNameRaw)
	}

	return result
}

// Score computes the similarity between a normalized payer name and a
// candidate name, in [0,100]. Deterministic and symmetric; exact
// normalized equality short-circuits to 100, and a candidate with no
// usable name scores 0 against anything.
func Score(payerNormalized, candidateName string) int {
	candidate := normalize.Name(candidateName)
	if candidate == "" || payerNormalized == "" {
		return 0
	}
	if payerNormalized == candidate {
		return 100
	}

	dist := levenshtein.ComputeDistance(payerNormalized, candidate)
	maxLen := len([]rune(payerNormalized))
	if l := len([]rune(candidate)); l > maxLen {
		maxLen = l
	}

	score := 100 - (100*dist)/maxLen
	if score < 0 {
		return 0
	}
	return score
}
