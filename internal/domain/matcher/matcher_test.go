package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minipass/reconciler/internal/domain/normalize"
	"github.com/minipass/reconciler/internal/domain/parser"
	"github.com/minipass/reconciler/internal/infrastructure/storage"
)

func payment(name string, amount string) *parser.ParsedPayment {
	return &parser.ParsedPayment{
		PayerNameRaw:        name,
		PayerNameNormalized: normalize.Name(name),
		Amount:              decimal.RequireFromString(amount),
		Currency:            "CAD",
	}
}

func candidate(id int64, owner string, createdAt time.Time) *storage.Passport {
	return &storage.Passport{
		ID:             id,
		OwnerName:      owner,
		AmountDueCents: 32000,
		CreatedAt:      createdAt,
	}
}

func TestMatch_AccentFoldedExactMatch(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	result := m.Match(payment("STEVEN BELANGER", "320.00"), []*storage.Passport{
		candidate(7, "Steven Bélanger", created),
	})

	assert.Equal(t, storage.ResultMatched, result.Classification)
	require.NotNil(t, result.Best)
	assert.Equal(t, int64(7), result.Best.PassportID)
	assert.Equal(t, 100, result.Best.Score)
	assert.Nil(t, result.RunnerUp)
	assert.Equal(t, 1, result.Considered)
}

func TestMatch_NoCandidates(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	result := m.Match(payment("Ken Dresdell", "98.00"), nil)

	assert.Equal(t, storage.ResultNoMatch, result.Classification)
	assert.Equal(t, 0, result.Considered)
	assert.Nil(t, result.Best)
	assert.Contains(t, result.Reason, "no unpaid passport at amount 98.00")
}

func TestMatch_AmbiguousWithinMargin(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	t1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	result := m.Match(payment("JOHN SMYTH", "50.00"), []*storage.Passport{
		candidate(1, "John Smith", t1),
		candidate(2, "Jon Smyth", t2),
	})

	assert.Equal(t, storage.ResultAmbiguous, result.Classification)
	require.NotNil(t, result.Best)
	require.NotNil(t, result.RunnerUp)
	// Both above threshold, both recorded for the audit trail.
	assert.GreaterOrEqual(t, result.Best.Score, DefaultConfig().Threshold)
	assert.Less(t, result.Best.Score-result.RunnerUp.Score, DefaultConfig().RunnerUpMargin)
	assert.Equal(t, 2, result.Considered)
}

func TestMatch_TieBreaksOldestFirst(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	t1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	// Identical names score identically; the older passport must rank
	// first so first-in-first-out holds.
	result := m.Match(payment("Ken Dresdell", "98.00"), []*storage.Passport{
		candidate(12, "Ken Dresdell", t2),
		candidate(11, "Ken Dresdell", t1),
	})

	require.NotNil(t, result.Best)
	assert.Equal(t, int64(11), result.Best.PassportID)
	assert.Equal(t, int64(12), result.RunnerUp.PassportID)
	// Same score twice is by definition within the margin.
	assert.Equal(t, storage.ResultAmbiguous, result.Classification)
}

func TestMatch_BelowThreshold(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	result := m.Match(payment("Completely Different", "320.00"), []*storage.Passport{
		candidate(3, "Steven Bélanger", time.Now().UTC()),
	})

	assert.Equal(t, storage.ResultNoMatch, result.Classification)
	require.NotNil(t, result.Best)
	assert.Less(t, result.Best.Score, DefaultConfig().Threshold)
}

func TestMatch_ClearWinnerAboveMargin(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	t1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	result := m.Match(payment("Steven Bélanger", "320.00"), []*storage.Passport{
		candidate(7, "Steven Bélanger", t1),
		candidate(8, "Roberto Neves", t1),
	})

	assert.Equal(t, storage.ResultMatched, result.Classification)
	assert.Equal(t, int64(7), result.Best.PassportID)
	require.NotNil(t, result.RunnerUp)
	assert.Equal(t, int64(8), result.RunnerUp.PassportID)
}

func TestMatch_PrefersLinkedUserName(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	linked := "Marie-Ève Tremblay"
	p := candidate(4, "Gift Purchase", time.Now().UTC())
	p.LinkedUserName = &linked

	result := m.Match(payment("MARIE EVE TREMBLAY", "320.00"), []*storage.Passport{p})

	assert.Equal(t, storage.ResultMatched, result.Classification)
	assert.Equal(t, 100, result.Best.Score)
}

func TestMatch_EmptyNamesScoreZero(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	p := candidate(5, "", time.Now().UTC())

	result := m.Match(payment("Anyone At All", "320.00"), []*storage.Passport{p})

	assert.Equal(t, storage.ResultNoMatch, result.Classification)
	assert.Equal(t, 0, result.Best.Score)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		payer     string
		candidate string
		want      int
	}{
		{name: "exact after normalization", payer: "steven belanger", candidate: "Steven Bélanger", want: 100},
		{name: "empty candidate", payer: "john smith", candidate: "", want: 0},
		{name: "empty payer", payer: "", candidate: "John Smith", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.payer, tt.candidate))
		})
	}
}

func TestScore_SymmetricAndBounded(t *testing.T) {
	pairs := [][2]string{
		{"john smith", "Jon Smyth"},
		{"ken dresdell", "Ken Dresdel"},
		{"a", "completely different name"},
	}
	for _, pair := range pairs {
		a := Score(normalize.Name(pair[0]), pair[1])
		b := Score(normalize.Name(pair[1]), pair[0])
		assert.GreaterOrEqual(t, a, 0)
		assert.LessOrEqual(t, a, 100)
		assert.Equal(t, a, b, "score must be symmetric for %v", pair)
	}
}
