package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FrenchReceived(t *testing.T) {
	p := New("CAD")

	got, err := p.Parse("Virement Interac : Vous avez reçu 320,00 $ de STEVEN BELANGER et ce montant a été déposé automatiquement.")

	require.NoError(t, err)
	assert.Equal(t, "STEVEN BELANGER", got.PayerNameRaw)
	assert.Equal(t, "steven belanger", got.PayerNameNormalized)
	assert.Equal(t, "320", got.Amount.String())
	assert.Equal(t, "CAD", got.Currency)
}

func TestParse_FrenchReceivedSpacedDecimal(t *testing.T) {
	p := New("CAD")

	got, err := p.Parse("Virement Interac : Vous avez reçu 98, 00 $ de Ken Dresdell et ce montant a été déposé automatiquement.")

	require.NoError(t, err)
	assert.Equal(t, "Ken Dresdell", got.PayerNameRaw)
	assert.Equal(t, "98", got.Amount.String())
}

func TestParse_FrenchSent(t *testing.T) {
	p := New("CAD")

	tests := []struct {
		subject string
		payer   string
		amount  string
	}{
		{"Virement Interac : Jean Martin vous a envoyé 80,00 $", "Jean Martin", "80"},
		{"Remi Methot vous a envoyé 15,00 $", "Remi Methot", "15"},
	}

	for _, tt := range tests {
		got, err := p.Parse(tt.subject)
		require.NoError(t, err, tt.subject)
		assert.Equal(t, tt.payer, got.PayerNameRaw)
		assert.Equal(t, tt.amount, got.Amount.String())
	}
}

func TestParse_EnglishReceived(t *testing.T) {
	p := New("CAD")

	got, err := p.Parse("INTERAC e-Transfer: You received CAD 50.00 from John Smith and the money was deposited.")

	require.NoError(t, err)
	assert.Equal(t, "John Smith", got.PayerNameRaw)
	assert.Equal(t, "50", got.Amount.String())
	assert.Equal(t, "CAD", got.Currency)
}

func TestParse_EnglishReceivedDefaultCurrency(t *testing.T) {
	p := New("CAD")

	got, err := p.Parse("You received $ 25.00 from Jane Doe")

	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.PayerNameRaw)
	assert.Equal(t, "CAD", got.Currency)
}

func TestParse_NoKnownShape(t *testing.T) {
	p := New("CAD")

	got, err := p.Parse("Your weekly summary")

	assert.Nil(t, got)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "Your weekly summary", perr.Subject)
}

func TestParse_BadAmountIsParseError(t *testing.T) {
	p := New("CAD")

	// Two separator runs are rejected until a real thousands-separator
	// sample shows up.
	_, err := p.Parse("Virement Interac : Vous avez reçu 1,234.56 $ de Ken Dresdell et ce montant a été déposé automatiquement.")

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "separator")
}

func TestParse_FirstMatchingPatternWins(t *testing.T) {
	p := New("CAD")

	// Subject matches the "reçu ... de ... et ce montant" family; it
	// must not fall through to the sent family.
	got, err := p.Parse("Virement Interac : Vous avez reçu 10,00 $ de A B et ce montant a été déposé.")

	require.NoError(t, err)
	assert.Equal(t, "A B", got.PayerNameRaw)
}
