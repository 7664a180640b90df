package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "John Smith", want: "john smith"},
		{name: "uppercase bank name", input: "STEVEN BELANGER", want: "steven belanger"},
		{name: "accented owner name", input: "Steven Bélanger", want: "steven belanger"},
		{name: "cedilla and acute", input: "François Côté", want: "francois cote"},
		{name: "punctuation collapses", input: "O'Brien,  Mary-Jane", want: "o brien mary jane"},
		{name: "leading and trailing junk", input: "  **Ken Dresdell** ", want: "ken dresdell"},
		{name: "digits kept", input: "Agent 99", want: "agent 99"},
		{name: "empty", input: "", want: ""},
		{name: "only punctuation", input: "•••", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.input))
		})
	}
}

func TestNameIdempotent(t *testing.T) {
	inputs := []string{"Steven Bélanger", "JEAN-FRANÇOIS  ROY", "  ken   dresdell "}
	for _, in := range inputs {
		once := Name(in)
		assert.Equal(t, once, Name(once))
	}
}

func TestNameAccentInsensitive(t *testing.T) {
	assert.Equal(t, Name("BELANGER"), Name("Bélanger"))
	assert.Equal(t, Name("Remi Methot"), Name("Rémi Méthot"))
}
