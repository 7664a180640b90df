// Package parser extracts payer identity and amount from Interac
// e-Transfer notification subjects.
//
// The known subject shapes live in a pattern table; each entry pairs a
// regexp with the capture indices for amount, payer and currency.
// Adding a new bank-notification shape is an additive change to the
// table, never new control flow.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minipass/reconciler/internal/domain/money"
	"github.com/minipass/reconciler/internal/domain/normalize"
)

// ParsedPayment is the immutable result of parsing one notification.
type ParsedPayment struct {
	PayerNameRaw        string
	PayerNameNormalized string
	Amount              decimal.Decimal
	Currency            string
	ReceivedAt          time.Time
	SourceMessageID     string
}

// ParseError reports a subject that matched no known shape, or matched
// a shape but carried an unusable amount. The original subject is kept
// so the attempt log can preserve it.
type ParseError struct {
	Subject string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable subject %q: %s", e.Subject, e.Reason)
}

// pattern is one recognized subject shape. Capture indices refer to
// the regexp's groups; currencyIdx 0 means the shape carries no
// explicit currency code.
type pattern struct {
	name        string
	re          *regexp.Regexp
	amountIdx   int
	payerIdx    int
	currencyIdx int
}

// amountToken matches a currency-adjacent numeric run, including the
// spaced-decimal form "98, 00". Validation happens in money.
const amountToken = `(\d[\d\s.,]*?)`

var patterns = []pattern{
	{
		// "Virement Interac : Vous avez reçu 320,00 $ de STEVEN
		// BELANGER et ce montant a été déposé automatiquement."
		name:      "french_received",
		re:        regexp.MustCompile(`reçu\s+` + amountToken + `\s*\$\s*de\s+(.+?)\s+et ce montant`),
		amountIdx: 1,
		payerIdx:  2,
	},
	{
		// "Virement Interac : Jean Martin vous a envoyé 80,00 $"
		name:      "french_sent",
		re:        regexp.MustCompile(`(?:^|:)\s*([^:]+?)\s+vous a envoyé\s+` + amountToken + `\s*\$`),
		amountIdx: 2,
		payerIdx:  1,
	},
	{
		// "... received CAD 50.00 from John Smith ..."
		name:        "english_received",
		re:          regexp.MustCompile(`(?i)received\s+(?:([A-Za-z]{3})\s+)?\$?\s*` + amountToken + `\s*\$?\s+from\s+(.+?)(?:\s+and\b.*)?$`),
		amountIdx:   2,
		payerIdx:    3,
		currencyIdx: 1,
	},
}

// Parser turns MIME-decoded subject lines into ParsedPayments.
type Parser struct {
	defaultCurrency string
}

// New creates a parser that falls back to the given ISO-4217 code when
// a subject carries no explicit currency.
func New(defaultCurrency string) *Parser {
	return &Parser{defaultCurrency: defaultCurrency}
}

// Parse tries each known shape in order; the first match wins.
// The returned payment has PayerNameRaw, PayerNameNormalized, Amount
// and Currency set; the caller fills in ReceivedAt and
// SourceMessageID from the message envelope.
func (p *Parser) Parse(subject string) (*ParsedPayment, error) {
	for _, pat := range patterns {
		m := pat.re.FindStringSubmatch(subject)
		if m == nil {
			continue
		}

		amount, err := money.ParseBankAmount(m[pat.amountIdx])
		if err != nil {
			return nil, &ParseError{Subject: subject, Reason: err.Error()}
		}

		payer := cleanPayerName(m[pat.payerIdx])
		if payer == "" {
			return nil, &ParseError{Subject: subject, Reason: "empty payer name"}
		}

		currency := p.defaultCurrency
		if pat.currencyIdx > 0 && m[pat.currencyIdx] != "" {
			currency = strings.ToUpper(m[pat.currencyIdx])
		}

		return &ParsedPayment{
			PayerNameRaw:        payer,
			PayerNameNormalized: normalize.Name(payer),
			Amount:              amount,
			Currency:            currency,
		}, nil
	}

	return nil, &ParseError{Subject: subject, Reason: "no known subject shape"}
}

// cleanPayerName strips connective leftovers and terminal punctuation
// from a captured payer span.
func cleanPayerName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,;:!")
	return strings.TrimSpace(s)
}
