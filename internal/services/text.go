package services

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/forever-store/api/internal/domain"
)

const maxNoteLength = 1000

var notePolicy = bluemonday.StrictPolicy()

// stripMarkup removes tags and decodes the entities the policy emits, so stored text keeps
// the characters the operator typed. Escaping happens where the text is rendered.
func stripMarkup(s string) string {
	return strings.TrimSpace(html.UnescapeString(notePolicy.Sanitize(s)))
}

// sanitizeNote strips markup from a free-text note.
func sanitizeNote(note string) (string, error) {
	cleaned := stripMarkup(note)
	if utf8.RuneCountInString(cleaned) > maxNoteLength {
		return "", orderError(ErrInvalidOrderInput, "Note must be at most %d characters", maxNoteLength)
	}
	return cleaned, nil
}

func sanitizeMeta(meta *domain.ShipmentMeta) *domain.ShipmentMeta {
	if meta == nil {
		return nil
	}
	out := domain.ShipmentMeta{
		Courier:  stripMarkup(meta.Courier),
		AWB:      stripMarkup(meta.AWB),
		Location: stripMarkup(meta.Location),
	}
	return &out
}

// minorUnitFactor returns 10^digits for the currency, e.g. 100 for USD and 1 for JPY.
func minorUnitFactor(code string) (int64, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, fmt.Errorf("%w: unknown currency %q", ErrInvalidOrderInput, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	factor := int64(1)
	for i := 0; i < scale; i++ {
		factor *= 10
	}
	return factor, nil
}

// formatAmount renders a minor-unit amount with its currency symbol, e.g. "$ 42.50".
func formatAmount(amount int64, code string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return ""
	}
	factor, _ := minorUnitFactor(code)
	return message.NewPrinter(language.English).Sprint(currency.Symbol(unit.Amount(float64(amount) / float64(factor))))
}
