package format

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finitefield.org/storefront/internal/locale"
)

type numberStyle struct {
	group   string
	decimal string
	// prefix places the symbol before the amount.
	prefix bool
}

var styles = map[locale.Code]numberStyle{
	locale.English: {group: ",", decimal: ".", prefix: true},
	locale.Spanish: {group: ".", decimal: ","},
	locale.French:  {group: " ", decimal: ","},
	locale.German:  {group: ".", decimal: ","},
}

// Price formats a USD amount for code.
// Example: Price(decimal.RequireFromString("1234.5"), locale.English) => "$1,234.50"
func Price(amount decimal.Decimal, code locale.Code) string {
	style, ok := styles[code]
	if !ok {
		style = styles[locale.Default]
	}
	fixed := amount.Abs().StringFixed(2)
	whole, cents, _ := strings.Cut(fixed, ".")
	body := thousandSep(whole, style.group) + style.decimal + cents

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	if style.prefix {
		return sign + "$" + body
	}
	return sign + body + " $"
}

func thousandSep(digits, sep string) string {
	var b strings.Builder
	for i, c := range digits {
		if i != 0 && (len(digits)-i)%3 == 0 {
			b.WriteString(sep)
		}
		b.WriteRune(c)
	}
	return b.String()
}

var months = map[locale.Code][12]string{
	locale.Spanish: {"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"},
	locale.French:  {"janv.", "févr.", "mars", "avr.", "mai", "juin", "juil.", "août", "sept.", "oct.", "nov.", "déc."},
	locale.German:  {"Jan.", "Feb.", "März", "Apr.", "Mai", "Juni", "Juli", "Aug.", "Sept.", "Okt.", "Nov.", "Dez."},
}

// Date formats t in a short locale-friendly form.
func Date(t time.Time, code locale.Code) string {
	names, ok := months[code]
	if !ok {
		return t.Format("Jan 2, 2006")
	}
	month := names[t.Month()-1]
	if code == locale.German {
		return t.Format("2.") + " " + month + " " + t.Format("2006")
	}
	return t.Format("2") + " " + month + " " + t.Format("2006")
}

// PublishDate parses a CMS date field (YYYY-MM-DD or RFC 3339) and formats it for code.
// Unparseable values are returned unchanged.
func PublishDate(raw string, code locale.Code) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return Date(t, code)
		}
	}
	return raw
}
