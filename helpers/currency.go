package helpers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUSD formats an amount as US dollars with thousand separators,
// e.g. 1234567.891 -> "$1,234,567.89"
func FormatUSD(amount float64) string {
	return FormatUSDDecimal(decimal.NewFromFloat(amount))
}

// FormatUSDDecimal formats a decimal amount as US dollars
func FormatUSDDecimal(amount decimal.Decimal) string {
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)

	whole, frac, _ := strings.Cut(str, ".")
	length := len(whole)

	var b strings.Builder
	if negative {
		b.WriteString("-")
	}
	b.WriteString("$")
	for i, digit := range whole {
		if i > 0 && (length-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatPercent formats a fraction as a percentage with one decimal,
// e.g. 0.0125 -> "1.3%"
func FormatPercent(fraction float64) string {
	return decimal.NewFromFloat(fraction).Shift(2).StringFixed(1) + "%"
}
