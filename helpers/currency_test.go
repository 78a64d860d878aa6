package helpers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "$0.00"},
		{5, "$5.00"},
		{999.999, "$1,000.00"},
		{1234.5, "$1,234.50"},
		{1234567.891, "$1,234,567.89"},
		{-850.25, "-$850.25"},
		{-1000000, "-$1,000,000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUSD(tt.amount))
		})
	}
}

func TestFormatUSDDecimal(t *testing.T) {
	assert.Equal(t, "$100,000.00", FormatUSDDecimal(decimal.RequireFromString("100000")))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "1.0%", FormatPercent(0.01))
	assert.Equal(t, "-12.5%", FormatPercent(-0.125))
}
