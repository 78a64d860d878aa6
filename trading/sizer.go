package trading

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// SizingError means no order should be placed; the engine treats it as a skip
type SizingError struct {
	Equity float64
	Price  float64
	Risk   float64
	Detail string
}

func (e *SizingError) Error() string {
	return fmt.Sprintf("invalid quantity: %s (equity=%v price=%v risk=%v)", e.Detail, e.Equity, e.Price, e.Risk)
}

// Sizing is the computed position size
type Sizing struct {
	Raw      float64         // equity*risk/price before rounding
	Quantity decimal.Decimal // truncated to the sizer's precision
}

// PositionSizer converts a risk budget into a share quantity
type PositionSizer struct {
	precision int32
}

// NewPositionSizer creates a sizer truncating to precision decimal places.
// Zero means whole shares.
func NewPositionSizer(precision int32) *PositionSizer {
	if precision < 0 {
		precision = 0
	}
	return &PositionSizer{precision: precision}
}

// Size returns equity*risk/price truncated toward zero. Truncation never
// spends more than the risk budget.
func (s *PositionSizer) Size(equity, price, risk float64) (Sizing, error) {
	fail := func(detail string) (Sizing, error) {
		return Sizing{}, &SizingError{Equity: equity, Price: price, Risk: risk, Detail: detail}
	}

	switch {
	case !finite(price) || price <= 0:
		return fail("price must be positive")
	case !finite(equity) || equity <= 0:
		return fail("equity unavailable")
	case !finite(risk) || risk <= 0:
		return fail("risk fraction must be positive")
	}

	raw := equity * risk / price
	qty := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(risk)).
		Div(decimal.NewFromFloat(price)).
		Truncate(s.precision)
	if !qty.IsPositive() {
		return Sizing{Raw: raw}, &SizingError{Equity: equity, Price: price, Risk: risk, Detail: "quantity rounds to zero"}
	}
	return Sizing{Raw: raw, Quantity: qty}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
