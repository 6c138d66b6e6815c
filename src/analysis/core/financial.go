package core

import "github.com/shopspring/decimal"

// -----------------------------------------------------------------------------

// PositionValue returns the market value and the day's P&L of quantity shares.
// Non-positive quantities are worth nothing.
func PositionValue(lastPrice, change float64, quantity int64) (value, dayPnL float64) {
	v, pnl := PositionValueDecimal(lastPrice, change, quantity)
	return v.InexactFloat64(), pnl.InexactFloat64()
}

// PositionValueDecimal is PositionValue without binary rounding, for totals.
func PositionValueDecimal(lastPrice, change float64, quantity int64) (value, dayPnL decimal.Decimal) {
	if quantity <= 0 {
		return decimal.Zero, decimal.Zero
	}
	q := decimal.NewFromInt(quantity)
	return decimal.NewFromFloat(lastPrice).Mul(q), decimal.NewFromFloat(change).Mul(q)
}

// -----------------------------------------------------------------------------

// DayChangePercent is the day's P&L relative to the previous-day value
// (value - dayPnL). ok is false when that base is zero.
func DayChangePercent(value, dayPnL float64) (pct float64, ok bool) {
	base := value - dayPnL
	if base == 0 {
		return 0, false
	}
	return dayPnL / base * 100, true
}

// -----------------------------------------------------------------------------

// CalculateChangePercent calculates percentage change.
func CalculateChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous * 100
}
