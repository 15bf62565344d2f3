package builder

import "github.com/shopspring/decimal"

var decimalZero = decimal.Zero

// Fixed-point renderings mandated by the document layout.
func money(d decimal.Decimal) string     { return d.StringFixed(2) }
func rate(d decimal.Decimal) string      { return d.StringFixed(4) }
func quantity(d decimal.Decimal) string  { return d.StringFixed(4) }
func unitPrice(d decimal.Decimal) string { return d.StringFixed(10) }
func weight(d decimal.Decimal) string    { return d.StringFixed(3) }

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
