package service

import (
	"github.com/shopspring/decimal"

	"github.com/repairhub/api/internal/database"
)

// MoneyPlaces is the currency precision used for every stored amount.
const MoneyPlaces = 2

// maxMoney is the first value that no longer fits NUMERIC(10,2).
var maxMoney = decimal.New(1, 8)

type Line struct {
	Quantity  int32
	UnitPrice decimal.Decimal
}

func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
}

// RecomputeTotal returns Σ quantity × unit_price over lines, rounded to the
// currency precision. No lines yields zero.
func RecomputeTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total.Round(MoneyPlaces)
}

func linesOf(items []database.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{Quantity: it.Quantity, UnitPrice: numericToDecimal(it.UnitPrice)})
	}
	return lines
}

func validUnitPrice(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(MoneyPlaces)) && d.LessThan(maxMoney)
}
