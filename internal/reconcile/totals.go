package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/accounting/journals"
)

var hundred = decimal.NewFromInt(100)

// LineAmounts are the derived figures of one line.
type LineAmounts struct {
	Base     decimal.Decimal
	Discount decimal.Decimal
	Taxable  decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeLine recomputes every derived amount of line from qty, rate, discount and tax percents.
func ComputeLine(line DetailLine) (DetailLine, LineAmounts, error) {
	var amounts LineAmounts
	if line.ItemID == 0 {
		return line, amounts, fmt.Errorf("%w: item required", ErrValidation)
	}
	if !line.Qty.IsPositive() {
		return line, amounts, fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, line.ItemID)
	}
	if line.Rate.IsNegative() || line.DiscountAmount.IsNegative() || line.DiscountPercent.IsNegative() || line.DiscountPercent.GreaterThan(hundred) {
		return line, amounts, fmt.Errorf("%w: item %d has negative rate or discount out of range", ErrValidation, line.ItemID)
	}

	amounts.Base = line.Qty.Mul(line.Rate).Round(2)
	if !line.DiscountAmount.IsZero() {
		amounts.Discount = line.DiscountAmount.Round(2)
	} else {
		amounts.Discount = amounts.Base.Mul(line.DiscountPercent).Div(hundred).Round(2)
	}
	if amounts.Discount.GreaterThan(amounts.Base) {
		return line, amounts, fmt.Errorf("%w: item %d discount exceeds line value", ErrValidation, line.ItemID)
	}
	amounts.Taxable = amounts.Base.Sub(amounts.Discount)

	amounts.Tax = decimal.Zero
	for i := range line.Taxes {
		pct := line.Taxes[i].Percent
		if pct.IsNegative() {
			return line, amounts, fmt.Errorf("%w: item %d negative tax percent", ErrValidation, line.ItemID)
		}
		line.Taxes[i].Amount = amounts.Taxable.Mul(pct).Div(hundred).Round(2)
		amounts.Tax = amounts.Tax.Add(line.Taxes[i].Amount)
	}
	amounts.Total = amounts.Taxable.Add(amounts.Tax)

	line.DiscountAmount = amounts.Discount
	line.Total = amounts.Total
	line.NetRate = amounts.Taxable.DivRound(line.Qty, 4)
	return line, amounts, nil
}

// Summarise computes every line and the transaction overview.
func Summarise(lines []DetailLine) ([]DetailLine, journals.Overview, error) {
	overview := journals.Overview{Gross: decimal.Zero, TaxExclusive: decimal.Zero, ExtraTax: decimal.Zero}
	out := make([]DetailLine, 0, len(lines))
	for _, line := range lines {
		computed, amounts, err := ComputeLine(line)
		if err != nil {
			return nil, journals.Overview{}, err
		}
		overview.Gross = overview.Gross.Add(amounts.Total)
		overview.TaxExclusive = overview.TaxExclusive.Add(amounts.Taxable)
		overview.ExtraTax = overview.ExtraTax.Add(amounts.Tax)
		out = append(out, computed)
	}
	return out, overview, nil
}
