package domain

import "github.com/shopspring/decimal"

// ComputeLine derives amount, tax and total for a line from its quantity,
// unit price, optional discount and tax rate. Rounding to 2 places happens
// here and only here.
func ComputeLine(line InvoiceLine) InvoiceLine {
	amount := line.Quantity.Mul(line.UnitPrice)
	if line.DiscountRate != nil && line.DiscountRate.IsPositive() {
		amount = amount.Mul(decimal.NewFromInt(1).Sub(*line.DiscountRate))
	}
	line.Amount = amount.Round(2)
	line.TaxAmount = line.Amount.Mul(line.TaxRate).Round(2)
	line.Total = line.Amount.Add(line.TaxAmount)
	return line
}

// Totals is the deterministic aggregate of a line set.
type Totals struct {
	Subtotal     decimal.Decimal
	TaxBreakdown TaxLines
	Total        decimal.Decimal
}

// ComputeTotals recomputes subtotal, the per-rate tax breakdown and the
// grand total from the lines. Breakdown rows keep first-seen rate order;
// aggregate sums are not re-rounded.
func ComputeTotals(lines InvoiceLines) Totals {
	subtotal := decimal.Zero
	breakdown := TaxLines{}
	index := map[string]int{}

	for _, line := range lines {
		subtotal = subtotal.Add(line.Amount)

		key := line.TaxRate.String()
		at, ok := index[key]
		if !ok {
			index[key] = len(breakdown)
			breakdown = append(breakdown, TaxLine{TaxRate: line.TaxRate})
			at = index[key]
		}
		breakdown[at].TaxableBase = breakdown[at].TaxableBase.Add(line.Amount)
		breakdown[at].TaxAmount = breakdown[at].TaxAmount.Add(line.TaxAmount)
	}

	total := subtotal
	for _, row := range breakdown {
		total = total.Add(row.TaxAmount)
	}

	return Totals{Subtotal: subtotal, TaxBreakdown: breakdown, Total: total}
}
