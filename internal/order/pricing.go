package order

import "math"

// Pricing holds the shop's rates.
type Pricing struct {
	PricePerPage float64
	DepositRatio float64
}

// DefaultPricing is 40 per page with a 50% deposit.
func DefaultPricing() Pricing {
	return Pricing{PricePerPage: 40, DepositRatio: 0.5}
}

// Totals are always derived from page counts and selected books, never set directly.
type Totals struct {
	TotalPages   int
	PrintingCost float64
	BookCost     float64
	GrandTotal   float64
	AmountDue    float64
}

// IsZero reports the empty quote, for which no summary is shown.
func (t Totals) IsZero() bool {
	return t.TotalPages == 0 && t.BookCost == 0 && t.GrandTotal == 0
}

// Derive computes the totals for the given material page counts and book selection.
// Negative page counts count as zero and ids missing from the catalog cost nothing.
func Derive(p Pricing, pages [3]int, catalog Catalog, selected []string) Totals {
	var t Totals
	for _, n := range pages {
		if n > 0 {
			t.TotalPages += n
		}
	}

	t.PrintingCost = float64(t.TotalPages) * math.Max(p.PricePerPage, 0)

	seen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if b, ok := catalog.Lookup(id); ok {
			t.BookCost += b.Price
		}
	}

	t.GrandTotal = t.PrintingCost + t.BookCost
	t.AmountDue = roundHalfUp(t.GrandTotal * math.Max(p.DepositRatio, 0))
	return t
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
