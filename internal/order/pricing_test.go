package order

import (
	"math"
	"testing"
)

func TestDeriveScenarios(t *testing.T) {
	catalog := NewCatalog([]Book{{ID: "a", Title: "Anatomía I", Price: 1000}, {ID: "b", Title: "Química", Price: 500}})

	tests := []struct {
		name     string
		pages    [3]int
		catalog  Catalog
		selected []string
		want     Totals
	}{
		{
			name:  "materials only",
			pages: [3]int{10, 0, 5},
			want:  Totals{TotalPages: 15, PrintingCost: 600, BookCost: 0, GrandTotal: 600, AmountDue: 300},
		},
		{
			name:     "books only",
			catalog:  catalog,
			selected: []string{"a", "b"},
			want:     Totals{PrintingCost: 0, BookCost: 1500, GrandTotal: 1500, AmountDue: 750},
		},
		{
			name:     "unknown id costs nothing",
			pages:    [3]int{1, 0, 0},
			catalog:  catalog,
			selected: []string{"zzz", "b"},
			want:     Totals{TotalPages: 1, PrintingCost: 40, BookCost: 500, GrandTotal: 540, AmountDue: 270},
		},
		{
			name:     "selection before catalog load",
			selected: []string{"a"},
			want:     Totals{},
		},
		{
			name:  "negative pages count as zero",
			pages: [3]int{-3, 2, 0},
			want:  Totals{TotalPages: 2, PrintingCost: 80, GrandTotal: 80, AmountDue: 40},
		},
		{
			name:     "duplicate selection priced once",
			catalog:  catalog,
			selected: []string{"b", "b"},
			want:     Totals{BookCost: 500, GrandTotal: 500, AmountDue: 250},
		},
		{
			name: "zero state",
			want: Totals{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(DefaultPricing(), tt.pages, tt.catalog, tt.selected)
			if got != tt.want {
				t.Errorf("Derive() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDeriveRoundsHalfUp(t *testing.T) {
	catalog := NewCatalog([]Book{{ID: "odd", Price: 45}, {ID: "cents", Price: 10.2}})

	got := Derive(DefaultPricing(), [3]int{}, catalog, []string{"odd"})
	if got.AmountDue != 23 {
		t.Errorf("22.5 should round up to 23, got %v", got.AmountDue)
	}

	got = Derive(DefaultPricing(), [3]int{}, catalog, []string{"cents"})
	if got.AmountDue != 5 {
		t.Errorf("5.1 should round to 5, got %v", got.AmountDue)
	}
}

func TestDerivePrintingCostProperty(t *testing.T) {
	for _, k := range []float64{0, 1, 40, 72.5} {
		for p1 := 0; p1 < 6; p1++ {
			for p2 := 0; p2 < 6; p2++ {
				for p3 := 0; p3 < 6; p3++ {
					got := Derive(Pricing{PricePerPage: k, DepositRatio: 0.5}, [3]int{p1, p2, p3}, Catalog{}, nil)
					if want := float64(p1+p2+p3) * k; got.PrintingCost != want {
						t.Fatalf("k=%v pages=%d,%d,%d: printing = %v, want %v", k, p1, p2, p3, got.PrintingCost, want)
					}
					if got.BookCost != 0 {
						t.Fatalf("empty catalog priced books: %v", got.BookCost)
					}
					if want := math.Floor(0.5*got.GrandTotal + 0.5); got.AmountDue != want || got.AmountDue < 0 {
						t.Fatalf("amount due = %v, want %v", got.AmountDue, want)
					}
				}
			}
		}
	}
}

func TestDeriveConfiguredRate(t *testing.T) {
	got := Derive(Pricing{PricePerPage: 25, DepositRatio: 1}, [3]int{4, 0, 0}, Catalog{}, nil)
	if got.PrintingCost != 100 || got.AmountDue != 100 {
		t.Errorf("got %+v", got)
	}
}

func TestTotalsIsZero(t *testing.T) {
	if !(Totals{}).IsZero() {
		t.Error("zero totals not reported as zero")
	}
	if (Totals{TotalPages: 1, PrintingCost: 40, GrandTotal: 40, AmountDue: 20}).IsZero() {
		t.Error("priced totals reported as zero")
	}
}

func TestNewCatalog(t *testing.T) {
	c := NewCatalog([]Book{
		{ID: "a", Price: 100},
		{ID: "a", Price: 999},
		{ID: "", Price: 5},
		{ID: "neg", Price: -20},
	})
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if b, _ := c.Lookup("a"); b.Price != 100 {
		t.Errorf("first entry should win, got %v", b.Price)
	}
	if b, _ := c.Lookup("neg"); b.Price != 0 {
		t.Errorf("negative price should clamp to 0, got %v", b.Price)
	}
	books := c.Books()
	books[0].Price = 1
	if b, _ := c.Lookup("a"); b.Price != 100 {
		t.Error("Books() leaked internal state")
	}
}
