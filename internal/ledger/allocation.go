package ledger

import (
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

var packagingQtyPattern = regexp.MustCompile(`(?i)qty\s*:\s*(\d+(?:\.\d+)?)`)

// PackagingEntry is one step of the packaging unit-cost function.
type PackagingEntry struct {
	ExpenseID string
	At        time.Time
	UnitCost  decimal.Decimal
}

// PackagingSeries is an ascending step function of packaging unit costs. Each
// entry is effective from its timestamp until the next one.
type PackagingSeries struct {
	entries []PackagingEntry
}

// NewPackagingSeries builds the series from the packaging expenses found in
// expenses; other categories are ignored.
func NewPackagingSeries(expenses []domain.Expense) PackagingSeries {
	entries := make([]PackagingEntry, 0, len(expenses))
	for _, exp := range expenses {
		if exp.Category != domain.ExpensePackaging {
			continue
		}
		entries = append(entries, PackagingEntry{
			ExpenseID: exp.ID,
			At:        exp.CreatedAt,
			UnitCost:  PackagingUnitCost(exp),
		})
	}
	slices.SortStableFunc(entries, func(a, b PackagingEntry) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return strings.Compare(a.ExpenseID, b.ExpenseID)
	})
	return PackagingSeries{entries: entries}
}

// At returns the entry in effect at t: the latest one whose timestamp is not
// after t.
func (s PackagingSeries) At(t time.Time) (PackagingEntry, bool) {
	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].At.After(t)
	})
	if idx == 0 {
		return PackagingEntry{}, false
	}
	return s.entries[idx-1], true
}

func (s PackagingSeries) Len() int {
	return len(s.entries)
}

// PackagingUnitCost divides the expense amount by the "qty: N" found in its
// description. Without a usable quantity the whole amount is the unit cost.
func PackagingUnitCost(exp domain.Expense) decimal.Decimal {
	match := packagingQtyPattern.FindStringSubmatch(exp.Description)
	if len(match) < 2 {
		return exp.Amount
	}
	qty, err := decimal.NewFromString(match[1])
	if err != nil || !qty.IsPositive() {
		return exp.Amount
	}
	return exp.Amount.Div(qty)
}

// AllocateCosts computes the ads and packaging share of every sale. Missing
// ad budgets or packaging history resolve to zero with a pending flag.
func AllocateCosts(sales []domain.Sale, expenses []domain.Expense) map[string]domain.SaleAllocation {
	adBudgets := make(map[string]decimal.Decimal)
	for _, exp := range expenses {
		if exp.Category == domain.ExpenseAds {
			adBudgets[exp.ID] = exp.Amount
		}
	}

	salesPerAd := make(map[string]map[string]struct{})
	for _, sale := range sales {
		adID := adRef(sale)
		if adID == "" {
			continue
		}
		if salesPerAd[adID] == nil {
			salesPerAd[adID] = make(map[string]struct{})
		}
		salesPerAd[adID][sale.ID] = struct{}{}
	}

	series := NewPackagingSeries(expenses)

	allocations := make(map[string]domain.SaleAllocation, len(sales))
	for _, sale := range sales {
		if _, done := allocations[sale.ID]; done {
			continue
		}
		alloc := domain.SaleAllocation{
			SaleID:            sale.ID,
			AdsSpent:          decimal.Zero,
			PackagingSpent:    decimal.Zero,
			PackagingUnitCost: decimal.Zero,
		}

		if adID := adRef(sale); adID != "" {
			budget, ok := adBudgets[adID]
			if ok {
				alloc.AdsSpent = budget.Div(decimal.NewFromInt(int64(len(salesPerAd[adID]))))
			} else {
				alloc.AdsPending = true
			}
		}

		if entry, ok := series.At(sale.CreatedAt); ok {
			alloc.PackagingSpent = entry.UnitCost
			alloc.PackagingUnitCost = entry.UnitCost
			alloc.PackagingEntryID = entry.ExpenseID
		} else {
			alloc.PackagingPending = true
		}

		allocations[sale.ID] = alloc
	}
	return allocations
}

func adRef(sale domain.Sale) string {
	if sale.AdID == nil {
		return ""
	}
	return strings.TrimSpace(*sale.AdID)
}
