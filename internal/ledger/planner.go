package ledger

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// InsufficientStockError reports how far a request exceeded the product's
// live remaining stock. It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// PlanDeduction selects lots oldest-first until qty is covered. It never
// mutates its input and fails without a partial plan when stock is short.
func PlanDeduction(productID string, qty int, lots []domain.LotAvailability) (domain.DeductionPlan, error) {
	if qty <= 0 {
		return domain.DeductionPlan{}, ErrInvalidQuantity
	}

	candidates := make([]domain.LotAvailability, 0, len(lots))
	available := 0
	for _, lot := range lots {
		if lot.ProductID != productID || lot.Remaining <= 0 {
			continue
		}
		candidates = append(candidates, lot)
		available += lot.Remaining
	}
	if available < qty {
		return domain.DeductionPlan{}, &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
	}

	slices.SortStableFunc(candidates, compareLotForFIFO)

	plan := domain.DeductionPlan{ProductID: productID, Quantity: qty}
	needed := qty
	for _, lot := range candidates {
		if needed == 0 {
			break
		}
		take := min(lot.Remaining, needed)
		plan.Steps = append(plan.Steps, domain.DeductionStep{LotID: lot.LotID, DeductQty: take})
		needed -= take
	}
	return plan, nil
}

// PlanOrder plans every line of a multi-item order against the same snapshot.
// Lines of the same product draw down a shared availability, so the order
// either plans completely or fails before anything is committed.
func PlanOrder(lines []domain.SaleItemRequest, lotsByProduct map[string][]domain.LotAvailability) ([]domain.DeductionPlan, error) {
	working := make(map[string][]domain.LotAvailability, len(lotsByProduct))
	for productID, lots := range lotsByProduct {
		working[productID] = slices.Clone(lots)
	}

	plans := make([]domain.DeductionPlan, 0, len(lines))
	for _, line := range lines {
		plan, err := PlanDeduction(line.ProductID, line.Quantity, working[line.ProductID])
		if err != nil {
			return nil, err
		}
		consume(working[line.ProductID], plan)
		plans = append(plans, plan)
	}
	return plans, nil
}

func consume(lots []domain.LotAvailability, plan domain.DeductionPlan) {
	taken := make(map[string]int, len(plan.Steps))
	for _, step := range plan.Steps {
		taken[step.LotID] += step.DeductQty
	}
	for i := range lots {
		lots[i].Remaining -= taken[lots[i].LotID]
	}
}

func compareLotForFIFO(a domain.LotAvailability, b domain.LotAvailability) int {
	if a.ReceivedDate.Before(b.ReceivedDate) {
		return -1
	}
	if a.ReceivedDate.After(b.ReceivedDate) {
		return 1
	}
	return strings.Compare(a.LotID, b.LotID)
}
