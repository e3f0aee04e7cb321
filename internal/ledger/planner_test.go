package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

func availability() []domain.LotAvailability {
	return []domain.LotAvailability{
		{LotID: "L2", ProductID: "prod-1", Remaining: 5, ReceivedDate: day0.AddDate(0, 0, 1)},
		{LotID: "L1", ProductID: "prod-1", Remaining: 3, ReceivedDate: day0},
	}
}

func TestPlanDeductionTakesOldestLotFirst(t *testing.T) {
	plan, err := PlanDeduction("prod-1", 4, availability())
	require.NoError(t, err)

	assert.Equal(t, []domain.DeductionStep{
		{LotID: "L1", DeductQty: 3},
		{LotID: "L2", DeductQty: 1},
	}, plan.Steps)
	assert.Equal(t, 4, plan.Quantity)
}

func TestPlanDeductionFailsWithoutPartialPlan(t *testing.T) {
	lots := []domain.LotAvailability{
		{LotID: "L1", ProductID: "prod-1", Remaining: 3, ReceivedDate: day0},
		{LotID: "L2", ProductID: "prod-1", Remaining: 1, ReceivedDate: day0.AddDate(0, 0, 1)},
	}
	snapshot := append([]domain.LotAvailability(nil), lots...)

	plan, err := PlanDeduction("prod-1", 5, lots)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))
	var shortErr *InsufficientStockError
	require.True(t, errors.As(err, &shortErr))
	assert.Equal(t, 5, shortErr.Requested)
	assert.Equal(t, 4, shortErr.Available)
	assert.Empty(t, plan.Steps)
	assert.Equal(t, snapshot, lots)
}

func TestPlanDeductionSkipsEmptyAndNegativeLots(t *testing.T) {
	lots := []domain.LotAvailability{
		{LotID: "L0", ProductID: "prod-1", Remaining: -2, ReceivedDate: day0.AddDate(0, 0, -2)},
		{LotID: "L1", ProductID: "prod-1", Remaining: 0, ReceivedDate: day0.AddDate(0, 0, -1)},
		{LotID: "L2", ProductID: "prod-1", Remaining: 2, ReceivedDate: day0},
		{LotID: "X1", ProductID: "prod-2", Remaining: 50, ReceivedDate: day0.AddDate(0, 0, -5)},
	}

	plan, err := PlanDeduction("prod-1", 2, lots)
	require.NoError(t, err)
	assert.Equal(t, []domain.DeductionStep{{LotID: "L2", DeductQty: 2}}, plan.Steps)

	_, err = PlanDeduction("prod-1", 3, lots)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestPlanDeductionBreaksDateTiesByLotID(t *testing.T) {
	lots := []domain.LotAvailability{
		{LotID: "lot-b", ProductID: "prod-1", Remaining: 2, ReceivedDate: day0},
		{LotID: "lot-a", ProductID: "prod-1", Remaining: 2, ReceivedDate: day0},
	}

	plan, err := PlanDeduction("prod-1", 3, lots)
	require.NoError(t, err)
	assert.Equal(t, []domain.DeductionStep{
		{LotID: "lot-a", DeductQty: 2},
		{LotID: "lot-b", DeductQty: 1},
	}, plan.Steps)
}

func TestPlanDeductionRejectsNonPositiveQuantity(t *testing.T) {
	_, err := PlanDeduction("prod-1", 0, availability())
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPlanOrderSharesAvailabilityAcrossLines(t *testing.T) {
	lots := map[string][]domain.LotAvailability{"prod-1": availability()}

	plans, err := PlanOrder([]domain.SaleItemRequest{
		{ProductID: "prod-1", Quantity: 4},
		{ProductID: "prod-1", Quantity: 3},
	}, lots)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, []domain.DeductionStep{{LotID: "L2", DeductQty: 3}}, plans[1].Steps)

	_, err = PlanOrder([]domain.SaleItemRequest{
		{ProductID: "prod-1", Quantity: 4},
		{ProductID: "prod-1", Quantity: 5},
	}, lots)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, lots["prod-1"][1].Remaining)
}
