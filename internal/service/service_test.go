package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/ledger"
	"github.com/ssujit905/Inventory-sub001/internal/notify"
	"github.com/ssujit905/Inventory-sub001/internal/store"
	"github.com/ssujit905/Inventory-sub001/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil, nil, nil)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: domain.RoleStaff})
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// newFIFOService builds an empty ledger with one product held in two lots:
// L1 (3 units, older) and L2 (5 units, newer).
func newFIFOService(t *testing.T) (*Service, domain.Product, domain.Lot, domain.Lot) {
	t.Helper()
	svc := New(memory.New(), nil, nil, nil)
	ctx := adminCtx()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{SKU: "mug-01", Name: "Mug", MinStockAlert: 2})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	l1, err := svc.ReceiveLot(ctx, domain.LotReceiveRequest{ProductID: product.ID, LotNumber: "L1", Quantity: 3, CostPrice: dec(2), ReceivedDate: "2024-01-01"})
	if err != nil {
		t.Fatalf("receive L1: %v", err)
	}
	l2, err := svc.ReceiveLot(ctx, domain.LotReceiveRequest{ProductID: product.ID, LotNumber: "L2", Quantity: 5, CostPrice: dec(3), ReceivedDate: "2024-02-01"})
	if err != nil {
		t.Fatalf("receive L2: %v", err)
	}
	return svc, product, l1, l2
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{SKU: "X-1", Name: "X"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{SKU: " x-1 ", Name: "X"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.SKU != "X-1" || product.ID == "" {
		t.Fatalf("expected normalized sku and generated id, got %+v", product)
	}
}

func TestCreateProductValidatesInput(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{SKU: "", Name: "X", MinStockAlert: -1})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestReceiveLotAcceptsPendingCost(t *testing.T) {
	svc := newTestService()

	lot, err := svc.ReceiveLot(adminCtx(), domain.LotReceiveRequest{ProductID: "prod-tee", LotNumber: "TEE-0003", Quantity: 4})
	if err != nil {
		t.Fatalf("receive lot: %v", err)
	}
	if !lot.CostPrice.IsZero() {
		t.Fatalf("expected pending (zero) cost, got %s", lot.CostPrice)
	}

	_, err = svc.ReceiveLot(adminCtx(), domain.LotReceiveRequest{ProductID: "prod-missing", LotNumber: "X", Quantity: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}

	_, err = svc.ReceiveLot(adminCtx(), domain.LotReceiveRequest{ProductID: "prod-tee", LotNumber: "TEE-0004", Quantity: 1, ReceivedDate: "01/02/2024"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid date to be rejected, got %v", err)
	}
}

func TestCorrectLotCostClearsPendingRows(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	report, err := svc.ProfitReport(ctx)
	if err != nil {
		t.Fatalf("profit report: %v", err)
	}
	if !hasPendingCostForLot(report, "lot-cap-1") {
		t.Fatalf("expected cap lot rows to be cost pending before correction")
	}

	if _, err := svc.CorrectLotCost(staffCtx(), "lot-cap-1", domain.LotCostCorrectionRequest{CostPrice: dec(3)}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for staff, got %v", err)
	}
	if _, err := svc.CorrectLotCost(ctx, "lot-cap-1", domain.LotCostCorrectionRequest{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected zero correction to be rejected, got %v", err)
	}

	lot, err := svc.CorrectLotCost(ctx, "lot-cap-1", domain.LotCostCorrectionRequest{CostPrice: dec(3), Reason: "invoice arrived"})
	if err != nil {
		t.Fatalf("correct cost: %v", err)
	}
	if !lot.CostPrice.Equal(dec(3)) {
		t.Fatalf("expected cost 3, got %s", lot.CostPrice)
	}

	report, err = svc.ProfitReport(ctx)
	if err != nil {
		t.Fatalf("profit report: %v", err)
	}
	if hasPendingCostForLot(report, "lot-cap-1") {
		t.Fatalf("expected corrected lot to no longer be cost pending")
	}

	logs, err := svc.ListAuditLogs(ctx, "", 50)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if !hasAuditAction(logs, "lot_cost_correct") {
		t.Fatalf("expected lot_cost_correct audit entry, got %+v", logs)
	}
}

func TestRecordAdjustmentValidatesLiveRemaining(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	_, err := svc.RecordAdjustment(ctx, domain.AdjustmentRequest{LotID: "lot-cap-1", Type: domain.TxTypeExpiry, Quantity: 2})
	if !errors.Is(err, ledger.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	_, err = svc.RecordAdjustment(ctx, domain.AdjustmentRequest{LotID: "lot-cap-1", Type: "restock", Quantity: 1})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid type to be rejected, got %v", err)
	}

	tx, err := svc.RecordAdjustment(ctx, domain.AdjustmentRequest{LotID: "lot-cap-1", Type: domain.TxTypeExpiry, Quantity: 1, Note: "water damage"})
	if err != nil {
		t.Fatalf("record adjustment: %v", err)
	}
	if tx.QuantityChanged != -1 || tx.ProductID != "prod-cap" {
		t.Fatalf("unexpected adjustment transaction %+v", tx)
	}

	statuses, err := svc.LotStatuses(ctx, "prod-cap")
	if err != nil {
		t.Fatalf("lot statuses: %v", err)
	}
	if len(statuses.Lots) != 1 || statuses.Lots[0].Remaining != 0 || statuses.Lots[0].Status != domain.StockOutOfStock {
		t.Fatalf("expected cap lot to be out of stock, got %+v", statuses.Lots)
	}
}

func TestCreateExpenseRules(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateExpense(staffCtx(), domain.ExpenseCreateRequest{Category: domain.ExpenseAds, Amount: dec(10)})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{Category: domain.ExpenseAds})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected zero amount to be rejected, got %v", err)
	}
	_, err = svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{Category: "travel", Amount: dec(10)})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown category to be rejected, got %v", err)
	}

	expense, err := svc.CreateExpense(adminCtx(), domain.ExpenseCreateRequest{Category: "Packaging", Amount: dec(40), Description: "boxes qty: 20", ExpenseDate: "2024-03-01"})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if expense.Category != domain.ExpensePackaging || expense.ExpenseDate.Format("2006-01-02") != "2024-03-01" {
		t.Fatalf("unexpected expense %+v", expense)
	}
}

func TestCreateIncomeAllowsStaff(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateIncome(context.Background(), domain.IncomeCreateRequest{Category: domain.IncomeCategoryIncome, Amount: dec(5)}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected anonymous income to be rejected, got %v", err)
	}
	entry, err := svc.CreateIncome(staffCtx(), domain.IncomeCreateRequest{Category: domain.IncomeCategoryIncome, Amount: dec(15), Description: "marketplace payout"})
	if err != nil {
		t.Fatalf("create income: %v", err)
	}
	if entry.ID == "" || !entry.Amount.Equal(dec(15)) {
		t.Fatalf("unexpected income entry %+v", entry)
	}
}

func TestListAuditLogsRequiresAdmin(t *testing.T) {
	svc := newTestService()

	if _, err := svc.ListAuditLogs(staffCtx(), "", 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.ListAuditLogs(adminCtx(), "2024-13-40", 10); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid date, got %v", err)
	}
}

func TestMutationsPublishChangeEvents(t *testing.T) {
	local := notify.NewLocal()
	svc := New(memory.NewSeeded(), local, nil, nil)

	events, cancel, err := local.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := svc.CreateIncome(staffCtx(), domain.IncomeCreateRequest{Category: domain.IncomeCategoryInvestment, Amount: dec(100)}); err != nil {
		t.Fatalf("create income: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Table != notify.TableIncome {
			t.Fatalf("expected income event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a change event after income write")
	}
}

func hasPendingCostForLot(report domain.ProfitReport, lotID string) bool {
	for _, row := range report.SaleRows {
		if row.LotID == lotID && row.CostPending {
			return true
		}
	}
	return false
}

func hasAuditAction(logs []domain.AuditLog, action string) bool {
	for _, entry := range logs {
		if entry.Action == action {
			return true
		}
	}
	return false
}
