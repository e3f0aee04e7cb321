package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/ledger"
	"github.com/ssujit905/Inventory-sub001/internal/notify"
	"github.com/ssujit905/Inventory-sub001/internal/store"
	"github.com/ssujit905/Inventory-sub001/internal/xid"
)

func (s *Service) ListSales(ctx context.Context, status string, limit int) ([]domain.Sale, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && !ledger.IsParcelStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, status)
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListSales(ctx, store.SaleFilter{Status: status, Limit: limit})
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.SaleResponse, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.SaleResponse{}, err
	}
	txs, err := s.repo.ListTransactions(ctx, store.TransactionFilter{SaleID: sale.ID})
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return domain.SaleResponse{Sale: *sale, Transactions: txs}, nil
}

// PlanSale runs FIFO planning against live stock without writing anything.
func (s *Service) PlanSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SalePlanResponse, error) {
	lines, err := s.normalizeSaleRequest(&req)
	if err != nil {
		return domain.SalePlanResponse{}, err
	}
	plans, err := s.planLines(ctx, lines)
	if err != nil {
		return domain.SalePlanResponse{}, err
	}
	return domain.SalePlanResponse{Plans: plans}, nil
}

// CreateSale plans every line oldest-lot-first and commits the order in one
// store call. The store re-checks remaining at commit; drift fails the whole
// order with store.ErrStockConflict and nothing is written.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.SaleResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.SaleResponse{}, ErrForbidden
	}
	lines, err := s.normalizeSaleRequest(&req)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if req.CODAmount.IsNegative() {
		return domain.SaleResponse{}, fmt.Errorf("%w: cod_amount must not be negative", store.ErrInvalidInput)
	}
	orderDate, err := parseDate(req.OrderDate, s.now())
	if err != nil {
		return domain.SaleResponse{}, err
	}

	plans, err := s.planLines(ctx, lines)
	if err != nil {
		s.metrics.IncPlanFailure(planFailureReason(err))
		return domain.SaleResponse{}, err
	}

	sale := domain.Sale{
		ID:           xid.New("sale"),
		OrderDate:    orderDate,
		ParcelStatus: domain.ParcelProcessing,
		CODAmount:    req.CODAmount,
		CustomerName: req.CustomerName,
		Items:        make([]domain.SaleItem, 0, len(lines)),
	}
	if req.AdID != "" {
		adID := req.AdID
		sale.AdID = &adID
	}
	for _, line := range lines {
		sale.Items = append(sale.Items, domain.SaleItem{
			ID:        xid.New("item"),
			SaleID:    sale.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	resp, err := s.repo.CommitSale(ctx, store.SaleCommit{Sale: sale, Plans: plans})
	if err != nil {
		if errors.Is(err, store.ErrStockConflict) {
			s.metrics.IncPlanFailure("stock_conflict")
		}
		return domain.SaleResponse{}, err
	}

	s.metrics.IncSaleCommitted()
	s.logAudit(ctx, "sale_create", "sale", resp.Sale.ID, fmt.Sprintf("items=%d,lines=%d", len(resp.Sale.Items), len(resp.Transactions)))
	s.publish(ctx, notify.TableSales, notify.TableTransactions)
	return *resp, nil
}

// AdvanceSaleStatus moves a parcel along processing -> sent -> delivered or
// to returned. Delivery and return carry their amount in the same call.
// Re-sending a terminal status with a different amount is a correction:
// admins may do it, everyone else gets ErrWriteOnce.
func (s *Service) AdvanceSaleStatus(ctx context.Context, saleID string, req domain.SaleStatusRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, ErrForbidden
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := s.check(req); err != nil {
		return domain.Sale{}, err
	}
	if req.SoldAmount != nil && req.Status != domain.ParcelDelivered {
		return domain.Sale{}, fmt.Errorf("%w: sold_amount only applies to delivered", store.ErrInvalidInput)
	}
	if req.ReturnCost != nil && req.Status != domain.ParcelReturned {
		return domain.Sale{}, fmt.Errorf("%w: return_cost only applies to returned", store.ErrInvalidInput)
	}
	amount := decimalOrZero(req.SoldAmount).Add(decimalOrZero(req.ReturnCost))
	if amount.IsNegative() {
		return domain.Sale{}, fmt.Errorf("%w: amount must not be negative", store.ErrInvalidInput)
	}

	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Sale{}, err
	}

	changed, err := ledger.Transition(sale.ParcelStatus, req.Status, amount)
	if err != nil {
		return domain.Sale{}, err
	}
	if !changed {
		return s.correctTerminalAmount(ctx, actor, *sale, amount)
	}

	update := domain.SaleStatusUpdate{
		SaleID:         sale.ID,
		ExpectedStatus: sale.ParcelStatus,
		Status:         req.Status,
		SoldAmount:     decimalOrZero(req.SoldAmount),
		ReturnCost:     decimalOrZero(req.ReturnCost),
	}
	updated, err := s.repo.UpdateSaleStatus(ctx, update)
	if err != nil {
		return domain.Sale{}, err
	}

	s.metrics.IncTransition(updated.ParcelStatus)
	s.logAudit(ctx, "sale_status", "sale", updated.ID, fmt.Sprintf("%s->%s,amount=%s", sale.ParcelStatus, updated.ParcelStatus, amount))
	s.publish(ctx, notify.TableSales)
	return *updated, nil
}

func (s *Service) correctTerminalAmount(ctx context.Context, actor domain.Actor, sale domain.Sale, amount decimal.Decimal) (domain.Sale, error) {
	if amount.IsZero() || !ledger.IsTerminal(sale.ParcelStatus) {
		return sale, nil
	}
	current := terminalAmount(sale)
	if current.Equal(amount) {
		return sale, nil
	}
	if current.IsPositive() && actor.Role != domain.RoleAdmin {
		return domain.Sale{}, fmt.Errorf("%w: sale %s already has %s recorded", ErrWriteOnce, sale.ID, current)
	}

	update := domain.SaleStatusUpdate{
		SaleID:         sale.ID,
		ExpectedStatus: sale.ParcelStatus,
		Status:         sale.ParcelStatus,
	}
	if sale.ParcelStatus == domain.ParcelDelivered {
		update.SoldAmount = amount
	} else {
		update.ReturnCost = amount
	}
	updated, err := s.repo.UpdateSaleStatus(ctx, update)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_amount_correct", "sale", updated.ID, fmt.Sprintf("status=%s,old=%s,new=%s", updated.ParcelStatus, current, amount))
	s.publish(ctx, notify.TableSales)
	return *updated, nil
}

func terminalAmount(sale domain.Sale) decimal.Decimal {
	if sale.ParcelStatus == domain.ParcelReturned {
		return sale.ReturnCost
	}
	return sale.SoldAmount
}

func (s *Service) normalizeSaleRequest(req *domain.SaleCreateRequest) ([]domain.SaleItemRequest, error) {
	req.AdID = strings.TrimSpace(req.AdID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	for i := range req.Items {
		req.Items[i].ProductID = strings.TrimSpace(req.Items[i].ProductID)
	}
	if err := s.check(*req); err != nil {
		return nil, err
	}
	return req.Items, nil
}

// planLines loads each ordered product's lots and ledger concurrently, then
// plans the order against that one snapshot.
func (s *Service) planLines(ctx context.Context, lines []domain.SaleItemRequest) ([]domain.DeductionPlan, error) {
	productIDs := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			productIDs = append(productIDs, line.ProductID)
		}
	}

	var mu sync.Mutex
	lotsByProduct := make(map[string][]domain.LotAvailability, len(productIDs))
	g, gctx := errgroup.WithContext(ctx)
	for _, productID := range productIDs {
		g.Go(func() error {
			if _, err := s.repo.GetProduct(gctx, productID); err != nil {
				return fmt.Errorf("product %s: %w", productID, err)
			}
			lots, err := s.repo.ListLots(gctx, productID)
			if err != nil {
				return err
			}
			txs, err := s.repo.ListTransactions(gctx, store.TransactionFilter{ProductID: productID})
			if err != nil {
				return err
			}
			available := ledger.Availability(lots, ledger.ComputeLotStatuses(lots, txs, nil))

			mu.Lock()
			lotsByProduct[productID] = available
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return ledger.PlanOrder(lines, lotsByProduct)
}

func planFailureReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return "invalid_quantity"
	}
	return "internal"
}
