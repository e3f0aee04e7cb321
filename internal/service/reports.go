package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/ledger"
	"github.com/ssujit905/Inventory-sub001/internal/store"
)

// ledgerSnapshot is every collection the derived views read, fetched together.
type ledgerSnapshot struct {
	products     []domain.Product
	lots         []domain.Lot
	transactions []domain.Transaction
	sales        []domain.Sale
	expenses     []domain.Expense
	income       []domain.IncomeEntry
}

// loadSnapshot fetches the ledger collections concurrently. Cancellation is
// only observed here; the aggregation that follows runs to completion.
func (s *Service) loadSnapshot(ctx context.Context) (ledgerSnapshot, error) {
	var snap ledgerSnapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		snap.products, err = s.repo.ListProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.lots, err = s.repo.ListLots(gctx, "")
		return err
	})
	g.Go(func() (err error) {
		snap.transactions, err = s.repo.ListTransactions(gctx, store.TransactionFilter{})
		return err
	})
	g.Go(func() (err error) {
		snap.sales, err = s.repo.ListSales(gctx, store.SaleFilter{})
		return err
	})
	g.Go(func() (err error) {
		snap.expenses, err = s.repo.ListExpenses(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.income, err = s.repo.ListIncome(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return ledgerSnapshot{}, err
	}
	return snap, nil
}

// ProfitReport recomputes every profit view from the current ledger.
func (s *Service) ProfitReport(ctx context.Context) (domain.ProfitReport, error) {
	started := time.Now()
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return domain.ProfitReport{}, err
	}

	report := ledger.AggregateProfit(ledger.ProfitInput{
		Transactions: snap.transactions,
		Sales:        snap.sales,
		Expenses:     snap.expenses,
		Lots:         snap.lots,
		Income:       snap.income,
	})
	report.GeneratedAt = s.now()

	s.metrics.ObserveReport("profit", time.Since(started))
	s.log.Zerolog(ctx).Debug().
		Int("sale_rows", len(report.SaleRows)).
		Int("pending_rows", report.Summary.PendingRows).
		Msg("profit report computed")
	return report, nil
}

// LotStatuses derives the stock position of every lot, optionally for one
// product, ordered by product then received date.
func (s *Service) LotStatuses(ctx context.Context, productID string) (domain.LotStatusListResponse, error) {
	productID = strings.TrimSpace(productID)
	started := time.Now()

	var (
		products []domain.Product
		lots     []domain.Lot
		txs      []domain.Transaction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = s.repo.ListProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		lots, err = s.repo.ListLots(gctx, productID)
		return err
	})
	g.Go(func() (err error) {
		txs, err = s.repo.ListTransactions(gctx, store.TransactionFilter{ProductID: productID})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.LotStatusListResponse{}, err
	}

	slices.SortStableFunc(lots, compareLotForStatus)
	statuses := ledger.ComputeLotStatuses(lots, txs, minStockByProduct(products))
	s.metrics.ObserveReport("lot_status", time.Since(started))
	return domain.LotStatusListResponse{Lots: statuses}, nil
}

// compareLotForStatus orders lots by product, then received date, then id.
func compareLotForStatus(a, b domain.Lot) int {
	if c := strings.Compare(a.ProductID, b.ProductID); c != 0 {
		return c
	}
	if c := a.ReceivedDate.Compare(b.ReceivedDate); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// StockAlerts lists products whose total remaining across lots is Low or Out
// of Stock against their own threshold.
func (s *Service) StockAlerts(ctx context.Context) (domain.StockAlertResponse, error) {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return domain.StockAlertResponse{}, err
	}

	statuses := ledger.ComputeLotStatuses(snap.lots, snap.transactions, minStockByProduct(snap.products))
	remaining := make(map[string]int, len(snap.products))
	lotCount := make(map[string]int, len(snap.products))
	for _, st := range statuses {
		remaining[st.ProductID] += max(st.Remaining, 0)
		lotCount[st.ProductID]++
	}

	alerts := make([]domain.StockAlert, 0)
	for _, product := range snap.products {
		level := ledger.StockLevel(remaining[product.ID], product.MinStockAlert)
		if level == domain.StockHealthy {
			continue
		}
		alerts = append(alerts, domain.StockAlert{
			ProductID:     product.ID,
			SKU:           product.SKU,
			Name:          product.Name,
			MinStockAlert: product.MinStockAlert,
			Remaining:     remaining[product.ID],
			Status:        level,
			LotCount:      lotCount[product.ID],
		})
	}
	slices.SortFunc(alerts, func(a, b domain.StockAlert) int {
		if a.Remaining != b.Remaining {
			return a.Remaining - b.Remaining
		}
		return strings.Compare(a.SKU, b.SKU)
	})
	return domain.StockAlertResponse{Alerts: alerts}, nil
}

func minStockByProduct(products []domain.Product) map[string]int {
	out := make(map[string]int, len(products))
	for _, p := range products {
		out[p.ID] = p.MinStockAlert
	}
	return out
}
