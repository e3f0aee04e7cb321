// Package ledger derives stock positions, FIFO deduction plans, shared cost
// allocations and profit views from the append-only transaction log. Every
// function here is pure: callers fetch the records, the package never does I/O.
package ledger

import (
	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

// ComputeLotStatus derives a lot's stock position from its transactions.
// remaining is stock_in minus sold minus adjustment and expiry decrements.
// Returned lines are reported separately and are not subtracted. A return
// writes no compensating in transaction.
func ComputeLotStatus(lot domain.Lot, txs []domain.Transaction, minStockAlert int) domain.LotStatus {
	status := domain.LotStatus{
		LotID:     lot.ID,
		LotNumber: lot.LotNumber,
		ProductID: lot.ProductID,
	}

	for _, tx := range txs {
		if tx.LotID != lot.ID {
			continue
		}
		switch tx.Type {
		case domain.TxTypeIn:
			status.StockIn += tx.QuantityChanged
		case domain.TxTypeSale:
			qty := absInt(tx.QuantityChanged)
			switch saleLineBucket(tx.SaleStatus) {
			case bucketSold:
				status.Sold += qty
			case bucketReturned:
				status.Returned += qty
			}
		case domain.TxTypeAdjustment, domain.TxTypeExpiry:
			status.Adjusted -= tx.QuantityChanged
		}
	}

	status.Remaining = status.StockIn - status.Sold - status.Adjusted
	status.Status = StockLevel(status.Remaining, minStockAlert)
	return status
}

// StockLevel classifies a remaining quantity against the product threshold.
func StockLevel(remaining int, minStockAlert int) string {
	switch {
	case remaining <= 0:
		return domain.StockOutOfStock
	case remaining <= minStockAlert:
		return domain.StockLow
	default:
		return domain.StockHealthy
	}
}

// ComputeLotStatuses evaluates every lot against the shared transaction list.
// Results keep the order of lots.
func ComputeLotStatuses(lots []domain.Lot, txs []domain.Transaction, minStockByProduct map[string]int) []domain.LotStatus {
	byLot := make(map[string][]domain.Transaction, len(lots))
	for _, tx := range txs {
		byLot[tx.LotID] = append(byLot[tx.LotID], tx)
	}

	statuses := make([]domain.LotStatus, 0, len(lots))
	for _, lot := range lots {
		statuses = append(statuses, ComputeLotStatus(lot, byLot[lot.ID], minStockByProduct[lot.ProductID]))
	}
	return statuses
}

// Availability converts computed statuses into planner input.
func Availability(lots []domain.Lot, statuses []domain.LotStatus) []domain.LotAvailability {
	remaining := make(map[string]int, len(statuses))
	for _, st := range statuses {
		remaining[st.LotID] = st.Remaining
	}

	out := make([]domain.LotAvailability, 0, len(lots))
	for _, lot := range lots {
		out = append(out, domain.LotAvailability{
			LotID:        lot.ID,
			ProductID:    lot.ProductID,
			Remaining:    remaining[lot.ID],
			ReceivedDate: lot.ReceivedDate,
		})
	}
	return out
}

type lineBucket int

const (
	bucketIgnored lineBucket = iota
	bucketSold
	bucketReturned
)

// saleLineBucket decides where a sale line counts. Lines without a resolvable
// parent sale count as sold; unknown statuses are ignored.
func saleLineBucket(saleStatus *string) lineBucket {
	if saleStatus == nil {
		return bucketSold
	}
	switch *saleStatus {
	case domain.ParcelProcessing, domain.ParcelSent, domain.ParcelDelivered:
		return bucketSold
	case domain.ParcelReturned:
		return bucketReturned
	default:
		return bucketIgnored
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
