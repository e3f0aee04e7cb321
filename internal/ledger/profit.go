package ledger

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

// ProfitInput is a snapshot of the ledger. Lots and Income are optional: lots
// back-fill unit costs and lot numbers, income feeds the cash-flow view.
type ProfitInput struct {
	Transactions []domain.Transaction
	Sales        []domain.Sale
	Expenses     []domain.Expense
	Lots         []domain.Lot
	Income       []domain.IncomeEntry
}

// AggregateProfit builds the sale-wise, lot-wise and monthly views. The result
// depends only on the input, so recomputing an unchanged ledger yields
// identical rows. GeneratedAt is left for the caller to stamp.
func AggregateProfit(in ProfitInput) domain.ProfitReport {
	sales := uniqueSales(in.Sales)
	allocations := AllocateCosts(sales, in.Expenses)
	saleRows := buildSaleRows(sales, in.Transactions, in.Lots, allocations)

	return domain.ProfitReport{
		SaleRows:    saleRows,
		LotRows:     buildLotRows(saleRows),
		ProfitTrend: profitTrend(saleRows),
		CashFlow:    cashFlow(sales, in.Expenses, in.Income),
		Summary:     summarize(saleRows),
	}
}

// SaleProfit is the profit rule for one row.
func SaleProfit(status string, soldAmount, returnCost, costTotal, ads, packaging decimal.Decimal) decimal.Decimal {
	if status == domain.ParcelReturned {
		return returnCost.Add(ads).Add(packaging).Neg()
	}
	return soldAmount.Sub(costTotal.Add(ads).Add(packaging))
}

func uniqueSales(sales []domain.Sale) []domain.Sale {
	seen := make(map[string]struct{}, len(sales))
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		if _, dup := seen[sale.ID]; dup {
			continue
		}
		seen[sale.ID] = struct{}{}
		out = append(out, sale)
	}
	slices.SortStableFunc(out, func(a, b domain.Sale) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func buildSaleRows(sales []domain.Sale, txs []domain.Transaction, lots []domain.Lot, allocations map[string]domain.SaleAllocation) []domain.SaleProfitRow {
	lotsByID := make(map[string]domain.Lot, len(lots))
	for _, lot := range lots {
		lotsByID[lot.ID] = lot
	}

	linesBySale := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		if tx.Type != domain.TxTypeSale || tx.SaleID == nil {
			continue
		}
		linesBySale[*tx.SaleID] = append(linesBySale[*tx.SaleID], tx)
	}
	for _, lines := range linesBySale {
		slices.SortStableFunc(lines, func(a, b domain.Transaction) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
	}

	rows := make([]domain.SaleProfitRow, 0, len(txs))
	for _, sale := range sales {
		alloc := allocations[sale.ID]
		lines := linesBySale[sale.ID]
		if len(lines) == 0 {
			// keeps revenue and allocations of a sale without lines visible
			lines = []domain.Transaction{{}}
		}

		for i, line := range lines {
			row := domain.SaleProfitRow{
				SaleID:         sale.ID,
				OrderDate:      sale.OrderDate,
				SaleCreatedAt:  sale.CreatedAt,
				ParcelStatus:   sale.ParcelStatus,
				UnitCost:       decimal.Zero,
				SoldAmount:     decimal.Zero,
				ReturnCost:     decimal.Zero,
				AdsSpent:       decimal.Zero,
				PackagingSpent: decimal.Zero,
			}
			if line.ID != "" {
				lot := lotsByID[line.LotID]
				row.TransactionID = line.ID
				row.LotID = line.LotID
				row.LotNumber = lot.LotNumber
				row.ProductID = line.ProductID
				row.Quantity = absInt(line.QuantityChanged)
				row.UnitCost = unitCostFor(line, lot)
				row.CostPending = row.Quantity > 0 && row.UnitCost.IsZero()
			}
			row.CostTotal = row.UnitCost.Mul(decimal.NewFromInt(int64(row.Quantity)))

			if i == 0 {
				switch sale.ParcelStatus {
				case domain.ParcelDelivered:
					row.SoldAmount = sale.SoldAmount
				case domain.ParcelReturned:
					row.ReturnCost = sale.ReturnCost
				}
				row.AdsSpent = orZero(alloc.AdsSpent)
				row.PackagingSpent = orZero(alloc.PackagingSpent)
				row.AdsPending = alloc.AdsPending
				row.PackagingPending = alloc.PackagingPending
			}

			row.ProfitLoss = SaleProfit(row.ParcelStatus, row.SoldAmount, row.ReturnCost, row.CostTotal, row.AdsSpent, row.PackagingSpent)
			rows = append(rows, row)
		}
	}
	return rows
}

// unitCostFor keeps the cost snapshot taken at commit. A zero snapshot means
// the lot cost was still pending then, so the current lot cost is used.
func unitCostFor(line domain.Transaction, lot domain.Lot) decimal.Decimal {
	if !line.UnitCost.IsZero() {
		return line.UnitCost
	}
	return orZero(lot.CostPrice)
}

type lotShare struct {
	revenue   decimal.Decimal
	returns   decimal.Decimal
	ads       decimal.Decimal
	packaging decimal.Decimal
}

func buildLotRows(saleRows []domain.SaleProfitRow) []domain.LotProfitRow {
	byLot := make(map[string]*domain.LotProfitRow)
	order := make([]string, 0)

	for start := 0; start < len(saleRows); {
		end := start + 1
		for end < len(saleRows) && saleRows[end].SaleID == saleRows[start].SaleID {
			end++
		}
		group := saleRows[start:end]
		start = end
		// a sale with no lines has nothing to attribute to a lot
		if group[0].LotID == "" {
			continue
		}
		shares := splitSaleAmounts(group)

		for i, row := range group {
			lotRow, ok := byLot[row.LotID]
			if !ok {
				lotRow = &domain.LotProfitRow{
					LotID:            row.LotID,
					LotNumber:        row.LotNumber,
					ProductID:        row.ProductID,
					CostTotal:        decimal.Zero,
					RevenueAllocated: decimal.Zero,
					ReturnAllocated:  decimal.Zero,
					AdsSpent:         decimal.Zero,
					PackagingSpent:   decimal.Zero,
					Profit:           decimal.Zero,
				}
				byLot[row.LotID] = lotRow
				order = append(order, row.LotID)
			}

			share := shares[i]
			if row.ParcelStatus == domain.ParcelDelivered {
				lotRow.QtySold += row.Quantity
			}
			lotRow.CostTotal = lotRow.CostTotal.Add(row.CostTotal)
			lotRow.RevenueAllocated = lotRow.RevenueAllocated.Add(share.revenue)
			lotRow.ReturnAllocated = lotRow.ReturnAllocated.Add(share.returns)
			lotRow.AdsSpent = lotRow.AdsSpent.Add(share.ads)
			lotRow.PackagingSpent = lotRow.PackagingSpent.Add(share.packaging)
			lotRow.Profit = lotRow.Profit.Add(SaleProfit(row.ParcelStatus, share.revenue, share.returns, row.CostTotal, share.ads, share.packaging))
		}
	}

	slices.Sort(order)
	rows := make([]domain.LotProfitRow, 0, len(order))
	for _, lotID := range order {
		rows = append(rows, *byLot[lotID])
	}
	return rows
}

// splitSaleAmounts spreads the sale-level amounts carried on the first row
// across all rows of the sale by quantity share. The last row takes the
// remainder so the parts always sum to the sale total.
func splitSaleAmounts(group []domain.SaleProfitRow) []lotShare {
	first := group[0]
	totalQty := 0
	for _, row := range group {
		totalQty += row.Quantity
	}

	shares := make([]lotShare, len(group))
	if totalQty == 0 {
		shares[0] = lotShare{revenue: first.SoldAmount, returns: first.ReturnCost, ads: first.AdsSpent, packaging: first.PackagingSpent}
		for i := 1; i < len(shares); i++ {
			shares[i] = lotShare{revenue: decimal.Zero, returns: decimal.Zero, ads: decimal.Zero, packaging: decimal.Zero}
		}
		return shares
	}

	split := func(amount decimal.Decimal, set func(*lotShare, decimal.Decimal)) {
		total := decimal.NewFromInt(int64(totalQty))
		allocated := decimal.Zero
		for i, row := range group {
			var part decimal.Decimal
			if i == len(group)-1 {
				part = amount.Sub(allocated)
			} else {
				part = amount.Mul(decimal.NewFromInt(int64(row.Quantity))).Div(total)
				allocated = allocated.Add(part)
			}
			set(&shares[i], part)
		}
	}
	split(first.SoldAmount, func(s *lotShare, v decimal.Decimal) { s.revenue = v })
	split(first.ReturnCost, func(s *lotShare, v decimal.Decimal) { s.returns = v })
	split(first.AdsSpent, func(s *lotShare, v decimal.Decimal) { s.ads = v })
	split(first.PackagingSpent, func(s *lotShare, v decimal.Decimal) { s.packaging = v })
	return shares
}

func profitTrend(saleRows []domain.SaleProfitRow) []domain.MonthlyProfit {
	byMonth := make(map[string]*domain.MonthlyProfit)
	seenSale := make(map[string]struct{})
	for _, row := range saleRows {
		month := monthKey(row.SaleCreatedAt)
		bucket, ok := byMonth[month]
		if !ok {
			bucket = &domain.MonthlyProfit{Month: month, ProfitLoss: decimal.Zero}
			byMonth[month] = bucket
		}
		if _, counted := seenSale[row.SaleID]; !counted {
			seenSale[row.SaleID] = struct{}{}
			bucket.Sales++
		}
		bucket.ProfitLoss = bucket.ProfitLoss.Add(row.ProfitLoss)
	}

	out := make([]domain.MonthlyProfit, 0, len(byMonth))
	for _, bucket := range byMonth {
		out = append(out, *bucket)
	}
	slices.SortFunc(out, func(a, b domain.MonthlyProfit) int { return strings.Compare(a.Month, b.Month) })
	return out
}

// cashFlow groups money movements by their declared business dates, which
// differ from the creation timestamps used by the profit trend.
func cashFlow(sales []domain.Sale, expenses []domain.Expense, income []domain.IncomeEntry) []domain.MonthlyCashFlow {
	byMonth := make(map[string]*domain.MonthlyCashFlow)
	bucket := func(t time.Time) *domain.MonthlyCashFlow {
		month := monthKey(t)
		b, ok := byMonth[month]
		if !ok {
			b = &domain.MonthlyCashFlow{
				Month:       month,
				Revenue:     decimal.Zero,
				Income:      decimal.Zero,
				Investment:  decimal.Zero,
				Expenses:    decimal.Zero,
				ReturnCosts: decimal.Zero,
			}
			byMonth[month] = b
		}
		return b
	}

	for _, sale := range sales {
		switch sale.ParcelStatus {
		case domain.ParcelDelivered:
			b := bucket(sale.OrderDate)
			b.Revenue = b.Revenue.Add(orZero(sale.SoldAmount))
		case domain.ParcelReturned:
			b := bucket(sale.OrderDate)
			b.ReturnCosts = b.ReturnCosts.Add(orZero(sale.ReturnCost))
		}
	}
	for _, entry := range income {
		b := bucket(entry.IncomeDate)
		switch entry.Category {
		case domain.IncomeCategoryInvestment:
			b.Investment = b.Investment.Add(orZero(entry.Amount))
		default:
			b.Income = b.Income.Add(orZero(entry.Amount))
		}
	}
	for _, exp := range expenses {
		date := exp.ExpenseDate
		if date.IsZero() {
			date = exp.CreatedAt
		}
		b := bucket(date)
		b.Expenses = b.Expenses.Add(orZero(exp.Amount))
	}

	out := make([]domain.MonthlyCashFlow, 0, len(byMonth))
	for _, b := range byMonth {
		b.Net = b.Revenue.Add(b.Income).Add(b.Investment).Sub(b.Expenses).Sub(b.ReturnCosts)
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b domain.MonthlyCashFlow) int { return strings.Compare(a.Month, b.Month) })
	return out
}

func summarize(saleRows []domain.SaleProfitRow) domain.ProfitSummary {
	summary := domain.ProfitSummary{
		Revenue:        decimal.Zero,
		CostOfGoods:    decimal.Zero,
		ReturnCosts:    decimal.Zero,
		AdsSpent:       decimal.Zero,
		PackagingSpent: decimal.Zero,
		ProfitLoss:     decimal.Zero,
	}
	seen := make(map[string]struct{})
	for _, row := range saleRows {
		if _, counted := seen[row.SaleID]; !counted {
			seen[row.SaleID] = struct{}{}
			summary.Sales++
			switch row.ParcelStatus {
			case domain.ParcelDelivered:
				summary.Delivered++
			case domain.ParcelReturned:
				summary.Returned++
			}
		}
		if row.ParcelStatus != domain.ParcelReturned {
			summary.CostOfGoods = summary.CostOfGoods.Add(row.CostTotal)
		}
		summary.Revenue = summary.Revenue.Add(row.SoldAmount)
		summary.ReturnCosts = summary.ReturnCosts.Add(row.ReturnCost)
		summary.AdsSpent = summary.AdsSpent.Add(row.AdsSpent)
		summary.PackagingSpent = summary.PackagingSpent.Add(row.PackagingSpent)
		summary.ProfitLoss = summary.ProfitLoss.Add(row.ProfitLoss)
		if row.CostPending || row.AdsPending || row.PackagingPending {
			summary.PendingRows++
		}
	}
	return summary
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func orZero(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return decimal.Zero
	}
	return d
}
