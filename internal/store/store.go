package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/ledger"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrStockConflict means a lot no longer covers a planned deduction at
	// commit time. The whole order is rejected; callers may re-plan.
	ErrStockConflict = errors.New("stock changed since planning")
	// ErrStatusConflict means the sale left the expected status before the
	// update was applied.
	ErrStatusConflict = errors.New("sale status changed concurrently")

	ErrInsufficientStock = ledger.ErrInsufficientStock
)

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	ProductID string
	LotID     string
	SaleID    string
	Type      string
}

type SaleFilter struct {
	Status string
	From   time.Time
	To     time.Time
	Limit  int
}

// SaleCommit is a fully planned order. The store re-validates every plan step
// against live remaining, snapshots each lot's cost onto its sale line and
// fills ids and timestamps.
type SaleCommit struct {
	Sale  domain.Sale
	Plans []domain.DeductionPlan
}

type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)

	CreateLot(ctx context.Context, lot domain.Lot, quantity int) (*domain.Lot, error)
	GetLot(ctx context.Context, id string) (*domain.Lot, error)
	ListLots(ctx context.Context, productID string) ([]domain.Lot, error)
	UpdateLotCost(ctx context.Context, lotID string, cost decimal.Decimal) (*domain.Lot, error)

	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	RecordAdjustment(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)

	CommitSale(ctx context.Context, commit SaleCommit) (*domain.SaleResponse, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)
	UpdateSaleStatus(ctx context.Context, update domain.SaleStatusUpdate) (*domain.Sale, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context) ([]domain.Expense, error)
	CreateIncome(ctx context.Context, entry domain.IncomeEntry) (*domain.IncomeEntry, error)
	ListIncome(ctx context.Context) ([]domain.IncomeEntry, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
