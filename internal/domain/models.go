package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	MinStockAlert int       `json:"min_stock_alert"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	SKU           string `json:"sku" validate:"required,max=64"`
	Name          string `json:"name" validate:"required,max=200"`
	MinStockAlert int    `json:"min_stock_alert" validate:"gte=0"`
}

// Lot is one inbound batch of a product. CostPrice may be zero while the
// supplier invoice is pending; admins correct it later.
type Lot struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	LotNumber    string          `json:"lot_number"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	ReceivedDate time.Time       `json:"received_date"`
	CreatedAt    time.Time       `json:"created_at"`
}

type LotReceiveRequest struct {
	ProductID    string          `json:"product_id" validate:"required"`
	LotNumber    string          `json:"lot_number" validate:"required,max=64"`
	Quantity     int             `json:"quantity" validate:"gt=0"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	ReceivedDate string          `json:"received_date"`
}

type LotCostCorrectionRequest struct {
	CostPrice decimal.Decimal `json:"cost_price"`
	Reason    string          `json:"reason"`
}

// Transaction is one append-only ledger movement. SaleStatus is populated on
// reads from the parent sale and is nil when the sale cannot be resolved.
type Transaction struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	LotID           string          `json:"lot_id"`
	Type            string          `json:"type"`
	QuantityChanged int             `json:"quantity_changed"`
	SaleID          *string         `json:"sale_id,omitempty"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Note            string          `json:"note,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	SaleStatus      *string         `json:"sale_status,omitempty"`
}

type AdjustmentRequest struct {
	LotID    string `json:"lot_id" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=adjustment expiry"`
	Quantity int    `json:"quantity" validate:"gt=0"`
	Note     string `json:"note" validate:"max=500"`
}

type Sale struct {
	ID           string          `json:"id"`
	OrderDate    time.Time       `json:"order_date"`
	CreatedAt    time.Time       `json:"created_at"`
	ParcelStatus string          `json:"parcel_status"`
	SoldAmount   decimal.Decimal `json:"sold_amount"`
	ReturnCost   decimal.Decimal `json:"return_cost"`
	AdID         *string         `json:"ad_id,omitempty"`
	CODAmount    decimal.Decimal `json:"cod_amount"`
	CustomerName string          `json:"customer_name,omitempty"`
	Items        []SaleItem      `json:"items"`
}

type SaleItem struct {
	ID        string `json:"id"`
	SaleID    string `json:"sale_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type SaleCreateRequest struct {
	OrderDate    string            `json:"order_date"`
	AdID         string            `json:"ad_id"`
	CODAmount    decimal.Decimal   `json:"cod_amount"`
	CustomerName string            `json:"customer_name" validate:"max=200"`
	Items        []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
}

type SaleResponse struct {
	Sale         Sale          `json:"sale"`
	Transactions []Transaction `json:"transactions"`
}

type SaleStatusRequest struct {
	Status     string           `json:"status" validate:"required,oneof=processing sent delivered returned"`
	SoldAmount *decimal.Decimal `json:"sold_amount,omitempty"`
	ReturnCost *decimal.Decimal `json:"return_cost,omitempty"`
}

// SaleStatusUpdate is the write the store applies only if the sale is still in
// ExpectedStatus.
type SaleStatusUpdate struct {
	SaleID         string
	ExpectedStatus string
	Status         string
	SoldAmount     decimal.Decimal
	ReturnCost     decimal.Decimal
}

type Expense struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	ExpenseDate time.Time       `json:"expense_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Category    string          `json:"category" validate:"required,oneof=ads packaging other"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
	ExpenseDate string          `json:"expense_date"`
}

type IncomeEntry struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	IncomeDate  time.Time       `json:"income_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

type IncomeCreateRequest struct {
	Category    string          `json:"category" validate:"required,oneof=income investment"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
	IncomeDate  string          `json:"income_date"`
}

// LotStatus is the derived stock position of a single lot.
type LotStatus struct {
	LotID     string `json:"lot_id"`
	LotNumber string `json:"lot_number"`
	ProductID string `json:"product_id"`
	StockIn   int    `json:"stock_in"`
	Sold      int    `json:"sold"`
	Returned  int    `json:"returned"`
	Adjusted  int    `json:"adjusted"`
	Remaining int    `json:"remaining"`
	Status    string `json:"status"`
}

type LotStatusListResponse struct {
	Lots []LotStatus `json:"lots"`
}

type LotAvailability struct {
	LotID        string
	ProductID    string
	Remaining    int
	ReceivedDate time.Time
}

type DeductionStep struct {
	LotID     string `json:"lot_id"`
	DeductQty int    `json:"deduct_qty"`
}

type DeductionPlan struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Steps     []DeductionStep `json:"steps"`
}

type SalePlanResponse struct {
	Plans []DeductionPlan `json:"plans"`
}

type SaleAllocation struct {
	SaleID            string          `json:"sale_id"`
	AdsSpent          decimal.Decimal `json:"ads_spent"`
	PackagingSpent    decimal.Decimal `json:"packaging_spent"`
	PackagingUnitCost decimal.Decimal `json:"packaging_unit_cost"`
	PackagingEntryID  string          `json:"packaging_entry_id,omitempty"`
	AdsPending        bool            `json:"ads_pending"`
	PackagingPending  bool            `json:"packaging_pending"`
}

type SaleProfitRow struct {
	SaleID           string          `json:"sale_id"`
	TransactionID    string          `json:"transaction_id,omitempty"`
	LotID            string          `json:"lot_id,omitempty"`
	LotNumber        string          `json:"lot_number,omitempty"`
	ProductID        string          `json:"product_id,omitempty"`
	OrderDate        time.Time       `json:"order_date"`
	SaleCreatedAt    time.Time       `json:"sale_created_at"`
	ParcelStatus     string          `json:"parcel_status"`
	Quantity         int             `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	CostTotal        decimal.Decimal `json:"cost_total"`
	SoldAmount       decimal.Decimal `json:"sold_amount"`
	ReturnCost       decimal.Decimal `json:"return_cost"`
	AdsSpent         decimal.Decimal `json:"ads_spent"`
	PackagingSpent   decimal.Decimal `json:"packaging_spent"`
	ProfitLoss       decimal.Decimal `json:"profit_loss"`
	CostPending      bool            `json:"cost_pending"`
	AdsPending       bool            `json:"ads_pending"`
	PackagingPending bool            `json:"packaging_pending"`
}

type LotProfitRow struct {
	LotID            string          `json:"lot_id"`
	LotNumber        string          `json:"lot_number,omitempty"`
	ProductID        string          `json:"product_id,omitempty"`
	QtySold          int             `json:"qty_sold"`
	CostTotal        decimal.Decimal `json:"cost_total"`
	RevenueAllocated decimal.Decimal `json:"revenue_allocated"`
	ReturnAllocated  decimal.Decimal `json:"return_allocated"`
	AdsSpent         decimal.Decimal `json:"ads_spent"`
	PackagingSpent   decimal.Decimal `json:"packaging_spent"`
	Profit           decimal.Decimal `json:"profit"`
}

type MonthlyProfit struct {
	Month      string          `json:"month"`
	Sales      int             `json:"sales"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
}

type MonthlyCashFlow struct {
	Month       string          `json:"month"`
	Revenue     decimal.Decimal `json:"revenue"`
	Income      decimal.Decimal `json:"income"`
	Investment  decimal.Decimal `json:"investment"`
	Expenses    decimal.Decimal `json:"expenses"`
	ReturnCosts decimal.Decimal `json:"return_costs"`
	Net         decimal.Decimal `json:"net"`
}

type ProfitSummary struct {
	Sales          int             `json:"sales"`
	Delivered      int             `json:"delivered"`
	Returned       int             `json:"returned"`
	Revenue        decimal.Decimal `json:"revenue"`
	CostOfGoods    decimal.Decimal `json:"cost_of_goods"`
	ReturnCosts    decimal.Decimal `json:"return_costs"`
	AdsSpent       decimal.Decimal `json:"ads_spent"`
	PackagingSpent decimal.Decimal `json:"packaging_spent"`
	ProfitLoss     decimal.Decimal `json:"profit_loss"`
	PendingRows    int             `json:"pending_rows"`
}

type ProfitReport struct {
	SaleRows    []SaleProfitRow   `json:"sale_rows"`
	LotRows     []LotProfitRow    `json:"lot_rows"`
	ProfitTrend []MonthlyProfit   `json:"profit_trend"`
	CashFlow    []MonthlyCashFlow `json:"cash_flow"`
	Summary     ProfitSummary     `json:"summary"`
	GeneratedAt time.Time         `json:"generated_at"`
}

type StockAlert struct {
	ProductID     string `json:"product_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	MinStockAlert int    `json:"min_stock_alert"`
	Remaining     int    `json:"remaining"`
	Status        string `json:"status"`
	LotCount      int    `json:"lot_count"`
}

type StockAlertResponse struct {
	Alerts []StockAlert `json:"alerts"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	TxTypeIn         = "in"
	TxTypeSale       = "sale"
	TxTypeAdjustment = "adjustment"
	TxTypeExpiry     = "expiry"
)

const (
	ParcelProcessing = "processing"
	ParcelSent       = "sent"
	ParcelDelivered  = "delivered"
	ParcelReturned   = "returned"
)

const (
	ExpenseAds       = "ads"
	ExpensePackaging = "packaging"
	ExpenseOther     = "other"
)

const (
	IncomeCategoryIncome     = "income"
	IncomeCategoryInvestment = "investment"
)

const (
	StockHealthy    = "Healthy"
	StockLow        = "Low Stock"
	StockOutOfStock = "Out of Stock"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)
