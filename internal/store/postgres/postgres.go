package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/ledger"
	"github.com/ssujit905/Inventory-sub001/internal/store"
	"github.com/ssujit905/Inventory-sub001/internal/xid"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates missing tables. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type productRow struct {
	ID            string    `db:"id"`
	SKU           string    `db:"sku"`
	Name          string    `db:"name"`
	MinStockAlert int       `db:"min_stock_alert"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{ID: r.ID, SKU: r.SKU, Name: r.Name, MinStockAlert: r.MinStockAlert, CreatedAt: r.CreatedAt.UTC()}
}

type lotRow struct {
	ID           string          `db:"id"`
	ProductID    string          `db:"product_id"`
	LotNumber    string          `db:"lot_number"`
	CostPrice    decimal.Decimal `db:"cost_price"`
	ReceivedDate time.Time       `db:"received_date"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r lotRow) toDomain() domain.Lot {
	return domain.Lot{
		ID:           r.ID,
		ProductID:    r.ProductID,
		LotNumber:    r.LotNumber,
		CostPrice:    r.CostPrice,
		ReceivedDate: r.ReceivedDate.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type transactionRow struct {
	ID              string          `db:"id"`
	ProductID       string          `db:"product_id"`
	LotID           string          `db:"lot_id"`
	Type            string          `db:"type"`
	QuantityChanged int             `db:"quantity_changed"`
	SaleID          sql.NullString  `db:"sale_id"`
	UnitCost        decimal.Decimal `db:"unit_cost"`
	Note            string          `db:"note"`
	CreatedAt       time.Time       `db:"created_at"`
	SaleStatus      sql.NullString  `db:"sale_status"`
}

func (r transactionRow) toDomain() domain.Transaction {
	tx := domain.Transaction{
		ID:              r.ID,
		ProductID:       r.ProductID,
		LotID:           r.LotID,
		Type:            r.Type,
		QuantityChanged: r.QuantityChanged,
		UnitCost:        r.UnitCost,
		Note:            r.Note,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.SaleID.Valid {
		saleID := r.SaleID.String
		tx.SaleID = &saleID
	}
	if r.SaleStatus.Valid {
		status := r.SaleStatus.String
		tx.SaleStatus = &status
	}
	return tx
}

type saleRow struct {
	ID           string          `db:"id"`
	OrderDate    time.Time       `db:"order_date"`
	CreatedAt    time.Time       `db:"created_at"`
	ParcelStatus string          `db:"parcel_status"`
	SoldAmount   decimal.Decimal `db:"sold_amount"`
	ReturnCost   decimal.Decimal `db:"return_cost"`
	AdID         sql.NullString  `db:"ad_id"`
	CODAmount    decimal.Decimal `db:"cod_amount"`
	CustomerName string          `db:"customer_name"`
}

func (r saleRow) toDomain() domain.Sale {
	sale := domain.Sale{
		ID:           r.ID,
		OrderDate:    r.OrderDate.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
		ParcelStatus: r.ParcelStatus,
		SoldAmount:   r.SoldAmount,
		ReturnCost:   r.ReturnCost,
		CODAmount:    r.CODAmount,
		CustomerName: r.CustomerName,
		Items:        []domain.SaleItem{},
	}
	if r.AdID.Valid {
		adID := r.AdID.String
		sale.AdID = &adID
	}
	return sale
}

type saleItemRow struct {
	ID        string `db:"id"`
	SaleID    string `db:"sale_id"`
	ProductID string `db:"product_id"`
	Quantity  int    `db:"quantity"`
}

type expenseRow struct {
	ID          string          `db:"id"`
	Category    string          `db:"category"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	ExpenseDate time.Time       `db:"expense_date"`
	CreatedAt   time.Time       `db:"created_at"`
}

type incomeRow struct {
	ID          string          `db:"id"`
	Category    string          `db:"category"`
	Amount      decimal.Decimal `db:"amount"`
	Description string          `db:"description"`
	IncomeDate  time.Time       `db:"income_date"`
	CreatedAt   time.Time       `db:"created_at"`
}

type auditRow struct {
	ID            string    `db:"id"`
	ActorUsername string    `db:"actor_username"`
	ActorRole     string    `db:"actor_role"`
	Action        string    `db:"action"`
	EntityType    string    `db:"entity_type"`
	EntityID      string    `db:"entity_id"`
	Detail        string    `db:"detail"`
	CreatedAt     time.Time `db:"created_at"`
}

type userRow struct {
	Username  string    `db:"username"`
	Password  string    `db:"password"`
	Role      string    `db:"role"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

const transactionColumns = `
	t.id, t.product_id, t.lot_id, t.type, t.quantity_changed, t.sale_id,
	t.unit_cost, t.note, t.created_at, s.parcel_status AS sale_status`

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.SKU = strings.TrimSpace(product.SKU)
	product.Name = strings.TrimSpace(product.Name)
	if product.SKU == "" || product.Name == "" || product.MinStockAlert < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (id, sku, name, min_stock_alert, created_at)
		VALUES (:id, :sku, :name, :min_stock_alert, :created_at)
	`, productRow{ID: product.ID, SKU: product.SKU, Name: product.Name, MinStockAlert: product.MinStockAlert, CreatedAt: product.CreatedAt})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalidInput, product.SKU)
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, `SELECT id, sku, name, min_stock_alert, created_at FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product := row.toDomain()
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, sku, name, min_stock_alert, created_at FROM products ORDER BY sku`); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toDomain())
	}
	return products, nil
}

func (s *Store) CreateLot(ctx context.Context, lot domain.Lot, quantity int) (*domain.Lot, error) {
	lot.LotNumber = strings.TrimSpace(lot.LotNumber)
	if quantity < 1 || lot.LotNumber == "" || lot.CostPrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if lot.ID == "" {
		lot.ID = xid.New("lot")
	}
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}
	if lot.ReceivedDate.IsZero() {
		lot.ReceivedDate = lot.CreatedAt
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productExists bool
	if err := tx.GetContext(ctx, &productExists, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, lot.ProductID); err != nil {
		return nil, err
	}
	if !productExists {
		return nil, fmt.Errorf("product %s: %w", lot.ProductID, store.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lots (id, product_id, lot_number, cost_price, received_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, lot.ID, lot.ProductID, lot.LotNumber, lot.CostPrice, lot.ReceivedDate, lot.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: lot number %s already used", store.ErrInvalidInput, lot.LotNumber)
		}
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, product_id, lot_id, type, quantity_changed, unit_cost, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, xid.New("tx"), lot.ProductID, lot.ID, domain.TxTypeIn, quantity, lot.CostPrice, lot.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := lot
	return &created, nil
}

func (s *Store) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	var row lotRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, product_id, lot_number, cost_price, received_date, created_at
		FROM lots WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lot := row.toDomain()
	return &lot, nil
}

func (s *Store) ListLots(ctx context.Context, productID string) ([]domain.Lot, error) {
	var rows []lotRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, product_id, lot_number, cost_price, received_date, created_at
		FROM lots
		WHERE ($1::text = '' OR product_id = $1::text)
		ORDER BY received_date ASC, id ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	lots := make([]domain.Lot, 0, len(rows))
	for _, row := range rows {
		lots = append(lots, row.toDomain())
	}
	return lots, nil
}

func (s *Store) UpdateLotCost(ctx context.Context, lotID string, cost decimal.Decimal) (*domain.Lot, error) {
	if cost.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	var row lotRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE lots SET cost_price = $2
		WHERE id = $1
		RETURNING id, product_id, lot_number, cost_price, received_date, created_at
	`, lotID, cost)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lot := row.toDomain()
	return &lot, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	conditions := []string{}
	args := map[string]any{}
	if filter.ProductID != "" {
		conditions = append(conditions, "t.product_id = :product_id")
		args["product_id"] = filter.ProductID
	}
	if filter.LotID != "" {
		conditions = append(conditions, "t.lot_id = :lot_id")
		args["lot_id"] = filter.LotID
	}
	if filter.SaleID != "" {
		conditions = append(conditions, "t.sale_id = :sale_id")
		args["sale_id"] = filter.SaleID
	}
	if filter.Type != "" {
		conditions = append(conditions, "t.type = :type")
		args["type"] = filter.Type
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := "SELECT" + transactionColumns + `
		FROM transactions t
		LEFT JOIN sales s ON s.id = t.sale_id` + whereClause + `
		ORDER BY t.created_at ASC, t.id ASC`

	nstmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer nstmt.Close()

	var rows []transactionRow
	if err := nstmt.SelectContext(ctx, &rows, args); err != nil {
		return nil, err
	}
	return toTransactions(rows), nil
}

// RecordAdjustment locks the lot, re-derives its remaining and appends the
// decrement only if the lot still covers it.
func (s *Store) RecordAdjustment(ctx context.Context, adj domain.Transaction) (*domain.Transaction, error) {
	recorded, err := s.recordAdjustment(ctx, adj)
	return recorded, conflictOnSerialization(err)
}

func (s *Store) recordAdjustment(ctx context.Context, adj domain.Transaction) (*domain.Transaction, error) {
	if adj.Type != domain.TxTypeAdjustment && adj.Type != domain.TxTypeExpiry {
		return nil, store.ErrInvalidInput
	}
	if adj.QuantityChanged >= 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	lots, err := lockLots(ctx, tx, []string{adj.LotID})
	if err != nil {
		return nil, err
	}
	lot, ok := lots[adj.LotID]
	if !ok {
		return nil, fmt.Errorf("lot %s: %w", adj.LotID, store.ErrNotFound)
	}
	remaining, err := liveRemaining(ctx, tx, lots)
	if err != nil {
		return nil, err
	}
	if remaining[lot.ID] < -adj.QuantityChanged {
		return nil, &ledger.InsufficientStockError{ProductID: lot.ProductID, Requested: -adj.QuantityChanged, Available: max(remaining[lot.ID], 0)}
	}

	adj.ProductID = lot.ProductID
	adj.SaleID = nil
	adj.SaleStatus = nil
	adj.UnitCost = lot.CostPrice
	if adj.ID == "" {
		adj.ID = xid.New("tx")
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, product_id, lot_id, type, quantity_changed, unit_cost, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, adj.ID, adj.ProductID, adj.LotID, adj.Type, adj.QuantityChanged, adj.UnitCost, adj.Note, adj.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &adj, nil
}

// CommitSale locks every planned lot, re-derives live remaining inside the
// serializable transaction and writes the sale, its items and its lines only
// when every step is still covered. A concurrent writer that breaks
// serializability surfaces as store.ErrStockConflict whichever statement hit it.
func (s *Store) CommitSale(ctx context.Context, commit store.SaleCommit) (*domain.SaleResponse, error) {
	resp, err := s.commitSale(ctx, commit)
	return resp, conflictOnSerialization(err)
}

func (s *Store) commitSale(ctx context.Context, commit store.SaleCommit) (*domain.SaleResponse, error) {
	sale := commit.Sale
	if len(sale.Items) == 0 || len(commit.Plans) == 0 {
		return nil, store.ErrInvalidInput
	}

	demand := make(map[string]int)
	for _, plan := range commit.Plans {
		for _, step := range plan.Steps {
			if step.DeductQty < 1 {
				return nil, store.ErrInvalidInput
			}
			demand[step.LotID] += step.DeductQty
		}
	}
	lotIDs := make([]string, 0, len(demand))
	for lotID := range demand {
		lotIDs = append(lotIDs, lotID)
	}
	sort.Strings(lotIDs)

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	lots, err := lockLots(ctx, tx, lotIDs)
	if err != nil {
		return nil, err
	}
	for _, plan := range commit.Plans {
		for _, step := range plan.Steps {
			lot, ok := lots[step.LotID]
			if !ok {
				return nil, fmt.Errorf("lot %s: %w", step.LotID, store.ErrNotFound)
			}
			if lot.ProductID != plan.ProductID {
				return nil, fmt.Errorf("%w: lot %s does not hold product %s", store.ErrInvalidInput, lot.ID, plan.ProductID)
			}
		}
	}
	remaining, err := liveRemaining(ctx, tx, lots)
	if err != nil {
		return nil, err
	}
	for _, lotID := range lotIDs {
		if remaining[lotID] < demand[lotID] {
			return nil, fmt.Errorf("%w: lot %s has %d, order needs %d", store.ErrStockConflict, lotID, remaining[lotID], demand[lotID])
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.OrderDate.IsZero() {
		sale.OrderDate = sale.CreatedAt
	}
	if sale.ParcelStatus == "" {
		sale.ParcelStatus = domain.ParcelProcessing
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, order_date, created_at, parcel_status, sold_amount, return_cost, ad_id, cod_amount, customer_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.OrderDate, sale.CreatedAt, sale.ParcelStatus, sale.SoldAmount, sale.ReturnCost, nullIfEmptyPtr(sale.AdID), sale.CODAmount, sale.CustomerName)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sale %s already exists", store.ErrInvalidInput, sale.ID)
		}
		return nil, err
	}

	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.SaleID = sale.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity)
			VALUES ($1,$2,$3,$4)
		`, item.ID, item.SaleID, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sale.Items = items

	lines := make([]domain.Transaction, 0, len(lotIDs))
	for _, plan := range commit.Plans {
		for _, step := range plan.Steps {
			saleID := sale.ID
			status := sale.ParcelStatus
			line := domain.Transaction{
				ID:              xid.New("tx"),
				ProductID:       plan.ProductID,
				LotID:           step.LotID,
				Type:            domain.TxTypeSale,
				QuantityChanged: -step.DeductQty,
				SaleID:          &saleID,
				UnitCost:        lots[step.LotID].CostPrice,
				CreatedAt:       sale.CreatedAt,
				SaleStatus:      &status,
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transactions (id, product_id, lot_id, type, quantity_changed, sale_id, unit_cost, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, line.ID, line.ProductID, line.LotID, line.Type, line.QuantityChanged, saleID, line.UnitCost, line.CreatedAt); err != nil {
				return nil, err
			}
			lines = append(lines, line)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &domain.SaleResponse{Sale: sale, Transactions: lines}, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var row saleRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, order_date, created_at, parcel_status, sold_amount, return_cost, ad_id, cod_amount, customer_name
		FROM sales WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sales, err := s.attachItems(ctx, []domain.Sale{row.toDomain()})
	if err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	conditions := []string{}
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("parcel_status = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT id, order_date, created_at, parcel_status, sold_amount, return_cost, ad_id, cod_amount, customer_name FROM sales`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sales = append(sales, row.toDomain())
	}
	return s.attachItems(ctx, sales)
}

func (s *Store) attachItems(ctx context.Context, sales []domain.Sale) ([]domain.Sale, error) {
	if len(sales) == 0 {
		return sales, nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
	}

	query, args, err := sqlx.In(`
		SELECT id, sale_id, product_id, quantity
		FROM sale_items
		WHERE sale_id IN (?)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []saleItemRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		i := index[row.SaleID]
		sales[i].Items = append(sales[i].Items, domain.SaleItem{ID: row.ID, SaleID: row.SaleID, ProductID: row.ProductID, Quantity: row.Quantity})
	}
	return sales, nil
}

// UpdateSaleStatus is a compare-and-set on parcel_status. Zero amounts keep
// the stored value.
func (s *Store) UpdateSaleStatus(ctx context.Context, update domain.SaleStatusUpdate) (*domain.Sale, error) {
	if update.SoldAmount.IsNegative() || update.ReturnCost.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	var row saleRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE sales
		SET parcel_status = $3,
			sold_amount = CASE WHEN $4::numeric = 0 THEN sold_amount ELSE $4::numeric END,
			return_cost = CASE WHEN $5::numeric = 0 THEN return_cost ELSE $5::numeric END
		WHERE id = $1 AND parcel_status = $2
		RETURNING id, order_date, created_at, parcel_status, sold_amount, return_cost, ad_id, cod_amount, customer_name
	`, update.SaleID, update.ExpectedStatus, update.Status, update.SoldAmount, update.ReturnCost)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, update.SaleID); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: sale %s is no longer %s", store.ErrStatusConflict, update.SaleID, update.ExpectedStatus)
	}

	sales, err := s.attachItems(ctx, []domain.Sale{row.toDomain()})
	if err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	switch expense.Category {
	case domain.ExpenseAds, domain.ExpensePackaging, domain.ExpenseOther:
	default:
		return nil, store.ErrInvalidInput
	}
	if !expense.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	if expense.ExpenseDate.IsZero() {
		expense.ExpenseDate = expense.CreatedAt
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO expenses (id, category, amount, description, expense_date, created_at)
		VALUES (:id, :category, :amount, :description, :expense_date, :created_at)
	`, expenseRow{ID: expense.ID, Category: expense.Category, Amount: expense.Amount, Description: expense.Description, ExpenseDate: expense.ExpenseDate, CreatedAt: expense.CreatedAt})
	if err != nil {
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	var rows []expenseRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, category, amount, description, expense_date, created_at
		FROM expenses
		ORDER BY created_at ASC, id ASC
	`); err != nil {
		return nil, err
	}
	expenses := make([]domain.Expense, 0, len(rows))
	for _, row := range rows {
		expenses = append(expenses, domain.Expense{
			ID:          row.ID,
			Category:    row.Category,
			Amount:      row.Amount,
			Description: row.Description,
			ExpenseDate: row.ExpenseDate.UTC(),
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return expenses, nil
}

func (s *Store) CreateIncome(ctx context.Context, entry domain.IncomeEntry) (*domain.IncomeEntry, error) {
	if entry.Category != domain.IncomeCategoryIncome && entry.Category != domain.IncomeCategoryInvestment {
		return nil, store.ErrInvalidInput
	}
	if !entry.Amount.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("inc")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.IncomeDate.IsZero() {
		entry.IncomeDate = entry.CreatedAt
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO income_entries (id, category, amount, description, income_date, created_at)
		VALUES (:id, :category, :amount, :description, :income_date, :created_at)
	`, incomeRow{ID: entry.ID, Category: entry.Category, Amount: entry.Amount, Description: entry.Description, IncomeDate: entry.IncomeDate, CreatedAt: entry.CreatedAt})
	if err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) ListIncome(ctx context.Context) ([]domain.IncomeEntry, error) {
	var rows []incomeRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, category, amount, description, income_date, created_at
		FROM income_entries
		ORDER BY income_date ASC, id ASC
	`); err != nil {
		return nil, err
	}
	entries := make([]domain.IncomeEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.IncomeEntry{
			ID:          row.ID,
			Category:    row.Category,
			Amount:      row.Amount,
			Description: row.Description,
			IncomeDate:  row.IncomeDate.UTC(),
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return entries, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (:id, :actor_username, :actor_role, :action, :entity_type, :entity_id, :detail, :created_at)
	`, auditRow(entry))
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	logs := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		entry := domain.AuditLog(row)
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`); err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		user := domain.UserAccount(row)
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func lockLots(ctx context.Context, tx *sqlx.Tx, lotIDs []string) (map[string]domain.Lot, error) {
	var rows []lotRow
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, product_id, lot_number, cost_price, received_date, created_at
		FROM lots
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, lotIDs)
	if err != nil {
		return nil, err
	}
	lots := make(map[string]domain.Lot, len(rows))
	for _, row := range rows {
		lots[row.ID] = row.toDomain()
	}
	return lots, nil
}

// liveRemaining derives remaining for the given lots from their transactions
// using the same calculator the read side uses.
func liveRemaining(ctx context.Context, tx *sqlx.Tx, lots map[string]domain.Lot) (map[string]int, error) {
	lotIDs := make([]string, 0, len(lots))
	for id := range lots {
		lotIDs = append(lotIDs, id)
	}
	var rows []transactionRow
	err := tx.SelectContext(ctx, &rows, "SELECT"+transactionColumns+`
		FROM transactions t
		LEFT JOIN sales s ON s.id = t.sale_id
		WHERE t.lot_id = ANY($1)
	`, lotIDs)
	if err != nil {
		return nil, err
	}
	txs := toTransactions(rows)

	remaining := make(map[string]int, len(lots))
	for id, lot := range lots {
		remaining[id] = ledger.ComputeLotStatus(lot, txs, 0).Remaining
	}
	return remaining, nil
}

func toTransactions(rows []transactionRow) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.toDomain())
	}
	return txs
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isSerializationFailure reports serialization_failure and deadlock_detected,
// both of which abort a serializable transaction that lost a race.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func conflictOnSerialization(err error) error {
	if err == nil || errors.Is(err, store.ErrStockConflict) || !isSerializationFailure(err) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrStockConflict, err)
}

func nullIfEmptyPtr(val *string) any {
	if val == nil || strings.TrimSpace(*val) == "" {
		return nil
	}
	return *val
}
