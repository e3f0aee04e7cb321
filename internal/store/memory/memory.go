package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/ledger"
	"github.com/ssujit905/Inventory-sub001/internal/store"
	"github.com/ssujit905/Inventory-sub001/internal/xid"
)

// Store keeps the whole ledger in process. Transactions are append-only; every
// stock figure is derived from them on read.
type Store struct {
	mu              sync.RWMutex
	now             func() time.Time
	products        map[string]domain.Product
	lots            map[string]domain.Lot
	transactions    []domain.Transaction
	sales           map[string]domain.Sale
	expenses        []domain.Expense
	income          []domain.IncomeEntry
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		now:             func() time.Time { return time.Now().UTC() },
		products:        make(map[string]domain.Product),
		lots:            make(map[string]domain.Lot),
		transactions:    make([]domain.Transaction, 0, 256),
		sales:           make(map[string]domain.Sale),
		expenses:        make([]domain.Expense, 0, 32),
		income:          make([]domain.IncomeEntry, 0, 16),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; when
// unset, dev defaults are used and a warning is logged. Production runs on
// PostgreSQL and never sees these accounts.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo accounts, two products, their lots, a
// handful of sales across every parcel status, and the expenses that feed
// the ads and packaging allocation.
func NewSeeded() *Store {
	s := New()
	now := s.now()
	s.usersByUsername = seedUsers(now)

	ctx := context.Background()
	start := now.AddDate(0, 0, -30).Truncate(24 * time.Hour)
	at := func(days int, hours int) time.Time {
		return start.AddDate(0, 0, days).Add(time.Duration(hours) * time.Hour)
	}

	must := func(err error) {
		if err != nil {
			log.Fatal().Err(err).Str("component", "memory-store").Msg("failed to seed demo ledger")
		}
	}

	for _, p := range []domain.Product{
		{ID: "prod-tee", SKU: "TEE-BLK-M", Name: "Black Tee M", MinStockAlert: 5, CreatedAt: at(0, 0)},
		{ID: "prod-cap", SKU: "CAP-RED", Name: "Red Cap", MinStockAlert: 3, CreatedAt: at(0, 0)},
	} {
		_, err := s.CreateProduct(ctx, p)
		must(err)
	}

	for _, l := range []struct {
		lot domain.Lot
		qty int
	}{
		{domain.Lot{ID: "lot-tee-1", ProductID: "prod-tee", LotNumber: "TEE-0001", CostPrice: decimal.NewFromInt(4), ReceivedDate: at(0, 0), CreatedAt: at(0, 1)}, 10},
		{domain.Lot{ID: "lot-tee-2", ProductID: "prod-tee", LotNumber: "TEE-0002", CostPrice: decimal.NewFromInt(5), ReceivedDate: at(5, 0), CreatedAt: at(5, 1)}, 20},
		{domain.Lot{ID: "lot-cap-1", ProductID: "prod-cap", LotNumber: "CAP-0001", ReceivedDate: at(2, 0), CreatedAt: at(2, 1)}, 6},
	} {
		_, err := s.CreateLot(ctx, l.lot, l.qty)
		must(err)
	}

	for _, e := range []domain.Expense{
		{ID: "exp-ads-spring", Category: domain.ExpenseAds, Amount: decimal.NewFromInt(60), Description: "spring campaign", ExpenseDate: at(1, 0), CreatedAt: at(1, 0)},
		{ID: "exp-pack-1", Category: domain.ExpensePackaging, Amount: decimal.NewFromInt(50), Description: "mailer bags qty: 50", ExpenseDate: at(1, 0), CreatedAt: at(1, 0)},
		{ID: "exp-pack-2", Category: domain.ExpensePackaging, Amount: decimal.NewFromInt(60), Description: "mailer bags qty: 40", ExpenseDate: at(12, 0), CreatedAt: at(12, 0)},
		{ID: "exp-rent", Category: domain.ExpenseOther, Amount: decimal.NewFromInt(120), Description: "storage rent", ExpenseDate: at(0, 0), CreatedAt: at(0, 0)},
	} {
		_, err := s.CreateExpense(ctx, e)
		must(err)
	}

	_, err := s.CreateIncome(ctx, domain.IncomeEntry{ID: "inc-seed", Category: domain.IncomeCategoryInvestment, Amount: decimal.NewFromInt(500), Description: "owner capital", IncomeDate: at(0, 0), CreatedAt: at(0, 0)})
	must(err)

	adID := "exp-ads-spring"
	type seedSale struct {
		id     string
		day    int
		status string
		sold   int64
		ret    int64
		adID   *string
		plans  []domain.DeductionPlan
	}
	for _, ss := range []seedSale{
		{id: "sale-0001", day: 3, status: domain.ParcelDelivered, sold: 25, adID: &adID, plans: []domain.DeductionPlan{
			{ProductID: "prod-tee", Quantity: 2, Steps: []domain.DeductionStep{{LotID: "lot-tee-1", DeductQty: 2}}},
		}},
		{id: "sale-0002", day: 8, status: domain.ParcelReturned, ret: 6, adID: &adID, plans: []domain.DeductionPlan{
			{ProductID: "prod-tee", Quantity: 1, Steps: []domain.DeductionStep{{LotID: "lot-tee-1", DeductQty: 1}}},
		}},
		{id: "sale-0003", day: 14, status: domain.ParcelSent, adID: &adID, plans: []domain.DeductionPlan{
			{ProductID: "prod-tee", Quantity: 9, Steps: []domain.DeductionStep{{LotID: "lot-tee-1", DeductQty: 8}, {LotID: "lot-tee-2", DeductQty: 1}}},
			{ProductID: "prod-cap", Quantity: 1, Steps: []domain.DeductionStep{{LotID: "lot-cap-1", DeductQty: 1}}},
		}},
		{id: "sale-0004", day: 20, status: domain.ParcelProcessing, plans: []domain.DeductionPlan{
			{ProductID: "prod-cap", Quantity: 4, Steps: []domain.DeductionStep{{LotID: "lot-cap-1", DeductQty: 4}}},
		}},
	} {
		items := make([]domain.SaleItem, 0, len(ss.plans))
		for _, plan := range ss.plans {
			items = append(items, domain.SaleItem{ProductID: plan.ProductID, Quantity: plan.Quantity})
		}
		_, err := s.CommitSale(ctx, store.SaleCommit{
			Sale: domain.Sale{
				ID:           ss.id,
				OrderDate:    at(ss.day, 0),
				CreatedAt:    at(ss.day, 10),
				ParcelStatus: domain.ParcelProcessing,
				AdID:         ss.adID,
				CustomerName: "Demo customer",
				Items:        items,
			},
			Plans: ss.plans,
		})
		must(err)

		path := map[string][]string{
			domain.ParcelSent:      {domain.ParcelSent},
			domain.ParcelDelivered: {domain.ParcelSent, domain.ParcelDelivered},
			domain.ParcelReturned:  {domain.ParcelReturned},
		}[ss.status]
		current := domain.ParcelProcessing
		for _, next := range path {
			update := domain.SaleStatusUpdate{SaleID: ss.id, ExpectedStatus: current, Status: next}
			switch next {
			case domain.ParcelDelivered:
				update.SoldAmount = decimal.NewFromInt(ss.sold)
			case domain.ParcelReturned:
				update.ReturnCost = decimal.NewFromInt(ss.ret)
			}
			_, err := s.UpdateSaleStatus(ctx, update)
			must(err)
			current = next
		}
	}

	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.SKU = strings.TrimSpace(product.SKU)
	product.Name = strings.TrimSpace(product.Name)
	if product.SKU == "" || product.Name == "" || product.MinStockAlert < 0 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, product.SKU) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalidInput, product.SKU)
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.SKU, b.SKU)
	})
	return products, nil
}

// CreateLot stores the lot and its stock-in transaction together.
func (s *Store) CreateLot(_ context.Context, lot domain.Lot, quantity int) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot.LotNumber = strings.TrimSpace(lot.LotNumber)
	if quantity < 1 || lot.LotNumber == "" || lot.CostPrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if _, ok := s.products[lot.ProductID]; !ok {
		return nil, fmt.Errorf("product %s: %w", lot.ProductID, store.ErrNotFound)
	}
	for _, existing := range s.lots {
		if existing.ProductID == lot.ProductID && existing.LotNumber == lot.LotNumber {
			return nil, fmt.Errorf("%w: lot number %s already used", store.ErrInvalidInput, lot.LotNumber)
		}
	}

	if lot.ID == "" {
		lot.ID = xid.New("lot")
	}
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = s.now()
	}
	if lot.ReceivedDate.IsZero() {
		lot.ReceivedDate = lot.CreatedAt
	}

	s.lots[lot.ID] = lot
	s.transactions = append(s.transactions, domain.Transaction{
		ID:              xid.New("tx"),
		ProductID:       lot.ProductID,
		LotID:           lot.ID,
		Type:            domain.TxTypeIn,
		QuantityChanged: quantity,
		UnitCost:        lot.CostPrice,
		CreatedAt:       lot.CreatedAt,
	})

	created := lot
	return &created, nil
}

func (s *Store) GetLot(_ context.Context, id string) (*domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lot, ok := s.lots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyLot := lot
	return &copyLot, nil
}

func (s *Store) ListLots(_ context.Context, productID string) ([]domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lots := make([]domain.Lot, 0, len(s.lots))
	for _, lot := range s.lots {
		if productID != "" && lot.ProductID != productID {
			continue
		}
		lots = append(lots, lot)
	}
	slices.SortFunc(lots, compareLotByReceipt)
	return lots, nil
}

// UpdateLotCost rewrites the lot's cost. Sale lines keep the cost they were
// committed with; only lines committed while the cost was pending pick up
// the new value.
func (s *Store) UpdateLotCost(_ context.Context, lotID string, cost decimal.Decimal) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cost.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	lot, ok := s.lots[lotID]
	if !ok {
		return nil, store.ErrNotFound
	}
	lot.CostPrice = cost
	s.lots[lotID] = lot
	updated := lot
	return &updated, nil
}

func (s *Store) ListTransactions(_ context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if filter.ProductID != "" && tx.ProductID != filter.ProductID {
			continue
		}
		if filter.LotID != "" && tx.LotID != filter.LotID {
			continue
		}
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if filter.SaleID != "" && (tx.SaleID == nil || *tx.SaleID != filter.SaleID) {
			continue
		}
		result = append(result, s.joinSaleStatus(tx))
	}
	slices.SortStableFunc(result, compareTransaction)
	return result, nil
}

func (s *Store) RecordAdjustment(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.Type != domain.TxTypeAdjustment && tx.Type != domain.TxTypeExpiry {
		return nil, store.ErrInvalidInput
	}
	if tx.QuantityChanged >= 0 {
		return nil, store.ErrInvalidInput
	}
	lot, ok := s.lots[tx.LotID]
	if !ok {
		return nil, fmt.Errorf("lot %s: %w", tx.LotID, store.ErrNotFound)
	}
	remaining := s.remainingLocked(lot)
	if remaining < -tx.QuantityChanged {
		return nil, &ledger.InsufficientStockError{ProductID: lot.ProductID, Requested: -tx.QuantityChanged, Available: max(remaining, 0)}
	}

	tx.ProductID = lot.ProductID
	tx.SaleID = nil
	tx.SaleStatus = nil
	tx.UnitCost = lot.CostPrice
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	s.transactions = append(s.transactions, tx)
	created := tx
	return &created, nil
}

// CommitSale re-validates every planned deduction against live remaining and
// then appends the sale and its lines in one critical section. Any lot that
// no longer covers its share fails the whole order with ErrStockConflict.
func (s *Store) CommitSale(_ context.Context, commit store.SaleCommit) (*domain.SaleResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale := commit.Sale
	if len(sale.Items) == 0 || len(commit.Plans) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID != "" {
		if _, exists := s.sales[sale.ID]; exists {
			return nil, fmt.Errorf("%w: sale %s already exists", store.ErrInvalidInput, sale.ID)
		}
	}

	demand := make(map[string]int)
	for _, plan := range commit.Plans {
		for _, step := range plan.Steps {
			if step.DeductQty < 1 {
				return nil, store.ErrInvalidInput
			}
			lot, ok := s.lots[step.LotID]
			if !ok {
				return nil, fmt.Errorf("lot %s: %w", step.LotID, store.ErrNotFound)
			}
			if lot.ProductID != plan.ProductID {
				return nil, fmt.Errorf("%w: lot %s does not hold product %s", store.ErrInvalidInput, lot.ID, plan.ProductID)
			}
			demand[step.LotID] += step.DeductQty
		}
	}
	for lotID, qty := range demand {
		if remaining := s.remainingLocked(s.lots[lotID]); remaining < qty {
			return nil, fmt.Errorf("%w: lot %s has %d, order needs %d", store.ErrStockConflict, lotID, remaining, qty)
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = s.now()
	}
	if sale.OrderDate.IsZero() {
		sale.OrderDate = sale.CreatedAt
	}
	if sale.ParcelStatus == "" {
		sale.ParcelStatus = domain.ParcelProcessing
	}
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.ID == "" {
			item.ID = xid.New("item")
		}
		item.SaleID = sale.ID
		items = append(items, item)
	}
	sale.Items = items

	lines := make([]domain.Transaction, 0, len(demand))
	for _, plan := range commit.Plans {
		for _, step := range plan.Steps {
			saleID := sale.ID
			lines = append(lines, domain.Transaction{
				ID:              xid.New("tx"),
				ProductID:       plan.ProductID,
				LotID:           step.LotID,
				Type:            domain.TxTypeSale,
				QuantityChanged: -step.DeductQty,
				SaleID:          &saleID,
				UnitCost:        s.lots[step.LotID].CostPrice,
				CreatedAt:       sale.CreatedAt,
			})
		}
	}

	s.sales[sale.ID] = cloneSale(sale)
	s.transactions = append(s.transactions, lines...)

	resp := &domain.SaleResponse{Sale: cloneSale(sale), Transactions: make([]domain.Transaction, 0, len(lines))}
	for _, line := range lines {
		resp.Transactions = append(resp.Transactions, s.joinSaleStatus(line))
	}
	return resp, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copySale := cloneSale(sale)
	return &copySale, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.Status != "" && sale.ParcelStatus != filter.Status {
			continue
		}
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !sale.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateSaleStatus applies the update only while the sale is still in
// ExpectedStatus. Zero amounts leave the stored value untouched.
func (s *Store) UpdateSaleStatus(_ context.Context, update domain.SaleStatusUpdate) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[update.SaleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.ParcelStatus != update.ExpectedStatus {
		return nil, fmt.Errorf("%w: sale %s is %s, expected %s", store.ErrStatusConflict, sale.ID, sale.ParcelStatus, update.ExpectedStatus)
	}
	if update.SoldAmount.IsNegative() || update.ReturnCost.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	sale.ParcelStatus = update.Status
	if !update.SoldAmount.IsZero() {
		sale.SoldAmount = update.SoldAmount
	}
	if !update.ReturnCost.IsZero() {
		sale.ReturnCost = update.ReturnCost
	}
	s.sales[sale.ID] = sale
	updated := cloneSale(sale)
	return &updated, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
		expense.CreatedAt = s.now()
	}
	if expense.ExpenseDate.IsZero() {
		expense.ExpenseDate = expense.CreatedAt
	}
	s.expenses = append(s.expenses, expense)
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := slices.Clone(s.expenses)
	slices.SortStableFunc(expenses, func(a, b domain.Expense) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return expenses, nil
}

func (s *Store) CreateIncome(_ context.Context, entry domain.IncomeEntry) (*domain.IncomeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
		entry.CreatedAt = s.now()
	}
	if entry.IncomeDate.IsZero() {
		entry.IncomeDate = entry.CreatedAt
	}
	s.income = append(s.income, entry)
	created := entry
	return &created, nil
}

func (s *Store) ListIncome(_ context.Context) ([]domain.IncomeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := slices.Clone(s.income)
	slices.SortStableFunc(entries, func(a, b domain.IncomeEntry) int {
		if c := a.IncomeDate.Compare(b.IncomeDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return entries, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// remainingLocked derives a lot's live remaining from the log. Callers hold mu.
func (s *Store) remainingLocked(lot domain.Lot) int {
	txs := make([]domain.Transaction, 0, 16)
	for _, tx := range s.transactions {
		if tx.LotID == lot.ID {
			txs = append(txs, s.joinSaleStatus(tx))
		}
	}
	return ledger.ComputeLotStatus(lot, txs, 0).Remaining
}

func (s *Store) joinSaleStatus(tx domain.Transaction) domain.Transaction {
	tx.SaleStatus = nil
	if tx.SaleID == nil {
		return tx
	}
	saleID := *tx.SaleID
	tx.SaleID = &saleID
	if sale, ok := s.sales[saleID]; ok {
		status := sale.ParcelStatus
		tx.SaleStatus = &status
	}
	return tx
}

func compareLotByReceipt(a domain.Lot, b domain.Lot) int {
	if c := a.ReceivedDate.Compare(b.ReceivedDate); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareTransaction(a domain.Transaction, b domain.Transaction) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	if src.AdID != nil {
		adID := *src.AdID
		dst.AdID = &adID
	}
	return dst
}
