package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
	"github.com/ssujit905/Inventory-sub001/internal/logger"
	"github.com/ssujit905/Inventory-sub001/internal/metrics"
	"github.com/ssujit905/Inventory-sub001/internal/notify"
	"github.com/ssujit905/Inventory-sub001/internal/store"
	"github.com/ssujit905/Inventory-sub001/internal/xid"
)

var (
	ErrForbidden = errors.New("admin role required")
	// ErrWriteOnce rejects a second sold_amount or return_cost write by a
	// non-admin actor.
	ErrWriteOnce = errors.New("amount already recorded")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	publisher notify.Publisher
	log       *logger.Logger
	metrics   *metrics.LedgerMetrics
	validate  *validator.Validate
	now       func() time.Time
}

// New wires the ledger service. publisher, log and m may be nil.
func New(repo store.Repository, publisher notify.Publisher, log *logger.Logger, m *metrics.LedgerMetrics) *Service {
	if publisher == nil {
		publisher = notify.NoopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       log,
		metrics:   m,
		validate:  newValidator(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:            xid.New("prod"),
		SKU:           req.SKU,
		Name:          req.Name,
		MinStockAlert: req.MinStockAlert,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,min_stock=%d", created.SKU, created.MinStockAlert))
	return *created, nil
}

func (s *Service) ListLots(ctx context.Context, productID string) ([]domain.Lot, error) {
	return s.repo.ListLots(ctx, strings.TrimSpace(productID))
}

// ReceiveLot records a stock-in. A zero cost price is accepted and reported
// as pending until an admin corrects it.
func (s *Service) ReceiveLot(ctx context.Context, req domain.LotReceiveRequest) (domain.Lot, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Lot{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.LotNumber = strings.TrimSpace(req.LotNumber)
	if err := s.check(req); err != nil {
		return domain.Lot{}, err
	}
	if req.CostPrice.IsNegative() {
		return domain.Lot{}, fmt.Errorf("%w: cost_price must not be negative", store.ErrInvalidInput)
	}
	received, err := parseDate(req.ReceivedDate, s.now())
	if err != nil {
		return domain.Lot{}, err
	}
	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		return domain.Lot{}, fmt.Errorf("product %s: %w", req.ProductID, err)
	}

	lot, err := s.repo.CreateLot(ctx, domain.Lot{
		ID:           xid.New("lot"),
		ProductID:    req.ProductID,
		LotNumber:    req.LotNumber,
		CostPrice:    req.CostPrice,
		ReceivedDate: received,
	}, req.Quantity)
	if err != nil {
		return domain.Lot{}, err
	}

	s.logAudit(ctx, "lot_receive", "lot", lot.ID, fmt.Sprintf("product=%s,qty=%d,cost=%s", lot.ProductID, req.Quantity, lot.CostPrice))
	s.publish(ctx, notify.TableLots, notify.TableTransactions)
	return *lot, nil
}

// CorrectLotCost back-fills or fixes a lot's cost price. Sale lines that
// already carry a cost snapshot are unaffected.
func (s *Service) CorrectLotCost(ctx context.Context, lotID string, req domain.LotCostCorrectionRequest) (domain.Lot, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Lot{}, err
	}
	lotID = strings.TrimSpace(lotID)
	if lotID == "" || !req.CostPrice.IsPositive() {
		return domain.Lot{}, fmt.Errorf("%w: cost_price must be greater than zero", store.ErrInvalidInput)
	}

	existing, err := s.repo.GetLot(ctx, lotID)
	if err != nil {
		return domain.Lot{}, err
	}
	updated, err := s.repo.UpdateLotCost(ctx, lotID, req.CostPrice)
	if err != nil {
		return domain.Lot{}, err
	}

	s.logAudit(ctx, "lot_cost_correct", "lot", lotID, fmt.Sprintf("old=%s,new=%s,reason=%s", existing.CostPrice, updated.CostPrice, strings.TrimSpace(req.Reason)))
	s.publish(ctx, notify.TableLots)
	return *updated, nil
}

// RecordAdjustment writes a manual or expiry decrement. The store rejects it
// when the lot's live remaining cannot cover the quantity.
func (s *Service) RecordAdjustment(ctx context.Context, req domain.AdjustmentRequest) (domain.Transaction, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Transaction{}, err
	}
	req.LotID = strings.TrimSpace(req.LotID)
	req.Note = strings.TrimSpace(req.Note)
	if err := s.check(req); err != nil {
		return domain.Transaction{}, err
	}

	tx, err := s.repo.RecordAdjustment(ctx, domain.Transaction{
		ID:              xid.New("tx"),
		LotID:           req.LotID,
		Type:            req.Type,
		QuantityChanged: -req.Quantity,
		Note:            req.Note,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "stock_adjust", "lot", tx.LotID, fmt.Sprintf("type=%s,qty=%d,note=%s", tx.Type, req.Quantity, tx.Note))
	s.publish(ctx, notify.TableTransactions)
	return *tx, nil
}

func (s *Service) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Expense{}, err
	}
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.Expense{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Expense{}, fmt.Errorf("%w: amount must be greater than zero", store.ErrInvalidInput)
	}
	expenseDate, err := parseDate(req.ExpenseDate, s.now())
	if err != nil {
		return domain.Expense{}, err
	}

	expense, err := s.repo.CreateExpense(ctx, domain.Expense{
		ID:          xid.New("exp"),
		Category:    req.Category,
		Amount:      req.Amount,
		Description: req.Description,
		ExpenseDate: expenseDate,
	})
	if err != nil {
		return domain.Expense{}, err
	}

	s.logAudit(ctx, "expense_create", "expense", expense.ID, fmt.Sprintf("category=%s,amount=%s", expense.Category, expense.Amount))
	s.publish(ctx, notify.TableExpenses)
	return *expense, nil
}

func (s *Service) ListIncome(ctx context.Context) ([]domain.IncomeEntry, error) {
	return s.repo.ListIncome(ctx)
}

func (s *Service) CreateIncome(ctx context.Context, req domain.IncomeCreateRequest) (domain.IncomeEntry, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.IncomeEntry{}, ErrForbidden
	}
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.Description = strings.TrimSpace(req.Description)
	if err := s.check(req); err != nil {
		return domain.IncomeEntry{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.IncomeEntry{}, fmt.Errorf("%w: amount must be greater than zero", store.ErrInvalidInput)
	}
	incomeDate, err := parseDate(req.IncomeDate, s.now())
	if err != nil {
		return domain.IncomeEntry{}, err
	}

	entry, err := s.repo.CreateIncome(ctx, domain.IncomeEntry{
		ID:          xid.New("inc"),
		Category:    req.Category,
		Amount:      req.Amount,
		Description: req.Description,
		IncomeDate:  incomeDate,
	})
	if err != nil {
		return domain.IncomeEntry{}, err
	}

	s.logAudit(ctx, "income_create", "income", entry.ID, fmt.Sprintf("category=%s,amount=%s", entry.Category, entry.Amount))
	s.publish(ctx, notify.TableIncome)
	return *entry, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	day := s.now().Truncate(24 * time.Hour)
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
		}
		day = parsed.UTC()
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, day, day.Add(24*time.Hour), limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.log.Zerolog(ctx).Warn().Err(err).
			Str("action", action).
			Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}

// publish signals consumers to recompute. A lost signal only delays a refresh
// until the next poll, so failures are logged and swallowed.
func (s *Service) publish(ctx context.Context, tables ...string) {
	for _, table := range tables {
		if err := s.publisher.Publish(ctx, notify.Event{Table: table, At: s.now()}); err != nil {
			s.log.Zerolog(ctx).Warn().Err(err).Str("table", table).Msg("failed to publish ledger change")
		}
	}
}

// check runs struct validation and folds failures into ErrInvalidInput.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, validationMessage(fe))
	}
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, strings.Join(parts, "; "))
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	}
	return field + " is invalid"
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty input yields fallback.
func parseDate(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD or RFC3339", store.ErrInvalidInput, value)
	}
	return t.UTC(), nil
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
