package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopledger/backend/internal/cache"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/mailer"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
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
	repo     store.Repository
	mail     mailer.Mailer
	cache    cache.AnalyticsCache
	cacheTTL time.Duration
	loc      *time.Location
}

// New wires the service. loc is the location all day boundaries are computed
// in; nil means UTC.
func New(repo store.Repository, mail mailer.Mailer, analyticsCache cache.AnalyticsCache, cacheTTL time.Duration, loc *time.Location) *Service {
	if mail == nil {
		mail = mailer.NewLogMailer()
	}
	if analyticsCache == nil {
		analyticsCache = cache.NoopAnalyticsCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		mail:     mail,
		cache:    analyticsCache,
		cacheTTL: cacheTTL,
		loc:      loc,
	}
}

// dayStart normalizes t to midnight in the configured location.
func (s *Service) dayStart(t time.Time) time.Time {
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

// dayWindow returns [midnight, next midnight) for a YYYY-MM-DD date.
func (s *Service) dayWindow(date string) (time.Time, time.Time, error) {
	parsed, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, store.ErrValidation)
	}
	return parsed, parsed.AddDate(0, 0, 1), nil
}

// monthWindow returns [first day, first day of next month) for a YYYY-MM month.
func (s *Service) monthWindow(month string) (time.Time, time.Time, error) {
	parsed, err := time.ParseInLocation("2006-01", month, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %q: %w", month, store.ErrValidation)
	}
	return parsed, parsed.AddDate(0, 1, 0), nil
}

// shopOwnedBy loads the shop and verifies the acting user owns it.
func (s *Service) shopOwnedBy(ctx context.Context, shopID string) (*domain.Shop, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return nil, store.ErrPermission
	}
	shop, err := s.repo.GetShopByID(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if shop.OwnerUsername != actor.Username {
		return nil, store.ErrPermission
	}
	return shop, nil
}

// requireMembership verifies the acting user owns the shop or works in it.
func (s *Service) requireMembership(ctx context.Context, shopID string) (*domain.Shop, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, store.ErrPermission
	}
	shop, err := s.repo.GetShopByID(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleOwner && shop.OwnerUsername == actor.Username {
		return shop, nil
	}
	if actor.Role == domain.RoleEmployee {
		employee, err := s.repo.GetEmployeeByUsername(ctx, actor.Username)
		if err == nil && employee.ShopID == shopID {
			return shop, nil
		}
	}
	return nil, store.ErrPermission
}

func validPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentUPI:
		return true
	}
	return false
}

// CreateBilling records a bill for the acting employee's shop. Totals are
// computed server-side from the line items; the daily roll-up for the bill's
// day is applied in the same store write.
func (s *Service) CreateBilling(ctx context.Context, req domain.BillingCreateRequest) (domain.Bill, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleEmployee {
		return domain.Bill{}, store.ErrPermission
	}

	employee, err := s.repo.GetEmployeeByUsername(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Bill{}, store.ErrPermission
		}
		return domain.Bill{}, err
	}
	if req.ShopID != "" && req.ShopID != employee.ShopID {
		return domain.Bill{}, store.ErrPermission
	}
	shopID := employee.ShopID

	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if !validPaymentMethod(req.PaymentMethod) {
		return domain.Bill{}, fmt.Errorf("unknown payment method %q: %w", req.PaymentMethod, store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return domain.Bill{}, fmt.Errorf("bill needs at least one item: %w", store.ErrValidation)
	}

	var total int64
	productIDs := make([]string, 0, len(req.Items))
	items := make([]domain.BillItem, 0, len(req.Items))
	for _, item := range req.Items {
		name := strings.TrimSpace(item.Name)
		if name == "" || item.PriceCents < 1 || item.Quantity < 1 {
			return domain.Bill{}, fmt.Errorf("invalid line item: %w", store.ErrValidation)
		}
		if item.ProductID != "" {
			productIDs = append(productIDs, item.ProductID)
		}
		total += item.PriceCents * int64(item.Quantity)
		items = append(items, domain.BillItem{
			ProductID:  item.ProductID,
			Name:       name,
			PriceCents: item.PriceCents,
			Quantity:   item.Quantity,
		})
	}

	if len(productIDs) > 0 {
		known, err := s.repo.GetProductsByIDs(ctx, shopID, productIDs)
		if err != nil {
			return domain.Bill{}, err
		}
		for _, id := range productIDs {
			if _, ok := known[id]; !ok {
				return domain.Bill{}, fmt.Errorf("unknown product %s: %w", id, store.ErrValidation)
			}
		}
	}

	if req.DiscountCents < 0 || req.DiscountCents > total {
		return domain.Bill{}, fmt.Errorf("discount out of range: %w", store.ErrValidation)
	}

	now := time.Now().UTC()
	bill := domain.Bill{
		ID:              xid.New("bill"),
		ShopID:          shopID,
		EmployeeID:      employee.ID,
		PaymentMethod:   req.PaymentMethod,
		TotalCents:      total,
		DiscountCents:   req.DiscountCents,
		GrandTotalCents: total - req.DiscountCents,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		CreatedAt:       now,
	}
	bill.Items = items

	created, err := s.repo.CreateBill(ctx, bill, s.dayStart(now))
	if err != nil {
		return domain.Bill{}, err
	}
	return *created, nil
}

func (s *Service) GetBillsForDate(ctx context.Context, shopID string, date string) ([]domain.Bill, error) {
	if _, err := s.requireMembership(ctx, shopID); err != nil {
		return nil, err
	}
	from, to, err := s.dayWindow(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBills(ctx, shopID, from, to)
}

func (s *Service) GetBillsForMonth(ctx context.Context, shopID string, month string) ([]domain.Bill, error) {
	if _, err := s.requireMembership(ctx, shopID); err != nil {
		return nil, err
	}
	from, to, err := s.monthWindow(month)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBills(ctx, shopID, from, to)
}

// GetBillByID has no actor check: the invoice view is rendered by a headless
// browser session that carries no credentials.
func (s *Service) GetBillByID(ctx context.Context, billID string) (domain.Bill, error) {
	bill, err := s.repo.GetBillByID(ctx, billID)
	if err != nil {
		return domain.Bill{}, err
	}
	return *bill, nil
}

func (s *Service) GetBillItemsForDate(ctx context.Context, shopID string, date string) ([]domain.BillItem, error) {
	if _, err := s.requireMembership(ctx, shopID); err != nil {
		return nil, err
	}
	from, to, err := s.dayWindow(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBillItems(ctx, shopID, from, to)
}

// GetInvoiceData assembles everything the invoice view needs. The composite
// shop id doubles as a weak access token, so a bill is only returned through
// the shop it belongs to.
func (s *Service) GetInvoiceData(ctx context.Context, shopID string, billID string) (domain.InvoiceData, error) {
	bill, err := s.repo.GetBillByID(ctx, billID)
	if err != nil {
		return domain.InvoiceData{}, err
	}
	if bill.ShopID != shopID {
		return domain.InvoiceData{}, store.ErrNotFound
	}
	shop, err := s.repo.GetShopByID(ctx, shopID)
	if err != nil {
		return domain.InvoiceData{}, err
	}

	employeeName := ""
	if employee, err := s.repo.GetEmployeeByID(ctx, bill.EmployeeID); err == nil {
		employeeName = employee.Name
	}

	return domain.InvoiceData{
		Bill:         *bill,
		Shop:         *shop,
		EmployeeName: employeeName,
	}, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if _, err := s.requireMembership(ctx, req.ShopID); err != nil {
		return domain.Expense{}, err
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.AmountCents < 1 || req.Description == "" {
		return domain.Expense{}, fmt.Errorf("expense needs a positive amount and a description: %w", store.ErrValidation)
	}

	expense := domain.Expense{
		ID:          xid.New("exp"),
		ShopID:      req.ShopID,
		AmountCents: req.AmountCents,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}
	return *created, nil
}

func (s *Service) DeleteExpense(ctx context.Context, expenseID string) error {
	expense, err := s.repo.GetExpenseByID(ctx, expenseID)
	if err != nil {
		return err
	}
	if _, err := s.requireMembership(ctx, expense.ShopID); err != nil {
		return err
	}
	return s.repo.DeleteExpense(ctx, expenseID)
}

// GetExpensesForDate lists today's expenses in the configured location.
func (s *Service) GetExpensesForDate(ctx context.Context, shopID string) ([]domain.Expense, error) {
	return s.GetExpensesForDay(ctx, shopID, s.dayStart(time.Now().UTC()).Format("2006-01-02"))
}

func (s *Service) GetExpensesForDay(ctx context.Context, shopID string, date string) ([]domain.Expense, error) {
	if _, err := s.requireMembership(ctx, shopID); err != nil {
		return nil, err
	}
	from, to, err := s.dayWindow(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, shopID, from, to)
}

func (s *Service) GetExpensesForMonth(ctx context.Context, shopID string, month string) ([]domain.Expense, error) {
	if _, err := s.requireMembership(ctx, shopID); err != nil {
		return nil, err
	}
	from, to, err := s.monthWindow(month)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, shopID, from, to)
}

// GetMonthlySales returns the daily roll-up rows for a month.
func (s *Service) GetMonthlySales(ctx context.Context, shopID string, month string) ([]domain.DailySales, error) {
	if _, err := s.requireMembership(ctx, shopID); err != nil {
		return nil, err
	}
	from, to, err := s.monthWindow(month)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDailySales(ctx, shopID, from, to)
}

// GetDailySales returns the bills of a date.
func (s *Service) GetDailySales(ctx context.Context, shopID string, date string) ([]domain.Bill, error) {
	return s.GetBillsForDate(ctx, shopID, date)
}

func (s *Service) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	if _, err := s.requireMembership(ctx, shopID); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, shopID)
}

// GetProductsForBilling returns the catalog of the acting employee's shop.
func (s *Service) GetProductsForBilling(ctx context.Context) ([]domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleEmployee {
		return nil, store.ErrPermission
	}
	employee, err := s.repo.GetEmployeeByUsername(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrPermission
		}
		return nil, err
	}
	return s.repo.ListProducts(ctx, employee.ShopID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	shop, err := s.shopOwnedBy(ctx, req.ShopID)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 1 || req.Shortcut < 1 {
		return domain.Product{}, fmt.Errorf("product needs a name, a positive price and a positive shortcut: %w", store.ErrValidation)
	}

	taken, err := s.repo.ShortcutTaken(ctx, req.ShopID, req.Shortcut, "")
	if err != nil {
		return domain.Product{}, err
	}
	if taken {
		return domain.Product{}, fmt.Errorf("shortcut %d already in use: %w", req.Shortcut, store.ErrValidation)
	}

	next, err := s.repo.NextProductNumber(ctx, req.ShopID)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:         xid.New("prod"),
		ShopID:     req.ShopID,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Shortcut:   req.Shortcut,
		Code:       fmt.Sprintf("%s%04d", shop.ProductCodePrefix, next),
		ImageURL:   strings.TrimSpace(req.ImageURL),
		CreatedAt:  time.Now().UTC(),
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if _, err := s.shopOwnedBy(ctx, existing.ShopID); err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Shortcut != nil {
		if *req.Shortcut < 1 {
			return domain.Product{}, store.ErrValidation
		}
		taken, err := s.repo.ShortcutTaken(ctx, existing.ShopID, *req.Shortcut, existing.ID)
		if err != nil {
			return domain.Product{}, err
		}
		if taken {
			return domain.Product{}, fmt.Errorf("shortcut %d already in use: %w", *req.Shortcut, store.ErrValidation)
		}
		updated.Shortcut = *req.Shortcut
	}
	if req.ImageURL != nil {
		updated.ImageURL = strings.TrimSpace(*req.ImageURL)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := s.shopOwnedBy(ctx, existing.ShopID); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, productID)
}

// CreateStore registers a shop for the acting owner and provisions employee
// accounts with random credentials. Welcome mail failures are logged, never
// surfaced.
func (s *Service) CreateStore(ctx context.Context, req domain.ShopCreateRequest) (domain.Shop, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.Shop{}, store.ErrPermission
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Shop{}, fmt.Errorf("shop name is required: %w", store.ErrValidation)
	}
	prefix := strings.ToUpper(strings.TrimSpace(req.ProductCodePrefix))
	if prefix == "" {
		prefix = defaultPrefix(req.Name)
	}

	shop := domain.Shop{
		ID:                xid.New("shop"),
		OwnerUsername:     actor.Username,
		Name:              req.Name,
		Address:           strings.TrimSpace(req.Address),
		Phone:             strings.TrimSpace(req.Phone),
		Email:             strings.TrimSpace(req.Email),
		ImageURL:          strings.TrimSpace(req.ImageURL),
		ShopCode:          prefix + "-" + randomToken(2),
		ProductCodePrefix: prefix,
		CreatedAt:         time.Now().UTC(),
	}
	created, err := s.repo.CreateShop(ctx, shop)
	if err != nil {
		return domain.Shop{}, err
	}

	for _, input := range req.Employees {
		username := strings.TrimSpace(input.Username)
		name := strings.TrimSpace(input.Name)
		if username == "" || name == "" {
			return domain.Shop{}, fmt.Errorf("employee needs a username and a name: %w", store.ErrValidation)
		}

		password := randomToken(9)
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Shop{}, err
		}
		if err := s.repo.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  string(hash),
			Role:      domain.RoleEmployee,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return domain.Shop{}, err
		}
		if _, err := s.repo.CreateEmployee(ctx, domain.Employee{
			ID:       xid.New("emp"),
			ShopID:   created.ID,
			Username: username,
			Name:     name,
			Email:    strings.TrimSpace(input.Email),
		}); err != nil {
			return domain.Shop{}, err
		}

		if err := s.mail.SendWelcome(ctx, input.Email, created.Name, username, password); err != nil {
			log.Printf("[service] WARN: welcome mail to %s failed: %v", input.Email, err)
		}
	}

	return *created, nil
}

func (s *Service) GetStores(ctx context.Context) ([]domain.Shop, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return nil, store.ErrPermission
	}
	return s.repo.ListShopsByOwner(ctx, actor.Username)
}

func (s *Service) GetStoreDetails(ctx context.Context, shopID string) (domain.ShopDetails, error) {
	shop, err := s.shopOwnedBy(ctx, shopID)
	if err != nil {
		return domain.ShopDetails{}, err
	}
	employees, err := s.repo.ListEmployees(ctx, shopID)
	if err != nil {
		return domain.ShopDetails{}, err
	}
	productCount, err := s.repo.CountProducts(ctx, shopID)
	if err != nil {
		return domain.ShopDetails{}, err
	}
	return domain.ShopDetails{
		Shop:         *shop,
		Employees:    employees,
		ProductCount: productCount,
	}, nil
}

// GetEmployees lists the staff of a shop the acting owner owns.
func (s *Service) GetEmployees(ctx context.Context, shopID string) ([]domain.Employee, error) {
	if _, err := s.shopOwnedBy(ctx, shopID); err != nil {
		return nil, err
	}
	return s.repo.ListEmployees(ctx, shopID)
}

// defaultPrefix derives a product code prefix from the shop name initials.
func defaultPrefix(name string) string {
	prefix := strings.Builder{}
	for _, word := range strings.Fields(name) {
		prefix.WriteRune([]rune(strings.ToUpper(word))[0])
		if prefix.Len() >= 3 {
			break
		}
	}
	if prefix.Len() == 0 {
		return "SL"
	}
	return prefix.String()
}

func randomToken(bytes int) string {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}
