package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	shopsByID       map[string]domain.Shop
	employeesByID   map[string]domain.Employee
	productsByID    map[string]domain.Product
	billsByID       map[string]*domain.Bill
	expensesByID    map[string]domain.Expense
	dailySales      map[string]domain.DailySales
	monthlySales    map[string]domain.MonthlySales
	monthlyExpenses map[string]domain.MonthlyExpenses
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_OWNER_PASSWORD and SEED_EMPLOYEE_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "employee123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_EMPLOYEE_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"owner", ownerPwd, domain.RoleOwner},
		{"employee", employeePwd, domain.RoleEmployee},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
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

func NewSeeded() *Store {
	now := time.Now().UTC()

	shop := domain.Shop{
		ID:                "shop-demo",
		OwnerUsername:     "owner",
		Name:              "Demo Mart",
		Address:           "12 Market Street",
		Phone:             "+1-555-0100",
		Email:             "demo@demomart.test",
		ShopCode:          "DEMO-0001",
		ProductCodePrefix: "DM",
		LastProductNo:     4,
		CreatedAt:         now,
	}

	employee := domain.Employee{
		ID:        "emp-demo",
		ShopID:    shop.ID,
		Username:  "employee",
		Name:      "Demo Clerk",
		Email:     "clerk@demomart.test",
		CreatedAt: now,
	}

	products := []domain.Product{
		{ID: "prod-demo-1", ShopID: shop.ID, Name: "Milk 1L", PriceCents: 250, Shortcut: 1, Code: "DM0001", CreatedAt: now},
		{ID: "prod-demo-2", ShopID: shop.ID, Name: "Bread Loaf", PriceCents: 180, Shortcut: 2, Code: "DM0002", CreatedAt: now},
		{ID: "prod-demo-3", ShopID: shop.ID, Name: "Eggs Dozen", PriceCents: 420, Shortcut: 3, Code: "DM0003", CreatedAt: now},
		{ID: "prod-demo-4", ShopID: shop.ID, Name: "Rice 5kg", PriceCents: 1550, Shortcut: 4, Code: "DM0004", CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	return &Store{
		shopsByID:       map[string]domain.Shop{shop.ID: shop},
		employeesByID:   map[string]domain.Employee{employee.ID: employee},
		productsByID:    productMap,
		billsByID:       make(map[string]*domain.Bill),
		expensesByID:    make(map[string]domain.Expense),
		dailySales:      make(map[string]domain.DailySales),
		monthlySales:    make(map[string]domain.MonthlySales),
		monthlyExpenses: make(map[string]domain.MonthlyExpenses),
		usersByUsername: seedUsers(),
	}
}

func dailyKey(shopID string, day time.Time) string {
	return shopID + "|" + day.Format("2006-01-02")
}

func monthlyKey(shopID string, year int, month int) string {
	return shopID + "|" + time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (s *Store) CreateShop(_ context.Context, shop domain.Shop) (*domain.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if shop.Name == "" || shop.OwnerUsername == "" {
		return nil, store.ErrValidation
	}
	if shop.ID == "" {
		shop.ID = xid.New("shop")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}
	s.shopsByID[shop.ID] = shop
	created := shop
	return &created, nil
}

func (s *Store) GetShopByID(_ context.Context, shopID string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, exists := s.shopsByID[shopID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyShop := shop
	return &copyShop, nil
}

func (s *Store) ListShopsByOwner(_ context.Context, ownerUsername string) ([]domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shops := make([]domain.Shop, 0, 4)
	for _, shop := range s.shopsByID {
		if shop.OwnerUsername == ownerUsername {
			shops = append(shops, shop)
		}
	}
	slices.SortFunc(shops, func(a, b domain.Shop) int { return cmpString(a.Name, b.Name) })
	return shops, nil
}

func (s *Store) ListShops(_ context.Context) ([]domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shops := make([]domain.Shop, 0, len(s.shopsByID))
	for _, shop := range s.shopsByID {
		shops = append(shops, shop)
	}
	slices.SortFunc(shops, func(a, b domain.Shop) int { return cmpString(a.ID, b.ID) })
	return shops, nil
}

func (s *Store) NextProductNumber(_ context.Context, shopID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shop, exists := s.shopsByID[shopID]
	if !exists {
		return 0, store.ErrNotFound
	}
	shop.LastProductNo++
	s.shopsByID[shopID] = shop
	return shop.LastProductNo, nil
}

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if employee.ShopID == "" || employee.Username == "" || employee.Name == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.shopsByID[employee.ShopID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, e := range s.employeesByID {
		if e.Username == employee.Username {
			return nil, store.ErrValidation
		}
	}
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}
	s.employeesByID[employee.ID] = employee
	created := employee
	return &created, nil
}

func (s *Store) GetEmployeeByUsername(_ context.Context, username string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.employeesByID {
		if e.Username == username {
			copyEmp := e
			return &copyEmp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetEmployeeByID(_ context.Context, employeeID string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, exists := s.employeesByID[employeeID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyEmp := employee
	return &copyEmp, nil
}

func (s *Store) ListEmployees(_ context.Context, shopID string) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]domain.Employee, 0, 4)
	for _, e := range s.employeesByID {
		if e.ShopID == shopID {
			employees = append(employees, e)
		}
	}
	slices.SortFunc(employees, func(a, b domain.Employee) int { return cmpString(a.Name, b.Name) })
	return employees, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ShopID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.shopsByID[product.ShopID]; !exists {
		return nil, store.ErrNotFound
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.productsByID[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[productID]; !exists {
		return store.ErrNotFound
	}
	delete(s.productsByID, productID)
	return nil
}

func (s *Store) ListProducts(_ context.Context, shopID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.productsByID {
		if p.ShopID == shopID {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Shortcut != b.Shortcut {
			return a.Shortcut - b.Shortcut
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, shopID string, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.productsByID[id]; ok && p.ShopID == shopID {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CountProducts(_ context.Context, shopID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.productsByID {
		if p.ShopID == shopID {
			count++
		}
	}
	return count, nil
}

func (s *Store) ShortcutTaken(_ context.Context, shopID string, shortcut int, excludeProductID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.productsByID {
		if p.ShopID == shopID && p.Shortcut == shortcut && p.ID != excludeProductID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill, day time.Time) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bill.ShopID == "" || bill.EmployeeID == "" || len(bill.Items) == 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.shopsByID[bill.ShopID]; !exists {
		return nil, store.ErrNotFound
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}

	items := make([]domain.BillItem, len(bill.Items))
	copy(items, bill.Items)
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = xid.New("bitem")
		}
		items[i].BillID = bill.ID
	}
	bill.Items = items

	stored := bill
	s.billsByID[bill.ID] = &stored

	// Additive daily roll-up under the same lock, so a concurrent bill on the
	// same day cannot lose an update. Sales accumulate the pre-discount total
	// and items count distinct lines, not quantities.
	key := dailyKey(bill.ShopID, day)
	row, ok := s.dailySales[key]
	if !ok {
		row = domain.DailySales{
			ID:     xid.New("day"),
			ShopID: bill.ShopID,
			Date:   day,
		}
	}
	row.TotalSalesCents += bill.TotalCents
	row.TotalBills++
	row.TotalItems += len(bill.Items)
	row.UpdatedAt = time.Now().UTC()
	s.dailySales[key] = row

	created := copyBill(&stored)
	return created, nil
}

func (s *Store) GetBillByID(_ context.Context, billID string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, exists := s.billsByID[billID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return copyBill(bill), nil
}

func (s *Store) ListBills(_ context.Context, shopID string, from time.Time, to time.Time) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bills := make([]domain.Bill, 0, 16)
	for _, bill := range s.billsByID {
		if bill.ShopID != shopID {
			continue
		}
		if !inWindow(bill.CreatedAt, from, to) {
			continue
		}
		bills = append(bills, *copyBill(bill))
	}
	slices.SortFunc(bills, func(a, b domain.Bill) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return bills, nil
}

func (s *Store) ListBillItems(_ context.Context, shopID string, from time.Time, to time.Time) ([]domain.BillItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.BillItem, 0, 32)
	for _, bill := range s.billsByID {
		if bill.ShopID != shopID {
			continue
		}
		if !inWindow(bill.CreatedAt, from, to) {
			continue
		}
		items = append(items, bill.Items...)
	}
	return items, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ShopID == "" || expense.AmountCents < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.shopsByID[expense.ShopID]; !exists {
		return nil, store.ErrNotFound
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) GetExpenseByID(_ context.Context, expenseID string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expensesByID[expenseID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyExpense := expense
	return &copyExpense, nil
}

func (s *Store) DeleteExpense(_ context.Context, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expensesByID[expenseID]; !exists {
		return store.ErrNotFound
	}
	delete(s.expensesByID, expenseID)
	return nil
}

func (s *Store) ListExpenses(_ context.Context, shopID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, 16)
	for _, e := range s.expensesByID {
		if e.ShopID != shopID {
			continue
		}
		if !inWindow(e.CreatedAt, from, to) {
			continue
		}
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) ListDailySales(_ context.Context, shopID string, from time.Time, to time.Time) ([]domain.DailySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.DailySales, 0, 31)
	for _, row := range s.dailySales {
		if row.ShopID != shopID {
			continue
		}
		if !inWindow(row.Date, from, to) {
			continue
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b domain.DailySales) int {
		if a.Date.Before(b.Date) {
			return -1
		}
		if a.Date.After(b.Date) {
			return 1
		}
		return 0
	})
	return rows, nil
}

func (s *Store) UpsertMonthlySales(_ context.Context, row domain.MonthlySales) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ShopID == "" || row.Year < 1 || row.Month < 1 || row.Month > 12 {
		return store.ErrValidation
	}
	key := monthlyKey(row.ShopID, row.Year, row.Month)
	if existing, ok := s.monthlySales[key]; ok {
		row.ID = existing.ID
	} else if row.ID == "" {
		row.ID = xid.New("msales")
	}
	if row.ComputedAt.IsZero() {
		row.ComputedAt = time.Now().UTC()
	}
	s.monthlySales[key] = row
	return nil
}

func (s *Store) UpsertMonthlyExpenses(_ context.Context, row domain.MonthlyExpenses) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ShopID == "" || row.Year < 1 || row.Month < 1 || row.Month > 12 {
		return store.ErrValidation
	}
	key := monthlyKey(row.ShopID, row.Year, row.Month)
	if existing, ok := s.monthlyExpenses[key]; ok {
		row.ID = existing.ID
	} else if row.ID == "" {
		row.ID = xid.New("mexp")
	}
	if row.ComputedAt.IsZero() {
		row.ComputedAt = time.Now().UTC()
	}
	s.monthlyExpenses[key] = row
	return nil
}

func (s *Store) GetLatestMonthlySales(_ context.Context, shopID string) (*domain.MonthlySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.MonthlySales
	for _, row := range s.monthlySales {
		if row.ShopID != shopID {
			continue
		}
		if latest == nil || row.ComputedAt.After(latest.ComputedAt) {
			copyRow := row
			latest = &copyRow
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) ListMonthlySales(_ context.Context, shopID string) ([]domain.MonthlySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.MonthlySales, 0, 12)
	for _, row := range s.monthlySales {
		if row.ShopID == shopID {
			rows = append(rows, row)
		}
	}
	slices.SortFunc(rows, func(a, b domain.MonthlySales) int {
		if a.Year != b.Year {
			return a.Year - b.Year
		}
		return a.Month - b.Month
	})
	return rows, nil
}

func (s *Store) ListMonthlyExpenses(_ context.Context, shopID string) ([]domain.MonthlyExpenses, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]domain.MonthlyExpenses, 0, 12)
	for _, row := range s.monthlyExpenses {
		if row.ShopID == shopID {
			rows = append(rows, row)
		}
	}
	slices.SortFunc(rows, func(a, b domain.MonthlyExpenses) int {
		if a.Year != b.Year {
			return a.Year - b.Year
		}
		return a.Month - b.Month
	})
	return rows, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int { return cmpString(a.Username, b.Username) })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// inWindow reports whether t falls in [from, to). Zero bounds are open.
func inWindow(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func copyBill(bill *domain.Bill) *domain.Bill {
	copied := *bill
	copied.Items = make([]domain.BillItem, len(bill.Items))
	copy(copied.Items, bill.Items)
	return &copied
}

func cmpString(a, b string) int {
	return strings.Compare(a, b)
}
