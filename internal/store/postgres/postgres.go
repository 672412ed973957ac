package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
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

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables and the unique keys the aggregates rely on.
// Uniqueness of (shop, sale_date) and (shop, year, month) lives in the
// database so concurrent writers converge instead of duplicating rows.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL,
			role       TEXT NOT NULL,
			active     BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS shops (
			id                  TEXT PRIMARY KEY,
			owner_username      TEXT NOT NULL,
			name                TEXT NOT NULL,
			address             TEXT NOT NULL DEFAULT '',
			phone               TEXT NOT NULL DEFAULT '',
			email               TEXT NOT NULL DEFAULT '',
			image_url           TEXT NOT NULL DEFAULT '',
			shop_code           TEXT NOT NULL,
			product_code_prefix TEXT NOT NULL DEFAULT '',
			last_product_no     INTEGER NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS employees (
			id         TEXT PRIMARY KEY,
			shop_id    TEXT NOT NULL REFERENCES shops(id),
			username   TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			shop_id     TEXT NOT NULL REFERENCES shops(id),
			name        TEXT NOT NULL,
			price_cents BIGINT NOT NULL,
			shortcut    INTEGER NOT NULL,
			code        TEXT NOT NULL,
			image_url   TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (shop_id, shortcut)
		)`,
		`CREATE TABLE IF NOT EXISTS bills (
			id                TEXT PRIMARY KEY,
			shop_id           TEXT NOT NULL REFERENCES shops(id),
			employee_id       TEXT NOT NULL,
			payment_method    TEXT NOT NULL,
			total_cents       BIGINT NOT NULL,
			discount_cents    BIGINT NOT NULL DEFAULT 0,
			grand_total_cents BIGINT NOT NULL,
			customer_name     TEXT NOT NULL DEFAULT '',
			customer_phone    TEXT NOT NULL DEFAULT '',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bills_shop_created ON bills (shop_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS bill_items (
			id          TEXT PRIMARY KEY,
			bill_id     TEXT NOT NULL REFERENCES bills(id),
			product_id  TEXT,
			name        TEXT NOT NULL,
			price_cents BIGINT NOT NULL,
			quantity    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bill_items_bill ON bill_items (bill_id)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id           TEXT PRIMARY KEY,
			shop_id      TEXT NOT NULL REFERENCES shops(id),
			amount_cents BIGINT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_shop_created ON expenses (shop_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS daily_sales (
			id                TEXT PRIMARY KEY,
			shop_id           TEXT NOT NULL REFERENCES shops(id),
			sale_date         DATE NOT NULL,
			total_sales_cents BIGINT NOT NULL DEFAULT 0,
			total_bills       INTEGER NOT NULL DEFAULT 0,
			total_items       INTEGER NOT NULL DEFAULT 0,
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (shop_id, sale_date)
		)`,
		`CREATE TABLE IF NOT EXISTS monthly_sales (
			id                TEXT PRIMARY KEY,
			shop_id           TEXT NOT NULL REFERENCES shops(id),
			year              INTEGER NOT NULL,
			month             INTEGER NOT NULL,
			total_sales_cents BIGINT NOT NULL DEFAULT 0,
			total_bills       INTEGER NOT NULL DEFAULT 0,
			computed_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (shop_id, year, month)
		)`,
		`CREATE TABLE IF NOT EXISTS monthly_expenses (
			id                   TEXT PRIMARY KEY,
			shop_id              TEXT NOT NULL REFERENCES shops(id),
			year                 INTEGER NOT NULL,
			month                INTEGER NOT NULL,
			total_expenses_cents BIGINT NOT NULL DEFAULT 0,
			computed_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (shop_id, year, month)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error) {
	if shop.Name == "" || shop.OwnerUsername == "" {
		return nil, store.ErrValidation
	}
	if shop.ID == "" {
		shop.ID = xid.New("shop")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shops (id, owner_username, name, address, phone, email, image_url, shop_code, product_code_prefix, last_product_no, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, shop.ID, shop.OwnerUsername, shop.Name, shop.Address, shop.Phone, shop.Email, shop.ImageURL, shop.ShopCode, shop.ProductCodePrefix, shop.LastProductNo, shop.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := shop
	return &created, nil
}

const shopColumns = `id, owner_username, name, address, phone, email, image_url, shop_code, product_code_prefix, last_product_no, created_at`

func scanShop(row interface{ Scan(dest ...any) error }) (*domain.Shop, error) {
	var shop domain.Shop
	err := row.Scan(&shop.ID, &shop.OwnerUsername, &shop.Name, &shop.Address, &shop.Phone, &shop.Email, &shop.ImageURL, &shop.ShopCode, &shop.ProductCodePrefix, &shop.LastProductNo, &shop.CreatedAt)
	if err != nil {
		return nil, err
	}
	shop.CreatedAt = shop.CreatedAt.UTC()
	return &shop, nil
}

func (s *Store) GetShopByID(ctx context.Context, shopID string) (*domain.Shop, error) {
	shop, err := scanShop(s.db.QueryRowContext(ctx, `
		SELECT `+shopColumns+`
		FROM shops
		WHERE id = $1
	`, shopID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return shop, nil
}

func (s *Store) ListShopsByOwner(ctx context.Context, ownerUsername string) ([]domain.Shop, error) {
	return s.listShops(ctx, `
		SELECT `+shopColumns+`
		FROM shops
		WHERE owner_username = $1
		ORDER BY name
	`, ownerUsername)
}

func (s *Store) ListShops(ctx context.Context) ([]domain.Shop, error) {
	return s.listShops(ctx, `
		SELECT `+shopColumns+`
		FROM shops
		ORDER BY id
	`)
}

func (s *Store) listShops(ctx context.Context, query string, args ...any) ([]domain.Shop, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shops := make([]domain.Shop, 0, 8)
	for rows.Next() {
		shop, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		shops = append(shops, *shop)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shops, nil
}

func (s *Store) NextProductNumber(ctx context.Context, shopID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		UPDATE shops
		SET last_product_no = last_product_no + 1
		WHERE id = $1
		RETURNING last_product_no
	`, shopID).Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return next, nil
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.ShopID == "" || employee.Username == "" || employee.Name == "" {
		return nil, store.ErrValidation
	}
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, shop_id, username, name, email, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, employee.ID, employee.ShopID, employee.Username, employee.Name, employee.Email, employee.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := employee
	return &created, nil
}

func (s *Store) GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error) {
	return s.getEmployee(ctx, `WHERE username = $1`, username)
}

func (s *Store) GetEmployeeByID(ctx context.Context, employeeID string) (*domain.Employee, error) {
	return s.getEmployee(ctx, `WHERE id = $1`, employeeID)
}

func (s *Store) getEmployee(ctx context.Context, where string, arg any) (*domain.Employee, error) {
	var employee domain.Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, username, name, email, created_at
		FROM employees
	`+where, arg).Scan(&employee.ID, &employee.ShopID, &employee.Username, &employee.Name, &employee.Email, &employee.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	employee.CreatedAt = employee.CreatedAt.UTC()
	return &employee, nil
}

func (s *Store) ListEmployees(ctx context.Context, shopID string) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, username, name, email, created_at
		FROM employees
		WHERE shop_id = $1
		ORDER BY name
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 8)
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.ShopID, &e.Username, &e.Name, &e.Email, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return employees, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ShopID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, shop_id, name, price_cents, shortcut, code, image_url, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.ShopID, product.Name, product.PriceCents, product.Shortcut, product.Code, product.ImageURL, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, name, price_cents, shortcut, code, image_url, created_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceCents, &p.Shortcut, &p.Code, &p.ImageURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price_cents = $3, shortcut = $4, image_url = $5
		WHERE id = $1
	`, product.ID, product.Name, product.PriceCents, product.Shortcut, product.ImageURL)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
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

func (s *Store) ListProducts(ctx context.Context, shopID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, name, price_cents, shortcut, code, image_url, created_at
		FROM products
		WHERE shop_id = $1
		ORDER BY shortcut, name
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceCents, &p.Shortcut, &p.Code, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, shopID string, productIDs []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, name, price_cents, shortcut, code, image_url, created_at
		FROM products
		WHERE shop_id = $1 AND id = ANY($2)
	`, shopID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.ShopID, &p.Name, &p.PriceCents, &p.Shortcut, &p.Code, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CountProducts(ctx context.Context, shopID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products WHERE shop_id = $1`, shopID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ShortcutTaken(ctx context.Context, shopID string, shortcut int, excludeProductID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM products
			WHERE shop_id = $1 AND shortcut = $2 AND id <> $3
		)
	`, shopID, shortcut, excludeProductID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill, day time.Time) (*domain.Bill, error) {
	if bill.ShopID == "" || bill.EmployeeID == "" || len(bill.Items) == 0 {
		return nil, store.ErrValidation
	}
	if bill.ID == "" {
		bill.ID = xid.New("bill")
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (id, shop_id, employee_id, payment_method, total_cents, discount_cents, grand_total_cents, customer_name, customer_phone, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, bill.ID, bill.ShopID, bill.EmployeeID, bill.PaymentMethod, bill.TotalCents, bill.DiscountCents, bill.GrandTotalCents, bill.CustomerName, bill.CustomerPhone, bill.CreatedAt)
	if err != nil {
		return nil, err
	}

	items := make([]domain.BillItem, len(bill.Items))
	copy(items, bill.Items)
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = xid.New("bitem")
		}
		items[i].BillID = bill.ID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO bill_items (id, bill_id, product_id, name, price_cents, quantity)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, items[i].ID, items[i].BillID, nullIfEmpty(items[i].ProductID), items[i].Name, items[i].PriceCents, items[i].Quantity)
		if err != nil {
			return nil, err
		}
	}
	bill.Items = items

	// Atomic increment keyed on (shop, day). Two concurrent bills on the
	// same day both land; neither overwrites the other's counts. Sales
	// accumulate the pre-discount total and items count distinct lines.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_sales (id, shop_id, sale_date, total_sales_cents, total_bills, total_items, updated_at)
		VALUES ($1, $2, $3::date, $4, 1, $5, now())
		ON CONFLICT (shop_id, sale_date) DO UPDATE SET
			total_sales_cents = daily_sales.total_sales_cents + EXCLUDED.total_sales_cents,
			total_bills       = daily_sales.total_bills + 1,
			total_items       = daily_sales.total_items + EXCLUDED.total_items,
			updated_at        = now()
	`, xid.New("day"), bill.ShopID, day.Format("2006-01-02"), bill.TotalCents, len(items))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := bill
	return &created, nil
}

func (s *Store) GetBillByID(ctx context.Context, billID string) (*domain.Bill, error) {
	var bill domain.Bill
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, employee_id, payment_method, total_cents, discount_cents, grand_total_cents, customer_name, customer_phone, created_at
		FROM bills
		WHERE id = $1
	`, billID).Scan(&bill.ID, &bill.ShopID, &bill.EmployeeID, &bill.PaymentMethod, &bill.TotalCents, &bill.DiscountCents, &bill.GrandTotalCents, &bill.CustomerName, &bill.CustomerPhone, &bill.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	bill.CreatedAt = bill.CreatedAt.UTC()

	itemsByBill, err := s.loadBillItems(ctx, []string{bill.ID})
	if err != nil {
		return nil, err
	}
	bill.Items = itemsByBill[bill.ID]
	if bill.Items == nil {
		bill.Items = []domain.BillItem{}
	}
	return &bill, nil
}

func (s *Store) ListBills(ctx context.Context, shopID string, from time.Time, to time.Time) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, employee_id, payment_method, total_cents, discount_cents, grand_total_cents, customer_name, customer_phone, created_at
		FROM bills
		WHERE shop_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
	`, shopID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 32)
	billIDs := make([]string, 0, 32)
	for rows.Next() {
		var bill domain.Bill
		if err := rows.Scan(&bill.ID, &bill.ShopID, &bill.EmployeeID, &bill.PaymentMethod, &bill.TotalCents, &bill.DiscountCents, &bill.GrandTotalCents, &bill.CustomerName, &bill.CustomerPhone, &bill.CreatedAt); err != nil {
			return nil, err
		}
		bill.CreatedAt = bill.CreatedAt.UTC()
		bill.Items = []domain.BillItem{}
		bills = append(bills, bill)
		billIDs = append(billIDs, bill.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemsByBill, err := s.loadBillItems(ctx, billIDs)
	if err != nil {
		return nil, err
	}
	for i := range bills {
		if items, ok := itemsByBill[bills[i].ID]; ok {
			bills[i].Items = items
		}
	}
	return bills, nil
}

func (s *Store) loadBillItems(ctx context.Context, billIDs []string) (map[string][]domain.BillItem, error) {
	result := make(map[string][]domain.BillItem, len(billIDs))
	if len(billIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, COALESCE(product_id, ''), name, price_cents, quantity
		FROM bill_items
		WHERE bill_id = ANY($1)
		ORDER BY id
	`, billIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.BillItem
		if err := rows.Scan(&item.ID, &item.BillID, &item.ProductID, &item.Name, &item.PriceCents, &item.Quantity); err != nil {
			return nil, err
		}
		result[item.BillID] = append(result[item.BillID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListBillItems(ctx context.Context, shopID string, from time.Time, to time.Time) ([]domain.BillItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.bill_id, COALESCE(i.product_id, ''), i.name, i.price_cents, i.quantity
		FROM bill_items i
		JOIN bills b ON b.id = i.bill_id
		WHERE b.shop_id = $1
		  AND ($2::timestamptz IS NULL OR b.created_at >= $2)
		  AND ($3::timestamptz IS NULL OR b.created_at < $3)
		ORDER BY i.id
	`, shopID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.BillItem, 0, 64)
	for rows.Next() {
		var item domain.BillItem
		if err := rows.Scan(&item.ID, &item.BillID, &item.ProductID, &item.Name, &item.PriceCents, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ShopID == "" || expense.AmountCents < 1 {
		return nil, store.ErrValidation
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, shop_id, amount_cents, description, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, expense.ID, expense.ShopID, expense.AmountCents, expense.Description, expense.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := expense
	return &created, nil
}

func (s *Store) GetExpenseByID(ctx context.Context, expenseID string) (*domain.Expense, error) {
	var expense domain.Expense
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, amount_cents, description, created_at
		FROM expenses
		WHERE id = $1
	`, expenseID).Scan(&expense.ID, &expense.ShopID, &expense.AmountCents, &expense.Description, &expense.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	expense.CreatedAt = expense.CreatedAt.UTC()
	return &expense, nil
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, expenseID)
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

func (s *Store) ListExpenses(ctx context.Context, shopID string, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, amount_cents, description, created_at
		FROM expenses
		WHERE shop_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
	`, shopID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.ShopID, &e.AmountCents, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) ListDailySales(ctx context.Context, shopID string, from time.Time, to time.Time) ([]domain.DailySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, sale_date::text, total_sales_cents, total_bills, total_items, updated_at
		FROM daily_sales
		WHERE shop_id = $1
		  AND ($2::date IS NULL OR sale_date >= $2::date)
		  AND ($3::date IS NULL OR sale_date < $3::date)
		ORDER BY sale_date
	`, shopID, nullDay(from), nullDay(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.DailySales, 0, 31)
	for rows.Next() {
		var row domain.DailySales
		var dateStr string
		if err := rows.Scan(&row.ID, &row.ShopID, &dateStr, &row.TotalSalesCents, &row.TotalBills, &row.TotalItems, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, err
		}
		row.UpdatedAt = row.UpdatedAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpsertMonthlySales(ctx context.Context, row domain.MonthlySales) error {
	if row.ShopID == "" || row.Year < 1 || row.Month < 1 || row.Month > 12 {
		return store.ErrValidation
	}
	if row.ID == "" {
		row.ID = xid.New("msales")
	}
	if row.ComputedAt.IsZero() {
		row.ComputedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_sales (id, shop_id, year, month, total_sales_cents, total_bills, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (shop_id, year, month) DO UPDATE SET
			total_sales_cents = EXCLUDED.total_sales_cents,
			total_bills       = EXCLUDED.total_bills,
			computed_at       = EXCLUDED.computed_at
	`, row.ID, row.ShopID, row.Year, row.Month, row.TotalSalesCents, row.TotalBills, row.ComputedAt)
	return err
}

func (s *Store) UpsertMonthlyExpenses(ctx context.Context, row domain.MonthlyExpenses) error {
	if row.ShopID == "" || row.Year < 1 || row.Month < 1 || row.Month > 12 {
		return store.ErrValidation
	}
	if row.ID == "" {
		row.ID = xid.New("mexp")
	}
	if row.ComputedAt.IsZero() {
		row.ComputedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_expenses (id, shop_id, year, month, total_expenses_cents, computed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (shop_id, year, month) DO UPDATE SET
			total_expenses_cents = EXCLUDED.total_expenses_cents,
			computed_at          = EXCLUDED.computed_at
	`, row.ID, row.ShopID, row.Year, row.Month, row.TotalExpensesCents, row.ComputedAt)
	return err
}

func (s *Store) GetLatestMonthlySales(ctx context.Context, shopID string) (*domain.MonthlySales, error) {
	var row domain.MonthlySales
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, year, month, total_sales_cents, total_bills, computed_at
		FROM monthly_sales
		WHERE shop_id = $1
		ORDER BY computed_at DESC
		LIMIT 1
	`, shopID).Scan(&row.ID, &row.ShopID, &row.Year, &row.Month, &row.TotalSalesCents, &row.TotalBills, &row.ComputedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	row.ComputedAt = row.ComputedAt.UTC()
	return &row, nil
}

func (s *Store) ListMonthlySales(ctx context.Context, shopID string) ([]domain.MonthlySales, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, year, month, total_sales_cents, total_bills, computed_at
		FROM monthly_sales
		WHERE shop_id = $1
		ORDER BY year, month
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.MonthlySales, 0, 12)
	for rows.Next() {
		var row domain.MonthlySales
		if err := rows.Scan(&row.ID, &row.ShopID, &row.Year, &row.Month, &row.TotalSalesCents, &row.TotalBills, &row.ComputedAt); err != nil {
			return nil, err
		}
		row.ComputedAt = row.ComputedAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListMonthlyExpenses(ctx context.Context, shopID string) ([]domain.MonthlyExpenses, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shop_id, year, month, total_expenses_cents, computed_at
		FROM monthly_expenses
		WHERE shop_id = $1
		ORDER BY year, month
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.MonthlyExpenses, 0, 12)
	for rows.Next() {
		var row domain.MonthlyExpenses
		if err := rows.Scan(&row.ID, &row.ShopID, &row.Year, &row.Month, &row.TotalExpensesCents, &row.ComputedAt); err != nil {
			return nil, err
		}
		row.ComputedAt = row.ComputedAt.UTC()
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

func nullDay(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val.Format("2006-01-02")
}
