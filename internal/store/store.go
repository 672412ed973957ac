package store

import (
	"context"
	"errors"
	"time"

	"shopledger/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
)

type Repository interface {
	CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error)
	GetShopByID(ctx context.Context, shopID string) (*domain.Shop, error)
	ListShopsByOwner(ctx context.Context, ownerUsername string) ([]domain.Shop, error)
	ListShops(ctx context.Context) ([]domain.Shop, error)
	NextProductNumber(ctx context.Context, shopID string) (int, error)

	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error)
	GetEmployeeByID(ctx context.Context, employeeID string) (*domain.Employee, error)
	ListEmployees(ctx context.Context, shopID string) ([]domain.Employee, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	ListProducts(ctx context.Context, shopID string) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, shopID string, productIDs []string) (map[string]domain.Product, error)
	CountProducts(ctx context.Context, shopID string) (int, error)
	ShortcutTaken(ctx context.Context, shopID string, shortcut int, excludeProductID string) (bool, error)

	// CreateBill persists the bill with its items and applies the daily
	// roll-up increment for day in the same transaction.
	CreateBill(ctx context.Context, bill domain.Bill, day time.Time) (*domain.Bill, error)
	GetBillByID(ctx context.Context, billID string) (*domain.Bill, error)
	ListBills(ctx context.Context, shopID string, from time.Time, to time.Time) ([]domain.Bill, error)
	ListBillItems(ctx context.Context, shopID string, from time.Time, to time.Time) ([]domain.BillItem, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpenseByID(ctx context.Context, expenseID string) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, expenseID string) error
	ListExpenses(ctx context.Context, shopID string, from time.Time, to time.Time) ([]domain.Expense, error)

	ListDailySales(ctx context.Context, shopID string, from time.Time, to time.Time) ([]domain.DailySales, error)

	UpsertMonthlySales(ctx context.Context, row domain.MonthlySales) error
	UpsertMonthlyExpenses(ctx context.Context, row domain.MonthlyExpenses) error
	GetLatestMonthlySales(ctx context.Context, shopID string) (*domain.MonthlySales, error)
	ListMonthlySales(ctx context.Context, shopID string) ([]domain.MonthlySales, error)
	ListMonthlyExpenses(ctx context.Context, shopID string) ([]domain.MonthlyExpenses, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
