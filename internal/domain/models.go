package domain

import "time"

type Shop struct {
	ID                string    `json:"id"`
	OwnerUsername     string    `json:"owner_username"`
	Name              string    `json:"name"`
	Address           string    `json:"address"`
	Phone             string    `json:"phone"`
	Email             string    `json:"email"`
	ImageURL          string    `json:"image_url,omitempty"`
	ShopCode          string    `json:"shop_code"`
	ProductCodePrefix string    `json:"product_code_prefix"`
	LastProductNo     int       `json:"last_product_no"`
	CreatedAt         time.Time `json:"created_at"`
}

type ShopEmployeeInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type ShopCreateRequest struct {
	Name              string              `json:"name"`
	Address           string              `json:"address"`
	Phone             string              `json:"phone"`
	Email             string              `json:"email"`
	ImageURL          string              `json:"image_url,omitempty"`
	ProductCodePrefix string              `json:"product_code_prefix"`
	Employees         []ShopEmployeeInput `json:"employees,omitempty"`
}

type ShopDetails struct {
	Shop         Shop       `json:"shop"`
	Employees    []Employee `json:"employees"`
	ProductCount int        `json:"product_count"`
}

type Employee struct {
	ID        string    `json:"id"`
	ShopID    string    `json:"shop_id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID         string    `json:"id"`
	ShopID     string    `json:"shop_id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Shortcut   int       `json:"shortcut"`
	Code       string    `json:"code"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	ShopID     string `json:"shop_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Shortcut   int    `json:"shortcut"`
	ImageURL   string `json:"image_url,omitempty"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Shortcut   *int    `json:"shortcut,omitempty"`
	ImageURL   *string `json:"image_url,omitempty"`
}

type BillItem struct {
	ID         string `json:"id"`
	BillID     string `json:"bill_id"`
	ProductID  string `json:"product_id,omitempty"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type Bill struct {
	ID              string     `json:"id"`
	ShopID          string     `json:"shop_id"`
	EmployeeID      string     `json:"employee_id"`
	PaymentMethod   string     `json:"payment_method"`
	TotalCents      int64      `json:"total_cents"`
	DiscountCents   int64      `json:"discount_cents"`
	GrandTotalCents int64      `json:"grand_total_cents"`
	CustomerName    string     `json:"customer_name,omitempty"`
	CustomerPhone   string     `json:"customer_phone,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	Items           []BillItem `json:"items"`
}

type BillingItemInput struct {
	ProductID  string `json:"product_id,omitempty"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type BillingCreateRequest struct {
	ShopID        string             `json:"shop_id"`
	PaymentMethod string             `json:"payment_method"`
	DiscountCents int64              `json:"discount_cents"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	Items         []BillingItemInput `json:"items"`
}

type Expense struct {
	ID          string    `json:"id"`
	ShopID      string    `json:"shop_id"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ExpenseCreateRequest struct {
	ShopID      string `json:"shop_id"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

// DailySales is the running per-day aggregate maintained on every bill write.
// Date is shop-local midnight; one row exists per (shop, day).
type DailySales struct {
	ID              string    `json:"id"`
	ShopID          string    `json:"shop_id"`
	Date            time.Time `json:"date"`
	TotalSalesCents int64     `json:"total_sales_cents"`
	TotalBills      int       `json:"total_bills"`
	TotalItems      int       `json:"total_items"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MonthlySales and MonthlyExpenses are derived caches; ComputedAt drives the
// 24h staleness check, ledgers remain the source of truth.
type MonthlySales struct {
	ID              string    `json:"id"`
	ShopID          string    `json:"shop_id"`
	Year            int       `json:"year"`
	Month           int       `json:"month"`
	TotalSalesCents int64     `json:"total_sales_cents"`
	TotalBills      int       `json:"total_bills"`
	ComputedAt      time.Time `json:"computed_at"`
}

type MonthlyExpenses struct {
	ID                 string    `json:"id"`
	ShopID             string    `json:"shop_id"`
	Year               int       `json:"year"`
	Month              int       `json:"month"`
	TotalExpensesCents int64     `json:"total_expenses_cents"`
	ComputedAt         time.Time `json:"computed_at"`
}

type MonthlyAnalytics struct {
	Month              string `json:"month"`
	SalesCents         int64  `json:"sales_cents"`
	ExpensesCents      int64  `json:"expenses_cents"`
	ProfitCents        int64  `json:"profit_cents"`
	AvgDailySalesCents int64  `json:"avg_daily_sales_cents"`
}

type AnalyticsSummary struct {
	TotalSalesCents    int64  `json:"total_sales_cents"`
	TotalExpensesCents int64  `json:"total_expenses_cents"`
	NetProfitCents     int64  `json:"net_profit_cents"`
	AvgDailySalesCents int64  `json:"avg_daily_sales_cents"`
	HighestDay         string `json:"highest_day,omitempty"`
	HighestDayCents    int64  `json:"highest_day_cents"`
	LowestDay          string `json:"lowest_day,omitempty"`
	LowestDayCents     int64  `json:"lowest_day_cents"`
}

type OverallAnalytics struct {
	Summary AnalyticsSummary   `json:"summary"`
	Months  []MonthlyAnalytics `json:"monthly_data"`
}

type DailyExpenseTotal struct {
	Date       string `json:"date"`
	TotalCents int64  `json:"total_cents"`
	Count      int    `json:"count"`
}

type DayLedgerEntry struct {
	Date          string `json:"date"`
	SalesCents    int64  `json:"sales_cents"`
	ExpensesCents int64  `json:"expenses_cents"`
}

type InvoiceData struct {
	Bill         Bill   `json:"bill"`
	Shop         Shop   `json:"shop"`
	EmployeeName string `json:"employee_name"`
}

type InvoiceCreateRequest struct {
	ID string `json:"id"`
}

type InvoiceCreateResponse struct {
	DownloadURL string `json:"download_url"`
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

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	PaymentCash = "CASH"
	PaymentCard = "CARD"
	PaymentUPI  = "UPI"
)

const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)
