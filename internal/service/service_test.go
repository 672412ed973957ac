package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
	"shopledger/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, nil, nil, 0, nil), repo
}

func ownerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "owner", Role: domain.RoleOwner})
}

func employeeCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "employee", Role: domain.RoleEmployee})
}

// currentMonthStart is the first day of the current UTC month; deriving month
// strings from it avoids AddDate surprises at month ends.
func currentMonthStart() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func TestCreateBillingComputesTotals(t *testing.T) {
	svc, _ := newTestService()

	bill, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "cash",
		DiscountCents: 100,
		CustomerName:  "Walk-in",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-1", Name: "Milk 1L", PriceCents: 250, Quantity: 2},
			{Name: "Carrier Bag", PriceCents: 100, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create billing failed: %v", err)
	}
	if bill.TotalCents != 600 {
		t.Fatalf("expected total 600, got %d", bill.TotalCents)
	}
	if bill.GrandTotalCents != 500 {
		t.Fatalf("expected grand total 500, got %d", bill.GrandTotalCents)
	}
	if bill.PaymentMethod != domain.PaymentCash {
		t.Fatalf("expected payment method normalized to CASH, got %s", bill.PaymentMethod)
	}
	if bill.EmployeeID != "emp-demo" {
		t.Fatalf("expected bill attributed to emp-demo, got %s", bill.EmployeeID)
	}
	if bill.ShopID != "shop-demo" {
		t.Fatalf("expected bill scoped to shop-demo, got %s", bill.ShopID)
	}
}

func TestCreateBillingAccumulatesDailyRollup(t *testing.T) {
	svc, _ := newTestService()
	ctx := employeeCtx()

	_, err := svc.CreateBilling(ctx, domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-1", Name: "Milk 1L", PriceCents: 250, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("first billing failed: %v", err)
	}
	_, err = svc.CreateBilling(ctx, domain.BillingCreateRequest{
		PaymentMethod: "CARD",
		DiscountCents: 80,
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-2", Name: "Bread Loaf", PriceCents: 180, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("second billing failed: %v", err)
	}

	rows, err := svc.GetMonthlySales(ctx, "shop-demo", currentMonthStart().Format("2006-01"))
	if err != nil {
		t.Fatalf("get monthly sales failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 daily roll-up row, got %d", len(rows))
	}
	row := rows[0]
	if row.TotalSalesCents != 680 {
		t.Fatalf("expected accumulated pre-discount sales 680 (500 + 180), got %d", row.TotalSalesCents)
	}
	if row.TotalBills != 2 {
		t.Fatalf("expected 2 bills rolled up, got %d", row.TotalBills)
	}
	if row.TotalItems != 2 {
		t.Fatalf("expected 2 line items rolled up, got %d", row.TotalItems)
	}
}

// The daily roll-up counts distinct bill lines (not quantities) and sums the
// pre-discount bill totals.
func TestDailyRollupCountsLinesAndPreDiscountTotals(t *testing.T) {
	svc, _ := newTestService()
	ctx := employeeCtx()

	_, err := svc.CreateBilling(ctx, domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{Name: "Tea", PriceCents: 20, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("first billing failed: %v", err)
	}
	_, err = svc.CreateBilling(ctx, domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		DiscountCents: 10,
		Items: []domain.BillingItemInput{
			{Name: "Coffee", PriceCents: 30, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("second billing failed: %v", err)
	}

	rows, err := svc.GetMonthlySales(ctx, "shop-demo", currentMonthStart().Format("2006-01"))
	if err != nil {
		t.Fatalf("get monthly sales failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 daily roll-up row, got %d", len(rows))
	}
	if rows[0].TotalSalesCents != 70 {
		t.Fatalf("expected pre-discount sales 70 (40 + 30), got %d", rows[0].TotalSalesCents)
	}
	if rows[0].TotalItems != 2 {
		t.Fatalf("expected 2 lines (one per bill, quantities ignored), got %d", rows[0].TotalItems)
	}
}

func TestCreateBillingRejectsOversizedDiscount(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		DiscountCents: 501,
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-1", Name: "Milk 1L", PriceCents: 250, Quantity: 2},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for discount above total, got %v", err)
	}
}

func TestCreateBillingRejectsOwnerActor(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBilling(ownerCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{Name: "Milk 1L", PriceCents: 250, Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for owner-created bill, got %v", err)
	}
}

func TestCreateBillingRejectsForeignProductLink(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "UPI",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-elsewhere", Name: "Smuggled", PriceCents: 100, Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown product link, got %v", err)
	}
}

func TestCreateBillingRejectsUnknownPaymentMethod(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "cheque",
		Items: []domain.BillingItemInput{
			{Name: "Milk 1L", PriceCents: 250, Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown payment method, got %v", err)
	}
}

func TestExpenseLifecycle(t *testing.T) {
	svc, _ := newTestService()

	expense, err := svc.CreateExpense(employeeCtx(), domain.ExpenseCreateRequest{
		ShopID:      "shop-demo",
		AmountCents: 1200,
		Description: "ice delivery",
	})
	if err != nil {
		t.Fatalf("create expense failed: %v", err)
	}

	today, err := svc.GetExpensesForDate(employeeCtx(), "shop-demo")
	if err != nil {
		t.Fatalf("list expenses failed: %v", err)
	}
	if len(today) != 1 {
		t.Fatalf("expected 1 expense today, got %d", len(today))
	}

	if err := svc.DeleteExpense(ownerCtx(), expense.ID); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}

	today, err = svc.GetExpensesForDate(employeeCtx(), "shop-demo")
	if err != nil {
		t.Fatalf("list after delete failed: %v", err)
	}
	if len(today) != 0 {
		t.Fatalf("expected no expenses after delete, got %d", len(today))
	}
}

func TestExpenseRejectsNonMember(t *testing.T) {
	svc, _ := newTestService()
	stranger := WithActor(context.Background(), domain.Actor{Username: "stranger", Role: domain.RoleOwner})

	_, err := svc.CreateExpense(stranger, domain.ExpenseCreateRequest{
		ShopID:      "shop-demo",
		AmountCents: 500,
		Description: "not my shop",
	})
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for non-member, got %v", err)
	}
}

func TestOverallAnalyticsRecomputesWhenRollupMissing(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-1", Name: "Milk 1L", PriceCents: 250, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("billing failed: %v", err)
	}
	_, err = svc.CreateExpense(employeeCtx(), domain.ExpenseCreateRequest{
		ShopID:      "shop-demo",
		AmountCents: 200,
		Description: "cleaning",
	})
	if err != nil {
		t.Fatalf("expense failed: %v", err)
	}

	month := currentMonthStart().Format("2006-01")
	analytics, err := svc.GetOverallAnalytics(ownerCtx(), "shop-demo", month, month)
	if err != nil {
		t.Fatalf("overall analytics failed: %v", err)
	}

	if analytics.Summary.TotalSalesCents != 500 {
		t.Fatalf("expected total sales 500, got %d", analytics.Summary.TotalSalesCents)
	}
	if analytics.Summary.TotalExpensesCents != 200 {
		t.Fatalf("expected total expenses 200, got %d", analytics.Summary.TotalExpensesCents)
	}
	if analytics.Summary.NetProfitCents != 300 {
		t.Fatalf("expected net profit 300, got %d", analytics.Summary.NetProfitCents)
	}
	if analytics.Summary.AvgDailySalesCents != 500 {
		t.Fatalf("expected avg daily sales 500 over one active day, got %d", analytics.Summary.AvgDailySalesCents)
	}

	today := time.Now().UTC().Format("2006-01-02")
	if analytics.Summary.HighestDay != today || analytics.Summary.LowestDay != today {
		t.Fatalf("expected highest and lowest day %s, got %s / %s", today, analytics.Summary.HighestDay, analytics.Summary.LowestDay)
	}
	if len(analytics.Months) != 1 {
		t.Fatalf("expected 1 month entry, got %d", len(analytics.Months))
	}
	if analytics.Months[0].ProfitCents != 300 {
		t.Fatalf("expected month profit 300, got %d", analytics.Months[0].ProfitCents)
	}
}

func TestOverallAnalyticsZeroFillsEmptyMonths(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-3", Name: "Eggs Dozen", PriceCents: 420, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("billing failed: %v", err)
	}

	start := currentMonthStart()
	from := start.AddDate(0, -2, 0).Format("2006-01")
	to := start.Format("2006-01")

	analytics, err := svc.GetOverallAnalytics(ownerCtx(), "shop-demo", from, to)
	if err != nil {
		t.Fatalf("overall analytics failed: %v", err)
	}
	if len(analytics.Months) != 3 {
		t.Fatalf("expected 3 month entries, got %d", len(analytics.Months))
	}
	for _, month := range analytics.Months[:2] {
		if month.SalesCents != 0 || month.ExpensesCents != 0 || month.AvgDailySalesCents != 0 {
			t.Fatalf("expected empty month %s to be all zeros, got %+v", month.Month, month)
		}
	}
	if analytics.Months[2].SalesCents != 420 {
		t.Fatalf("expected current month sales 420, got %d", analytics.Months[2].SalesCents)
	}
}

func TestOverallAnalyticsRejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService()

	start := currentMonthStart()
	_, err := svc.GetOverallAnalytics(ownerCtx(), "shop-demo", start.Format("2006-01"), start.AddDate(0, -1, 0).Format("2006-01"))
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for inverted range, got %v", err)
	}
}

func TestOverallAnalyticsRequiresOwner(t *testing.T) {
	svc, _ := newTestService()

	month := currentMonthStart().Format("2006-01")
	_, err := svc.GetOverallAnalytics(employeeCtx(), "shop-demo", month, month)
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for employee, got %v", err)
	}
}

func TestPopulateMonthlySummaryIdempotent(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-4", Name: "Rice 5kg", PriceCents: 1550, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("billing failed: %v", err)
	}

	if err := svc.PopulateMonthlySummary(ownerCtx(), "shop-demo"); err != nil {
		t.Fatalf("first populate failed: %v", err)
	}
	if err := svc.PopulateMonthlySummary(ownerCtx(), "shop-demo"); err != nil {
		t.Fatalf("second populate failed: %v", err)
	}

	rows, err := repo.ListMonthlySales(context.Background(), "shop-demo")
	if err != nil {
		t.Fatalf("list monthly sales failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single monthly row after two runs, got %d", len(rows))
	}
	if rows[0].TotalSalesCents != 1550 || rows[0].TotalBills != 1 {
		t.Fatalf("expected monthly row 1550/1 after two runs, got %d/%d", rows[0].TotalSalesCents, rows[0].TotalBills)
	}
}

// Two simultaneous recomputes (cron firing while an owner hits the populate
// endpoint) must still leave exactly one row per shop and month.
func TestPopulateMonthlySummaryConcurrentRuns(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-4", Name: "Rice 5kg", PriceCents: 1550, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("billing failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.PopulateMonthlySummary(ownerCtx(), "shop-demo")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("populate #%d failed: %v", i, err)
		}
	}

	rows, err := repo.ListMonthlySales(context.Background(), "shop-demo")
	if err != nil {
		t.Fatalf("list monthly sales failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single monthly row after concurrent runs, got %d", len(rows))
	}
	if rows[0].TotalSalesCents != 1550 || rows[0].TotalBills != 1 {
		t.Fatalf("expected monthly row 1550/1 after concurrent runs, got %d/%d", rows[0].TotalSalesCents, rows[0].TotalBills)
	}
}

func TestRecomputePreviousMonthCoversAllShops(t *testing.T) {
	svc, repo := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-1", Name: "Milk 1L", PriceCents: 250, Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("billing failed: %v", err)
	}
	_, err = svc.CreateExpense(employeeCtx(), domain.ExpenseCreateRequest{
		ShopID:      "shop-demo",
		AmountCents: 300,
		Description: "window repair",
	})
	if err != nil {
		t.Fatalf("expense failed: %v", err)
	}

	// Run as if the first of next month arrived, so "previous month" is the
	// month the bill above landed in.
	nextMonth := currentMonthStart().AddDate(0, 1, 0)
	if err := svc.RecomputePreviousMonth(context.Background(), nextMonth); err != nil {
		t.Fatalf("recompute previous month failed: %v", err)
	}

	salesRows, err := repo.ListMonthlySales(context.Background(), "shop-demo")
	if err != nil {
		t.Fatalf("list monthly sales failed: %v", err)
	}
	if len(salesRows) != 1 || salesRows[0].TotalSalesCents != 1000 || salesRows[0].TotalBills != 1 {
		t.Fatalf("unexpected monthly sales rows: %+v", salesRows)
	}

	expenseRows, err := repo.ListMonthlyExpenses(context.Background(), "shop-demo")
	if err != nil {
		t.Fatalf("list monthly expenses failed: %v", err)
	}
	if len(expenseRows) != 1 || expenseRows[0].TotalExpensesCents != 300 {
		t.Fatalf("unexpected monthly expense rows: %+v", expenseRows)
	}
}

func TestGetDailySalesAndExpensesForMonthZeroFills(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-2", Name: "Bread Loaf", PriceCents: 180, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("billing failed: %v", err)
	}
	_, err = svc.CreateExpense(employeeCtx(), domain.ExpenseCreateRequest{
		ShopID:      "shop-demo",
		AmountCents: 90,
		Description: "bags",
	})
	if err != nil {
		t.Fatalf("expense failed: %v", err)
	}

	start := currentMonthStart()
	entries, err := svc.GetDailySalesAndExpensesForMonth(ownerCtx(), "shop-demo", start.Format("2006-01"))
	if err != nil {
		t.Fatalf("daily ledger failed: %v", err)
	}

	daysInMonth := start.AddDate(0, 1, -1).Day()
	if len(entries) != daysInMonth {
		t.Fatalf("expected %d entries, got %d", daysInMonth, len(entries))
	}

	today := time.Now().UTC().Format("2006-01-02")
	found := false
	for _, entry := range entries {
		if entry.Date == today {
			found = true
			if entry.SalesCents != 360 || entry.ExpensesCents != 90 {
				t.Fatalf("expected today 360/90, got %d/%d", entry.SalesCents, entry.ExpensesCents)
			}
		} else if entry.SalesCents != 0 || entry.ExpensesCents != 0 {
			t.Fatalf("expected %s to be zero, got %+v", entry.Date, entry)
		}
	}
	if !found {
		t.Fatalf("expected an entry for %s", today)
	}
}

func TestGetDailyExpensesGroupsByDay(t *testing.T) {
	svc, _ := newTestService()

	for _, amount := range []int64{100, 250} {
		_, err := svc.CreateExpense(employeeCtx(), domain.ExpenseCreateRequest{
			ShopID:      "shop-demo",
			AmountCents: amount,
			Description: "supplies",
		})
		if err != nil {
			t.Fatalf("expense failed: %v", err)
		}
	}

	totals, err := svc.GetDailyExpenses(ownerCtx(), "shop-demo", currentMonthStart().Format("2006-01"))
	if err != nil {
		t.Fatalf("daily expenses failed: %v", err)
	}
	if len(totals) != 1 {
		t.Fatalf("expected 1 grouped day, got %d", len(totals))
	}
	if totals[0].TotalCents != 350 || totals[0].Count != 2 {
		t.Fatalf("expected 350 over 2 expenses, got %d over %d", totals[0].TotalCents, totals[0].Count)
	}
}

func TestCreateStoreProvisionsEmployees(t *testing.T) {
	svc, repo := newTestService()

	shop, err := svc.CreateStore(ownerCtx(), domain.ShopCreateRequest{
		Name:    "Corner Mart",
		Address: "5 Side Street",
		Employees: []domain.ShopEmployeeInput{
			{Username: "anita", Name: "Anita", Email: "anita@cornermart.test"},
		},
	})
	if err != nil {
		t.Fatalf("create store failed: %v", err)
	}
	if shop.ProductCodePrefix != "CM" {
		t.Fatalf("expected derived prefix CM, got %s", shop.ProductCodePrefix)
	}
	if !strings.HasPrefix(shop.ShopCode, "CM-") {
		t.Fatalf("expected shop code with CM- prefix, got %s", shop.ShopCode)
	}

	details, err := svc.GetStoreDetails(ownerCtx(), shop.ID)
	if err != nil {
		t.Fatalf("store details failed: %v", err)
	}
	if len(details.Employees) != 1 || details.Employees[0].Username != "anita" {
		t.Fatalf("expected provisioned employee anita, got %+v", details.Employees)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	found := false
	for _, user := range users {
		if user.Username == "anita" {
			found = true
			if user.Role != domain.RoleEmployee || !user.Active {
				t.Fatalf("expected active employee account, got %+v", user)
			}
			if !strings.HasPrefix(user.Password, "$2") {
				t.Fatalf("expected bcrypt hash for provisioned account, got %q", user.Password)
			}
		}
	}
	if !found {
		t.Fatalf("expected a user account for anita")
	}
}

func TestCreateProductAssignsSequentialCodes(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.CreateProduct(ownerCtx(), domain.ProductCreateRequest{
		ShopID:     "shop-demo",
		Name:       "Butter 200g",
		PriceCents: 320,
		Shortcut:   5,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if first.Code != "DM0005" {
		t.Fatalf("expected code DM0005, got %s", first.Code)
	}

	second, err := svc.CreateProduct(ownerCtx(), domain.ProductCreateRequest{
		ShopID:     "shop-demo",
		Name:       "Sugar 1kg",
		PriceCents: 450,
		Shortcut:   6,
	})
	if err != nil {
		t.Fatalf("create second product failed: %v", err)
	}
	if second.Code != "DM0006" {
		t.Fatalf("expected code DM0006, got %s", second.Code)
	}
}

func TestCreateProductRejectsTakenShortcut(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateProduct(ownerCtx(), domain.ProductCreateRequest{
		ShopID:     "shop-demo",
		Name:       "Duplicate Shortcut",
		PriceCents: 100,
		Shortcut:   1,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for taken shortcut, got %v", err)
	}
}

func TestUpdateProductPatchesFields(t *testing.T) {
	svc, _ := newTestService()

	price := int64(300)
	shortcut := 9
	updated, err := svc.UpdateProduct(ownerCtx(), "prod-demo-1", domain.ProductUpdateRequest{
		PriceCents: &price,
		Shortcut:   &shortcut,
	})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}
	if updated.PriceCents != 300 || updated.Shortcut != 9 {
		t.Fatalf("expected 300/9 after patch, got %d/%d", updated.PriceCents, updated.Shortcut)
	}
	if updated.Name != "Milk 1L" {
		t.Fatalf("expected untouched name, got %s", updated.Name)
	}

	taken := 2
	_, err = svc.UpdateProduct(ownerCtx(), "prod-demo-1", domain.ProductUpdateRequest{Shortcut: &taken})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for shortcut collision, got %v", err)
	}
}

func TestGetProductsForBillingScopedToEmployeeShop(t *testing.T) {
	svc, _ := newTestService()

	products, err := svc.GetProductsForBilling(employeeCtx())
	if err != nil {
		t.Fatalf("products for billing failed: %v", err)
	}
	if len(products) != 4 {
		t.Fatalf("expected 4 seeded products, got %d", len(products))
	}

	if _, err := svc.GetProductsForBilling(ownerCtx()); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected permission error for owner, got %v", err)
	}
}

func TestGetInvoiceDataScopedByShop(t *testing.T) {
	svc, _ := newTestService()

	bill, err := svc.CreateBilling(employeeCtx(), domain.BillingCreateRequest{
		PaymentMethod: "CASH",
		Items: []domain.BillingItemInput{
			{ProductID: "prod-demo-1", Name: "Milk 1L", PriceCents: 250, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("billing failed: %v", err)
	}

	data, err := svc.GetInvoiceData(context.Background(), "shop-demo", bill.ID)
	if err != nil {
		t.Fatalf("invoice data failed: %v", err)
	}
	if data.Shop.Name != "Demo Mart" || data.EmployeeName != "Demo Clerk" {
		t.Fatalf("unexpected invoice data: shop %q, employee %q", data.Shop.Name, data.EmployeeName)
	}
	if len(data.Bill.Items) != 1 {
		t.Fatalf("expected 1 invoice item, got %d", len(data.Bill.Items))
	}

	if _, err := svc.GetInvoiceData(context.Background(), "shop-other", bill.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for mismatched shop, got %v", err)
	}
}
