package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"shopledger/backend/internal/domain"
)

func TestCreateBillAccumulatesDailyRollup(t *testing.T) {
	databaseURL := os.Getenv("SHOPLEDGER_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SHOPLEDGER_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	stamp := time.Now().UnixNano()
	shopID := fmt.Sprintf("shop-rollup-it-%d", stamp)
	empID := fmt.Sprintf("emp-rollup-it-%d", stamp)
	empUsername := fmt.Sprintf("clerk-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bill_items WHERE bill_id IN (SELECT id FROM bills WHERE shop_id = $1)`, shopID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bills WHERE shop_id = $1`, shopID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM daily_sales WHERE shop_id = $1`, shopID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM employees WHERE shop_id = $1`, shopID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM shops WHERE id = $1`, shopID)
	})

	if _, err := s.CreateShop(ctx, domain.Shop{
		ID:                shopID,
		OwnerUsername:     "owner-it",
		Name:              "Rollup IT Mart",
		ShopCode:          fmt.Sprintf("RI-%d", stamp),
		ProductCodePrefix: "RI",
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create shop: %v", err)
	}
	if _, err := s.CreateEmployee(ctx, domain.Employee{
		ID:       empID,
		ShopID:   shopID,
		Username: empUsername,
		Name:     "Rollup Clerk",
	}); err != nil {
		t.Fatalf("create employee: %v", err)
	}

	// One discounted multi-quantity bill and one plain bill: the roll-up must
	// sum pre-discount totals and count lines, not quantities.
	day := time.Now().UTC().Truncate(24 * time.Hour)
	bills := []domain.Bill{
		{
			ShopID:          shopID,
			EmployeeID:      empID,
			PaymentMethod:   domain.PaymentCash,
			TotalCents:      500,
			DiscountCents:   100,
			GrandTotalCents: 400,
			CreatedAt:       time.Now().UTC(),
			Items: []domain.BillItem{
				{Name: "Line A", PriceCents: 250, Quantity: 2},
			},
		},
		{
			ShopID:          shopID,
			EmployeeID:      empID,
			PaymentMethod:   domain.PaymentCash,
			TotalCents:      300,
			GrandTotalCents: 300,
			CreatedAt:       time.Now().UTC(),
			Items: []domain.BillItem{
				{Name: "Line B", PriceCents: 300, Quantity: 1},
			},
		},
	}
	for i, bill := range bills {
		if _, err := s.CreateBill(ctx, bill, day); err != nil {
			t.Fatalf("create bill #%d: %v", i, err)
		}
	}

	var salesCents int64
	var billCount, itemCount int
	err = s.db.QueryRowContext(ctx, `
		SELECT total_sales_cents, total_bills, total_items
		FROM daily_sales
		WHERE shop_id = $1 AND sale_date = $2::date
	`, shopID, day.Format("2006-01-02")).Scan(&salesCents, &billCount, &itemCount)
	if err != nil {
		t.Fatalf("query daily sales: %v", err)
	}
	if salesCents != 800 || billCount != 2 || itemCount != 2 {
		t.Fatalf("expected roll-up 800/2/2, got %d/%d/%d", salesCents, billCount, itemCount)
	}
}
