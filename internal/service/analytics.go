package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

const monthlyStaleness = 24 * time.Hour

type monthKey struct {
	year  int
	month int
}

func (k monthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.year, k.month)
}

// effectiveBillCents is the figure a bill contributes to aggregates. Bills
// written before discounts existed have a zero grand total; fall back to the
// pre-discount total for those.
func effectiveBillCents(bill domain.Bill) int64 {
	if bill.GrandTotalCents > 0 {
		return bill.GrandTotalCents
	}
	return bill.TotalCents
}

// PopulateMonthlySummary recomputes every month of the shop's history from
// the bill and expense ledgers. Safe to call repeatedly: rows are keyed on
// (shop, year, month), so a second run converges on the same state.
func (s *Service) PopulateMonthlySummary(ctx context.Context, shopID string) error {
	if _, err := s.shopOwnedBy(ctx, shopID); err != nil {
		return err
	}
	return s.recomputeMonthly(ctx, shopID)
}

func (s *Service) recomputeMonthly(ctx context.Context, shopID string) error {
	bills, err := s.repo.ListBills(ctx, shopID, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	expenses, err := s.repo.ListExpenses(ctx, shopID, time.Time{}, time.Time{})
	if err != nil {
		return err
	}

	type salesTotals struct {
		cents int64
		bills int
	}
	salesByMonth := make(map[monthKey]*salesTotals)
	for _, bill := range bills {
		local := bill.CreatedAt.In(s.loc)
		key := monthKey{local.Year(), int(local.Month())}
		totals := salesByMonth[key]
		if totals == nil {
			totals = &salesTotals{}
			salesByMonth[key] = totals
		}
		totals.cents += effectiveBillCents(bill)
		totals.bills++
	}

	expensesByMonth := make(map[monthKey]int64)
	for _, expense := range expenses {
		local := expense.CreatedAt.In(s.loc)
		expensesByMonth[monthKey{local.Year(), int(local.Month())}] += expense.AmountCents
	}

	now := time.Now().UTC()
	for key, totals := range salesByMonth {
		err := s.repo.UpsertMonthlySales(ctx, domain.MonthlySales{
			ShopID:          shopID,
			Year:            key.year,
			Month:           key.month,
			TotalSalesCents: totals.cents,
			TotalBills:      totals.bills,
			ComputedAt:      now,
		})
		if err != nil {
			return err
		}
	}
	for key, cents := range expensesByMonth {
		err := s.repo.UpsertMonthlyExpenses(ctx, domain.MonthlyExpenses{
			ShopID:             shopID,
			Year:               key.year,
			Month:              key.month,
			TotalExpensesCents: cents,
			ComputedAt:         now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ensureFreshMonthly recomputes the monthly roll-ups when the latest one is
// missing or older than 24 hours. The predicate is deliberately separate from
// the read path so reads stay side-effect free once the cache is warm.
func (s *Service) ensureFreshMonthly(ctx context.Context, shopID string) error {
	latest, err := s.repo.GetLatestMonthlySales(ctx, shopID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	} else if time.Since(latest.ComputedAt) < monthlyStaleness {
		return nil
	}
	return s.recomputeMonthly(ctx, shopID)
}

// GetOverallAnalytics builds the dashboard payload for a closed month range.
// Months without activity appear with zeros so charts have a complete axis.
func (s *Service) GetOverallAnalytics(ctx context.Context, shopID string, fromMonth string, toMonth string) (domain.OverallAnalytics, error) {
	if _, err := s.shopOwnedBy(ctx, shopID); err != nil {
		return domain.OverallAnalytics{}, err
	}

	fromStart, _, err := s.monthWindow(fromMonth)
	if err != nil {
		return domain.OverallAnalytics{}, err
	}
	toStart, toEnd, err := s.monthWindow(toMonth)
	if err != nil {
		return domain.OverallAnalytics{}, err
	}
	if fromStart.After(toStart) {
		return domain.OverallAnalytics{}, fmt.Errorf("month range %s..%s is inverted: %w", fromMonth, toMonth, store.ErrValidation)
	}

	cacheKey := "analytics:" + shopID + "|" + fromMonth + "|" + toMonth
	cached, hit, err := s.cache.Get(ctx, cacheKey)
	if err != nil {
		log.Printf("[service] WARN: analytics cache read failed: %v", err)
	}
	if hit {
		return *cached, nil
	}

	if err := s.ensureFreshMonthly(ctx, shopID); err != nil {
		return domain.OverallAnalytics{}, err
	}

	salesRows, err := s.repo.ListMonthlySales(ctx, shopID)
	if err != nil {
		return domain.OverallAnalytics{}, err
	}
	expenseRows, err := s.repo.ListMonthlyExpenses(ctx, shopID)
	if err != nil {
		return domain.OverallAnalytics{}, err
	}
	daily, err := s.repo.ListDailySales(ctx, shopID, fromStart, toEnd)
	if err != nil {
		return domain.OverallAnalytics{}, err
	}

	salesByMonth := make(map[monthKey]domain.MonthlySales, len(salesRows))
	for _, row := range salesRows {
		salesByMonth[monthKey{row.Year, row.Month}] = row
	}
	expensesByMonth := make(map[monthKey]int64, len(expenseRows))
	for _, row := range expenseRows {
		expensesByMonth[monthKey{row.Year, row.Month}] = row.TotalExpensesCents
	}

	activeDaysByMonth := make(map[monthKey]int)
	result := domain.OverallAnalytics{Months: []domain.MonthlyAnalytics{}}
	summary := domain.AnalyticsSummary{}
	totalActiveDays := 0
	for _, row := range daily {
		if row.TotalSalesCents <= 0 {
			continue
		}
		key := monthKey{row.Date.Year(), int(row.Date.Month())}
		activeDaysByMonth[key]++
		totalActiveDays++

		date := row.Date.Format("2006-01-02")
		if summary.HighestDay == "" || row.TotalSalesCents > summary.HighestDayCents {
			summary.HighestDay = date
			summary.HighestDayCents = row.TotalSalesCents
		}
		if summary.LowestDay == "" || row.TotalSalesCents < summary.LowestDayCents {
			summary.LowestDay = date
			summary.LowestDayCents = row.TotalSalesCents
		}
	}

	for cursor := fromStart; !cursor.After(toStart); cursor = cursor.AddDate(0, 1, 0) {
		key := monthKey{cursor.Year(), int(cursor.Month())}
		sales := salesByMonth[key].TotalSalesCents
		expenses := expensesByMonth[key]
		month := domain.MonthlyAnalytics{
			Month:         key.String(),
			SalesCents:    sales,
			ExpensesCents: expenses,
			ProfitCents:   sales - expenses,
		}
		if days := activeDaysByMonth[key]; days > 0 {
			month.AvgDailySalesCents = sales / int64(days)
		}
		result.Months = append(result.Months, month)

		summary.TotalSalesCents += sales
		summary.TotalExpensesCents += expenses
	}
	summary.NetProfitCents = summary.TotalSalesCents - summary.TotalExpensesCents
	if totalActiveDays > 0 {
		summary.AvgDailySalesCents = summary.TotalSalesCents / int64(totalActiveDays)
	}
	result.Summary = summary

	if err := s.cache.Set(ctx, cacheKey, &result, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: analytics cache write failed: %v", err)
	}
	return result, nil
}

// GetDailyExpenses groups a month's expense ledger by day.
func (s *Service) GetDailyExpenses(ctx context.Context, shopID string, month string) ([]domain.DailyExpenseTotal, error) {
	if _, err := s.shopOwnedBy(ctx, shopID); err != nil {
		return nil, err
	}
	from, to, err := s.monthWindow(month)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, shopID, from, to)
	if err != nil {
		return nil, err
	}

	totalsByDate := make(map[string]*domain.DailyExpenseTotal)
	for _, expense := range expenses {
		date := expense.CreatedAt.In(s.loc).Format("2006-01-02")
		total := totalsByDate[date]
		if total == nil {
			total = &domain.DailyExpenseTotal{Date: date}
			totalsByDate[date] = total
		}
		total.TotalCents += expense.AmountCents
		total.Count++
	}

	result := make([]domain.DailyExpenseTotal, 0, len(totalsByDate))
	for _, total := range totalsByDate {
		result = append(result, *total)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// GetDailySalesAndExpensesForMonth zero-fills one entry per calendar day,
// summed straight from the ledgers rather than the roll-up rows.
func (s *Service) GetDailySalesAndExpensesForMonth(ctx context.Context, shopID string, month string) ([]domain.DayLedgerEntry, error) {
	if _, err := s.shopOwnedBy(ctx, shopID); err != nil {
		return nil, err
	}
	from, to, err := s.monthWindow(month)
	if err != nil {
		return nil, err
	}
	bills, err := s.repo.ListBills(ctx, shopID, from, to)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, shopID, from, to)
	if err != nil {
		return nil, err
	}

	salesByDate := make(map[string]int64)
	for _, bill := range bills {
		salesByDate[bill.CreatedAt.In(s.loc).Format("2006-01-02")] += effectiveBillCents(bill)
	}
	expensesByDate := make(map[string]int64)
	for _, expense := range expenses {
		expensesByDate[expense.CreatedAt.In(s.loc).Format("2006-01-02")] += expense.AmountCents
	}

	result := make([]domain.DayLedgerEntry, 0, 31)
	for cursor := from; cursor.Before(to); cursor = cursor.AddDate(0, 0, 1) {
		date := cursor.Format("2006-01-02")
		result = append(result, domain.DayLedgerEntry{
			Date:          date,
			SalesCents:    salesByDate[date],
			ExpensesCents: expensesByDate[date],
		})
	}
	return result, nil
}

// RecomputePreviousMonth refreshes last month's roll-ups for every shop. It
// runs from the scheduler, so per-shop failures are logged and the loop
// continues.
func (s *Service) RecomputePreviousMonth(ctx context.Context, now time.Time) error {
	local := now.In(s.loc)
	monthStart := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	prevStart := monthStart.AddDate(0, -1, 0)

	shops, err := s.repo.ListShops(ctx)
	if err != nil {
		return err
	}

	var failed int
	for _, shop := range shops {
		if err := s.recomputeMonthFor(ctx, shop.ID, prevStart, monthStart); err != nil {
			failed++
			log.Printf("[service] WARN: monthly roll-up for shop %s failed: %v", shop.ID, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("monthly roll-up failed for %d of %d shops", failed, len(shops))
	}
	return nil
}

// recomputeMonthFor rebuilds one month's roll-ups from the daily sales rows
// and the expense ledger.
func (s *Service) recomputeMonthFor(ctx context.Context, shopID string, from time.Time, to time.Time) error {
	daily, err := s.repo.ListDailySales(ctx, shopID, from, to)
	if err != nil {
		return err
	}
	var salesCents int64
	var billCount int
	for _, row := range daily {
		salesCents += row.TotalSalesCents
		billCount += row.TotalBills
	}

	expenses, err := s.repo.ListExpenses(ctx, shopID, from, to)
	if err != nil {
		return err
	}
	var expenseCents int64
	for _, expense := range expenses {
		expenseCents += expense.AmountCents
	}

	now := time.Now().UTC()
	err = s.repo.UpsertMonthlySales(ctx, domain.MonthlySales{
		ShopID:          shopID,
		Year:            from.Year(),
		Month:           int(from.Month()),
		TotalSalesCents: salesCents,
		TotalBills:      billCount,
		ComputedAt:      now,
	})
	if err != nil {
		return err
	}
	return s.repo.UpsertMonthlyExpenses(ctx, domain.MonthlyExpenses{
		ShopID:             shopID,
		Year:               from.Year(),
		Month:              int(from.Month()),
		TotalExpensesCents: expenseCents,
		ComputedAt:         now,
	})
}
