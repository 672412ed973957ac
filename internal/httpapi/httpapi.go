package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/invoice"
	"shopledger/backend/internal/service"
	"shopledger/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	renderer      invoice.Renderer
	invoiceDir    string
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, renderer invoice.Renderer, invoiceDir string, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	if invoiceDir == "" {
		invoiceDir = os.TempDir()
	}
	return &API{
		service:       svc,
		auth:          auth,
		renderer:      renderer,
		invoiceDir:    invoiceDir,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	// The invoice view and download are reachable without a session: the
	// headless browser that prints the PDF carries no credentials, and the
	// composite id in the URL scopes what either can reach.
	mux.HandleFunc("/invoice/", a.handleInvoiceView)
	mux.HandleFunc("/api/invoiceDownload", a.handleInvoiceDownload)
	mux.HandleFunc("/api/v1/bills/", a.handleBillByID)

	mux.HandleFunc("/api/v1/billings", a.requireAuth(a.handleBillings, "owner", "employee"))
	mux.HandleFunc("/api/v1/billings/items", a.requireAuth(a.handleBillItems, "owner", "employee"))
	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses, "owner", "employee"))
	mux.HandleFunc("/api/v1/expenses/", a.requireAuth(a.handleExpenseActions, "owner", "employee"))
	mux.HandleFunc("/api/v1/daily-sales", a.requireAuth(a.handleDailySales, "owner", "employee"))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "owner", "employee"))
	mux.HandleFunc("/api/v1/products/billing", a.requireAuth(a.handleProductsForBilling, "employee"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "owner"))

	mux.HandleFunc("/api/v1/shops", a.requireAuth(a.handleShops, "owner"))
	mux.HandleFunc("/api/v1/shops/", a.requireAuth(a.handleShopDetails, "owner"))

	mux.HandleFunc("/api/v1/analytics/overview", a.requireAuth(a.handleAnalyticsOverview, "owner"))
	mux.HandleFunc("/api/v1/analytics/populate", a.requireAuth(a.handleAnalyticsPopulate, "owner"))
	mux.HandleFunc("/api/v1/analytics/daily-expenses", a.requireAuth(a.handleDailyExpenses, "owner"))
	mux.HandleFunc("/api/v1/analytics/daily-ledger", a.requireAuth(a.handleDailyLedger, "owner"))

	mux.HandleFunc("/api/v1/invoices", a.requireAuth(a.handleInvoices, "owner", "employee"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation.
// Login is excluded because it is called without a prior CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods
// (POST/PUT/PATCH/DELETE). Returns false and writes an error response if
// validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleBillings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
		if shopID == "" {
			writeError(w, http.StatusBadRequest, errors.New("shop_id is required"))
			return
		}
		if month := strings.TrimSpace(r.URL.Query().Get("month")); month != "" {
			bills, err := a.service.GetBillsForMonth(r.Context(), shopID, month)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
			return
		}
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date == "" {
			writeError(w, http.StatusBadRequest, errors.New("date or month is required"))
			return
		}
		bills, err := a.service.GetBillsForDate(r.Context(), shopID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
	case http.MethodPost:
		var req domain.BillingCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		bill, err := a.service.CreateBilling(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"bill": bill})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBillItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if shopID == "" || date == "" {
		writeError(w, http.StatusBadRequest, errors.New("shop_id and date are required"))
		return
	}
	items, err := a.service.GetBillItemsForDate(r.Context(), shopID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleBillByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	billID := strings.TrimPrefix(r.URL.Path, "/api/v1/bills/")
	if billID == "" || strings.Contains(billID, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	bill, err := a.service.GetBillByID(r.Context(), billID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bill": bill})
}

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
		if shopID == "" {
			writeError(w, http.StatusBadRequest, errors.New("shop_id is required"))
			return
		}
		var expenses []domain.Expense
		var err error
		switch {
		case strings.TrimSpace(r.URL.Query().Get("month")) != "":
			expenses, err = a.service.GetExpensesForMonth(r.Context(), shopID, strings.TrimSpace(r.URL.Query().Get("month")))
		case strings.TrimSpace(r.URL.Query().Get("date")) != "":
			expenses, err = a.service.GetExpensesForDay(r.Context(), shopID, strings.TrimSpace(r.URL.Query().Get("date")))
		default:
			expenses, err = a.service.GetExpensesForDate(r.Context(), shopID)
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
	case http.MethodPost:
		var req domain.ExpenseCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		expense, err := a.service.CreateExpense(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleExpenseActions(w http.ResponseWriter, r *http.Request) {
	expenseID := strings.TrimPrefix(r.URL.Path, "/api/v1/expenses/")
	if expenseID == "" || strings.Contains(expenseID, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	if err := a.service.DeleteExpense(r.Context(), expenseID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": expenseID})
}

func (a *API) handleDailySales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		writeError(w, http.StatusBadRequest, errors.New("shop_id is required"))
		return
	}
	if month := strings.TrimSpace(r.URL.Query().Get("month")); month != "" {
		rows, err := a.service.GetMonthlySales(r.Context(), shopID, month)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"daily_sales": rows})
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, errors.New("date or month is required"))
		return
	}
	bills, err := a.service.GetDailySales(r.Context(), shopID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
		if shopID == "" {
			writeError(w, http.StatusBadRequest, errors.New("shop_id is required"))
			return
		}
		products, err := a.service.ListProducts(r.Context(), shopID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductsForBilling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.GetProductsForBilling(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	if productID == "" || strings.Contains(productID, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), productID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), productID); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": productID})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleShops(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		shops, err := a.service.GetStores(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shops": shops})
	case http.MethodPost:
		var req domain.ShopCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		shop, err := a.service.CreateStore(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"shop": shop})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleShopDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/shops/")
	if shopID, ok := strings.CutSuffix(rest, "/employees"); ok {
		if shopID == "" || strings.Contains(shopID, "/") {
			writeError(w, http.StatusNotFound, errors.New("not found"))
			return
		}
		employees, err := a.service.GetEmployees(r.Context(), shopID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	details, err := a.service.GetStoreDetails(r.Context(), rest)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (a *API) handleAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		writeError(w, http.StatusBadRequest, errors.New("shop_id is required"))
		return
	}

	// Default window: the last six months including the current one. Walk
	// back from the first of the month so month-end dates cannot skew it.
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	fromMonth := strings.TrimSpace(r.URL.Query().Get("from"))
	toMonth := strings.TrimSpace(r.URL.Query().Get("to"))
	if toMonth == "" {
		toMonth = monthStart.Format("2006-01")
	}
	if fromMonth == "" {
		fromMonth = monthStart.AddDate(0, -5, 0).Format("2006-01")
	}

	analytics, err := a.service.GetOverallAnalytics(r.Context(), shopID, fromMonth, toMonth)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (a *API) handleAnalyticsPopulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req struct {
		ShopID string `json:"shop_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.service.PopulateMonthlySummary(r.Context(), strings.TrimSpace(req.ShopID)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"populated": true})
}

func (a *API) handleDailyExpenses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if shopID == "" || month == "" {
		writeError(w, http.StatusBadRequest, errors.New("shop_id and month are required"))
		return
	}
	totals, err := a.service.GetDailyExpenses(r.Context(), shopID, month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily_expenses": totals})
}

func (a *API) handleDailyLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if shopID == "" || month == "" {
		writeError(w, http.StatusBadRequest, errors.New("shop_id and month are required"))
		return
	}
	entries, err := a.service.GetDailySalesAndExpensesForMonth(r.Context(), shopID, month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": entries})
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.InvoiceCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shopID, billID, ok := splitComposite(strings.TrimSpace(req.ID))
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("invalid invoice id"))
		return
	}

	downloadURL, err := a.renderer.Render(r.Context(), shopID, billID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.InvoiceCreateResponse{DownloadURL: downloadURL})
}

func (a *API) handleInvoiceView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	slug := strings.TrimPrefix(r.URL.Path, "/invoice/")
	shopID, billID, ok := splitComposite(slug)
	if !ok {
		http.Error(w, "invoice not found", http.StatusNotFound)
		return
	}

	data, err := a.service.GetInvoiceData(r.Context(), shopID, billID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "invoice not found", http.StatusNotFound)
			return
		}
		log.Printf("[httpapi] invoice view failed for bill %s: %v", billID, err)
		http.Error(w, "invoice rendering error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := invoiceHTMLTmpl.Execute(w, data); err != nil {
		log.Printf("[httpapi] invoice template failed for bill %s: %v", billID, err)
	}
}

// handleInvoiceDownload streams a previously rendered PDF. The file parameter
// is confined to the renderer's output directory: only a bare pdf file name
// is accepted, never a path.
func (a *API) handleInvoiceDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	fileName := strings.TrimSpace(r.URL.Query().Get("file"))
	if fileName == "" || fileName != filepath.Base(fileName) || !strings.HasSuffix(fileName, ".pdf") {
		writeError(w, http.StatusNotFound, errors.New("file not found"))
		return
	}

	f, err := os.Open(filepath.Join(a.invoiceDir, fileName))
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("file not found"))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("[httpapi] invoice download of %s aborted: %v", fileName, err)
	}
}

// splitComposite splits the "<shopID>-<billID>" invoice slug. Both sides are
// prefixed ids, so the bill prefix marks the boundary.
func splitComposite(slug string) (string, string, bool) {
	idx := strings.Index(slug, "-bill-")
	if idx <= 0 {
		return "", "", false
	}
	return slug[:idx], slug[idx+1:], true
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func formatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// invoiceHTMLTmpl renders the printable invoice the PDF pipeline captures.
// The .invoice-items table is the readiness marker the renderer waits for.
// All user-controlled fields are auto-escaped by html/template to prevent XSS.
var invoiceHTMLTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": formatMoney,
	"mulCents": func(price int64, qty int) int64 {
		return price * int64(qty)
	},
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Bill.ID}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
    .totals td { border: none; text-align: right; }
  </style>
</head>
<body>
  <h2>{{.Shop.Name}}</h2>
  <p>{{.Shop.Address}}{{if .Shop.Phone}} | {{.Shop.Phone}}{{end}}</p>
  <p>Invoice {{.Bill.ID}} | {{.Bill.CreatedAt.Format "2006-01-02 15:04"}} | {{.Bill.PaymentMethod}}</p>
  {{if .EmployeeName}}<p>Served by {{.EmployeeName}}</p>{{end}}
  {{if .Bill.CustomerName}}<p>Customer: {{.Bill.CustomerName}}{{if .Bill.CustomerPhone}} ({{.Bill.CustomerPhone}}){{end}}</p>{{end}}

  <table class="invoice-items">
    <thead><tr><th>Item</th><th>Price</th><th>Qty</th><th>Amount</th></tr></thead>
    <tbody>{{range .Bill.Items}}<tr><td>{{.Name}}</td><td style="text-align:right;">{{money .PriceCents}}</td><td style="text-align:right;">{{.Quantity}}</td><td style="text-align:right;">{{money (mulCents .PriceCents .Quantity)}}</td></tr>{{end}}</tbody>
  </table>

  <table class="totals">
    <tr><td>Total</td><td>{{money .Bill.TotalCents}}</td></tr>
    <tr><td>Discount</td><td>{{money .Bill.DiscountCents}}</td></tr>
    <tr><td><strong>Grand Total</strong></td><td><strong>{{money .Bill.GrandTotalCents}}</strong></td></tr>
  </table>
</body>
</html>
`))

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, invoice.ErrRenderFailed):
		status = http.StatusBadGateway
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
