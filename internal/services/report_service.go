package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/glowdesk/backend/internal/middleware"
)

// ReportService runs parameterized aggregate queries. Results are cached in
// Redis for a few minutes since dashboards poll them.
type ReportService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewReportService(db *sql.DB, redisClient *redis.Client) *ReportService {
	return &ReportService{
		db:    db,
		redis: redisClient,
	}
}

const reportCacheTTL = 5 * time.Minute

// SalesSummaryRow is one day of billing totals.
type SalesSummaryRow struct {
	Day          string `json:"day"`
	InvoiceCount int    `json:"invoice_count"`
	GrossSales   int64  `json:"gross_sales"`
	Discounts    int64  `json:"discounts"`
	NetSales     int64  `json:"net_sales"`
	Collected    int64  `json:"collected"`
}

// TopServiceRow aggregates bookings per service.
type TopServiceRow struct {
	ServiceName string `json:"service_name"`
	Bookings    int    `json:"bookings"`
	Revenue     int64  `json:"revenue"`
}

// EmployeePerformanceRow aggregates billed work per employee.
type EmployeePerformanceRow struct {
	EmployeeID int    `json:"employee_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	LineCount  int    `json:"line_count"`
	Revenue    int64  `json:"revenue"`
}

// StockUsageRow aggregates stock movements per product.
type StockUsageRow struct {
	ProductID int    `json:"product_id"`
	Name      string `json:"name"`
	Sold      int    `json:"sold"`
	Consumed  int    `json:"consumed"`
	StockQty  int    `json:"stock_qty"`
}

func (s *ReportService) dateRange(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := now

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, fmt.Errorf("invalid from date")
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, fmt.Errorf("invalid to date")
		}
		to = to.Add(24 * time.Hour)
	}
	return from, to, nil
}

// serveCached writes a cached report if present and returns true.
func (s *ReportService) serveCached(w http.ResponseWriter, r *http.Request, key string) bool {
	if s.redis == nil {
		return false
	}
	cached, err := s.redis.Get(r.Context(), key).Result()
	if err != nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(cached))
	return true
}

func (s *ReportService) cacheAndSend(w http.ResponseWriter, r *http.Request, key string, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		SendErrorResponse(w, "Failed to encode report", http.StatusInternalServerError, nil)
		return
	}
	if s.redis != nil {
		if err := s.redis.Set(r.Context(), key, body, reportCacheTTL).Err(); err != nil {
			log.Printf("[REPORT] Cache write failed for %s: %v", key, err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func reportCacheKey(name string, accountID, locationID int, from, to time.Time) string {
	return fmt.Sprintf("report:%s:%d:%d:%s:%s", name, accountID, locationID,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// SalesSummary returns per-day billing totals
// @Summary Sales summary report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {array} SalesSummaryRow
// @Router /reports/sales-summary [get]
func (s *ReportService) SalesSummary(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	from, to, err := s.dateRange(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	key := reportCacheKey("sales-summary", accountID, locationID, from, to)
	if s.serveCached(w, r, key) {
		return
	}

	rows, err := s.db.Query(`
		SELECT DATE(created_at) AS day,
		       COUNT(*) AS invoice_count,
		       COALESCE(SUM(sub_total), 0) AS gross_sales,
		       COALESCE(SUM(discount_amt), 0) AS discounts,
		       COALESCE(SUM(grand_total), 0) AS net_sales,
		       COALESCE(SUM(paid_amount), 0) AS collected
		FROM invoices
		WHERE account_id = ? AND location_id = ? AND status != 'VOID'
		  AND created_at >= ? AND created_at < ?
		GROUP BY DATE(created_at)
		ORDER BY day`,
		accountID, locationID, from, to)
	if err != nil {
		log.Printf("[REPORT] Sales summary failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to run report", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	out := []SalesSummaryRow{}
	for rows.Next() {
		var row SalesSummaryRow
		if err := rows.Scan(&row.Day, &row.InvoiceCount, &row.GrossSales,
			&row.Discounts, &row.NetSales, &row.Collected); err != nil {
			SendErrorResponse(w, "Failed to run report", http.StatusInternalServerError, nil)
			return
		}
		out = append(out, row)
	}

	s.cacheAndSend(w, r, key, out)
}

// TopServices ranks services by bookings
// @Summary Top services report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {array} TopServiceRow
// @Router /reports/top-services [get]
func (s *ReportService) TopServices(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	from, to, err := s.dateRange(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	key := reportCacheKey("top-services", accountID, locationID, from, to)
	if s.serveCached(w, r, key) {
		return
	}

	rows, err := s.db.Query(`
		SELECT ai.service_name,
		       COUNT(*) AS bookings,
		       COALESCE(SUM(ai.price), 0) AS revenue
		FROM appointment_items ai
		JOIN appointments a ON a.id = ai.appointment_id
		WHERE a.account_id = ? AND a.location_id = ? AND a.status = 'COMPLETED'
		  AND a.start_time >= ? AND a.start_time < ?
		GROUP BY ai.service_name
		ORDER BY bookings DESC
		LIMIT 20`,
		accountID, locationID, from, to)
	if err != nil {
		log.Printf("[REPORT] Top services failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to run report", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	out := []TopServiceRow{}
	for rows.Next() {
		var row TopServiceRow
		if err := rows.Scan(&row.ServiceName, &row.Bookings, &row.Revenue); err != nil {
			SendErrorResponse(w, "Failed to run report", http.StatusInternalServerError, nil)
			return
		}
		out = append(out, row)
	}

	s.cacheAndSend(w, r, key, out)
}

// EmployeePerformance ranks staff by billed revenue
// @Summary Employee performance report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {array} EmployeePerformanceRow
// @Router /reports/employee-performance [get]
func (s *ReportService) EmployeePerformance(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	from, to, err := s.dateRange(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	key := reportCacheKey("employee-performance", accountID, locationID, from, to)
	if s.serveCached(w, r, key) {
		return
	}

	rows, err := s.db.Query(`
		SELECT e.id, e.first_name, e.last_name,
		       COUNT(ii.id) AS line_count,
		       COALESCE(SUM(ii.line_total), 0) AS revenue
		FROM employees e
		LEFT JOIN invoice_items ii ON ii.employee_id = e.id
		LEFT JOIN invoices i ON i.id = ii.invoice_id
		  AND i.created_at >= ? AND i.created_at < ? AND i.status != 'VOID'
		WHERE e.account_id = ? AND e.location_id = ? AND e.active = true
		GROUP BY e.id, e.first_name, e.last_name
		ORDER BY revenue DESC`,
		from, to, accountID, locationID)
	if err != nil {
		log.Printf("[REPORT] Employee performance failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to run report", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	out := []EmployeePerformanceRow{}
	for rows.Next() {
		var row EmployeePerformanceRow
		if err := rows.Scan(&row.EmployeeID, &row.FirstName, &row.LastName,
			&row.LineCount, &row.Revenue); err != nil {
			SendErrorResponse(w, "Failed to run report", http.StatusInternalServerError, nil)
			return
		}
		out = append(out, row)
	}

	s.cacheAndSend(w, r, key, out)
}

// StockUsage aggregates stock movements per product
// @Summary Stock usage report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {array} StockUsageRow
// @Router /reports/stock-usage [get]
func (s *ReportService) StockUsage(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	from, to, err := s.dateRange(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	key := reportCacheKey("stock-usage", accountID, locationID, from, to)
	if s.serveCached(w, r, key) {
		return
	}

	rows, err := s.db.Query(`
		SELECT p.id, p.name,
		       COALESCE(SUM(CASE WHEN sm.reason = 'SALE' THEN -sm.delta ELSE 0 END), 0) AS sold,
		       COALESCE(SUM(CASE WHEN sm.reason = 'INTERNAL_USE' THEN -sm.delta ELSE 0 END), 0) AS consumed,
		       p.stock_qty
		FROM products p
		LEFT JOIN stock_movements sm ON sm.product_id = p.id
		  AND sm.created_at >= ? AND sm.created_at < ?
		WHERE p.account_id = ? AND p.location_id = ? AND p.active = true
		GROUP BY p.id, p.name, p.stock_qty
		ORDER BY sold DESC`,
		from, to, accountID, locationID)
	if err != nil {
		log.Printf("[REPORT] Stock usage failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to run report", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	out := []StockUsageRow{}
	for rows.Next() {
		var row StockUsageRow
		if err := rows.Scan(&row.ProductID, &row.Name, &row.Sold, &row.Consumed, &row.StockQty); err != nil {
			SendErrorResponse(w, "Failed to run report", http.StatusInternalServerError, nil)
			return
		}
		out = append(out, row)
	}

	s.cacheAndSend(w, r, key, out)
}
