package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/glowdesk/backend/internal/models"
)

func invoiceRouter(service *InvoiceService, accountID, locationID int) *chi.Mux {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withTenant(r, accountID, locationID))
		})
	})
	router.Post("/invoices", service.CreateInvoice)
	router.Get("/invoices/{id}", service.GetInvoice)
	router.Get("/invoices/{id}/receipt-qr", service.ReceiptQR)
	return router
}

func TestInvoiceService_CreateInvoice(t *testing.T) {
	viper.Set("billing.tax_bps", 0)

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	router := invoiceRouter(NewInvoiceService(db), 4, 9)

	t.Run("service sale paid in full", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(invoice_no\\), 0\\) \\+ 1 FROM invoices WHERE account_id = \\? AND location_id = \\? FOR UPDATE").
			WithArgs(4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(101))
		mock.ExpectExec("INSERT INTO invoices").
			WithArgs(101, 4, 9, 12, int64(500), int64(50), int64(0), int64(450), int64(450),
				models.InvoiceStatusPaid, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(61, 1))
		mock.ExpectExec("INSERT INTO invoice_items").
			WithArgs(61, models.InvoiceItemService, 3, "Haircut", 7, 1, int64(500), int64(50), int64(450)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO invoice_payments").
			WithArgs(61, "CASH", int64(450), "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE customers SET last_visit = \\?, updated_at = \\? WHERE id = \\? AND account_id = \\? AND location_id = \\?").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 12, 4, 9).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body := `{
			"customerId": 12,
			"items": [{"itemType":"SERVICE","itemId":3,"description":"Haircut","employeeId":7,"quantity":1,"unitPrice":500,"discount":50}],
			"payments": [{"mode":"CASH","amount":450}]
		}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/invoices", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusOK, w.Code)

		var invoice models.Invoice
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &invoice))
		assert.Equal(t, 101, invoice.InvoiceNo)
		assert.Equal(t, int64(450), invoice.GrandTotal)
		assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("product sale deducts stock in the same transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(invoice_no\\), 0\\) \\+ 1 FROM invoices").
			WithArgs(4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(102))
		mock.ExpectExec("INSERT INTO invoices").
			WillReturnResult(sqlmock.NewResult(62, 1))
		mock.ExpectExec("INSERT INTO invoice_items").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT stock_qty FROM products WHERE id = \\? AND account_id = \\? AND location_id = \\? FOR UPDATE").
			WithArgs(5, 4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"stock_qty"}).AddRow(10))
		mock.ExpectExec("UPDATE products SET stock_qty = \\?, updated_at = \\? WHERE id = \\?").
			WithArgs(8, sqlmock.AnyArg(), 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO stock_movements").
			WithArgs(5, -2, models.StockReasonSale, 8, "invoice 102", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE customers SET last_visit").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body := `{
			"customerId": 12,
			"items": [{"itemType":"PRODUCT","itemId":5,"description":"Argan Oil 100ml","quantity":2,"unitPrice":300}]
		}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/invoices", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("oversell rolls the whole invoice back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(invoice_no\\), 0\\) \\+ 1 FROM invoices").
			WithArgs(4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(103))
		mock.ExpectExec("INSERT INTO invoices").
			WillReturnResult(sqlmock.NewResult(63, 1))
		mock.ExpectExec("INSERT INTO invoice_items").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT stock_qty FROM products").
			WithArgs(5, 4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"stock_qty"}).AddRow(1))
		mock.ExpectRollback()

		body := `{
			"customerId": 12,
			"items": [{"itemType":"PRODUCT","itemId":5,"description":"Argan Oil 100ml","quantity":2,"unitPrice":300}]
		}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/invoices", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "insufficient stock")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overpayment rejected before any write", func(t *testing.T) {
		body := `{
			"customerId": 12,
			"items": [{"itemType":"SERVICE","itemId":3,"description":"Haircut","quantity":1,"unitPrice":500}],
			"payments": [{"mode":"CASH","amount":600}]
		}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/invoices", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "payments exceed invoice total")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("tax applied on the discounted amount", func(t *testing.T) {
		viper.Set("billing.tax_bps", 1800)
		defer viper.Set("billing.tax_bps", 0)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(invoice_no\\), 0\\) \\+ 1 FROM invoices").
			WithArgs(4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(104))
		mock.ExpectExec("INSERT INTO invoices").
			WithArgs(104, 4, 9, 12, int64(1000), int64(0), int64(180), int64(1180), int64(0),
				models.InvoiceStatusOpen, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(64, 1))
		mock.ExpectExec("INSERT INTO invoice_items").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE customers SET last_visit").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body := `{
			"customerId": 12,
			"items": [{"itemType":"SERVICE","itemId":3,"description":"Full body massage","quantity":1,"unitPrice":1000}]
		}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/invoices", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusOK, w.Code)

		var invoice models.Invoice
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &invoice))
		assert.Equal(t, int64(180), invoice.TaxAmt)
		assert.Equal(t, models.InvoiceStatusOpen, invoice.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInvoiceService_ReceiptQR(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	router := invoiceRouter(NewInvoiceService(db), 4, 9)

	t.Run("encodes the receipt lookup URL", func(t *testing.T) {
		mock.ExpectQuery("SELECT invoice_no, grand_total FROM invoices WHERE id = \\? AND account_id = \\? AND location_id = \\?").
			WithArgs(61, 4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"invoice_no", "grand_total"}).AddRow(101, 450))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/invoices/61/receipt-qr", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/r/4/9/101")
		assert.Contains(t, w.Body.String(), "data:image/png;base64,")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown invoice", func(t *testing.T) {
		mock.ExpectQuery("SELECT invoice_no, grand_total FROM invoices").
			WithArgs(99, 4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"invoice_no", "grand_total"}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/invoices/99/receipt-qr", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
