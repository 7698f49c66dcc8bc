package services

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"

	"github.com/glowdesk/backend/internal/middleware"
	"github.com/glowdesk/backend/internal/models"
)

// ErrInsufficientStock rejects a product sale that would drive stock negative.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrOverpayment rejects payments exceeding the invoice grand total.
var ErrOverpayment = errors.New("payments exceed invoice total")

// InvoiceService writes billing documents: invoice header, line items,
// payment rows and product stock movements commit in one transaction. Totals
// are always recomputed server-side.
type InvoiceService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewInvoiceService(db *sql.DB) *InvoiceService {
	viper.SetDefault("billing.tax_bps", 0)
	return &InvoiceService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

type invoiceItemRequest struct {
	ItemType    string `json:"itemType" validate:"required,oneof=SERVICE PRODUCT PACKAGE"`
	ItemID      int    `json:"itemId" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,max=255"`
	EmployeeID  int    `json:"employeeId" validate:"gte=0"`
	Quantity    int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice   int64  `json:"unitPrice" validate:"gte=0"`
	Discount    int64  `json:"discount" validate:"gte=0"`
}

type invoicePaymentRequest struct {
	Mode      string `json:"mode" validate:"required,oneof=CASH CARD UPI WALLET VOUCHER"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Reference string `json:"reference" validate:"max=255"`
}

type createInvoiceRequest struct {
	CustomerID int                     `json:"customerId" validate:"required,gt=0"`
	Items      []invoiceItemRequest    `json:"items" validate:"required,min=1,dive"`
	Payments   []invoicePaymentRequest `json:"payments" validate:"dive"`
}

// CreateInvoice writes a new invoice
// @Summary Create invoice
// @Description Create an invoice with line items and payments; totals are computed server-side
// @Tags invoices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createInvoiceRequest true "Invoice request"
// @Success 200 {object} models.Invoice
// @Failure 400 {object} ErrorResponse
// @Router /invoices [post]
func (s *InvoiceService) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createInvoiceRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	invoice, err := s.createInvoice(accountID, locationID, &req)
	if err != nil {
		log.Printf("[INVOICE] Creation failed for tenant %d/%d: %v", accountID, locationID, err)
		switch {
		case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrOverpayment):
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		default:
			SendErrorResponse(w, "Failed to create invoice", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[INVOICE] Invoice %d created for tenant %d/%d, total %d, status %s",
		invoice.InvoiceNo, accountID, locationID, invoice.GrandTotal, invoice.Status)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoice)
}

func (s *InvoiceService) createInvoice(accountID, locationID int, req *createInvoiceRequest) (*models.Invoice, error) {
	var subTotal, discountAmt int64
	items := make([]models.InvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		lineGross := int64(item.Quantity) * item.UnitPrice
		lineTotal := lineGross - item.Discount
		if lineTotal < 0 {
			lineTotal = 0
		}
		subTotal += lineGross
		discountAmt += item.Discount
		items = append(items, models.InvoiceItem{
			ItemType:    item.ItemType,
			ItemID:      item.ItemID,
			Description: item.Description,
			EmployeeID:  item.EmployeeID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			LineTotal:   lineTotal,
		})
	}

	taxBps := int64(viper.GetInt("billing.tax_bps"))
	taxable := subTotal - discountAmt
	if taxable < 0 {
		taxable = 0
	}
	taxAmt := taxable * taxBps / 10000
	grandTotal := taxable + taxAmt

	var paidAmount int64
	for _, p := range req.Payments {
		paidAmount += p.Amount
	}
	if paidAmount > grandTotal {
		return nil, ErrOverpayment
	}

	status := models.InvoiceStatusOpen
	switch {
	case paidAmount == grandTotal:
		status = models.InvoiceStatusPaid
	case paidAmount > 0:
		status = models.InvoiceStatusPartPaid
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var nextNo int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(invoice_no), 0) + 1 FROM invoices
		WHERE account_id = ? AND location_id = ? FOR UPDATE`,
		accountID, locationID).Scan(&nextNo)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	invoice := &models.Invoice{
		InvoiceNo:   nextNo,
		AccountID:   accountID,
		LocationID:  locationID,
		CustomerID:  req.CustomerID,
		SubTotal:    subTotal,
		DiscountAmt: discountAmt,
		TaxAmt:      taxAmt,
		GrandTotal:  grandTotal,
		PaidAmount:  paidAmount,
		Status:      status,
		CreatedAt:   now,
	}

	res, err := tx.Exec(`
		INSERT INTO invoices (invoice_no, account_id, location_id, customer_id, sub_total, discount_amt, tax_amt, grand_total, paid_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nextNo, accountID, locationID, req.CustomerID, subTotal, discountAmt, taxAmt,
		grandTotal, paidAmount, status, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	invoice.ID = int(id)

	for i := range items {
		items[i].InvoiceID = invoice.ID
		_, err = tx.Exec(`
			INSERT INTO invoice_items (invoice_id, item_type, item_id, description, employee_id, quantity, unit_price, discount, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			invoice.ID, items[i].ItemType, items[i].ItemID, items[i].Description,
			items[i].EmployeeID, items[i].Quantity, items[i].UnitPrice, items[i].Discount, items[i].LineTotal)
		if err != nil {
			return nil, err
		}

		if items[i].ItemType == models.InvoiceItemProduct {
			if err := s.deductStock(tx, accountID, locationID, items[i].ItemID, items[i].Quantity, invoice.InvoiceNo); err != nil {
				return nil, err
			}
		}
	}
	invoice.Items = items

	for _, p := range req.Payments {
		_, err = tx.Exec(`
			INSERT INTO invoice_payments (invoice_id, mode, amount, reference, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			invoice.ID, p.Mode, p.Amount, p.Reference, now)
		if err != nil {
			return nil, err
		}
		invoice.Payments = append(invoice.Payments, models.InvoicePayment{
			InvoiceID: invoice.ID,
			Mode:      p.Mode,
			Amount:    p.Amount,
			Reference: p.Reference,
			CreatedAt: now,
		})
	}

	_, err = tx.Exec(`
		UPDATE customers SET last_visit = ?, updated_at = ?
		WHERE id = ? AND account_id = ? AND location_id = ?`,
		now, now, req.CustomerID, accountID, locationID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return invoice, nil
}

// deductStock locks the product row, rejects an oversell and records the
// movement with the post-deduction quantity.
func (s *InvoiceService) deductStock(tx *sql.Tx, accountID, locationID, productID, quantity, invoiceNo int) error {
	var stockQty int
	err := tx.QueryRow(`
		SELECT stock_qty FROM products
		WHERE id = ? AND account_id = ? AND location_id = ?
		FOR UPDATE`,
		productID, accountID, locationID).Scan(&stockQty)
	if err != nil {
		return err
	}

	newQty := stockQty - quantity
	if newQty < 0 {
		return fmt.Errorf("%w: product %d has %d in stock, need %d", ErrInsufficientStock, productID, stockQty, quantity)
	}

	_, err = tx.Exec(`UPDATE products SET stock_qty = ?, updated_at = ? WHERE id = ?`,
		newQty, time.Now(), productID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO stock_movements (product_id, delta, reason, stock_qty, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		productID, -quantity, models.StockReasonSale, newQty,
		fmt.Sprintf("invoice %d", invoiceNo), time.Now())
	return err
}

// GetInvoice returns one invoice with items and payments
// @Summary Get invoice
// @Tags invoices
// @Produce json
// @Security BearerAuth
// @Param id path int true "Invoice ID"
// @Success 200 {object} models.Invoice
// @Failure 404 {object} ErrorResponse
// @Router /invoices/{id} [get]
func (s *InvoiceService) GetInvoice(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid invoice ID", http.StatusBadRequest, nil)
		return
	}

	invoice, err := s.fetchInvoice(accountID, locationID, id)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Invoice not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch invoice", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoice)
}

func (s *InvoiceService) fetchInvoice(accountID, locationID, id int) (*models.Invoice, error) {
	invoice := models.Invoice{ID: id, AccountID: accountID, LocationID: locationID}
	err := s.db.QueryRow(`
		SELECT invoice_no, customer_id, sub_total, discount_amt, tax_amt, grand_total, paid_amount, status, created_at, updated_at
		FROM invoices
		WHERE id = ? AND account_id = ? AND location_id = ?`,
		id, accountID, locationID).
		Scan(&invoice.InvoiceNo, &invoice.CustomerID, &invoice.SubTotal, &invoice.DiscountAmt,
			&invoice.TaxAmt, &invoice.GrandTotal, &invoice.PaidAmount, &invoice.Status,
			&invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT id, item_type, item_id, description, employee_id, quantity, unit_price, discount, line_total
		FROM invoice_items WHERE invoice_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		item := models.InvoiceItem{InvoiceID: id}
		if err := rows.Scan(&item.ID, &item.ItemType, &item.ItemID, &item.Description,
			&item.EmployeeID, &item.Quantity, &item.UnitPrice, &item.Discount, &item.LineTotal); err != nil {
			return nil, err
		}
		invoice.Items = append(invoice.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	payRows, err := s.db.Query(`
		SELECT id, mode, amount, reference, created_at
		FROM invoice_payments WHERE invoice_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer payRows.Close()
	for payRows.Next() {
		p := models.InvoicePayment{InvoiceID: id}
		if err := payRows.Scan(&p.ID, &p.Mode, &p.Amount, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		invoice.Payments = append(invoice.Payments, p)
	}
	return &invoice, payRows.Err()
}

// ListInvoices lists recent invoices
// @Summary List invoices
// @Tags invoices
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Invoice
// @Router /invoices [get]
func (s *InvoiceService) ListInvoices(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, invoice_no, customer_id, sub_total, discount_amt, tax_amt, grand_total, paid_amount, status, created_at, updated_at
		FROM invoices
		WHERE account_id = ? AND location_id = ?
		ORDER BY id DESC LIMIT 100`,
		accountID, locationID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch invoices", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv := models.Invoice{AccountID: accountID, LocationID: locationID}
		if err := rows.Scan(&inv.ID, &inv.InvoiceNo, &inv.CustomerID, &inv.SubTotal, &inv.DiscountAmt,
			&inv.TaxAmt, &inv.GrandTotal, &inv.PaidAmount, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch invoices", http.StatusInternalServerError, nil)
			return
		}
		invoices = append(invoices, inv)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoices)
}

// ReceiptQR returns a QR code image for an invoice receipt
// @Summary Invoice receipt QR
// @Description Generate a QR code encoding the receipt lookup URL
// @Tags invoices
// @Produce json
// @Security BearerAuth
// @Param id path int true "Invoice ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /invoices/{id}/receipt-qr [get]
func (s *InvoiceService) ReceiptQR(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid invoice ID", http.StatusBadRequest, nil)
		return
	}

	var invoiceNo int
	var grandTotal int64
	err = s.db.QueryRow(`
		SELECT invoice_no, grand_total FROM invoices
		WHERE id = ? AND account_id = ? AND location_id = ?`,
		id, accountID, locationID).Scan(&invoiceNo, &grandTotal)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Invoice not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch invoice", http.StatusInternalServerError, nil)
		return
	}

	viper.SetDefault("receipt.base_url", "https://receipts.glowdesk.io")
	payload := fmt.Sprintf("%s/r/%d/%d/%d", viper.GetString("receipt.base_url"), accountID, locationID, invoiceNo)

	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		log.Printf("[INVOICE] QR generation failed for invoice %d: %v", id, err)
		SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"payload": payload,
		"qrImage": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
}
