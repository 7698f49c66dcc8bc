package models

import "time"

// Invoice statuses
const (
	InvoiceStatusOpen     = "OPEN"
	InvoiceStatusPaid     = "PAID"
	InvoiceStatusPartPaid = "PART_PAID"
	InvoiceStatusVoid     = "VOID"
)

// Line item kinds
const (
	InvoiceItemService = "SERVICE"
	InvoiceItemProduct = "PRODUCT"
	InvoiceItemPackage = "PACKAGE"
)

// Invoice is the billing header. InvoiceNo is sequential per tenant. Totals
// are recomputed server-side from the line items, never trusted from the
// client.
type Invoice struct {
	ID          int       `json:"id" db:"id"`
	InvoiceNo   int       `json:"invoice_no" db:"invoice_no"`
	AccountID   int       `json:"account_id" db:"account_id"`
	LocationID  int       `json:"location_id" db:"location_id"`
	CustomerID  int       `json:"customer_id" db:"customer_id"`
	SubTotal    int64     `json:"sub_total" db:"sub_total"`
	DiscountAmt int64     `json:"discount_amt" db:"discount_amt"`
	TaxAmt      int64     `json:"tax_amt" db:"tax_amt"`
	GrandTotal  int64     `json:"grand_total" db:"grand_total"`
	PaidAmount  int64     `json:"paid_amount" db:"paid_amount"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	Items    []InvoiceItem    `json:"items,omitempty"`
	Payments []InvoicePayment `json:"payments,omitempty"`
}

// InvoiceItem is one billed line (service, product or package).
type InvoiceItem struct {
	ID          int    `json:"id" db:"id"`
	InvoiceID   int    `json:"invoice_id" db:"invoice_id"`
	ItemType    string `json:"item_type" db:"item_type"`
	ItemID      int    `json:"item_id" db:"item_id"`
	Description string `json:"description" db:"description"`
	EmployeeID  int    `json:"employee_id" db:"employee_id"`
	Quantity    int    `json:"quantity" db:"quantity"`
	UnitPrice   int64  `json:"unit_price" db:"unit_price"`
	Discount    int64  `json:"discount" db:"discount"`
	LineTotal   int64  `json:"line_total" db:"line_total"`
}

// InvoicePayment is one payment row against an invoice (an invoice may be
// settled across several modes: cash, card, wallet, voucher).
type InvoicePayment struct {
	ID        int       `json:"id" db:"id"`
	InvoiceID int       `json:"invoice_id" db:"invoice_id"`
	Mode      string    `json:"mode" db:"mode"`
	Amount    int64     `json:"amount" db:"amount"`
	Reference string    `json:"reference" db:"reference"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
