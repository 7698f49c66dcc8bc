package models

import "time"

// Stock movement reasons
const (
	StockReasonPurchase = "PURCHASE"
	StockReasonSale     = "SALE"
	StockReasonInternal = "INTERNAL_USE"
	StockReasonDamage   = "DAMAGE"
	StockReasonCount    = "STOCK_COUNT"
)

// Product is a retail or in-house consumable item.
type Product struct {
	ID           int       `json:"id" db:"id"`
	AccountID    int       `json:"account_id" db:"account_id"`
	LocationID   int       `json:"location_id" db:"location_id"`
	Name         string    `json:"name" db:"name"`
	SKU          string    `json:"sku" db:"sku"`
	Category     string    `json:"category" db:"category"`
	RetailPrice  int64     `json:"retail_price" db:"retail_price"`
	CostPrice    int64     `json:"cost_price" db:"cost_price"`
	StockQty     int       `json:"stock_qty" db:"stock_qty"`
	ReorderLevel int       `json:"reorder_level" db:"reorder_level"`
	Active       bool      `json:"active" db:"active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// StockMovement records one adjustment to a product's stock quantity.
type StockMovement struct {
	ID        int       `json:"id" db:"id"`
	ProductID int       `json:"product_id" db:"product_id"`
	Delta     int       `json:"delta" db:"delta"`
	Reason    string    `json:"reason" db:"reason"`
	StockQty  int       `json:"stock_qty" db:"stock_qty"` // quantity after the movement
	Reference string    `json:"reference" db:"reference"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
