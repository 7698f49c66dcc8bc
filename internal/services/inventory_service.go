package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glowdesk/backend/internal/middleware"
	"github.com/glowdesk/backend/internal/models"
	"github.com/glowdesk/backend/internal/schema"
)

// InventoryService manages retail and in-house products. Stock adjustments
// lock the product row and write a movement record with the post-adjustment
// quantity, mirroring the wallet ledger pattern.
type InventoryService struct {
	db        *sql.DB
	store     *schema.Store
	validator *ValidationHelper
}

func NewInventoryService(db *sql.DB, store *schema.Store) *InventoryService {
	return &InventoryService{
		db:        db,
		store:     store,
		validator: NewValidationHelper(),
	}
}

type productRequest struct {
	Name         string `json:"name" validate:"required,min=1,max=255"`
	SKU          string `json:"sku" validate:"required,max=64"`
	Category     string `json:"category" validate:"max=100"`
	RetailPrice  int64  `json:"retailPrice" validate:"gte=0"`
	CostPrice    int64  `json:"costPrice" validate:"gte=0"`
	ReorderLevel int    `json:"reorderLevel" validate:"gte=0"`
}

type stockAdjustRequest struct {
	Delta     int    `json:"delta" validate:"required"`
	Reason    string `json:"reason" validate:"required,oneof=PURCHASE SALE INTERNAL_USE DAMAGE STOCK_COUNT"`
	Reference string `json:"reference" validate:"max=255"`
}

// CreateProduct adds a product
// @Summary Create product
// @Tags inventory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body productRequest true "Product"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /inventory [post]
func (s *InventoryService) CreateProduct(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	now := time.Now()
	id, err := s.store.Insert("products", map[string]any{
		"account_id":    accountID,
		"location_id":   locationID,
		"name":          req.Name,
		"sku":           req.SKU,
		"category":      req.Category,
		"retail_price":  req.RetailPrice,
		"cost_price":    req.CostPrice,
		"stock_qty":     0,
		"reorder_level": req.ReorderLevel,
		"active":        true,
		"created_at":    now,
		"updated_at":    now,
	})
	if err != nil {
		log.Printf("[INVENTORY] Product creation failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to create product", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[INVENTORY] Product %d created for tenant %d/%d", id, accountID, locationID)
	SendJSON(w, http.StatusOK, map[string]any{"id": id})
}

// UpdateProduct modifies product master data (not stock)
// @Summary Update product
// @Tags inventory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Param request body productRequest true "Product"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /inventory/{id} [put]
func (s *InventoryService) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid product ID", http.StatusBadRequest, nil)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	affected, err := s.store.Update("products", map[string]any{
		"name":          req.Name,
		"sku":           req.SKU,
		"category":      req.Category,
		"retail_price":  req.RetailPrice,
		"cost_price":    req.CostPrice,
		"reorder_level": req.ReorderLevel,
		"updated_at":    time.Now(),
	}, map[string]any{
		"id":          id,
		"account_id":  accountID,
		"location_id": locationID,
	})
	if err != nil {
		SendErrorResponse(w, "Failed to update product", http.StatusInternalServerError, nil)
		return
	}
	if affected == 0 {
		SendErrorResponse(w, "Product not found", http.StatusNotFound, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"updated": affected})
}

// ListProducts lists products, flagging low stock
// @Summary List products
// @Tags inventory
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Product
// @Router /inventory [get]
func (s *InventoryService) ListProducts(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, name, sku, category, retail_price, cost_price, stock_qty, reorder_level, active, created_at, updated_at
		FROM products
		WHERE account_id = ? AND location_id = ? AND active = true
		ORDER BY name`,
		accountID, locationID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch products", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p := models.Product{AccountID: accountID, LocationID: locationID}
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.RetailPrice, &p.CostPrice,
			&p.StockQty, &p.ReorderLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch products", http.StatusInternalServerError, nil)
			return
		}
		products = append(products, p)
	}

	SendJSON(w, http.StatusOK, products)
}

// AdjustStock applies a signed stock change
// @Summary Adjust product stock
// @Description Apply a signed stock delta with an audit movement row
// @Tags inventory
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Param request body stockAdjustRequest true "Adjustment"
// @Success 200 {object} models.StockMovement
// @Failure 400 {object} ErrorResponse
// @Router /inventory/{id}/adjust [post]
func (s *InventoryService) AdjustStock(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid product ID", http.StatusBadRequest, nil)
		return
	}

	var req stockAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	movement, err := s.adjustStock(accountID, locationID, id, &req)
	if err != nil {
		log.Printf("[INVENTORY] Stock adjustment failed for product %d: %v", id, err)
		switch {
		case err == sql.ErrNoRows:
			SendErrorResponse(w, "Product not found", http.StatusNotFound, nil)
		case err == errNegativeStock:
			SendErrorResponse(w, "Adjustment would drive stock negative", http.StatusBadRequest, nil)
		default:
			SendErrorResponse(w, "Failed to adjust stock", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[INVENTORY] Stock of product %d adjusted by %d (%s), now %d",
		id, req.Delta, req.Reason, movement.StockQty)
	SendJSON(w, http.StatusOK, movement)
}

var errNegativeStock = errors.New("stock would go negative")

func (s *InventoryService) adjustStock(accountID, locationID, productID int, req *stockAdjustRequest) (*models.StockMovement, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var stockQty int
	err = tx.QueryRow(`
		SELECT stock_qty FROM products
		WHERE id = ? AND account_id = ? AND location_id = ?
		FOR UPDATE`,
		productID, accountID, locationID).Scan(&stockQty)
	if err != nil {
		return nil, err
	}

	newQty := stockQty + req.Delta
	if newQty < 0 {
		return nil, errNegativeStock
	}

	now := time.Now()
	_, err = tx.Exec(`UPDATE products SET stock_qty = ?, updated_at = ? WHERE id = ?`,
		newQty, now, productID)
	if err != nil {
		return nil, err
	}

	res, err := tx.Exec(`
		INSERT INTO stock_movements (product_id, delta, reason, stock_qty, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		productID, req.Delta, req.Reason, newQty, req.Reference, now)
	if err != nil {
		return nil, err
	}
	movementID, _ := res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.StockMovement{
		ID:        int(movementID),
		ProductID: productID,
		Delta:     req.Delta,
		Reason:    req.Reason,
		StockQty:  newQty,
		Reference: req.Reference,
		CreatedAt: now,
	}, nil
}
