package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/glowdesk/backend/internal/models"
	"github.com/glowdesk/backend/internal/schema"
)

func inventoryRouter(service *InventoryService, accountID, locationID int) *chi.Mux {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withTenant(r, accountID, locationID))
		})
	})
	router.Get("/products", service.ListProducts)
	router.Post("/products", service.CreateProduct)
	router.Post("/products/{id}/adjust", service.AdjustStock)
	return router
}

func TestInventoryService_AdjustStock(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := schema.NewStore(db, schema.NewReflector(db, "glowdesk_pos", 5*time.Minute))
	router := inventoryRouter(NewInventoryService(db, store), 4, 9)

	t.Run("purchase adds stock with a movement row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT stock_qty FROM products WHERE id = \\? AND account_id = \\? AND location_id = \\? FOR UPDATE").
			WithArgs(5, 4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"stock_qty"}).AddRow(10))
		mock.ExpectExec("UPDATE products SET stock_qty = \\?, updated_at = \\? WHERE id = \\?").
			WithArgs(22, sqlmock.AnyArg(), 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO stock_movements").
			WithArgs(5, 12, models.StockReasonPurchase, 22, "GRN 4417", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(88, 1))
		mock.ExpectCommit()

		body := `{"delta":12,"reason":"PURCHASE","reference":"GRN 4417"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/products/5/adjust", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusOK, w.Code)

		var movement models.StockMovement
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &movement))
		assert.Equal(t, 22, movement.StockQty)
		assert.Equal(t, 12, movement.Delta)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("negative-driving adjustment rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT stock_qty FROM products").
			WithArgs(5, 4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"stock_qty"}).AddRow(3))
		mock.ExpectRollback()

		body := `{"delta":-8,"reason":"DAMAGE"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/products/5/adjust", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "stock negative")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown reason rejected", func(t *testing.T) {
		body := `{"delta":1,"reason":"SHRINKAGE"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/products/5/adjust", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Validation failed")
	})
}

func TestInventoryService_CreateProduct(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := schema.NewStore(db, schema.NewReflector(db, "glowdesk_pos", 5*time.Minute))
	router := inventoryRouter(NewInventoryService(db, store), 4, 9)

	mock.ExpectQuery("SELECT column_name FROM information_schema.columns").
		WithArgs("glowdesk_pos", "products").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).
			AddRow("id").AddRow("account_id").AddRow("location_id").
			AddRow("name").AddRow("sku").AddRow("category").
			AddRow("retail_price").AddRow("cost_price").AddRow("stock_qty").
			AddRow("reorder_level").AddRow("active").AddRow("created_at").AddRow("updated_at"))
	mock.ExpectExec("INSERT INTO products").
		WithArgs(4, true, "Retail", int64(350), sqlmock.AnyArg(), 9, "Argan Oil 100ml", 5,
			int64(650), "ARG-100", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(5, 1))

	body := `{"name":"Argan Oil 100ml","sku":"ARG-100","category":"Retail","retailPrice":650,"costPrice":350,"reorderLevel":5}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/products", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":5`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
