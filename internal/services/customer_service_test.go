package services

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/glowdesk/backend/internal/schema"
)

func customerRouter(service *CustomerService, accountID, locationID int) *chi.Mux {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withTenant(r, accountID, locationID))
		})
	})
	router.Get("/customers", service.ListCustomers)
	router.Post("/customers", service.CreateCustomer)
	router.Get("/customers/{id}", service.GetCustomer)
	router.Delete("/customers/{id}", service.DeleteCustomer)
	return router
}

func expectFullCustomerReflection(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT column_name FROM information_schema.columns").
		WithArgs("glowdesk_pos", "customers").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).
			AddRow("id").AddRow("account_id").AddRow("location_id").
			AddRow("first_name").AddRow("last_name").AddRow("phone_number").
			AddRow("email").AddRow("gender").AddRow("notes").
			AddRow("last_visit").AddRow("created_at").AddRow("updated_at"))
}

func TestCustomerService_CreateCustomer(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := schema.NewStore(db, schema.NewReflector(db, "glowdesk_pos", 5*time.Minute))
	router := customerRouter(NewCustomerService(db, store), 4, 9)

	t.Run("creates through the reflection store", func(t *testing.T) {
		expectFullCustomerReflection(mock)
		mock.ExpectExec("INSERT INTO customers \\(account_id, created_at, email, first_name, gender, last_name, location_id, notes, phone_number, updated_at\\)").
			WithArgs(4, sqlmock.AnyArg(), "asha@example.com", "Asha", "", "Verma", 9, "", "+919800000001", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(21, 1))

		body := `{"firstName":"Asha","lastName":"Verma","phoneNumber":"+919800000001","email":"asha@example.com"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/customers", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"id":21`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("phone number is required", func(t *testing.T) {
		body := `{"firstName":"Asha"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/customers", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "PhoneNumber")
	})
}

func TestCustomerService_ListAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := schema.NewStore(db, schema.NewReflector(db, "glowdesk_pos", 5*time.Minute))
	router := customerRouter(NewCustomerService(db, store), 4, 9)

	customerCols := []string{"id", "first_name", "last_name", "phone_number", "email",
		"gender", "notes", "last_visit", "created_at", "updated_at"}

	t.Run("phone filter narrows the list", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, first_name, last_name, phone_number, email, gender, notes, last_visit, created_at, updated_at FROM customers WHERE account_id = \\? AND location_id = \\? AND phone_number = \\? ORDER BY id DESC LIMIT 200").
			WithArgs(4, 9, "+919800000001").
			WillReturnRows(sqlmock.NewRows(customerCols).
				AddRow(21, "Asha", "Verma", "+919800000001", "asha@example.com", "", "", nil, time.Now(), time.Now()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/customers?phone=%2B919800000001", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"first_name":"Asha"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete is tenant scoped", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM customers WHERE id = \\? AND account_id = \\? AND location_id = \\?").
			WithArgs(21, 4, 9).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("DELETE", "/customers/21", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete of a missing customer", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM customers").
			WithArgs(99, 4, 9).
			WillReturnResult(sqlmock.NewResult(0, 0))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("DELETE", "/customers/99", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
