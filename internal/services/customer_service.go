package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glowdesk/backend/internal/middleware"
	"github.com/glowdesk/backend/internal/models"
	"github.com/glowdesk/backend/internal/schema"
)

// CustomerService manages client records. Writes go through the reflection
// store so deployments with customized customer columns keep working; reads
// use the fixed model columns.
type CustomerService struct {
	db        *sql.DB
	store     *schema.Store
	validator *ValidationHelper
}

func NewCustomerService(db *sql.DB, store *schema.Store) *CustomerService {
	return &CustomerService{
		db:        db,
		store:     store,
		validator: NewValidationHelper(),
	}
}

type customerRequest struct {
	FirstName   string `json:"firstName" validate:"required,min=1,max=100"`
	LastName    string `json:"lastName" validate:"max=100"`
	PhoneNumber string `json:"phoneNumber" validate:"required,max=20"`
	Email       string `json:"email" validate:"omitempty,email"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female other"`
	Notes       string `json:"notes" validate:"max=1000"`
}

// CreateCustomer adds a customer
// @Summary Create customer
// @Tags customers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body customerRequest true "Customer"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /customers [post]
func (s *CustomerService) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req customerRequest
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

	now := time.Now()
	id, err := s.store.Insert("customers", map[string]any{
		"account_id":   accountID,
		"location_id":  locationID,
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"phone_number": req.PhoneNumber,
		"email":        req.Email,
		"gender":       req.Gender,
		"notes":        req.Notes,
		"created_at":   now,
		"updated_at":   now,
	})
	if err != nil {
		log.Printf("[CUSTOMER] Creation failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to create customer", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CUSTOMER] Customer %d created for tenant %d/%d", id, accountID, locationID)
	SendJSON(w, http.StatusOK, map[string]any{"id": id})
}

// UpdateCustomer modifies a customer
// @Summary Update customer
// @Tags customers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Customer ID"
// @Param request body customerRequest true "Customer"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id} [put]
func (s *CustomerService) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid customer ID", http.StatusBadRequest, nil)
		return
	}

	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	affected, err := s.store.Update("customers", map[string]any{
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"phone_number": req.PhoneNumber,
		"email":        req.Email,
		"gender":       req.Gender,
		"notes":        req.Notes,
		"updated_at":   time.Now(),
	}, map[string]any{
		"id":          id,
		"account_id":  accountID,
		"location_id": locationID,
	})
	if err != nil {
		log.Printf("[CUSTOMER] Update failed for customer %d: %v", id, err)
		SendErrorResponse(w, "Failed to update customer", http.StatusInternalServerError, nil)
		return
	}
	if affected == 0 {
		SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"updated": affected})
}

// GetCustomer fetches one customer
// @Summary Get customer
// @Tags customers
// @Produce json
// @Security BearerAuth
// @Param id path int true "Customer ID"
// @Success 200 {object} models.Customer
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id} [get]
func (s *CustomerService) GetCustomer(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid customer ID", http.StatusBadRequest, nil)
		return
	}

	c := models.Customer{ID: id, AccountID: accountID, LocationID: locationID}
	err = s.db.QueryRow(`
		SELECT first_name, last_name, phone_number, email, gender, notes, last_visit, created_at, updated_at
		FROM customers
		WHERE id = ? AND account_id = ? AND location_id = ?`,
		id, accountID, locationID).
		Scan(&c.FirstName, &c.LastName, &c.PhoneNumber, &c.Email, &c.Gender,
			&c.Notes, &c.LastVisit, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch customer", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, c)
}

// ListCustomers lists customers, optionally filtered by phone
// @Summary List customers
// @Tags customers
// @Produce json
// @Security BearerAuth
// @Param phone query string false "Phone number filter"
// @Success 200 {array} models.Customer
// @Router /customers [get]
func (s *CustomerService) ListCustomers(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	query := `
		SELECT id, first_name, last_name, phone_number, email, gender, notes, last_visit, created_at, updated_at
		FROM customers
		WHERE account_id = ? AND location_id = ?`
	args := []any{accountID, locationID}

	if phone := r.URL.Query().Get("phone"); phone != "" {
		query += " AND phone_number = ?"
		args = append(args, phone)
	}
	query += " ORDER BY id DESC LIMIT 200"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[CUSTOMER] List failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to fetch customers", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	customers := []models.Customer{}
	for rows.Next() {
		c := models.Customer{AccountID: accountID, LocationID: locationID}
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.PhoneNumber, &c.Email,
			&c.Gender, &c.Notes, &c.LastVisit, &c.CreatedAt, &c.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch customers", http.StatusInternalServerError, nil)
			return
		}
		customers = append(customers, c)
	}

	SendJSON(w, http.StatusOK, customers)
}

// DeleteCustomer removes a customer
// @Summary Delete customer
// @Tags customers
// @Produce json
// @Security BearerAuth
// @Param id path int true "Customer ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /customers/{id} [delete]
func (s *CustomerService) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid customer ID", http.StatusBadRequest, nil)
		return
	}

	res, err := s.db.Exec(`DELETE FROM customers WHERE id = ? AND account_id = ? AND location_id = ?`,
		id, accountID, locationID)
	if err != nil {
		SendErrorResponse(w, "Failed to delete customer", http.StatusInternalServerError, nil)
		return
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		SendErrorResponse(w, "Customer not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[CUSTOMER] Customer %d deleted for tenant %d/%d", id, accountID, locationID)
	SendJSON(w, http.StatusOK, map[string]any{"deleted": affected})
}
