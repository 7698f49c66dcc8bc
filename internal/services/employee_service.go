package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/glowdesk/backend/internal/middleware"
	"github.com/glowdesk/backend/internal/models"
	"github.com/glowdesk/backend/internal/schema"
)

// EmployeeService manages staff records.
type EmployeeService struct {
	db        *sql.DB
	store     *schema.Store
	validator *ValidationHelper
}

func NewEmployeeService(db *sql.DB, store *schema.Store) *EmployeeService {
	return &EmployeeService{
		db:        db,
		store:     store,
		validator: NewValidationHelper(),
	}
}

type employeeRequest struct {
	FirstName   string  `json:"firstName" validate:"required,min=1,max=100"`
	LastName    string  `json:"lastName" validate:"max=100"`
	PhoneNumber string  `json:"phoneNumber" validate:"required,max=20"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Role        string  `json:"role" validate:"required,oneof=stylist trainer therapist receptionist manager"`
	Commission  float64 `json:"commission" validate:"gte=0,lte=100"`
}

// CreateEmployee adds a staff member
// @Summary Create employee
// @Tags employees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body employeeRequest true "Employee"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /employees [post]
func (s *EmployeeService) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	now := time.Now()
	id, err := s.store.Insert("employees", map[string]any{
		"account_id":   accountID,
		"location_id":  locationID,
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"phone_number": req.PhoneNumber,
		"email":        req.Email,
		"role":         req.Role,
		"commission":   req.Commission,
		"active":       true,
		"created_at":   now,
		"updated_at":   now,
	})
	if err != nil {
		log.Printf("[EMPLOYEE] Creation failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to create employee", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[EMPLOYEE] Employee %d created for tenant %d/%d", id, accountID, locationID)
	SendJSON(w, http.StatusOK, map[string]any{"id": id})
}

// UpdateEmployee modifies a staff member
// @Summary Update employee
// @Tags employees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Employee ID"
// @Param request body employeeRequest true "Employee"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /employees/{id} [put]
func (s *EmployeeService) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid employee ID", http.StatusBadRequest, nil)
		return
	}

	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	affected, err := s.store.Update("employees", map[string]any{
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"phone_number": req.PhoneNumber,
		"email":        req.Email,
		"role":         req.Role,
		"commission":   req.Commission,
		"updated_at":   time.Now(),
	}, map[string]any{
		"id":          id,
		"account_id":  accountID,
		"location_id": locationID,
	})
	if err != nil {
		SendErrorResponse(w, "Failed to update employee", http.StatusInternalServerError, nil)
		return
	}
	if affected == 0 {
		SendErrorResponse(w, "Employee not found", http.StatusNotFound, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{"updated": affected})
}

// GetEmployee fetches one staff member
// @Summary Get employee
// @Tags employees
// @Produce json
// @Security BearerAuth
// @Param id path int true "Employee ID"
// @Success 200 {object} models.Employee
// @Failure 404 {object} ErrorResponse
// @Router /employees/{id} [get]
func (s *EmployeeService) GetEmployee(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid employee ID", http.StatusBadRequest, nil)
		return
	}

	e := models.Employee{ID: id, AccountID: accountID, LocationID: locationID}
	err = s.db.QueryRow(`
		SELECT first_name, last_name, phone_number, email, role, commission, active, created_at, updated_at
		FROM employees
		WHERE id = ? AND account_id = ? AND location_id = ?`,
		id, accountID, locationID).
		Scan(&e.FirstName, &e.LastName, &e.PhoneNumber, &e.Email, &e.Role,
			&e.Commission, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Employee not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch employee", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, e)
}

// ListEmployees lists active staff
// @Summary List employees
// @Tags employees
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Employee
// @Router /employees [get]
func (s *EmployeeService) ListEmployees(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, first_name, last_name, phone_number, email, role, commission, active, created_at, updated_at
		FROM employees
		WHERE account_id = ? AND location_id = ? AND active = true
		ORDER BY first_name`,
		accountID, locationID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch employees", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	employees := []models.Employee{}
	for rows.Next() {
		e := models.Employee{AccountID: accountID, LocationID: locationID}
		if err := rows.Scan(&e.ID, &e.FirstName, &e.LastName, &e.PhoneNumber, &e.Email,
			&e.Role, &e.Commission, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch employees", http.StatusInternalServerError, nil)
			return
		}
		employees = append(employees, e)
	}

	SendJSON(w, http.StatusOK, employees)
}

// DeactivateEmployee marks a staff member inactive
// @Summary Deactivate employee
// @Tags employees
// @Produce json
// @Security BearerAuth
// @Param id path int true "Employee ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /employees/{id} [delete]
func (s *EmployeeService) DeactivateEmployee(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid employee ID", http.StatusBadRequest, nil)
		return
	}

	// Employees carry sales history, so they are deactivated, never deleted
	res, err := s.db.Exec(`
		UPDATE employees SET active = false, updated_at = ?
		WHERE id = ? AND account_id = ? AND location_id = ?`,
		time.Now(), id, accountID, locationID)
	if err != nil {
		SendErrorResponse(w, "Failed to deactivate employee", http.StatusInternalServerError, nil)
		return
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		SendErrorResponse(w, "Employee not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[EMPLOYEE] Employee %d deactivated for tenant %d/%d", id, accountID, locationID)
	SendJSON(w, http.StatusOK, map[string]any{"deactivated": affected})
}
