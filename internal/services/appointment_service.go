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
)

// AppointmentService books services against customers and employees. A
// booking writes the master record, its line items and the summary columns
// (total, item count) in one transaction.
type AppointmentService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewAppointmentService(db *sql.DB) *AppointmentService {
	return &AppointmentService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

type appointmentItemRequest struct {
	ServiceID    int    `json:"serviceId" validate:"required,gt=0"`
	ServiceName  string `json:"serviceName" validate:"required"`
	EmployeeID   int    `json:"employeeId" validate:"required,gt=0"`
	DurationMins int    `json:"durationMins" validate:"required,gt=0"`
	Price        int64  `json:"price" validate:"gte=0"`
}

type createAppointmentRequest struct {
	CustomerID int                      `json:"customerId" validate:"required,gt=0"`
	StartTime  time.Time                `json:"startTime" validate:"required"`
	Notes      string                   `json:"notes" validate:"max=500"`
	Items      []appointmentItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateAppointment books an appointment
// @Summary Create appointment
// @Description Book an appointment with one or more service line items
// @Tags appointments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createAppointmentRequest true "Appointment request"
// @Success 200 {object} models.Appointment
// @Failure 400 {object} ErrorResponse
// @Router /appointments [post]
func (s *AppointmentService) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createAppointmentRequest
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

	appointment, err := s.createAppointment(accountID, locationID, &req)
	if err != nil {
		log.Printf("[APPOINTMENT] Creation failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to create appointment", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[APPOINTMENT] Appointment %d booked for tenant %d/%d, customer %d, %d items",
		appointment.AppointmentNo, accountID, locationID, req.CustomerID, len(req.Items))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointment)
}

func (s *AppointmentService) createAppointment(accountID, locationID int, req *createAppointmentRequest) (*models.Appointment, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Sequential per-tenant number; the locking read serializes concurrent
	// bookings for the same tenant.
	var nextNo int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(appointment_no), 0) + 1 FROM appointments
		WHERE account_id = ? AND location_id = ? FOR UPDATE`,
		accountID, locationID).Scan(&nextNo)
	if err != nil {
		return nil, err
	}

	var total int64
	var totalMins int
	for _, item := range req.Items {
		total += item.Price
		totalMins += item.DurationMins
	}
	endTime := req.StartTime.Add(time.Duration(totalMins) * time.Minute)

	appointment := &models.Appointment{
		AppointmentNo: nextNo,
		AccountID:     accountID,
		LocationID:    locationID,
		CustomerID:    req.CustomerID,
		StartTime:     req.StartTime,
		EndTime:       endTime,
		Status:        models.AppointmentStatusBooked,
		TotalAmount:   total,
		ItemCount:     len(req.Items),
		Notes:         req.Notes,
		CreatedAt:     time.Now(),
	}

	res, err := tx.Exec(`
		INSERT INTO appointments (appointment_no, account_id, location_id, customer_id, start_time, end_time, status, total_amount, item_count, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nextNo, accountID, locationID, req.CustomerID, req.StartTime, endTime,
		appointment.Status, total, len(req.Items), req.Notes, appointment.CreatedAt, appointment.CreatedAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	appointment.ID = int(id)

	for _, item := range req.Items {
		_, err = tx.Exec(`
			INSERT INTO appointment_items (appointment_id, service_id, service_name, employee_id, duration_mins, price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			appointment.ID, item.ServiceID, item.ServiceName, item.EmployeeID, item.DurationMins, item.Price)
		if err != nil {
			return nil, err
		}
		appointment.Items = append(appointment.Items, models.AppointmentItem{
			AppointmentID: appointment.ID,
			ServiceID:     item.ServiceID,
			ServiceName:   item.ServiceName,
			EmployeeID:    item.EmployeeID,
			DurationMins:  item.DurationMins,
			Price:         item.Price,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return appointment, nil
}

// GetAppointment returns one appointment with its items
// @Summary Get appointment
// @Tags appointments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Appointment ID"
// @Success 200 {object} models.Appointment
// @Failure 404 {object} ErrorResponse
// @Router /appointments/{id} [get]
func (s *AppointmentService) GetAppointment(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid appointment ID", http.StatusBadRequest, nil)
		return
	}

	appointment := models.Appointment{ID: id, AccountID: accountID, LocationID: locationID}
	err = s.db.QueryRow(`
		SELECT appointment_no, customer_id, start_time, end_time, status, total_amount, item_count, notes, created_at, updated_at
		FROM appointments
		WHERE id = ? AND account_id = ? AND location_id = ?`,
		id, accountID, locationID).
		Scan(&appointment.AppointmentNo, &appointment.CustomerID, &appointment.StartTime,
			&appointment.EndTime, &appointment.Status, &appointment.TotalAmount,
			&appointment.ItemCount, &appointment.Notes, &appointment.CreatedAt, &appointment.UpdatedAt)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Appointment not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch appointment", http.StatusInternalServerError, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, service_id, service_name, employee_id, duration_mins, price
		FROM appointment_items WHERE appointment_id = ?`, id)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch appointment items", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	for rows.Next() {
		item := models.AppointmentItem{AppointmentID: id}
		if err := rows.Scan(&item.ID, &item.ServiceID, &item.ServiceName,
			&item.EmployeeID, &item.DurationMins, &item.Price); err != nil {
			SendErrorResponse(w, "Failed to fetch appointment items", http.StatusInternalServerError, nil)
			return
		}
		appointment.Items = append(appointment.Items, item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointment)
}

// ListAppointments lists appointments for a day
// @Summary List appointments
// @Tags appointments
// @Produce json
// @Security BearerAuth
// @Param date query string false "Day (YYYY-MM-DD), defaults to today"
// @Success 200 {array} models.Appointment
// @Router /appointments [get]
func (s *AppointmentService) ListAppointments(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	day := r.URL.Query().Get("date")
	var dayStart time.Time
	var err error
	if day == "" {
		now := time.Now()
		dayStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	} else {
		dayStart, err = time.Parse("2006-01-02", day)
		if err != nil {
			SendErrorResponse(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
	}
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.Query(`
		SELECT id, appointment_no, customer_id, start_time, end_time, status, total_amount, item_count, notes, created_at, updated_at
		FROM appointments
		WHERE account_id = ? AND location_id = ? AND start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		accountID, locationID, dayStart, dayEnd)
	if err != nil {
		log.Printf("[APPOINTMENT] List failed for tenant %d/%d: %v", accountID, locationID, err)
		SendErrorResponse(w, "Failed to fetch appointments", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	appointments := []models.Appointment{}
	for rows.Next() {
		a := models.Appointment{AccountID: accountID, LocationID: locationID}
		if err := rows.Scan(&a.ID, &a.AppointmentNo, &a.CustomerID, &a.StartTime, &a.EndTime,
			&a.Status, &a.TotalAmount, &a.ItemCount, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch appointments", http.StatusInternalServerError, nil)
			return
		}
		appointments = append(appointments, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(appointments)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=BOOKED CONFIRMED COMPLETED CANCELLED NO_SHOW"`
}

// UpdateStatus moves an appointment through its lifecycle
// @Summary Update appointment status
// @Tags appointments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Appointment ID"
// @Param request body updateStatusRequest true "Status update"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /appointments/{id}/status [put]
func (s *AppointmentService) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid appointment ID", http.StatusBadRequest, nil)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	res, err := s.db.Exec(`
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND account_id = ? AND location_id = ?`,
		req.Status, time.Now(), id, accountID, locationID)
	if err != nil {
		SendErrorResponse(w, "Failed to update appointment", http.StatusInternalServerError, nil)
		return
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		SendErrorResponse(w, "Appointment not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[APPOINTMENT] Appointment %d moved to %s for tenant %d/%d", id, req.Status, accountID, locationID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": req.Status})
}
