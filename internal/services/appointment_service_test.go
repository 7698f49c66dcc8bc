package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/glowdesk/backend/internal/models"
)

func appointmentRouter(service *AppointmentService, accountID, locationID int) *chi.Mux {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withTenant(r, accountID, locationID))
		})
	})
	router.Post("/appointments", service.CreateAppointment)
	router.Get("/appointments/{id}", service.GetAppointment)
	router.Put("/appointments/{id}/status", service.UpdateStatus)
	return router
}

func TestAppointmentService_CreateAppointment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	router := appointmentRouter(NewAppointmentService(db), 4, 9)

	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	request := map[string]any{
		"customerId": 12,
		"startTime":  start.Format(time.RFC3339),
		"items": []map[string]any{
			{"serviceId": 1, "serviceName": "Haircut", "employeeId": 3, "durationMins": 30, "price": 450},
			{"serviceId": 2, "serviceName": "Beard Trim", "employeeId": 3, "durationMins": 15, "price": 200},
		},
	}

	t.Run("books with the next per-tenant number", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(appointment_no\\), 0\\) \\+ 1 FROM appointments WHERE account_id = \\? AND location_id = \\? FOR UPDATE").
			WithArgs(4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(7))
		mock.ExpectExec("INSERT INTO appointments").
			WithArgs(7, 4, 9, 12, sqlmock.AnyArg(), sqlmock.AnyArg(), models.AppointmentStatusBooked,
				int64(650), 2, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(31, 1))
		mock.ExpectExec("INSERT INTO appointment_items").
			WithArgs(31, 1, "Haircut", 3, 30, int64(450)).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO appointment_items").
			WithArgs(31, 2, "Beard Trim", 3, 15, int64(200)).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(request)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/appointments", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusOK, w.Code)

		var appointment models.Appointment
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &appointment))
		assert.Equal(t, 7, appointment.AppointmentNo)
		assert.Equal(t, int64(650), appointment.TotalAmount)
		assert.Equal(t, start.Add(45*time.Minute), appointment.EndTime)
		assert.Len(t, appointment.Items, 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("item insert failure rolls the booking back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT COALESCE\\(MAX\\(appointment_no\\), 0\\) \\+ 1 FROM appointments").
			WithArgs(4, 9).
			WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(8))
		mock.ExpectExec("INSERT INTO appointments").
			WillReturnResult(sqlmock.NewResult(32, 1))
		mock.ExpectExec("INSERT INTO appointment_items").
			WillReturnError(fmt.Errorf("connection reset"))
		mock.ExpectRollback()

		body, _ := json.Marshal(request)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/appointments", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a booking without items", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"customerId": 12,
			"startTime":  start.Format(time.RFC3339),
			"items":      []map[string]any{},
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/appointments", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAppointmentService_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	router := appointmentRouter(NewAppointmentService(db), 4, 9)

	t.Run("moves to a lifecycle status", func(t *testing.T) {
		mock.ExpectExec("UPDATE appointments SET status = \\?, updated_at = \\? WHERE id = \\? AND account_id = \\? AND location_id = \\?").
			WithArgs(models.AppointmentStatusCompleted, sqlmock.AnyArg(), 31, 4, 9).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("PUT", "/appointments/31/status",
			bytes.NewBufferString(`{"status":"COMPLETED"}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("PUT", "/appointments/31/status",
			bytes.NewBufferString(`{"status":"ARCHIVED"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown appointment", func(t *testing.T) {
		mock.ExpectExec("UPDATE appointments SET status = \\?").
			WithArgs(models.AppointmentStatusCancelled, sqlmock.AnyArg(), 99, 4, 9).
			WillReturnResult(sqlmock.NewResult(0, 0))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("PUT", "/appointments/99/status",
			bytes.NewBufferString(`{"status":"CANCELLED"}`)))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
