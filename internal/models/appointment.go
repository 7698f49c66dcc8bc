package models

import "time"

// Appointment statuses
const (
	AppointmentStatusBooked    = "BOOKED"
	AppointmentStatusConfirmed = "CONFIRMED"
	AppointmentStatusCompleted = "COMPLETED"
	AppointmentStatusCancelled = "CANCELLED"
	AppointmentStatusNoShow    = "NO_SHOW"
)

// Appointment is the master booking record. AppointmentNo is sequential per
// tenant (MAX+1 inside the write transaction).
type Appointment struct {
	ID            int       `json:"id" db:"id"`
	AppointmentNo int       `json:"appointment_no" db:"appointment_no"`
	AccountID     int       `json:"account_id" db:"account_id"`
	LocationID    int       `json:"location_id" db:"location_id"`
	CustomerID    int       `json:"customer_id" db:"customer_id"`
	StartTime     time.Time `json:"start_time" db:"start_time"`
	EndTime       time.Time `json:"end_time" db:"end_time"`
	Status        string    `json:"status" db:"status"`
	TotalAmount   int64     `json:"total_amount" db:"total_amount"` // minor units
	ItemCount     int       `json:"item_count" db:"item_count"`
	Notes         string    `json:"notes" db:"notes"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`

	Items []AppointmentItem `json:"items,omitempty"`
}

// AppointmentItem is one booked service line (service + employee + slot price).
type AppointmentItem struct {
	ID            int    `json:"id" db:"id"`
	AppointmentID int    `json:"appointment_id" db:"appointment_id"`
	ServiceID     int    `json:"service_id" db:"service_id"`
	ServiceName   string `json:"service_name" db:"service_name"`
	EmployeeID    int    `json:"employee_id" db:"employee_id"`
	DurationMins  int    `json:"duration_mins" db:"duration_mins"`
	Price         int64  `json:"price" db:"price"`
}
