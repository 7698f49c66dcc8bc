package models

import "time"

// Customer is a salon/gym client record scoped to a tenant.
type Customer struct {
	ID          int        `json:"id" db:"id"`
	AccountID   int        `json:"account_id" db:"account_id"`
	LocationID  int        `json:"location_id" db:"location_id"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	PhoneNumber string     `json:"phone_number" db:"phone_number"`
	Email       string     `json:"email" db:"email"`
	Gender      string     `json:"gender" db:"gender"`
	BirthDate   *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Notes       string     `json:"notes" db:"notes"`
	LastVisit   *time.Time `json:"last_visit,omitempty" db:"last_visit"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Employee is a staff member (stylist, trainer, receptionist).
type Employee struct {
	ID          int       `json:"id" db:"id"`
	AccountID   int       `json:"account_id" db:"account_id"`
	LocationID  int       `json:"location_id" db:"location_id"`
	FirstName   string    `json:"first_name" db:"first_name"`
	LastName    string    `json:"last_name" db:"last_name"`
	PhoneNumber string    `json:"phone_number" db:"phone_number"`
	Email       string    `json:"email" db:"email"`
	Role        string    `json:"role" db:"role"`
	Commission  float64   `json:"commission" db:"commission"` // percentage on service sales
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
