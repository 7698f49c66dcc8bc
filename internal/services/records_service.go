package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/glowdesk/backend/internal/middleware"
	"github.com/glowdesk/backend/internal/schema"
)

// RecordsService exposes generic CRUD over the reflection layer. Only tables
// on the allow-list are reachable, and every statement is scoped to the
// caller's tenant whether or not the client sent tenant columns.
type RecordsService struct {
	store   *schema.Store
	allowed map[string]bool
}

// Tables writable through the generic surface. Ledger and wallet tables are
// deliberately absent, those only change through the credits service.
var recordTables = []string{
	"customers",
	"employees",
	"services",
	"products",
	"packages",
	"expenses",
	"memberships",
}

func NewRecordsService(store *schema.Store) *RecordsService {
	allowed := make(map[string]bool, len(recordTables))
	for _, t := range recordTables {
		allowed[t] = true
	}
	return &RecordsService{
		store:   store,
		allowed: allowed,
	}
}

func (s *RecordsService) table(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "table")
	if !s.allowed[name] {
		SendErrorResponse(w, "Unknown table", http.StatusNotFound, nil)
		return "", false
	}
	return name, true
}

func (s *RecordsService) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	var payload map[string]any
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&payload); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must contain a single JSON object", http.StatusBadRequest, nil)
		return nil, false
	}
	if len(payload) == 0 {
		SendErrorResponse(w, "Request body must not be empty", http.StatusBadRequest, nil)
		return nil, false
	}

	// Server-owned columns. Tenant scope comes from the token and identity
	// columns are never client-writable.
	delete(payload, "id")
	delete(payload, "account_id")
	delete(payload, "location_id")
	delete(payload, "created_at")
	delete(payload, "updated_at")
	return payload, true
}

// ListRecords returns rows from an allow-listed table
// @Summary List records of a table
// @Tags records
// @Produce json
// @Security BearerAuth
// @Param table path string true "Table name"
// @Success 200 {array} object
// @Router /records/{table} [get]
func (s *RecordsService) ListRecords(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	name, ok := s.table(w, r)
	if !ok {
		return
	}

	rows, err := s.store.Select(name, map[string]any{
		"account_id":  accountID,
		"location_id": locationID,
	}, 500)
	if err != nil {
		log.Printf("[RECORDS] List %s failed for tenant %d/%d: %v", name, accountID, locationID, err)
		SendErrorResponse(w, "Failed to fetch records", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, rows)
}

// GetRecord returns a single row by id
// @Summary Get a record
// @Tags records
// @Produce json
// @Security BearerAuth
// @Param table path string true "Table name"
// @Param id path int true "Record ID"
// @Success 200 {object} object
// @Router /records/{table}/{id} [get]
func (s *RecordsService) GetRecord(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	name, ok := s.table(w, r)
	if !ok {
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid record ID", http.StatusBadRequest, nil)
		return
	}

	rows, err := s.store.Select(name, map[string]any{
		"id":          id,
		"account_id":  accountID,
		"location_id": locationID,
	}, 1)
	if err != nil {
		log.Printf("[RECORDS] Get %s/%d failed for tenant %d/%d: %v", name, id, accountID, locationID, err)
		SendErrorResponse(w, "Failed to fetch record", http.StatusInternalServerError, nil)
		return
	}
	if len(rows) == 0 {
		SendErrorResponse(w, "Record not found", http.StatusNotFound, nil)
		return
	}

	SendJSON(w, http.StatusOK, rows[0])
}

// CreateRecord inserts a row into an allow-listed table
// @Summary Create a record
// @Tags records
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param table path string true "Table name"
// @Success 201 {object} map[string]int64
// @Router /records/{table} [post]
func (s *RecordsService) CreateRecord(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	name, ok := s.table(w, r)
	if !ok {
		return
	}

	payload, ok := s.decodeBody(w, r)
	if !ok {
		return
	}
	payload["account_id"] = accountID
	payload["location_id"] = locationID

	id, err := s.store.Insert(name, payload)
	if err != nil {
		log.Printf("[RECORDS] Create %s failed for tenant %d/%d: %v", name, accountID, locationID, err)
		SendErrorResponse(w, "Failed to create record", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// UpdateRecord updates a row in an allow-listed table
// @Summary Update a record
// @Tags records
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param table path string true "Table name"
// @Param id path int true "Record ID"
// @Success 200 {object} map[string]string
// @Router /records/{table}/{id} [put]
func (s *RecordsService) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	name, ok := s.table(w, r)
	if !ok {
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid record ID", http.StatusBadRequest, nil)
		return
	}

	payload, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	affected, err := s.store.Update(name, payload, map[string]any{
		"id":          id,
		"account_id":  accountID,
		"location_id": locationID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			SendErrorResponse(w, "Record not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[RECORDS] Update %s/%d failed for tenant %d/%d: %v", name, id, accountID, locationID, err)
		SendErrorResponse(w, "Failed to update record", http.StatusInternalServerError, nil)
		return
	}
	if affected == 0 {
		SendErrorResponse(w, "Record not found", http.StatusNotFound, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]string{"message": "Record updated"})
}
