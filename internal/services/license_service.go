package services

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/glowdesk/backend/internal/middleware"
)

// LicenseService issues and checks activation keys for installed POS clients.
// Keys are self-contained, validation needs no database round trip.
type LicenseService struct {
	validator *ValidationHelper
}

func NewLicenseService() *LicenseService {
	viper.SetDefault("license.secret", "glowdesk-license-secret")
	return &LicenseService{
		validator: NewValidationHelper(),
	}
}

const licensePrefix = "GLOW"

var licenseEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type GenerateLicenseRequest struct {
	ValidDays int `json:"valid_days" validate:"required,min=1,max=3650"`
}

type ValidateLicenseRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
}

type LicenseResponse struct {
	LicenseKey string    `json:"license_key,omitempty"`
	Valid      bool      `json:"valid"`
	AccountID  int       `json:"account_id,omitempty"`
	LocationID int       `json:"location_id,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// licensePayload is the binary body of a key: tenant, expiry and a nonce so
// two keys for the same tenant and day still differ.
func licensePayload(accountID, locationID int, expiresAt time.Time, nonce [4]byte) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], uint32(accountID))
	binary.BigEndian.PutUint32(buf[4:8], uint32(locationID))
	binary.BigEndian.PutUint32(buf[8:12], uint32(expiresAt.Unix()))
	copy(buf[12:16], nonce[:])
	return buf
}

func licenseChecksum(payload []byte) string {
	secret := viper.GetString("license.secret")
	sum := sha256.Sum256(append(payload, []byte(secret)...))
	return licenseEncoding.EncodeToString(sum[:4])[:5]
}

func formatLicenseKey(payload []byte) string {
	encoded := licenseEncoding.EncodeToString(payload)

	var groups []string
	for len(encoded) > 0 {
		n := 5
		if len(encoded) < n {
			n = len(encoded)
		}
		groups = append(groups, encoded[:n])
		encoded = encoded[n:]
	}
	groups = append(groups, licenseChecksum(payload))

	return licensePrefix + "-" + strings.Join(groups, "-")
}

// parseLicenseKey rebuilds the payload and verifies the checksum group.
func parseLicenseKey(key string) ([]byte, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	parts := strings.Split(key, "-")
	if len(parts) < 3 || parts[0] != licensePrefix {
		return nil, fmt.Errorf("malformed license key")
	}

	checksum := parts[len(parts)-1]
	payload, err := licenseEncoding.DecodeString(strings.Join(parts[1:len(parts)-1], ""))
	if err != nil || len(payload) != 16 {
		return nil, fmt.Errorf("malformed license key")
	}

	if licenseChecksum(payload) != checksum {
		return nil, fmt.Errorf("license checksum mismatch")
	}
	return payload, nil
}

// GenerateLicense issues an activation key for the caller's tenant
// @Summary Generate a license key
// @Tags license
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GenerateLicenseRequest true "License parameters"
// @Success 201 {object} LicenseResponse
// @Router /license/generate [post]
func (s *LicenseService) GenerateLicense(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	var req GenerateLicenseRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	expiresAt := time.Now().AddDate(0, 0, req.ValidDays).Truncate(time.Second)

	var nonce [4]byte
	id := uuid.New()
	copy(nonce[:], id[:4])

	key := formatLicenseKey(licensePayload(accountID, locationID, expiresAt, nonce))
	log.Printf("[LICENSE] Issued key for tenant %d/%d, expires %s", accountID, locationID, expiresAt.Format("2006-01-02"))

	SendJSON(w, http.StatusCreated, LicenseResponse{
		LicenseKey: key,
		Valid:      true,
		AccountID:  accountID,
		LocationID: locationID,
		ExpiresAt:  expiresAt,
	})
}

// ValidateLicense checks a key offline-issued to a POS client
// @Summary Validate a license key
// @Tags license
// @Accept json
// @Produce json
// @Param request body ValidateLicenseRequest true "Key to check"
// @Success 200 {object} LicenseResponse
// @Router /license/validate [post]
func (s *LicenseService) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	var req ValidateLicenseRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payload, err := parseLicenseKey(req.LicenseKey)
	if err != nil {
		SendJSON(w, http.StatusOK, LicenseResponse{Valid: false})
		return
	}

	expiresAt := time.Unix(int64(binary.BigEndian.Uint32(payload[8:12])), 0)
	if time.Now().After(expiresAt) {
		SendJSON(w, http.StatusOK, LicenseResponse{Valid: false, ExpiresAt: expiresAt})
		return
	}

	SendJSON(w, http.StatusOK, LicenseResponse{
		Valid:      true,
		AccountID:  int(binary.BigEndian.Uint32(payload[0:4])),
		LocationID: int(binary.BigEndian.Uint32(payload[4:8])),
		ExpiresAt:  expiresAt,
	})
}
