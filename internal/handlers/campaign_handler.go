package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/glowdesk/backend/internal/middleware"
	"github.com/glowdesk/backend/internal/services"
)

type CampaignHandler struct {
	service   *services.CampaignService
	validator *services.ValidationHelper
}

func NewCampaignHandler(service *services.CampaignService) *CampaignHandler {
	return &CampaignHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type createCampaignRequest struct {
	Name       string   `json:"name" validate:"required,max=120"`
	Channel    string   `json:"channel" validate:"required,oneof=SMS EMAIL"`
	Message    string   `json:"message" validate:"required,max=1600"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
}

// CreateCampaign creates a campaign and debits its credit cost atomically
// @Summary Create a messaging campaign
// @Description Creates the campaign and debits the wallet in one transaction, then dispatches
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createCampaignRequest true "Campaign to create"
// @Success 201 {object} models.Campaign
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Router /campaigns [post]
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createCampaignRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	campaign, err := h.service.CreateCampaign(r.Context(), accountID, locationID,
		req.Name, req.Channel, req.Message, req.Recipients)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientBalance):
			services.SendErrorResponse(w, "Insufficient credits", http.StatusPaymentRequired, nil)
		case errors.Is(err, services.ErrNoRecipients):
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		default:
			services.SendErrorResponse(w, "Failed to create campaign", http.StatusInternalServerError, nil)
		}
		return
	}

	services.SendJSON(w, http.StatusCreated, campaign)
}

// ListCampaigns lists the tenant's campaigns
// @Summary List campaigns
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Campaign
// @Router /campaigns [get]
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	campaigns, err := h.service.ListCampaigns(accountID, locationID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch campaigns", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, campaigns)
}

// GetCampaign returns one campaign by its public ID
// @Summary Get a campaign
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param campaignID path string true "Campaign ID"
// @Success 200 {object} models.Campaign
// @Failure 404 {object} services.ErrorResponse
// @Router /campaigns/{campaignID} [get]
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	accountID, locationID, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	campaign, err := h.service.GetCampaign(accountID, locationID, chi.URLParam(r, "campaignID"))
	if err != nil {
		services.SendErrorResponse(w, "Campaign not found", http.StatusNotFound, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, campaign)
}
