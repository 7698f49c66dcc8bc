package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/glowdesk/backend/internal/config"
	"github.com/glowdesk/backend/internal/gateway"
	"github.com/glowdesk/backend/internal/models"
)

// ErrNoRecipients rejects campaigns with an empty audience.
var ErrNoRecipients = errors.New("campaign requires at least one recipient")

// CampaignService creates marketing campaigns and pays for them from the
// credits wallet. The campaign row and its ledger debit commit in one
// transaction; delivery happens after commit and never rolls the debit back.
type CampaignService struct {
	db      *sql.DB
	credits *CreditsService
	sender  gateway.Sender
	cfg     *config.CreditsConfig
}

func NewCampaignService(db *sql.DB, credits *CreditsService, sender gateway.Sender, cfg *config.CreditsConfig) *CampaignService {
	return &CampaignService{
		db:      db,
		credits: credits,
		sender:  sender,
		cfg:     cfg,
	}
}

// MessageSegments counts billable segments: 160 chars per segment for plain
// GSM text, 70 for anything carrying non-ASCII runes.
func (s *CampaignService) MessageSegments(message string) int {
	segmentLen := s.cfg.GSMSegmentLen
	for _, r := range message {
		if r > 127 {
			segmentLen = s.cfg.UnicodeSegmentLen
			break
		}
	}

	runes := len([]rune(message))
	if runes == 0 {
		return 1
	}
	return (runes + segmentLen - 1) / segmentLen
}

// CampaignCost is recipients x message segments, in credits.
func (s *CampaignService) CampaignCost(recipientCount int, message string) int64 {
	return int64(recipientCount) * int64(s.MessageSegments(message))
}

// CreateCampaign inserts the campaign row and debits the wallet atomically,
// then dispatches through the gateway. A gateway failure marks the campaign
// FAILED_DELIVERY but keeps the debit; refunds are operator ADJUSTs.
func (s *CampaignService) CreateCampaign(ctx context.Context, accountID, locationID int, name, channel, message string, recipients []string) (*models.Campaign, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	cost := s.CampaignCost(len(recipients), message)
	campaign := &models.Campaign{
		CampaignID:     uuid.NewString(),
		AccountID:      accountID,
		LocationID:     locationID,
		Name:           name,
		Channel:        channel,
		Message:        message,
		RecipientCount: len(recipients),
		CreditsUsed:    cost,
		Status:         models.CampaignStatusCreated,
		CreatedAt:      time.Now(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO campaigns (campaign_id, account_id, location_id, name, channel, message, recipient_count, credits_used, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		campaign.CampaignID, accountID, locationID, name, channel, message,
		campaign.RecipientCount, cost, campaign.Status, campaign.CreatedAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	campaign.ID = int(id)

	reference := fmt.Sprintf("campaign %s (%d recipients)", campaign.CampaignID, campaign.RecipientCount)
	if _, err := s.credits.ApplyDeltaTx(tx, accountID, locationID, channel, -cost, models.TxnTypeDebit, reference); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[CAMPAIGN] Campaign %s created for tenant %d/%d: %d recipients, %d credits",
		campaign.CampaignID, accountID, locationID, campaign.RecipientCount, cost)

	s.dispatch(ctx, campaign, recipients)
	return campaign, nil
}

func (s *CampaignService) dispatch(ctx context.Context, campaign *models.Campaign, recipients []string) {
	if s.sender == nil {
		return
	}

	resp, err := s.sender.Send(ctx, gateway.SendRequest{
		CampaignID: campaign.CampaignID,
		Channel:    campaign.Channel,
		Message:    campaign.Message,
		Recipients: recipients,
	})
	if err != nil {
		log.Printf("[CAMPAIGN] Delivery failed for campaign %s: %v", campaign.CampaignID, err)
		s.setStatus(campaign, models.CampaignStatusFailedDelivery, nil)
		return
	}

	now := time.Now()
	log.Printf("[CAMPAIGN] Campaign %s dispatched, batch %s, accepted %d",
		campaign.CampaignID, resp.BatchID, resp.Accepted)
	s.setStatus(campaign, models.CampaignStatusSent, &now)
}

func (s *CampaignService) setStatus(campaign *models.Campaign, status string, sentAt *time.Time) {
	_, err := s.db.Exec(`UPDATE campaigns SET status = ?, sent_at = ? WHERE id = ?`,
		status, sentAt, campaign.ID)
	if err != nil {
		log.Printf("[CAMPAIGN] Failed to update status for campaign %s: %v", campaign.CampaignID, err)
		return
	}
	campaign.Status = status
	campaign.SentAt = sentAt
}

// ListCampaigns returns the tenant's campaigns, newest first.
func (s *CampaignService) ListCampaigns(accountID, locationID int) ([]models.Campaign, error) {
	rows, err := s.db.Query(`
		SELECT id, campaign_id, name, channel, message, recipient_count, credits_used, status, created_at, sent_at
		FROM campaigns
		WHERE account_id = ? AND location_id = ?
		ORDER BY id DESC LIMIT 100`,
		accountID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c := models.Campaign{AccountID: accountID, LocationID: locationID}
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Name, &c.Channel, &c.Message,
			&c.RecipientCount, &c.CreditsUsed, &c.Status, &c.CreatedAt, &c.SentAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// GetCampaign fetches one campaign by its public ID.
func (s *CampaignService) GetCampaign(accountID, locationID int, campaignID string) (*models.Campaign, error) {
	c := models.Campaign{AccountID: accountID, LocationID: locationID}
	err := s.db.QueryRow(`
		SELECT id, campaign_id, name, channel, message, recipient_count, credits_used, status, created_at, sent_at
		FROM campaigns
		WHERE account_id = ? AND location_id = ? AND campaign_id = ?`,
		accountID, locationID, campaignID).
		Scan(&c.ID, &c.CampaignID, &c.Name, &c.Channel, &c.Message,
			&c.RecipientCount, &c.CreditsUsed, &c.Status, &c.CreatedAt, &c.SentAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
