package services

import (
	"fmt"
	"strings"

	"adpazar/internal/apperr"
	"adpazar/internal/models"
	"adpazar/internal/store"

	"github.com/rs/zerolog"
)

type AdService struct {
	store  store.Store
	logger zerolog.Logger
}

func NewAdService(st store.Store, logger zerolog.Logger) *AdService {
	return &AdService{store: st, logger: logger}
}

// Create registers a new ad in the pending state, awaiting moderation.
func (s *AdService) Create(seller string, req *models.CreateAdRequest) (*models.Ad, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperr.New(apperr.KindValidation, "ad title is required")
	}
	if req.PriceTokens <= 0 {
		return nil, apperr.New(apperr.KindValidation, "price must be greater than zero")
	}

	ad := &models.Ad{
		Title:          title,
		Description:    strings.TrimSpace(req.Description),
		Category:       strings.TrimSpace(req.Category),
		PriceTokens:    req.PriceTokens,
		SellerUsername: seller,
		ImageBytes:     req.ImageBytes,
	}
	adID, err := s.store.Ads().CreatePendingAd(ad)
	if err != nil {
		return nil, translate(err)
	}
	s.audit("ad", adID, "created", fmt.Sprintf("%s by %s", title, seller))

	created, err := s.store.Ads().FindAdByID(adID)
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info().Int64("ad_id", adID).Str("seller", seller).Int64("price", req.PriceTokens).Msg("Ad created")
	return created, nil
}

// List returns approved ads matching the filter predicate.
func (s *AdService) List(filter models.AdFilter) ([]*models.Ad, error) {
	ads, err := s.store.Ads().ListApprovedAds(filter)
	if err != nil {
		return nil, translate(err)
	}
	return ads, nil
}

func (s *AdService) Get(adID int64) (*models.Ad, error) {
	ad, err := s.store.Ads().FindAdByID(adID)
	if err != nil {
		return nil, translate(err)
	}
	return ad, nil
}

// Moderate resolves a pending ad to approved or rejected. The transition is
// conditioned on the ad still being pending.
func (s *AdService) Moderate(actor string, req *models.ModerateAdRequest) (*models.Ad, error) {
	next := models.AdStatusRejected
	action := "rejected"
	if req.Approve {
		next = models.AdStatusApproved
		action = "approved"
	}

	if err := s.store.Ads().UpdateStatus(req.AdID, models.AdStatusPending, next, req.Reason); err != nil {
		return nil, translate(err)
	}
	s.audit("ad", req.AdID, action, fmt.Sprintf("by %s: %s", actor, req.Reason))

	ad, err := s.store.Ads().FindAdByID(req.AdID)
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info().Int64("ad_id", req.AdID).Str("actor", actor).Str("status", string(next)).Msg("Ad moderated")
	return ad, nil
}

func (s *AdService) audit(entityType string, entityID int64, action, details string) {
	if err := s.store.Audit().Append(entityType, entityID, action, details); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("Failed to record audit row (non-critical)")
	}
}
