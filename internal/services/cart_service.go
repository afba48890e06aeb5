package services

import (
	"adpazar/internal/apperr"
	"adpazar/internal/models"
	"adpazar/internal/store"

	"github.com/rs/zerolog"
)

type CartService struct {
	store  store.Store
	logger zerolog.Logger
}

func NewCartService(st store.Store, logger zerolog.Logger) *CartService {
	return &CartService{store: st, logger: logger}
}

// Add puts an approved ad into the user's cart. Adding an ad that is already
// present is a no-op reported through alreadyPresent.
func (s *CartService) Add(username string, adID int64) (alreadyPresent bool, err error) {
	ad, err := s.store.Ads().FindAdByID(adID)
	if err != nil {
		return false, translate(err)
	}
	if ad.Status != models.AdStatusApproved {
		return false, apperr.New(apperr.KindAdNotAvailable, "ad is not available")
	}

	added, err := s.store.Carts().AddItem(username, adID)
	if err != nil {
		return false, translate(err)
	}
	if added {
		s.logger.Debug().Str("username", username).Int64("ad_id", adID).Msg("Cart item added")
	}
	return !added, nil
}

func (s *CartService) Remove(username string, adID int64) error {
	if err := s.store.Carts().RemoveItem(username, adID); err != nil {
		return translate(err)
	}
	return nil
}

func (s *CartService) List(username string) ([]int64, error) {
	items, err := s.store.Carts().ListItems(username)
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *CartService) Clear(username string) error {
	if err := s.store.Carts().ClearItems(username); err != nil {
		return translate(err)
	}
	return nil
}
