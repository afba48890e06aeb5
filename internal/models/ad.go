package models

import (
	"strings"
	"time"
)

type AdStatus string

const (
	AdStatusPending  AdStatus = "pending"
	AdStatusApproved AdStatus = "approved"
	AdStatusRejected AdStatus = "rejected"
	AdStatusSold     AdStatus = "sold"
	AdStatusArchived AdStatus = "archived"
)

// Terminal reports whether an ad status accepts no further transitions.
func (s AdStatus) Terminal() bool {
	return s == AdStatusRejected || s == AdStatusSold || s == AdStatusArchived
}

type Ad struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	PriceTokens    int64     `json:"price_tokens"`
	SellerUsername string    `json:"seller_username"`
	ImageBytes     []byte    `json:"image,omitempty"`
	Status         AdStatus  `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AdStatusChange is one immutable row of an ad's status history.
type AdStatusChange struct {
	ID        int64     `json:"id"`
	AdID      int64     `json:"ad_id"`
	OldStatus AdStatus  `json:"old_status"`
	NewStatus AdStatus  `json:"new_status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AdFilter is a simple predicate match over approved ads.
type AdFilter struct {
	Category       string `json:"category,omitempty"`
	Query          string `json:"query,omitempty"`
	MaxPriceTokens int64  `json:"max_price_tokens,omitempty"`
	Seller         string `json:"seller,omitempty"`
}

func (f AdFilter) Matches(ad *Ad) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, ad.Category) {
		return false
	}
	if f.Seller != "" && f.Seller != ad.SellerUsername {
		return false
	}
	if f.MaxPriceTokens > 0 && ad.PriceTokens > f.MaxPriceTokens {
		return false
	}
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(ad.Title), q) &&
			!strings.Contains(strings.ToLower(ad.Description), q) {
			return false
		}
	}
	return true
}

type CreateAdRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PriceTokens int64  `json:"price_tokens"`
	ImageBytes  []byte `json:"image,omitempty"`
}

type ModerateAdRequest struct {
	AdID    int64  `json:"ad_id"`
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

type GetAdRequest struct {
	AdID int64 `json:"ad_id"`
}

type ListAdsRequest struct {
	Filter AdFilter `json:"filter"`
}

type AdListResponse struct {
	Ads []*Ad `json:"ads"`
}

// AdSoldNotification is the payload of the push envelope sent to a seller
// when one of their ads is bought.
type AdSoldNotification struct {
	AdID          int64  `json:"ad_id"`
	PriceTokens   int64  `json:"price_tokens"`
	BuyerUsername string `json:"buyer_username"`
}
