package models

import (
	"errors"
	"time"
)

type DiscountType string

const (
	DiscountTypePercent DiscountType = "percent"
	DiscountTypeFixed   DiscountType = "fixed"
)

// UsageUnlimited disables the usage limit on a discount code.
const UsageUnlimited = -1

type DiscountCode struct {
	Code              string       `json:"code"`
	Type              DiscountType `json:"type"`
	ValueTokens       int64        `json:"value_tokens"`
	MaxDiscountTokens int64        `json:"max_discount_tokens"`
	MinSubtotalTokens int64        `json:"min_subtotal_tokens"`
	UsageLimit        int64        `json:"usage_limit"`
	UsedCount         int64        `json:"used_count"`
	Active            bool         `json:"active"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// ValidateFor reports why the code cannot be applied to the given subtotal,
// or nil when it can.
func (d *DiscountCode) ValidateFor(subtotalTokens int64, now time.Time) error {
	if !d.Active {
		return errors.New("discount code is not active")
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return errors.New("discount code has expired")
	}
	if subtotalTokens < d.MinSubtotalTokens {
		return errors.New("order subtotal is below the code minimum")
	}
	if d.UsageLimit != UsageUnlimited && d.UsedCount >= d.UsageLimit {
		return errors.New("discount code usage limit reached")
	}
	return nil
}

// DiscountFor computes the token discount for the given subtotal. Percent
// codes round down and are capped at MaxDiscountTokens, where zero (the
// schema default) means no cap; the result is always clamped to [0, subtotal].
func (d *DiscountCode) DiscountFor(subtotalTokens int64) int64 {
	var discount int64
	switch d.Type {
	case DiscountTypePercent:
		discount = subtotalTokens * d.ValueTokens / 100
		if d.MaxDiscountTokens > 0 && discount > d.MaxDiscountTokens {
			discount = d.MaxDiscountTokens
		}
	case DiscountTypeFixed:
		discount = d.ValueTokens
	}
	if discount > subtotalTokens {
		discount = subtotalTokens
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

type ValidateDiscountRequest struct {
	Code           string `json:"code"`
	SubtotalTokens int64  `json:"subtotal_tokens"`
}

type ValidateDiscountResponse struct {
	Code           string `json:"code"`
	DiscountTokens int64  `json:"discount_tokens"`
}

type DeleteDiscountRequest struct {
	Code string `json:"code"`
}

type DiscountListResponse struct {
	Codes []*DiscountCode `json:"codes"`
}
