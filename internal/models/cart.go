package models

type CartItemRequest struct {
	AdID int64 `json:"ad_id"`
}

type CartResponse struct {
	AdIDs          []int64 `json:"ad_ids"`
	AlreadyPresent bool    `json:"already_present,omitempty"`
}
