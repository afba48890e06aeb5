package models

import "time"

type Wallet struct {
	Username      string    `json:"username"`
	BalanceTokens int64     `json:"balance_tokens"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type LedgerEntryType string

const (
	LedgerTypeTopUp         LedgerEntryType = "topup"
	LedgerTypePurchaseDebit LedgerEntryType = "purchase_debit"
	LedgerTypeSaleCredit    LedgerEntryType = "sale_credit"
)

// LedgerEntry is one append-only row of the wallet ledger. AmountTokens is
// signed; BalanceAfter is the wallet balance once the row was applied.
type LedgerEntry struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username"`
	Type         LedgerEntryType `json:"type"`
	AmountTokens int64           `json:"amount_tokens"`
	BalanceAfter int64           `json:"balance_after"`
	AdID         *int64          `json:"ad_id,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type PurchasedItem struct {
	AdID           int64  `json:"ad_id"`
	SellerUsername string `json:"seller_username"`
	PriceTokens    int64  `json:"price_tokens"`
}

type CheckoutRequest struct {
	AdIDs        []int64 `json:"ad_ids"`
	DiscountCode string  `json:"discount_code,omitempty"`
}

type CheckoutResult struct {
	BuyerBalance        int64           `json:"buyer_balance"`
	SubtotalTokens      int64           `json:"subtotal_tokens"`
	DiscountTokens      int64           `json:"discount_tokens"`
	TotalTokens         int64           `json:"total_tokens"`
	AppliedDiscountCode string          `json:"applied_discount_code,omitempty"`
	PurchasedItems      []PurchasedItem `json:"purchased_items"`
}

type TopUpRequest struct {
	AmountTokens  int64  `json:"amount_tokens"`
	CaptchaNonce  string `json:"captcha_nonce"`
	CaptchaAnswer string `json:"captcha_answer"`
}

type BalanceResponse struct {
	Username      string `json:"username"`
	BalanceTokens int64  `json:"balance_tokens"`
}

type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

type HistoryResponse struct {
	Entries []*LedgerEntry `json:"entries"`
}
