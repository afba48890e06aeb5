// Package store defines the persistence contracts consumed by the services.
// Implementations: sqlstore (MySQL, production) and memstore (tests).
package store

import (
	"errors"

	"adpazar/internal/models"
)

// Sentinel errors shared by every implementation. Services translate them
// into protocol error kinds at the dispatch boundary.
var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyExists     = errors.New("record already exists")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrAdNotAvailable    = errors.New("ad is no longer available")
	ErrSelfPurchase      = errors.New("cannot buy your own ad")
	ErrDuplicateAd       = errors.New("duplicate ad id")
	ErrDiscountNotUsable = errors.New("discount code cannot be applied")
	ErrInvalidTransition = errors.New("illegal ad status transition")
)

type UserStore interface {
	CreateUser(user *models.User) (int, error)
	FindByUsername(username string) (*models.User, error)
	// UpdateUsername renames an account and cascades the new name through
	// ads, carts, wallets and ledger rows in one unit of work.
	UpdateUsername(oldUsername, newUsername string) error
	UpdatePasswordHash(username, passwordHash string) error
}

type AdStore interface {
	CreatePendingAd(ad *models.Ad) (int64, error)
	FindAdByID(adID int64) (*models.Ad, error)
	// UpdateStatus performs a compare-and-swap: the row is only written when
	// its status still equals expected. ErrAdNotAvailable reports a lost race.
	UpdateStatus(adID int64, expected, next models.AdStatus, reason string) error
	ListApprovedAds(filter models.AdFilter) ([]*models.Ad, error)
	StatusHistory(adID int64) ([]*models.AdStatusChange, error)
}

type CartStore interface {
	// AddItem reports added=false when the ad is already in the cart; that
	// is not an error.
	AddItem(username string, adID int64) (added bool, err error)
	RemoveItem(username string, adID int64) error
	ListItems(username string) ([]int64, error)
	ClearItems(username string) error
	HasItem(username string, adID int64) (bool, error)
}

type WalletStore interface {
	// GetBalance creates a zero-balance wallet for unknown usernames.
	GetBalance(username string) (int64, error)
	// TopUp atomically adds amount and appends the ledger row, returning the
	// new balance.
	TopUp(username string, amountTokens int64) (int64, error)
	// Checkout runs the whole purchase as one atomic unit: ad validation,
	// discount, buyer debit, per-seller credits, approved→sold transitions,
	// ledger rows, cart clearing and discount usage. Any failure leaves
	// every row untouched.
	Checkout(buyer string, adIDs []int64, discountCode string) (*models.CheckoutResult, error)
	ValidateDiscountCode(code string, subtotalTokens int64) (*models.DiscountCode, int64, error)
	ListDiscountCodes() ([]*models.DiscountCode, error)
	UpsertDiscountCode(code *models.DiscountCode) error
	DeleteDiscountCode(code string) (bool, error)
	TransactionHistory(username string, limit int) ([]*models.LedgerEntry, error)
}

type AuditStore interface {
	Append(entityType string, entityID int64, action, details string) error
	Recent(limit int) ([]*models.AuditEntry, error)
}

// Store bundles the repositories behind one constructor-injected handle.
type Store interface {
	Users() UserStore
	Ads() AdStore
	Carts() CartStore
	Wallets() WalletStore
	Audit() AuditStore
}
