// Package memstore is the in-memory store implementation. One mutex guards
// all tables, which makes every operation — including checkout — an atomic
// unit without an undo log.
package memstore

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"adpazar/internal/models"
	"adpazar/internal/store"
)

type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users      map[string]*models.User
	nextUserID int

	ads           map[int64]*models.Ad
	adHistory     map[int64][]*models.AdStatusChange
	nextAdID      int64
	nextHistoryID int64

	carts map[string][]int64

	wallets      map[string]int64
	ledger       []*models.LedgerEntry
	nextLedgerID int64

	discounts map[string]*models.DiscountCode

	audit       []*models.AuditEntry
	nextAuditID int64
}

func New() *Store {
	return &Store{
		now:       time.Now,
		users:     make(map[string]*models.User),
		ads:       make(map[int64]*models.Ad),
		adHistory: make(map[int64][]*models.AdStatusChange),
		carts:     make(map[string][]int64),
		wallets:   make(map[string]int64),
		discounts: make(map[string]*models.DiscountCode),
	}
}

// SetClock overrides the time source, for expiry tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Users() store.UserStore     { return userStore{s} }
func (s *Store) Ads() store.AdStore         { return adStore{s} }
func (s *Store) Carts() store.CartStore     { return cartStore{s} }
func (s *Store) Wallets() store.WalletStore { return walletStore{s} }
func (s *Store) Audit() store.AuditStore    { return auditStore{s} }

// ─── users ───

type userStore struct{ s *Store }

func (u userStore) CreateUser(user *models.User) (int, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return 0, fmt.Errorf("user %q: %w", user.Username, store.ErrAlreadyExists)
		}
	}
	s.nextUserID++
	clone := *user
	clone.ID = s.nextUserID
	clone.CreatedAt = s.now()
	clone.UpdatedAt = clone.CreatedAt
	s.users[clone.Username] = &clone
	return clone.ID, nil
}

func (u userStore) FindByUsername(username string) (*models.User, error) {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	clone := *user
	return &clone, nil
}

func (u userStore) UpdateUsername(oldUsername, newUsername string) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[oldUsername]
	if !ok {
		return fmt.Errorf("user %q: %w", oldUsername, store.ErrNotFound)
	}
	if _, taken := s.users[newUsername]; taken {
		return fmt.Errorf("user %q: %w", newUsername, store.ErrAlreadyExists)
	}

	delete(s.users, oldUsername)
	user.Username = newUsername
	user.UpdatedAt = s.now()
	s.users[newUsername] = user

	for _, ad := range s.ads {
		if ad.SellerUsername == oldUsername {
			ad.SellerUsername = newUsername
		}
	}
	if items, ok := s.carts[oldUsername]; ok {
		delete(s.carts, oldUsername)
		s.carts[newUsername] = items
	}
	if bal, ok := s.wallets[oldUsername]; ok {
		delete(s.wallets, oldUsername)
		s.wallets[newUsername] = bal
	}
	for _, entry := range s.ledger {
		if entry.Username == oldUsername {
			entry.Username = newUsername
		}
		if entry.Counterparty == oldUsername {
			entry.Counterparty = newUsername
		}
	}
	return nil
}

func (u userStore) UpdatePasswordHash(username, passwordHash string) error {
	s := u.s
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = s.now()
	return nil
}

// ─── ads ───

type adStore struct{ s *Store }

func (a adStore) CreatePendingAd(ad *models.Ad) (int64, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAdID++
	clone := *ad
	clone.ID = s.nextAdID
	clone.Status = models.AdStatusPending
	clone.CreatedAt = s.now()
	clone.UpdatedAt = clone.CreatedAt
	s.ads[clone.ID] = &clone
	s.appendHistoryLocked(clone.ID, "", models.AdStatusPending, "created")
	return clone.ID, nil
}

func (a adStore) FindAdByID(adID int64) (*models.Ad, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[adID]
	if !ok {
		return nil, fmt.Errorf("ad %d: %w", adID, store.ErrNotFound)
	}
	clone := *ad
	return &clone, nil
}

func (a adStore) UpdateStatus(adID int64, expected, next models.AdStatus, reason string) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casAdStatusLocked(adID, expected, next, reason)
}

func (a adStore) ListApprovedAds(filter models.AdFilter) ([]*models.Ad, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var ads []*models.Ad
	for _, ad := range s.ads {
		if ad.Status != models.AdStatusApproved || !filter.Matches(ad) {
			continue
		}
		clone := *ad
		ads = append(ads, &clone)
	}
	sort.Slice(ads, func(i, j int) bool { return ads[i].ID > ads[j].ID })
	return ads, nil
}

func (a adStore) StatusHistory(adID int64) ([]*models.AdStatusChange, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.adHistory[adID]
	out := make([]*models.AdStatusChange, 0, len(history))
	for _, change := range history {
		clone := *change
		out = append(out, &clone)
	}
	return out, nil
}

func (s *Store) casAdStatusLocked(adID int64, expected, next models.AdStatus, reason string) error {
	ad, ok := s.ads[adID]
	if !ok {
		return fmt.Errorf("ad %d: %w", adID, store.ErrNotFound)
	}
	if ad.Status != expected {
		return fmt.Errorf("ad %d is %s: %w", adID, ad.Status, store.ErrAdNotAvailable)
	}
	ad.Status = next
	ad.UpdatedAt = s.now()
	s.appendHistoryLocked(adID, expected, next, reason)
	return nil
}

func (s *Store) appendHistoryLocked(adID int64, old, next models.AdStatus, reason string) {
	s.nextHistoryID++
	s.adHistory[adID] = append(s.adHistory[adID], &models.AdStatusChange{
		ID:        s.nextHistoryID,
		AdID:      adID,
		OldStatus: old,
		NewStatus: next,
		Reason:    reason,
		CreatedAt: s.now(),
	})
}

// ─── carts ───

type cartStore struct{ s *Store }

func (c cartStore) AddItem(username string, adID int64) (bool, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.carts[username] {
		if id == adID {
			return false, nil
		}
	}
	s.carts[username] = append(s.carts[username], adID)
	return true, nil
}

func (c cartStore) RemoveItem(username string, adID int64) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCartItemLocked(username, adID)
	return nil
}

func (c cartStore) ListItems(username string) ([]int64, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.carts[username]
	out := make([]int64, len(items))
	copy(out, items)
	return out, nil
}

func (c cartStore) ClearItems(username string) error {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, username)
	return nil
}

func (c cartStore) HasItem(username string, adID int64) (bool, error) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.carts[username] {
		if id == adID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) removeCartItemLocked(username string, adID int64) {
	items := s.carts[username]
	for i, id := range items {
		if id == adID {
			s.carts[username] = append(items[:i], items[i+1:]...)
			return
		}
	}
}

// ─── wallets ───

type walletStore struct{ s *Store }

func (w walletStore) GetBalance(username string) (int64, error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[username]; !ok {
		s.wallets[username] = 0
	}
	return s.wallets[username], nil
}

func (w walletStore) TopUp(username string, amountTokens int64) (int64, error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	newBalance := s.wallets[username] + amountTokens
	if newBalance < 0 {
		return 0, fmt.Errorf("wallet %q: %w", username, store.ErrInsufficientFunds)
	}
	s.wallets[username] = newBalance
	s.appendLedgerLocked(username, models.LedgerTypeTopUp, amountTokens, newBalance, nil, "")
	return newBalance, nil
}

func (w walletStore) Checkout(buyer string, adIDs []int64, discountCode string) (*models.CheckoutResult, error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int64]bool, len(adIDs))
	for _, id := range adIDs {
		if seen[id] {
			return nil, fmt.Errorf("ad %d: %w", id, store.ErrDuplicateAd)
		}
		seen[id] = true
	}

	// Validation phase: no table is touched until every check passes, so a
	// failure needs no rollback.
	var subtotal int64
	var sellerOrder []string
	credits := make(map[string]int64)
	items := make([]models.PurchasedItem, 0, len(adIDs))
	for _, id := range adIDs {
		ad, ok := s.ads[id]
		if !ok {
			return nil, fmt.Errorf("ad %d: %w", id, store.ErrNotFound)
		}
		if ad.Status != models.AdStatusApproved {
			return nil, fmt.Errorf("ad %d is %s: %w", id, ad.Status, store.ErrAdNotAvailable)
		}
		if ad.SellerUsername == buyer {
			return nil, fmt.Errorf("ad %d: %w", id, store.ErrSelfPurchase)
		}
		subtotal += ad.PriceTokens
		if _, known := credits[ad.SellerUsername]; !known {
			sellerOrder = append(sellerOrder, ad.SellerUsername)
		}
		credits[ad.SellerUsername] += ad.PriceTokens
		items = append(items, models.PurchasedItem{
			AdID:           ad.ID,
			SellerUsername: ad.SellerUsername,
			PriceTokens:    ad.PriceTokens,
		})
	}

	var discount *models.DiscountCode
	var discountTokens int64
	if discountCode != "" {
		discount = s.discounts[strings.ToUpper(discountCode)]
		if discount == nil {
			return nil, fmt.Errorf("code %q is unknown: %w", discountCode, store.ErrDiscountNotUsable)
		}
		if err := discount.ValidateFor(subtotal, s.now()); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrDiscountNotUsable, err)
		}
		discountTokens = discount.DiscountFor(subtotal)
	}
	total := subtotal - discountTokens

	balance := s.wallets[buyer]
	if balance < total {
		return nil, fmt.Errorf("wallet %q: %w", buyer, store.ErrInsufficientFunds)
	}

	// Apply phase: atomic under the store mutex.
	newBuyerBalance := balance - total
	s.wallets[buyer] = newBuyerBalance
	s.appendLedgerLocked(buyer, models.LedgerTypePurchaseDebit, -total, newBuyerBalance, nil, "")

	// Sorted-name order, matching the SQL store's lock order.
	sort.Strings(sellerOrder)
	for _, seller := range sellerOrder {
		newBalance := s.wallets[seller] + credits[seller]
		s.wallets[seller] = newBalance
		s.appendLedgerLocked(seller, models.LedgerTypeSaleCredit, credits[seller], newBalance, nil, buyer)
	}

	for _, id := range adIDs {
		if err := s.casAdStatusLocked(id, models.AdStatusApproved, models.AdStatusSold, "checkout"); err != nil {
			return nil, err
		}
		s.removeCartItemLocked(buyer, id)
	}

	applied := ""
	if discount != nil {
		discount.UsedCount++
		discount.UpdatedAt = s.now()
		applied = discount.Code
	}

	return &models.CheckoutResult{
		BuyerBalance:        newBuyerBalance,
		SubtotalTokens:      subtotal,
		DiscountTokens:      discountTokens,
		TotalTokens:         total,
		AppliedDiscountCode: applied,
		PurchasedItems:      items,
	}, nil
}

func (w walletStore) ValidateDiscountCode(code string, subtotalTokens int64) (*models.DiscountCode, int64, error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	discount := s.discounts[strings.ToUpper(code)]
	if discount == nil {
		return nil, 0, fmt.Errorf("code %q is unknown: %w", code, store.ErrDiscountNotUsable)
	}
	if err := discount.ValidateFor(subtotalTokens, s.now()); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", store.ErrDiscountNotUsable, err)
	}
	clone := *discount
	return &clone, discount.DiscountFor(subtotalTokens), nil
}

func (w walletStore) ListDiscountCodes() ([]*models.DiscountCode, error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.DiscountCode, 0, len(s.discounts))
	for _, discount := range s.discounts {
		clone := *discount
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (w walletStore) UpsertDiscountCode(code *models.DiscountCode) error {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(code.Code)
	clone := *code
	clone.Code = key
	clone.UpdatedAt = s.now()
	if existing, ok := s.discounts[key]; ok {
		clone.UsedCount = existing.UsedCount
		clone.CreatedAt = existing.CreatedAt
	} else {
		clone.CreatedAt = clone.UpdatedAt
	}
	s.discounts[key] = &clone
	return nil
}

func (w walletStore) DeleteDiscountCode(code string) (bool, error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToUpper(code)
	if _, ok := s.discounts[key]; !ok {
		return false, nil
	}
	delete(s.discounts, key)
	return true, nil
}

func (w walletStore) TransactionHistory(username string, limit int) ([]*models.LedgerEntry, error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var out []*models.LedgerEntry
	for i := len(s.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if s.ledger[i].Username == username {
			clone := *s.ledger[i]
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *Store) appendLedgerLocked(username string, entryType models.LedgerEntryType, amount, balanceAfter int64, adID *int64, counterparty string) {
	s.nextLedgerID++
	s.ledger = append(s.ledger, &models.LedgerEntry{
		ID:           s.nextLedgerID,
		Username:     username,
		Type:         entryType,
		AmountTokens: amount,
		BalanceAfter: balanceAfter,
		AdID:         adID,
		Counterparty: counterparty,
		CreatedAt:    s.now(),
	})
}

// LedgerSize reports the total number of ledger rows, for atomicity tests.
func (s *Store) LedgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

// ─── audit ───

type auditStore struct{ s *Store }

func (a auditStore) Append(entityType string, entityID int64, action, details string) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAuditID++
	s.audit = append(s.audit, &models.AuditEntry{
		ID:         s.nextAuditID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Details:    details,
		CreatedAt:  s.now(),
	})
	return nil
}

func (a auditStore) Recent(limit int) ([]*models.AuditEntry, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	var out []*models.AuditEntry
	for i := len(s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *s.audit[i]
		out = append(out, &clone)
	}
	return out, nil
}
