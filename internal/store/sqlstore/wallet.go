package sqlstore

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"adpazar/internal/models"
	"adpazar/internal/store"
)

type walletStore struct{ s *Store }

func (w walletStore) GetBalance(username string) (int64, error) {
	s := w.s

	var balance int64
	err := s.db.QueryRow("SELECT balance_tokens FROM wallets WHERE username = ?", username).Scan(&balance)
	if err == sql.ErrNoRows {
		if _, err := s.db.Exec("INSERT INTO wallets (username, balance_tokens) VALUES (?, 0)", username); err != nil {
			s.logger.Error().Err(err).Str("username", username).Msg("Error initializing wallet")
			return 0, fmt.Errorf("failed to initialize wallet: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Error fetching balance")
		return 0, fmt.Errorf("database error: %w", err)
	}
	return balance, nil
}

// TopUp is an atomic read-modify-write: the wallet row stays locked from the
// SELECT ... FOR UPDATE until the ledger row is committed.
func (w walletStore) TopUp(username string, amountTokens int64) (int64, error) {
	s := w.s

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting top-up transaction")
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := lockWalletTx(tx, username)
	if err != nil {
		return 0, err
	}
	newBalance := balance + amountTokens
	if newBalance < 0 {
		return 0, fmt.Errorf("wallet %q: %w", username, store.ErrInsufficientFunds)
	}

	if err := writeBalanceTx(tx, username, newBalance); err != nil {
		return 0, err
	}
	if err := appendLedgerTx(tx, username, models.LedgerTypeTopUp, amountTokens, newBalance, nil, ""); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing top-up")
		return 0, fmt.Errorf("failed to commit top-up: %w", err)
	}

	s.logger.Info().Str("username", username).Int64("amount", amountTokens).Int64("balance", newBalance).Msg("Wallet topped up")
	return newBalance, nil
}

// Checkout runs steps 1–9 of the purchase as one database transaction. The
// deferred rollback undoes every mutation on any failure; the approved→sold
// compare-and-swap inside the transaction is the double-sell guard.
func (w walletStore) Checkout(buyer string, adIDs []int64, discountCode string) (*models.CheckoutResult, error) {
	s := w.s

	seen := make(map[int64]bool, len(adIDs))
	for _, id := range adIDs {
		if seen[id] {
			return nil, fmt.Errorf("ad %d: %w", id, store.ErrDuplicateAd)
		}
		seen[id] = true
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting checkout transaction")
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// Step 1: validate every ad in caller order, accumulating the subtotal
	// and one aggregated credit per seller.
	var subtotal int64
	var sellerOrder []string
	credits := make(map[string]int64)
	items := make([]models.PurchasedItem, 0, len(adIDs))
	for _, id := range adIDs {
		var price int64
		var seller, status string
		err := tx.QueryRow("SELECT price_tokens, seller_username, status FROM ads WHERE id = ? FOR UPDATE", id).
			Scan(&price, &seller, &status)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ad %d: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		if models.AdStatus(status) != models.AdStatusApproved {
			return nil, fmt.Errorf("ad %d is %s: %w", id, status, store.ErrAdNotAvailable)
		}
		if seller == buyer {
			return nil, fmt.Errorf("ad %d: %w", id, store.ErrSelfPurchase)
		}
		subtotal += price
		if _, known := credits[seller]; !known {
			sellerOrder = append(sellerOrder, seller)
		}
		credits[seller] += price
		items = append(items, models.PurchasedItem{AdID: id, SellerUsername: seller, PriceTokens: price})
	}

	// Step 2: discount.
	var discount *models.DiscountCode
	var discountTokens int64
	if discountCode != "" {
		discount, err = lockDiscountTx(tx, discountCode)
		if err != nil {
			return nil, err
		}
		if err := discount.ValidateFor(subtotal, s.now()); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrDiscountNotUsable, err)
		}
		discountTokens = discount.DiscountFor(subtotal)
	}
	total := subtotal - discountTokens

	// Steps 3–4: buyer debit.
	balance, err := lockWalletTx(tx, buyer)
	if err != nil {
		return nil, err
	}
	if balance < total {
		return nil, fmt.Errorf("wallet %q: %w", buyer, store.ErrInsufficientFunds)
	}
	newBuyerBalance := balance - total
	if err := writeBalanceTx(tx, buyer, newBuyerBalance); err != nil {
		return nil, err
	}

	// Steps 5 and 7: conditional approved→sold per ad, cart cleanup.
	for _, id := range adIDs {
		if err := casAdStatusTx(tx, id, models.AdStatusApproved, models.AdStatusSold, "checkout"); err != nil {
			return nil, err
		}
		if _, err := tx.Exec("DELETE FROM cart_items WHERE username = ? AND ad_id = ?", buyer, id); err != nil {
			return nil, fmt.Errorf("failed to clear cart item: %w", err)
		}
	}

	// Steps 4 and 6: seller credits with their ledger rows, then the buyer's
	// single debit row. Seller wallets are locked in sorted-name order so two
	// concurrent checkouts sharing sellers cannot deadlock on each other.
	if err := appendLedgerTx(tx, buyer, models.LedgerTypePurchaseDebit, -total, newBuyerBalance, nil, ""); err != nil {
		return nil, err
	}
	sort.Strings(sellerOrder)
	for _, seller := range sellerOrder {
		sellerBalance, err := lockWalletTx(tx, seller)
		if err != nil {
			return nil, err
		}
		newSellerBalance := sellerBalance + credits[seller]
		if err := writeBalanceTx(tx, seller, newSellerBalance); err != nil {
			return nil, err
		}
		if err := appendLedgerTx(tx, seller, models.LedgerTypeSaleCredit, credits[seller], newSellerBalance, nil, buyer); err != nil {
			return nil, err
		}
	}

	// Step 8: count the discount use, re-checking the limit at write time.
	applied := ""
	if discount != nil {
		result, err := tx.Exec(
			"UPDATE discount_codes SET used_count = used_count + 1 WHERE code = ? AND (usage_limit < 0 OR used_count < usage_limit)",
			discount.Code,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to count discount use: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: discount code usage limit reached", store.ErrDiscountNotUsable)
		}
		applied = discount.Code
	}

	// Step 9.
	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing checkout")
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	s.logger.Info().
		Str("buyer", buyer).
		Int64("subtotal", subtotal).
		Int64("discount", discountTokens).
		Int64("total", total).
		Int("items", len(items)).
		Msg("Checkout completed")

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

	discount, err := w.findDiscount(code)
	if err != nil {
		return nil, 0, err
	}
	if err := discount.ValidateFor(subtotalTokens, s.now()); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", store.ErrDiscountNotUsable, err)
	}
	return discount, discount.DiscountFor(subtotalTokens), nil
}

func (w walletStore) ListDiscountCodes() ([]*models.DiscountCode, error) {
	s := w.s

	rows, err := s.db.Query(
		"SELECT code, type, value_tokens, max_discount_tokens, min_subtotal_tokens, usage_limit, used_count, active, expires_at, created_at, updated_at FROM discount_codes ORDER BY code",
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error listing discount codes")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var codes []*models.DiscountCode
	for rows.Next() {
		discount, err := scanDiscount(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning discount code: %w", err)
		}
		codes = append(codes, discount)
	}
	return codes, rows.Err()
}

func (w walletStore) UpsertDiscountCode(code *models.DiscountCode) error {
	s := w.s

	var expires any
	if code.ExpiresAt != nil {
		expires = *code.ExpiresAt
	}
	_, err := s.db.Exec(`
		INSERT INTO discount_codes (code, type, value_tokens, max_discount_tokens, min_subtotal_tokens, usage_limit, active, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			type = VALUES(type),
			value_tokens = VALUES(value_tokens),
			max_discount_tokens = VALUES(max_discount_tokens),
			min_subtotal_tokens = VALUES(min_subtotal_tokens),
			usage_limit = VALUES(usage_limit),
			active = VALUES(active),
			expires_at = VALUES(expires_at)`,
		strings.ToUpper(code.Code), string(code.Type), code.ValueTokens, code.MaxDiscountTokens,
		code.MinSubtotalTokens, code.UsageLimit, code.Active, expires,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("code", code.Code).Msg("Error upserting discount code")
		return fmt.Errorf("failed to upsert discount code: %w", err)
	}
	return nil
}

func (w walletStore) DeleteDiscountCode(code string) (bool, error) {
	s := w.s

	result, err := s.db.Exec("DELETE FROM discount_codes WHERE code = ?", strings.ToUpper(code))
	if err != nil {
		s.logger.Error().Err(err).Str("code", code).Msg("Error deleting discount code")
		return false, fmt.Errorf("failed to delete discount code: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (w walletStore) TransactionHistory(username string, limit int) ([]*models.LedgerEntry, error) {
	s := w.s

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, username, type, amount_tokens, balance_after, ad_id, counterparty, created_at FROM wallet_ledger WHERE username = ? ORDER BY id DESC LIMIT ?",
		username, limit,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Error fetching ledger")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var entryType string
		var adID sql.NullInt64
		var counterparty sql.NullString
		err := rows.Scan(&entry.ID, &entry.Username, &entryType, &entry.AmountTokens,
			&entry.BalanceAfter, &adID, &counterparty, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning ledger entry: %w", err)
		}
		entry.Type = models.LedgerEntryType(entryType)
		if adID.Valid {
			val := adID.Int64
			entry.AdID = &val
		}
		entry.Counterparty = counterparty.String
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (w walletStore) findDiscount(code string) (*models.DiscountCode, error) {
	discount, err := scanDiscount(w.s.db.QueryRow(
		"SELECT code, type, value_tokens, max_discount_tokens, min_subtotal_tokens, usage_limit, used_count, active, expires_at, created_at, updated_at FROM discount_codes WHERE code = ?",
		strings.ToUpper(code),
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("code %q is unknown: %w", code, store.ErrDiscountNotUsable)
	}
	if err != nil {
		w.s.logger.Error().Err(err).Str("code", code).Msg("Error fetching discount code")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return discount, nil
}

func scanDiscount(row rowScanner) (*models.DiscountCode, error) {
	var discount models.DiscountCode
	var discountType string
	var expires sql.NullTime
	err := row.Scan(&discount.Code, &discountType, &discount.ValueTokens, &discount.MaxDiscountTokens,
		&discount.MinSubtotalTokens, &discount.UsageLimit, &discount.UsedCount, &discount.Active,
		&expires, &discount.CreatedAt, &discount.UpdatedAt)
	if err != nil {
		return nil, err
	}
	discount.Type = models.DiscountType(discountType)
	if expires.Valid {
		val := expires.Time
		discount.ExpiresAt = &val
	}
	return &discount, nil
}

func lockDiscountTx(tx *sql.Tx, code string) (*models.DiscountCode, error) {
	discount, err := scanDiscount(tx.QueryRow(
		"SELECT code, type, value_tokens, max_discount_tokens, min_subtotal_tokens, usage_limit, used_count, active, expires_at, created_at, updated_at FROM discount_codes WHERE code = ? FOR UPDATE",
		strings.ToUpper(code),
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("code %q is unknown: %w", code, store.ErrDiscountNotUsable)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return discount, nil
}

// lockWalletTx reads a wallet balance under FOR UPDATE, creating the row
// first when the user has no wallet yet.
func lockWalletTx(tx *sql.Tx, username string) (int64, error) {
	var balance int64
	err := tx.QueryRow("SELECT balance_tokens FROM wallets WHERE username = ? FOR UPDATE", username).Scan(&balance)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec("INSERT INTO wallets (username, balance_tokens) VALUES (?, 0)", username); err != nil {
			return 0, fmt.Errorf("failed to initialize wallet: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return balance, nil
}

func writeBalanceTx(tx *sql.Tx, username string, balance int64) error {
	if _, err := tx.Exec("UPDATE wallets SET balance_tokens = ?, updated_at = NOW() WHERE username = ?", balance, username); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func appendLedgerTx(tx *sql.Tx, username string, entryType models.LedgerEntryType, amount, balanceAfter int64, adID *int64, counterparty string) error {
	var adVal any
	if adID != nil {
		adVal = *adID
	}
	_, err := tx.Exec(
		"INSERT INTO wallet_ledger (username, type, amount_tokens, balance_after, ad_id, counterparty) VALUES (?, ?, ?, ?, ?, ?)",
		username, string(entryType), amount, balanceAfter, adVal, counterparty,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger row: %w", err)
	}
	return nil
}
