package memstore

import (
	"errors"
	"testing"
	"time"

	"adpazar/internal/models"
	"adpazar/internal/store"
)

func seedUser(t *testing.T, s *Store, username string) {
	t.Helper()
	if _, err := s.Users().CreateUser(&models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         string(models.RoleUser),
	}); err != nil {
		t.Fatalf("CreateUser(%q) error = %v", username, err)
	}
}

func seedApprovedAd(t *testing.T, s *Store, seller string, price int64) int64 {
	t.Helper()
	adID, err := s.Ads().CreatePendingAd(&models.Ad{
		Title:          "ilan",
		Description:    "aciklama",
		Category:       "genel",
		PriceTokens:    price,
		SellerUsername: seller,
	})
	if err != nil {
		t.Fatalf("CreatePendingAd() error = %v", err)
	}
	if err := s.Ads().UpdateStatus(adID, models.AdStatusPending, models.AdStatusApproved, "moderation"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	return adID
}

func TestUserStore_DuplicateUsername(t *testing.T) {
	s := New()
	seedUser(t, s, "ali")

	_, err := s.Users().CreateUser(&models.User{Username: "ali", Email: "other@example.com"})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("CreateUser() error = %v, want ErrAlreadyExists", err)
	}
}

func TestAdStore_StatusCAS(t *testing.T) {
	s := New()
	seedUser(t, s, "ali")
	adID := seedApprovedAd(t, s, "ali", 100)

	// The ad is approved, so a pending→rejected transition must fail.
	err := s.Ads().UpdateStatus(adID, models.AdStatusPending, models.AdStatusRejected, "moderation")
	if !errors.Is(err, store.ErrAdNotAvailable) {
		t.Errorf("UpdateStatus() error = %v, want ErrAdNotAvailable", err)
	}

	if err := s.Ads().UpdateStatus(adID, models.AdStatusApproved, models.AdStatusArchived, "seller"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	ad, _ := s.Ads().FindAdByID(adID)
	if ad.Status != models.AdStatusArchived {
		t.Errorf("status = %q, want archived", ad.Status)
	}

	history, _ := s.Ads().StatusHistory(adID)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	last := history[len(history)-1]
	if last.OldStatus != models.AdStatusApproved || last.NewStatus != models.AdStatusArchived {
		t.Errorf("last transition = %s→%s, want approved→archived", last.OldStatus, last.NewStatus)
	}
}

func TestAdStore_UpdateStatusUnknownAd(t *testing.T) {
	s := New()
	err := s.Ads().UpdateStatus(42, models.AdStatusPending, models.AdStatusApproved, "moderation")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateStatus() error = %v, want ErrNotFound", err)
	}
}

func TestAdStore_ListApprovedOnly(t *testing.T) {
	s := New()
	seedUser(t, s, "ali")
	approved := seedApprovedAd(t, s, "ali", 100)
	if _, err := s.Ads().CreatePendingAd(&models.Ad{Title: "bekliyor", SellerUsername: "ali", PriceTokens: 50}); err != nil {
		t.Fatal(err)
	}

	ads, err := s.Ads().ListApprovedAds(models.AdFilter{})
	if err != nil {
		t.Fatalf("ListApprovedAds() error = %v", err)
	}
	if len(ads) != 1 || ads[0].ID != approved {
		t.Errorf("ListApprovedAds() returned %d ads, want just the approved one", len(ads))
	}
}

func TestCartStore_AddIsIdempotent(t *testing.T) {
	s := New()

	added, err := s.Carts().AddItem("ali", 7)
	if err != nil || !added {
		t.Fatalf("AddItem() = %v/%v, want true/nil", added, err)
	}
	added, err = s.Carts().AddItem("ali", 7)
	if err != nil {
		t.Fatalf("AddItem() second call error = %v", err)
	}
	if added {
		t.Error("AddItem() second call = true, want false")
	}

	items, _ := s.Carts().ListItems("ali")
	if len(items) != 1 || items[0] != 7 {
		t.Errorf("cart = %v, want [7]", items)
	}

	if err := s.Carts().RemoveItem("ali", 7); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if items, _ := s.Carts().ListItems("ali"); len(items) != 0 {
		t.Errorf("cart after remove = %v, want empty", items)
	}
}

func TestCartStore_HasItem(t *testing.T) {
	s := New()

	if has, err := s.Carts().HasItem("ali", 7); err != nil || has {
		t.Fatalf("HasItem() = %v/%v on an empty cart, want false/nil", has, err)
	}
	if _, err := s.Carts().AddItem("ali", 7); err != nil {
		t.Fatal(err)
	}
	if has, _ := s.Carts().HasItem("ali", 7); !has {
		t.Error("HasItem() = false after add")
	}
	if has, _ := s.Carts().HasItem("ali", 8); has {
		t.Error("HasItem() = true for an ad not in the cart")
	}
	if has, _ := s.Carts().HasItem("veli", 7); has {
		t.Error("HasItem() = true for another user's cart")
	}
	if err := s.Carts().RemoveItem("ali", 7); err != nil {
		t.Fatal(err)
	}
	if has, _ := s.Carts().HasItem("ali", 7); has {
		t.Error("HasItem() = true after remove")
	}
}

func TestWalletStore_TopUpWritesLedger(t *testing.T) {
	s := New()

	balance, err := s.Wallets().TopUp("ali", 250)
	if err != nil {
		t.Fatalf("TopUp() error = %v", err)
	}
	if balance != 250 {
		t.Errorf("balance = %d, want 250", balance)
	}

	history, _ := s.Wallets().TransactionHistory("ali", 10)
	if len(history) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(history))
	}
	entry := history[0]
	if entry.Type != models.LedgerTypeTopUp || entry.AmountTokens != 250 || entry.BalanceAfter != 250 {
		t.Errorf("ledger entry = %+v, want topup/250/250", entry)
	}
}

func TestWalletStore_CheckoutDuplicateAdIDs(t *testing.T) {
	s := New()
	seedUser(t, s, "bob")
	adID := seedApprovedAd(t, s, "bob", 10)
	if _, err := s.Wallets().TopUp("ali", 100); err != nil {
		t.Fatal(err)
	}

	_, err := s.Wallets().Checkout("ali", []int64{adID, adID}, "")
	if !errors.Is(err, store.ErrDuplicateAd) {
		t.Errorf("Checkout() error = %v, want ErrDuplicateAd", err)
	}
}

func TestWalletStore_CheckoutSelfPurchase(t *testing.T) {
	s := New()
	seedUser(t, s, "ali")
	adID := seedApprovedAd(t, s, "ali", 10)
	if _, err := s.Wallets().TopUp("ali", 100); err != nil {
		t.Fatal(err)
	}

	_, err := s.Wallets().Checkout("ali", []int64{adID}, "")
	if !errors.Is(err, store.ErrSelfPurchase) {
		t.Errorf("Checkout() error = %v, want ErrSelfPurchase", err)
	}
}

func TestUserStore_RenameCascades(t *testing.T) {
	s := New()
	seedUser(t, s, "ali")
	adID := seedApprovedAd(t, s, "ali", 100)
	if _, err := s.Wallets().TopUp("ali", 40); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Carts().AddItem("ali", 99); err != nil {
		t.Fatal(err)
	}

	if err := s.Users().UpdateUsername("ali", "veli"); err != nil {
		t.Fatalf("UpdateUsername() error = %v", err)
	}

	if _, err := s.Users().FindByUsername("ali"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindByUsername(old) error = %v, want ErrNotFound", err)
	}
	if _, err := s.Users().FindByUsername("veli"); err != nil {
		t.Errorf("FindByUsername(new) error = %v", err)
	}

	ad, _ := s.Ads().FindAdByID(adID)
	if ad.SellerUsername != "veli" {
		t.Errorf("ad seller = %q, want veli", ad.SellerUsername)
	}
	if balance, _ := s.Wallets().GetBalance("veli"); balance != 40 {
		t.Errorf("balance under new name = %d, want 40", balance)
	}
	if items, _ := s.Carts().ListItems("veli"); len(items) != 1 {
		t.Errorf("cart under new name = %v, want one item", items)
	}
	if history, _ := s.Wallets().TransactionHistory("veli", 10); len(history) != 1 {
		t.Errorf("ledger under new name has %d rows, want 1", len(history))
	}
}

func TestWalletStore_DiscountLifecycle(t *testing.T) {
	s := New()
	expiry := time.Now().Add(time.Hour)
	if err := s.Wallets().UpsertDiscountCode(&models.DiscountCode{
		Code:        "save20",
		Type:        models.DiscountTypePercent,
		ValueTokens: 20,
		UsageLimit:  models.UsageUnlimited,
		Active:      true,
		ExpiresAt:   &expiry,
	}); err != nil {
		t.Fatalf("UpsertDiscountCode() error = %v", err)
	}

	// Lookup is case-insensitive, codes are stored upper-cased.
	discount, tokens, err := s.Wallets().ValidateDiscountCode("Save20", 400)
	if err != nil {
		t.Fatalf("ValidateDiscountCode() error = %v", err)
	}
	if discount.Code != "SAVE20" || tokens != 80 {
		t.Errorf("discount = %q/%d, want SAVE20/80", discount.Code, tokens)
	}

	deleted, err := s.Wallets().DeleteDiscountCode("SAVE20")
	if err != nil || !deleted {
		t.Fatalf("DeleteDiscountCode() = %v/%v, want true/nil", deleted, err)
	}
	if deleted, _ := s.Wallets().DeleteDiscountCode("SAVE20"); deleted {
		t.Error("DeleteDiscountCode() second call = true, want false")
	}
	if _, _, err := s.Wallets().ValidateDiscountCode("SAVE20", 400); !errors.Is(err, store.ErrDiscountNotUsable) {
		t.Errorf("ValidateDiscountCode() after delete error = %v, want ErrDiscountNotUsable", err)
	}
}
