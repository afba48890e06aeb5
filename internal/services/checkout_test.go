package services

import (
	"fmt"
	"strconv"
	"sync"
	"testing"

	"adpazar/internal/apperr"
	"adpazar/internal/captcha"
	"adpazar/internal/models"
	"adpazar/internal/protocol"
	"adpazar/internal/store/memstore"

	"github.com/rs/zerolog"
)

func newWalletService(st *memstore.Store) (*WalletService, *captcha.Service) {
	captchas := captcha.New(captcha.DefaultTTL, zerolog.Nop())
	return NewWalletService(st, captchas, zerolog.Nop()), captchas
}

func fund(t *testing.T, st *memstore.Store, username string, tokens int64) {
	t.Helper()
	if _, err := st.Wallets().TopUp(username, tokens); err != nil {
		t.Fatalf("fund(%q, %d) error = %v", username, tokens, err)
	}
}

func approvedAd(t *testing.T, st *memstore.Store, seller string, price int64) int64 {
	t.Helper()
	adID, err := st.Ads().CreatePendingAd(&models.Ad{
		Title:          "ilan",
		Category:       "genel",
		PriceTokens:    price,
		SellerUsername: seller,
	})
	if err != nil {
		t.Fatalf("CreatePendingAd() error = %v", err)
	}
	if err := st.Ads().UpdateStatus(adID, models.AdStatusPending, models.AdStatusApproved, "moderation"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	return adID
}

func solveCaptcha(t *testing.T, ch captcha.Challenge) string {
	t.Helper()
	var a, b int
	if _, err := fmt.Sscanf(ch.ChallengeText, "%d + %d = ?", &a, &b); err != nil {
		t.Fatalf("unexpected challenge text %q: %v", ch.ChallengeText, err)
	}
	return strconv.Itoa(a + b)
}

func TestCheckout_HappyPath(t *testing.T) {
	st := memstore.New()
	svc, _ := newWalletService(st)

	fund(t, st, "alice", 100)
	adID := approvedAd(t, st, "bob", 60)
	if _, err := st.Carts().AddItem("alice", adID); err != nil {
		t.Fatal(err)
	}

	var notified []string
	svc.SetNotifier(NotifierFunc(func(username string, env *protocol.Envelope) {
		notified = append(notified, username+":"+string(env.Command))
	}))

	result, err := svc.Checkout("alice", &models.CheckoutRequest{AdIDs: []int64{adID}})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if result.BuyerBalance != 40 {
		t.Errorf("BuyerBalance = %d, want 40", result.BuyerBalance)
	}
	if result.SubtotalTokens != 60 || result.TotalTokens != 60 || result.DiscountTokens != 0 {
		t.Errorf("amounts = %d/%d/%d, want 60/60/0", result.SubtotalTokens, result.TotalTokens, result.DiscountTokens)
	}
	if len(result.PurchasedItems) != 1 || result.PurchasedItems[0].SellerUsername != "bob" || result.PurchasedItems[0].PriceTokens != 60 {
		t.Errorf("PurchasedItems = %+v, want one item from bob at 60", result.PurchasedItems)
	}

	if balance, _ := st.Wallets().GetBalance("bob"); balance != 60 {
		t.Errorf("seller balance = %d, want 60", balance)
	}
	ad, _ := st.Ads().FindAdByID(adID)
	if ad.Status != models.AdStatusSold {
		t.Errorf("ad status = %q, want sold", ad.Status)
	}
	if items, _ := st.Carts().ListItems("alice"); len(items) != 0 {
		t.Errorf("buyer cart = %v, want empty after checkout", items)
	}

	// Buyer balance push, ad-sold push to the seller, seller balance push.
	if len(notified) != 3 {
		t.Errorf("notifications = %v, want 3", notified)
	}
}

func TestCheckout_InsufficientFundsChangesNothing(t *testing.T) {
	st := memstore.New()
	svc, _ := newWalletService(st)

	fund(t, st, "alice", 30)
	adID := approvedAd(t, st, "bob", 60)
	if _, err := st.Carts().AddItem("alice", adID); err != nil {
		t.Fatal(err)
	}
	ledgerBefore := st.LedgerSize()

	_, err := svc.Checkout("alice", &models.CheckoutRequest{AdIDs: []int64{adID}})
	if apperr.KindOf(err) != apperr.KindInsufficientFunds {
		t.Fatalf("Checkout() kind = %q, want %q", apperr.KindOf(err), apperr.KindInsufficientFunds)
	}

	if balance, _ := st.Wallets().GetBalance("alice"); balance != 30 {
		t.Errorf("buyer balance = %d, want 30 (unchanged)", balance)
	}
	if balance, _ := st.Wallets().GetBalance("bob"); balance != 0 {
		t.Errorf("seller balance = %d, want 0 (unchanged)", balance)
	}
	ad, _ := st.Ads().FindAdByID(adID)
	if ad.Status != models.AdStatusApproved {
		t.Errorf("ad status = %q, want approved (unchanged)", ad.Status)
	}
	if items, _ := st.Carts().ListItems("alice"); len(items) != 1 {
		t.Errorf("buyer cart = %v, want untouched", items)
	}
	if st.LedgerSize() != ledgerBefore {
		t.Errorf("ledger grew from %d to %d on a failed checkout", ledgerBefore, st.LedgerSize())
	}
}

func TestCheckout_NoDoubleSell(t *testing.T) {
	st := memstore.New()
	svc, _ := newWalletService(st)

	fund(t, st, "alice", 100)
	fund(t, st, "carol", 100)
	adID := approvedAd(t, st, "bob", 60)

	type outcome struct {
		buyer string
		err   error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for _, buyer := range []string{"alice", "carol"} {
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			_, err := svc.Checkout(buyer, &models.CheckoutRequest{AdIDs: []int64{adID}})
			results <- outcome{buyer, err}
		}(buyer)
	}
	wg.Wait()
	close(results)

	var won, lost int
	for r := range results {
		if r.err == nil {
			won++
			continue
		}
		lost++
		if apperr.KindOf(r.err) != apperr.KindAdNotAvailable {
			t.Errorf("loser %q kind = %q, want %q", r.buyer, apperr.KindOf(r.err), apperr.KindAdNotAvailable)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won = %d, lost = %d, want exactly one of each", won, lost)
	}

	// Exactly one debit and one credit despite two attempts.
	if balance, _ := st.Wallets().GetBalance("bob"); balance != 60 {
		t.Errorf("seller balance = %d, want 60", balance)
	}
}

func TestCheckout_MultiSellerWithDiscount(t *testing.T) {
	st := memstore.New()
	svc, _ := newWalletService(st)

	fund(t, st, "alice", 1000)
	bobAd := approvedAd(t, st, "bob", 250)
	carolAd := approvedAd(t, st, "carol", 150)

	if err := st.Wallets().UpsertDiscountCode(&models.DiscountCode{
		Code:              "SAVE20",
		Type:              models.DiscountTypePercent,
		ValueTokens:       20,
		MaxDiscountTokens: 50,
		UsageLimit:        models.UsageUnlimited,
		Active:            true,
	}); err != nil {
		t.Fatal(err)
	}

	// Caller order deliberately differs from the sellers' sorted order.
	result, err := svc.Checkout("alice", &models.CheckoutRequest{AdIDs: []int64{carolAd, bobAd}, DiscountCode: "save20"})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if result.SubtotalTokens != 400 || result.DiscountTokens != 50 || result.TotalTokens != 350 {
		t.Errorf("amounts = %d/%d/%d, want 400/50/350", result.SubtotalTokens, result.DiscountTokens, result.TotalTokens)
	}
	if result.AppliedDiscountCode != "SAVE20" {
		t.Errorf("AppliedDiscountCode = %q, want SAVE20", result.AppliedDiscountCode)
	}

	// The buyer pays the discounted total, every seller is credited the full
	// ad price.
	if result.BuyerBalance != 650 {
		t.Errorf("BuyerBalance = %d, want 650", result.BuyerBalance)
	}
	if balance, _ := st.Wallets().GetBalance("bob"); balance != 250 {
		t.Errorf("bob balance = %d, want 250", balance)
	}
	if balance, _ := st.Wallets().GetBalance("carol"); balance != 150 {
		t.Errorf("carol balance = %d, want 150", balance)
	}

	codes, _ := st.Wallets().ListDiscountCodes()
	if len(codes) != 1 || codes[0].UsedCount != 1 {
		t.Errorf("discount used_count = %d, want 1", codes[0].UsedCount)
	}
}

func TestCheckout_Rejections(t *testing.T) {
	st := memstore.New()
	svc, _ := newWalletService(st)

	fund(t, st, "alice", 1000)
	bobAd := approvedAd(t, st, "bob", 60)
	ownAd := approvedAd(t, st, "alice", 40)

	tests := []struct {
		name string
		req  *models.CheckoutRequest
		want apperr.Kind
	}{
		{"empty item list", &models.CheckoutRequest{}, apperr.KindValidation},
		{"duplicate ad ids", &models.CheckoutRequest{AdIDs: []int64{bobAd, bobAd}}, apperr.KindDuplicateAd},
		{"self purchase", &models.CheckoutRequest{AdIDs: []int64{ownAd}}, apperr.KindPermissionDenied},
		{"unknown ad", &models.CheckoutRequest{AdIDs: []int64{9999}}, apperr.KindNotFound},
		{"unknown discount", &models.CheckoutRequest{AdIDs: []int64{bobAd}, DiscountCode: "NOPE"}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Checkout("alice", tt.req)
			if apperr.KindOf(err) != tt.want {
				t.Errorf("Checkout() kind = %q, want %q", apperr.KindOf(err), tt.want)
			}
		})
	}

	if balance, _ := st.Wallets().GetBalance("alice"); balance != 1000 {
		t.Errorf("buyer balance = %d, want 1000 after rejected checkouts", balance)
	}
}

func TestUpsertDiscount_Validation(t *testing.T) {
	st := memstore.New()
	svc, _ := newWalletService(st)

	tests := []struct {
		name string
		code models.DiscountCode
	}{
		{"empty code", models.DiscountCode{Type: models.DiscountTypeFixed, ValueTokens: 10}},
		{"unknown type", models.DiscountCode{Code: "X", Type: "bogus", ValueTokens: 10}},
		{"non-positive value", models.DiscountCode{Code: "X", Type: models.DiscountTypeFixed, ValueTokens: 0}},
		{"percent over 100", models.DiscountCode{Code: "X", Type: models.DiscountTypePercent, ValueTokens: 150}},
		{"negative max discount", models.DiscountCode{Code: "X", Type: models.DiscountTypePercent, ValueTokens: 20, MaxDiscountTokens: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.UpsertDiscount("root", &tt.code)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("UpsertDiscount() kind = %q, want %q", apperr.KindOf(err), apperr.KindValidation)
			}
		})
	}

	if err := svc.UpsertDiscount("root", &models.DiscountCode{
		Code:        "ok10",
		Type:        models.DiscountTypePercent,
		ValueTokens: 10,
		UsageLimit:  models.UsageUnlimited,
		Active:      true,
	}); err != nil {
		t.Fatalf("UpsertDiscount() error = %v for a valid code", err)
	}
}

func TestTopUp_RequiresCaptcha(t *testing.T) {
	st := memstore.New()
	svc, captchas := newWalletService(st)

	_, err := svc.TopUp("alice", &models.TopUpRequest{AmountTokens: 100})
	if apperr.KindOf(err) != apperr.KindCaptchaRequired {
		t.Fatalf("TopUp() kind = %q, want %q", apperr.KindOf(err), apperr.KindCaptchaRequired)
	}

	ch := captchas.CreateChallenge(captcha.ScopeTopUp)
	balance, err := svc.TopUp("alice", &models.TopUpRequest{
		AmountTokens:  100,
		CaptchaNonce:  ch.Nonce,
		CaptchaAnswer: solveCaptcha(t, ch),
	})
	if err != nil {
		t.Fatalf("TopUp() error = %v", err)
	}
	if balance != 100 {
		t.Errorf("balance = %d, want 100", balance)
	}

	// A login-scoped challenge must not authorize a top-up.
	wrongScope := captchas.CreateChallenge(captcha.ScopeLogin)
	_, err = svc.TopUp("alice", &models.TopUpRequest{
		AmountTokens:  100,
		CaptchaNonce:  wrongScope.Nonce,
		CaptchaAnswer: solveCaptcha(t, wrongScope),
	})
	if apperr.KindOf(err) != apperr.KindCaptchaInvalid {
		t.Errorf("TopUp() kind = %q, want %q", apperr.KindOf(err), apperr.KindCaptchaInvalid)
	}
}
