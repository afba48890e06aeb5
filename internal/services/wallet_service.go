package services

import (
	"fmt"
	"strings"

	"adpazar/internal/apperr"
	"adpazar/internal/captcha"
	"adpazar/internal/models"
	"adpazar/internal/protocol"
	"adpazar/internal/store"

	"github.com/rs/zerolog"
)

type WalletService struct {
	store    store.Store
	captchas *captcha.Service
	notifier Notifier
	logger   zerolog.Logger
}

func NewWalletService(st store.Store, captchas *captcha.Service, logger zerolog.Logger) *WalletService {
	return &WalletService{store: st, captchas: captchas, logger: logger}
}

// SetNotifier wires the push-notification sink; nil disables pushes.
func (s *WalletService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *WalletService) Balance(username string) (int64, error) {
	balance, err := s.store.Wallets().GetBalance(username)
	if err != nil {
		return 0, translate(err)
	}
	return balance, nil
}

func (s *WalletService) TopUp(username string, req *models.TopUpRequest) (int64, error) {
	if req.AmountTokens <= 0 {
		return 0, apperr.New(apperr.KindValidation, "top-up amount must be greater than zero")
	}
	if strings.TrimSpace(req.CaptchaNonce) == "" {
		return 0, apperr.New(apperr.KindCaptchaRequired, "captcha challenge is required")
	}
	if ok, reason := s.captchas.VerifyAndConsume(req.CaptchaNonce, req.CaptchaAnswer, captcha.ScopeTopUp); !ok {
		return 0, apperr.New(apperr.KindCaptchaInvalid, "captcha verification failed: "+reason)
	}

	balance, err := s.store.Wallets().TopUp(username, req.AmountTokens)
	if err != nil {
		return 0, translate(err)
	}
	s.audit("wallet", 0, "topup", fmt.Sprintf("%s +%d", username, req.AmountTokens))
	s.pushBalance(username, balance)
	return balance, nil
}

// Checkout delegates the atomic purchase to the wallet store, records the
// audit row for both outcomes and pushes balance/sale notifications on
// success.
func (s *WalletService) Checkout(buyer string, req *models.CheckoutRequest) (*models.CheckoutResult, error) {
	if len(req.AdIDs) == 0 {
		return nil, apperr.New(apperr.KindValidation, "checkout requires at least one item")
	}

	result, err := s.store.Wallets().Checkout(buyer, req.AdIDs, strings.TrimSpace(req.DiscountCode))
	if err != nil {
		translated := translate(err)
		s.audit("checkout", 0, "failed", fmt.Sprintf("%s: %v", buyer, translated))
		s.logger.Warn().Err(err).Str("buyer", buyer).Ints64("ad_ids", req.AdIDs).Msg("Checkout failed")
		return nil, translated
	}

	s.audit("checkout", 0, "completed",
		fmt.Sprintf("%s bought %d items, subtotal %d, discount %d", buyer, len(result.PurchasedItems), result.SubtotalTokens, result.DiscountTokens))

	s.pushBalance(buyer, result.BuyerBalance)
	for _, item := range result.PurchasedItems {
		s.pushAdSold(item, buyer)
	}
	s.pushSellerBalances(result)
	return result, nil
}

func (s *WalletService) History(username string, limit int) ([]*models.LedgerEntry, error) {
	entries, err := s.store.Wallets().TransactionHistory(username, limit)
	if err != nil {
		return nil, translate(err)
	}
	return entries, nil
}

func (s *WalletService) ValidateDiscount(req *models.ValidateDiscountRequest) (*models.ValidateDiscountResponse, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, apperr.New(apperr.KindValidation, "discount code is required")
	}
	discount, tokens, err := s.store.Wallets().ValidateDiscountCode(code, req.SubtotalTokens)
	if err != nil {
		return nil, translate(err)
	}
	return &models.ValidateDiscountResponse{Code: discount.Code, DiscountTokens: tokens}, nil
}

func (s *WalletService) ListDiscounts() ([]*models.DiscountCode, error) {
	codes, err := s.store.Wallets().ListDiscountCodes()
	if err != nil {
		return nil, translate(err)
	}
	return codes, nil
}

func (s *WalletService) UpsertDiscount(actor string, code *models.DiscountCode) error {
	code.Code = strings.ToUpper(strings.TrimSpace(code.Code))
	if code.Code == "" {
		return apperr.New(apperr.KindValidation, "discount code is required")
	}
	if code.Type != models.DiscountTypePercent && code.Type != models.DiscountTypeFixed {
		return apperr.New(apperr.KindValidation, "discount type must be percent or fixed")
	}
	if code.ValueTokens <= 0 {
		return apperr.New(apperr.KindValidation, "discount value must be greater than zero")
	}
	if code.Type == models.DiscountTypePercent && code.ValueTokens > 100 {
		return apperr.New(apperr.KindValidation, "percent discount cannot exceed 100")
	}
	if code.MaxDiscountTokens < 0 {
		return apperr.New(apperr.KindValidation, "max discount cannot be negative, use zero for no cap")
	}

	if err := s.store.Wallets().UpsertDiscountCode(code); err != nil {
		return translate(err)
	}
	s.audit("discount", 0, "upserted", fmt.Sprintf("%s by %s", code.Code, actor))
	return nil
}

func (s *WalletService) DeleteDiscount(actor, code string) (bool, error) {
	deleted, err := s.store.Wallets().DeleteDiscountCode(strings.TrimSpace(code))
	if err != nil {
		return false, translate(err)
	}
	if deleted {
		s.audit("discount", 0, "deleted", fmt.Sprintf("%s by %s", strings.ToUpper(code), actor))
	}
	return deleted, nil
}

func (s *WalletService) pushBalance(username string, balance int64) {
	if s.notifier == nil {
		return
	}
	env, err := protocol.NewPush(protocol.CmdNotifyWalletChanged, &models.BalanceResponse{
		Username:      username,
		BalanceTokens: balance,
	})
	if err != nil {
		return
	}
	s.notifier.Notify(username, env)
}

func (s *WalletService) pushSellerBalances(result *models.CheckoutResult) {
	if s.notifier == nil {
		return
	}
	notified := make(map[string]bool)
	for _, item := range result.PurchasedItems {
		if notified[item.SellerUsername] {
			continue
		}
		notified[item.SellerUsername] = true
		balance, err := s.store.Wallets().GetBalance(item.SellerUsername)
		if err != nil {
			continue
		}
		s.pushBalance(item.SellerUsername, balance)
	}
}

func (s *WalletService) pushAdSold(item models.PurchasedItem, buyer string) {
	if s.notifier == nil {
		return
	}
	env, err := protocol.NewPush(protocol.CmdNotifyAdSold, &models.AdSoldNotification{
		AdID:          item.AdID,
		PriceTokens:   item.PriceTokens,
		BuyerUsername: buyer,
	})
	if err != nil {
		return
	}
	s.notifier.Notify(item.SellerUsername, env)
}

func (s *WalletService) audit(entityType string, entityID int64, action, details string) {
	if err := s.store.Audit().Append(entityType, entityID, action, details); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("Failed to record audit row (non-critical)")
	}
}
