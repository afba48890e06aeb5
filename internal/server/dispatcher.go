package server

import (
	"adpazar/internal/apperr"
	"adpazar/internal/captcha"
	"adpazar/internal/models"
	"adpazar/internal/protocol"
	"adpazar/internal/services"
	"adpazar/internal/session"

	"github.com/rs/zerolog"
)

// Binder receives the identity resolved for an authorized request, so the
// connection can route pushes and audit logs afterwards.
type Binder interface {
	Bind(Identity)
}

// Dispatcher routes request envelopes to domain operations, gating
// everything except login, signup, captcha and ping behind a valid session.
// It always produces exactly one response envelope per request.
type Dispatcher struct {
	auth     *services.AuthService
	ads      *services.AdService
	carts    *services.CartService
	wallets  *services.WalletService
	audits   *services.AuditService
	sessions *session.Service
	captchas *captcha.Service
	logger   zerolog.Logger
}

func NewDispatcher(
	auth *services.AuthService,
	ads *services.AdService,
	carts *services.CartService,
	wallets *services.WalletService,
	audits *services.AuditService,
	sessions *session.Service,
	captchas *captcha.Service,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		auth:     auth,
		ads:      ads,
		carts:    carts,
		wallets:  wallets,
		audits:   audits,
		sessions: sessions,
		captchas: captchas,
		logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(env *protocol.Envelope, binder Binder) *protocol.Envelope {
	cmd := env.Command.Canonical()
	if !cmd.Known() {
		return protocol.NewFailure(env, apperr.New(apperr.KindInvalidPayload, "unknown command"))
	}

	var ident Identity
	if !cmd.Public() {
		info, ok := d.sessions.Validate(env.SessionToken)
		if !ok {
			d.logger.Warn().Str("command", string(cmd)).Msg("Unauthorized request")
			return protocol.NewFailure(env, apperr.New(apperr.KindUnauthorized, "missing or invalid session"))
		}
		if cmd.Admin() && info.Role != string(models.RoleAdmin) {
			d.logger.Warn().Str("command", string(cmd)).Str("username", info.Username).Msg("Forbidden admin request")
			return protocol.NewFailure(env, apperr.New(apperr.KindPermissionDenied, "administrator role required"))
		}
		ident = Identity{Token: info.Token, Username: info.Username, Role: info.Role}
		binder.Bind(ident)
	}

	payload, err := d.handle(cmd, env, ident, binder)
	if err != nil {
		return protocol.NewFailure(env, err)
	}
	return protocol.NewResult(env, payload)
}

func (d *Dispatcher) handle(cmd protocol.Command, env *protocol.Envelope, ident Identity, binder Binder) (any, error) {
	switch cmd {
	case protocol.CmdPing:
		return map[string]bool{"pong": true}, nil

	case protocol.CmdCaptcha:
		var req struct {
			Scope string `json:"scope"`
		}
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		switch req.Scope {
		case captcha.ScopeLogin, captcha.ScopeSignup, captcha.ScopeTopUp:
		default:
			return nil, apperr.New(apperr.KindValidation, "unknown captcha scope")
		}
		return d.captchas.CreateChallenge(req.Scope), nil

	case protocol.CmdSignup:
		var req models.SignupRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		user, err := d.auth.Signup(&req)
		if err != nil {
			return nil, err
		}
		return &models.AuthResponse{User: user}, nil

	case protocol.CmdLogin:
		var req models.LoginRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		resp, err := d.auth.Login(&req)
		if err != nil {
			return nil, err
		}
		binder.Bind(Identity{Token: resp.Token, Username: resp.User.Username, Role: resp.User.Role})
		return resp, nil

	case protocol.CmdLogout:
		loggedOut := d.auth.Logout(env.SessionToken)
		return map[string]bool{"logged_out": loggedOut}, nil

	case protocol.CmdRefresh:
		token, err := d.auth.Refresh(env.SessionToken)
		if err != nil {
			return nil, err
		}
		binder.Bind(Identity{Token: token, Username: ident.Username, Role: ident.Role})
		return map[string]string{"token": token}, nil

	case protocol.CmdRename:
		var req models.RenameRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		if err := d.auth.Rename(env.SessionToken, ident.Username, &req); err != nil {
			return nil, err
		}
		binder.Bind(Identity{Token: ident.Token, Username: req.NewUsername, Role: ident.Role})
		return map[string]string{"username": req.NewUsername}, nil

	case protocol.CmdAdCreate:
		var req models.CreateAdRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		return d.ads.Create(ident.Username, &req)

	case protocol.CmdAdList:
		var req models.ListAdsRequest
		if err := decodeOptional(env, &req); err != nil {
			return nil, err
		}
		ads, err := d.ads.List(req.Filter)
		if err != nil {
			return nil, err
		}
		return &models.AdListResponse{Ads: ads}, nil

	case protocol.CmdAdGet:
		var req models.GetAdRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		return d.ads.Get(req.AdID)

	case protocol.CmdCartAdd:
		var req models.CartItemRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		alreadyPresent, err := d.carts.Add(ident.Username, req.AdID)
		if err != nil {
			return nil, err
		}
		items, err := d.carts.List(ident.Username)
		if err != nil {
			return nil, err
		}
		return &models.CartResponse{AdIDs: items, AlreadyPresent: alreadyPresent}, nil

	case protocol.CmdCartRemove:
		var req models.CartItemRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		if err := d.carts.Remove(ident.Username, req.AdID); err != nil {
			return nil, err
		}
		return d.cartContents(ident.Username)

	case protocol.CmdCartList:
		return d.cartContents(ident.Username)

	case protocol.CmdCartClear:
		if err := d.carts.Clear(ident.Username); err != nil {
			return nil, err
		}
		return &models.CartResponse{AdIDs: []int64{}}, nil

	case protocol.CmdWalletBalance:
		balance, err := d.wallets.Balance(ident.Username)
		if err != nil {
			return nil, err
		}
		return &models.BalanceResponse{Username: ident.Username, BalanceTokens: balance}, nil

	case protocol.CmdWalletTopUp:
		var req models.TopUpRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		balance, err := d.wallets.TopUp(ident.Username, &req)
		if err != nil {
			return nil, err
		}
		return &models.BalanceResponse{Username: ident.Username, BalanceTokens: balance}, nil

	case protocol.CmdWalletHistory:
		var req models.HistoryRequest
		if err := decodeOptional(env, &req); err != nil {
			return nil, err
		}
		entries, err := d.wallets.History(ident.Username, req.Limit)
		if err != nil {
			return nil, err
		}
		return &models.HistoryResponse{Entries: entries}, nil

	case protocol.CmdCheckout:
		var req models.CheckoutRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		return d.wallets.Checkout(ident.Username, &req)

	case protocol.CmdDiscountValidate:
		var req models.ValidateDiscountRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		return d.wallets.ValidateDiscount(&req)

	case protocol.CmdAdminAdModerate:
		var req models.ModerateAdRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		return d.ads.Moderate(ident.Username, &req)

	case protocol.CmdAdminDiscountList:
		codes, err := d.wallets.ListDiscounts()
		if err != nil {
			return nil, err
		}
		return &models.DiscountListResponse{Codes: codes}, nil

	case protocol.CmdAdminDiscountUpsert:
		var req models.DiscountCode
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		if err := d.wallets.UpsertDiscount(ident.Username, &req); err != nil {
			return nil, err
		}
		return &req, nil

	case protocol.CmdAdminDiscountDelete:
		var req models.DeleteDiscountRequest
		if err := env.DecodePayload(&req); err != nil {
			return nil, err
		}
		deleted, err := d.wallets.DeleteDiscount(ident.Username, req.Code)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": deleted}, nil

	case protocol.CmdAdminAuditRecent:
		var req models.AuditRecentRequest
		if err := decodeOptional(env, &req); err != nil {
			return nil, err
		}
		entries, err := d.audits.Recent(req.Limit)
		if err != nil {
			return nil, err
		}
		return &models.AuditListResponse{Entries: entries}, nil
	}

	return nil, apperr.New(apperr.KindInvalidPayload, "unknown command")
}

func (d *Dispatcher) cartContents(username string) (any, error) {
	items, err := d.carts.List(username)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []int64{}
	}
	return &models.CartResponse{AdIDs: items}, nil
}

// decodeOptional is DecodePayload for requests whose payload may be absent.
func decodeOptional(env *protocol.Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return env.DecodePayload(dst)
}
