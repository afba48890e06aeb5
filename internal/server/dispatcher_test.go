package server

import (
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"adpazar/internal/apperr"
	"adpazar/internal/auth"
	"adpazar/internal/captcha"
	"adpazar/internal/models"
	"adpazar/internal/protocol"
	"adpazar/internal/services"
	"adpazar/internal/session"
	"adpazar/internal/store/memstore"

	"github.com/rs/zerolog"
)

type fakeBinder struct {
	ident Identity
	bound int
}

func (b *fakeBinder) Bind(ident Identity) {
	b.ident = ident
	b.bound++
}

type dispatchEnv struct {
	dispatcher *Dispatcher
	store      *memstore.Store
	sessions   *session.Service
	captchas   *captcha.Service
}

func newDispatchEnv(t *testing.T) *dispatchEnv {
	t.Helper()
	logger := zerolog.Nop()
	st := memstore.New()
	sessions := session.New(logger)
	captchas := captcha.New(captcha.DefaultTTL, logger)
	hasher := auth.NewPasswordHasher()

	authSvc := services.NewAuthService(st, sessions, captchas, hasher, logger)
	adSvc := services.NewAdService(st, logger)
	cartSvc := services.NewCartService(st, logger)
	walletSvc := services.NewWalletService(st, captchas, logger)
	auditSvc := services.NewAuditService(st, logger)

	return &dispatchEnv{
		dispatcher: NewDispatcher(authSvc, adSvc, cartSvc, walletSvc, auditSvc, sessions, captchas, logger),
		store:      st,
		sessions:   sessions,
		captchas:   captchas,
	}
}

func request(t *testing.T, cmd protocol.Command, payload any, token string) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewRequest(cmd, payload)
	if err != nil {
		t.Fatalf("NewRequest(%q) error = %v", cmd, err)
	}
	env.SessionToken = token
	return env
}

func solveChallenge(t *testing.T, ch captcha.Challenge) string {
	t.Helper()
	var a, b int
	if _, err := fmt.Sscanf(ch.ChallengeText, "%d + %d = ?", &a, &b); err != nil {
		t.Fatalf("unexpected challenge text %q: %v", ch.ChallengeText, err)
	}
	return strconv.Itoa(a + b)
}

func TestDispatch_PingIsPublic(t *testing.T) {
	d := newDispatchEnv(t)

	resp := d.dispatcher.Dispatch(request(t, protocol.CmdPing, nil, ""), &fakeBinder{})
	if !resp.Success {
		t.Fatalf("ping failed: %s", resp.StatusMessage)
	}
	if resp.Command != protocol.CmdPing.Result() {
		t.Errorf("Command = %q, want %q", resp.Command, protocol.CmdPing.Result())
	}
}

func TestDispatch_UnauthorizedWithoutSession(t *testing.T) {
	d := newDispatchEnv(t)

	resp := d.dispatcher.Dispatch(request(t, protocol.CmdCartList, nil, ""), &fakeBinder{})
	if resp.Success {
		t.Fatal("cart/list succeeded without a session")
	}
	if resp.ErrorCode != string(apperr.KindUnauthorized) {
		t.Errorf("ErrorCode = %q, want %q", resp.ErrorCode, apperr.KindUnauthorized)
	}
	if resp.Command != protocol.CmdCartList.Result() {
		t.Errorf("Command = %q, want %q", resp.Command, protocol.CmdCartList.Result())
	}
}

func TestDispatch_AdminCommandsAreGated(t *testing.T) {
	d := newDispatchEnv(t)
	userToken := d.sessions.Create("ali", string(models.RoleUser))
	adminToken := d.sessions.Create("root", string(models.RoleAdmin))

	resp := d.dispatcher.Dispatch(request(t, protocol.CmdAdminDiscountList, nil, userToken), &fakeBinder{})
	if resp.Success || resp.ErrorCode != string(apperr.KindPermissionDenied) {
		t.Errorf("user got %v/%q, want denied with %q", resp.Success, resp.ErrorCode, apperr.KindPermissionDenied)
	}

	resp = d.dispatcher.Dispatch(request(t, protocol.CmdAdminDiscountList, nil, adminToken), &fakeBinder{})
	if !resp.Success {
		t.Errorf("admin was denied: %s", resp.StatusMessage)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d := newDispatchEnv(t)

	resp := d.dispatcher.Dispatch(request(t, "no/such/request", nil, ""), &fakeBinder{})
	if resp.Success {
		t.Fatal("unknown command succeeded")
	}
	if resp.Command != protocol.CmdError {
		t.Errorf("Command = %q, want %q", resp.Command, protocol.CmdError)
	}
	if resp.ErrorCode != string(apperr.KindInvalidPayload) {
		t.Errorf("ErrorCode = %q, want %q", resp.ErrorCode, apperr.KindInvalidPayload)
	}
}

func TestDispatch_RequestIDEcho(t *testing.T) {
	d := newDispatchEnv(t)

	env := request(t, protocol.CmdPing, nil, "")
	env.RequestID = "abc-123"
	resp := d.dispatcher.Dispatch(env, &fakeBinder{})
	if resp.RequestID != "abc-123" {
		t.Errorf("RequestID = %q, want abc-123", resp.RequestID)
	}
}

func TestDispatch_BinderReceivesIdentity(t *testing.T) {
	d := newDispatchEnv(t)
	token := d.sessions.Create("ali", string(models.RoleUser))
	binder := &fakeBinder{}

	resp := d.dispatcher.Dispatch(request(t, protocol.CmdWalletBalance, nil, token), binder)
	if !resp.Success {
		t.Fatalf("wallet/balance failed: %s", resp.StatusMessage)
	}
	if binder.bound != 1 || binder.ident.Username != "ali" || binder.ident.Token != token {
		t.Errorf("binder = %+v (bound %d), want ali's identity bound once", binder.ident, binder.bound)
	}
}

func TestDispatch_SignupLoginFlow(t *testing.T) {
	d := newDispatchEnv(t)

	signupCh := d.captchas.CreateChallenge(captcha.ScopeSignup)
	resp := d.dispatcher.Dispatch(request(t, protocol.CmdSignup, &models.SignupRequest{
		Username:      "ayse",
		Email:         "ayse@example.com",
		Password:      "parola1",
		CaptchaNonce:  signupCh.Nonce,
		CaptchaAnswer: solveChallenge(t, signupCh),
	}, ""), &fakeBinder{})
	if !resp.Success {
		t.Fatalf("signup failed: %s", resp.StatusMessage)
	}

	loginCh := d.captchas.CreateChallenge(captcha.ScopeLogin)
	binder := &fakeBinder{}
	resp = d.dispatcher.Dispatch(request(t, protocol.CmdLogin, &models.LoginRequest{
		Username:      "ayse",
		Password:      "parola1",
		CaptchaNonce:  loginCh.Nonce,
		CaptchaAnswer: solveChallenge(t, loginCh),
	}, ""), binder)
	if !resp.Success {
		t.Fatalf("login failed: %s", resp.StatusMessage)
	}
	if binder.bound != 1 || binder.ident.Username != "ayse" {
		t.Errorf("binder = %+v, want ayse bound on login", binder.ident)
	}

	var authResp models.AuthResponse
	if err := json.Unmarshal(resp.Payload, &authResp); err != nil {
		t.Fatalf("payload unmarshal error = %v", err)
	}
	if authResp.Token == "" {
		t.Fatal("login response carries no token")
	}

	// The issued token must authorize a gated command.
	resp = d.dispatcher.Dispatch(request(t, protocol.CmdWalletBalance, nil, authResp.Token), &fakeBinder{})
	if !resp.Success {
		t.Errorf("wallet/balance with fresh token failed: %s", resp.StatusMessage)
	}
}

func TestDispatch_LegacyAliasRoutes(t *testing.T) {
	d := newDispatchEnv(t)
	token := d.sessions.Create("ali", string(models.RoleUser))

	resp := d.dispatcher.Dispatch(request(t, "topup", &models.TopUpRequest{AmountTokens: 50}, token), &fakeBinder{})
	if resp.Success {
		t.Fatal("topup without captcha succeeded")
	}
	// The alias reached the wallet handler and failed on the captcha check,
	// not on command resolution.
	if resp.ErrorCode != string(apperr.KindCaptchaRequired) {
		t.Errorf("ErrorCode = %q, want %q", resp.ErrorCode, apperr.KindCaptchaRequired)
	}
	if resp.Command != protocol.CmdWalletTopUp.Result() {
		t.Errorf("Command = %q, want %q", resp.Command, protocol.CmdWalletTopUp.Result())
	}
}

func TestDispatch_AuditTrailForAdmins(t *testing.T) {
	d := newDispatchEnv(t)
	adminToken := d.sessions.Create("root", string(models.RoleAdmin))
	sellerToken := d.sessions.Create("ali", string(models.RoleUser))

	resp := d.dispatcher.Dispatch(request(t, protocol.CmdAdCreate, &models.CreateAdRequest{
		Title:       "bisiklet",
		PriceTokens: 120,
	}, sellerToken), &fakeBinder{})
	if !resp.Success {
		t.Fatalf("ad/create failed: %s", resp.StatusMessage)
	}

	resp = d.dispatcher.Dispatch(request(t, protocol.CmdAdminAuditRecent, nil, adminToken), &fakeBinder{})
	if !resp.Success {
		t.Fatalf("audit-recent failed: %s", resp.StatusMessage)
	}
	var audit models.AuditListResponse
	if err := json.Unmarshal(resp.Payload, &audit); err != nil {
		t.Fatalf("payload unmarshal error = %v", err)
	}
	if len(audit.Entries) != 1 || audit.Entries[0].Action != "created" {
		t.Errorf("audit entries = %+v, want one 'created' row", audit.Entries)
	}
}

func TestDispatch_RefreshRebindsIdentity(t *testing.T) {
	d := newDispatchEnv(t)
	token := d.sessions.Create("ali", string(models.RoleUser))
	binder := &fakeBinder{}

	resp := d.dispatcher.Dispatch(request(t, protocol.CmdRefresh, nil, token), binder)
	if !resp.Success {
		t.Fatalf("refresh failed: %s", resp.StatusMessage)
	}
	var payload map[string]string
	if err := json.Unmarshal(resp.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal error = %v", err)
	}
	newToken := payload["token"]
	if newToken == "" || newToken == token {
		t.Fatalf("refresh returned token %q, want a fresh one", newToken)
	}
	if binder.ident.Token != newToken {
		t.Errorf("binder token = %q, want the refreshed token", binder.ident.Token)
	}

	if resp := d.dispatcher.Dispatch(request(t, protocol.CmdWalletBalance, nil, token), &fakeBinder{}); resp.Success {
		t.Error("old token still authorizes requests after refresh")
	}
}
