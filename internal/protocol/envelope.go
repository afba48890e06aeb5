package protocol

import (
	"encoding/json"
	"strings"

	"adpazar/internal/apperr"
)

// Command identifies one operation of the wire protocol. Request commands end
// in "/request" and each maps to exactly one "/result" response command; the
// generic CmdError response is reserved for protocol-level failures raised
// before dispatch is possible.
type Command string

const (
	CmdError Command = "error"

	CmdPing    Command = "system/ping/request"
	CmdCaptcha Command = "system/captcha/request"

	CmdSignup  Command = "auth/signup/request"
	CmdLogin   Command = "auth/login/request"
	CmdLogout  Command = "auth/logout/request"
	CmdRefresh Command = "auth/refresh/request"
	CmdRename  Command = "auth/rename/request"

	CmdAdCreate Command = "ad/create/request"
	CmdAdList   Command = "ad/list/request"
	CmdAdGet    Command = "ad/get/request"

	CmdCartAdd    Command = "cart/add/request"
	CmdCartRemove Command = "cart/remove/request"
	CmdCartList   Command = "cart/list/request"
	CmdCartClear  Command = "cart/clear/request"

	CmdWalletBalance Command = "wallet/balance/request"
	CmdWalletTopUp   Command = "wallet/topup/request"
	CmdWalletHistory Command = "wallet/history/request"

	CmdCheckout         Command = "purchase/checkout/request"
	CmdDiscountValidate Command = "discount/validate/request"

	CmdAdminAdModerate     Command = "admin/ad-moderate/request"
	CmdAdminDiscountList   Command = "admin/discount-list/request"
	CmdAdminDiscountUpsert Command = "admin/discount-upsert/request"
	CmdAdminDiscountDelete Command = "admin/discount-delete/request"
	CmdAdminAuditRecent    Command = "admin/audit-recent/request"

	// Server-initiated push envelopes; they have no request counterpart.
	CmdNotifyWalletChanged Command = "notify/wallet-changed"
	CmdNotifyAdSold        Command = "notify/ad-sold"
)

// legacyAliases are accepted on decode only, for clients predating the
// namespaced command identifiers.
var legacyAliases = map[Command]Command{
	"ping":              CmdPing,
	"captcha":           CmdCaptcha,
	"signup":            CmdSignup,
	"login":             CmdLogin,
	"logout":            CmdLogout,
	"refresh":           CmdRefresh,
	"rename":            CmdRename,
	"create_ad":         CmdAdCreate,
	"list_ads":          CmdAdList,
	"get_ad":            CmdAdGet,
	"cart_add":          CmdCartAdd,
	"cart_remove":       CmdCartRemove,
	"cart_list":         CmdCartList,
	"cart_clear":        CmdCartClear,
	"balance":           CmdWalletBalance,
	"topup":             CmdWalletTopUp,
	"history":           CmdWalletHistory,
	"buy":               CmdCheckout,
	"validate_discount": CmdDiscountValidate,
}

var knownCommands = map[Command]bool{
	CmdPing: true, CmdCaptcha: true,
	CmdSignup: true, CmdLogin: true, CmdLogout: true, CmdRefresh: true, CmdRename: true,
	CmdAdCreate: true, CmdAdList: true, CmdAdGet: true,
	CmdCartAdd: true, CmdCartRemove: true, CmdCartList: true, CmdCartClear: true,
	CmdWalletBalance: true, CmdWalletTopUp: true, CmdWalletHistory: true,
	CmdCheckout: true, CmdDiscountValidate: true,
	CmdAdminAdModerate: true, CmdAdminDiscountList: true,
	CmdAdminDiscountUpsert: true, CmdAdminDiscountDelete: true,
	CmdAdminAuditRecent: true,
}

// Canonical resolves legacy aliases to their namespaced form.
func (c Command) Canonical() Command {
	if full, ok := legacyAliases[c]; ok {
		return full
	}
	return c
}

// Known reports whether c (after alias resolution) is a dispatchable request.
func (c Command) Known() bool {
	return knownCommands[c.Canonical()]
}

// Result returns the response command paired with a request command.
func (c Command) Result() Command {
	s := string(c.Canonical())
	if strings.HasSuffix(s, "/request") {
		return Command(strings.TrimSuffix(s, "/request") + "/result")
	}
	return CmdError
}

// Admin reports whether the command is role-gated to administrators.
func (c Command) Admin() bool {
	return strings.HasPrefix(string(c.Canonical()), "admin/")
}

// Public reports whether the command may be dispatched without a session.
func (c Command) Public() bool {
	switch c.Canonical() {
	case CmdPing, CmdCaptcha, CmdSignup, CmdLogin:
		return true
	}
	return false
}

// Envelope is the wire-level unit of communication.
type Envelope struct {
	Command       Command         `json:"command"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RequestID     string          `json:"requestId,omitempty"`
	SessionToken  string          `json:"sessionToken,omitempty"`
	Success       bool            `json:"success"`
	ErrorCode     string          `json:"errorCode,omitempty"`
	StatusMessage string          `json:"statusMessage,omitempty"`
	StatusCode    int             `json:"statusCode,omitempty"`
}

// NewRequest builds a request envelope, marshalling payload to JSON.
func NewRequest(cmd Command, payload any) (*Envelope, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Command: cmd, Payload: raw}, nil
}

// NewResult builds the success response paired with req.
func NewResult(req *Envelope, payload any) *Envelope {
	raw, err := marshalPayload(payload)
	if err != nil {
		return NewFailure(req, apperr.Wrap(apperr.KindInternal, "failed to encode response", err))
	}
	return &Envelope{
		Command:    req.Command.Result(),
		Payload:    raw,
		RequestID:  req.RequestID,
		Success:    true,
		StatusCode: 200,
	}
}

// NewFailure builds the failure response paired with req, carrying the error
// kind and message extracted from err.
func NewFailure(req *Envelope, err error) *Envelope {
	kind := apperr.KindOf(err)
	env := &Envelope{
		Command:       CmdError,
		Success:       false,
		ErrorCode:     string(kind),
		StatusMessage: apperr.MessageOf(err),
		StatusCode:    kind.StatusCode(),
	}
	if req != nil {
		env.RequestID = req.RequestID
		if req.Command.Known() {
			env.Command = req.Command.Result()
		}
	}
	return env
}

// NewPush builds a server-initiated envelope.
func NewPush(cmd Command, payload any) (*Envelope, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Command: cmd, Payload: raw, Success: true, StatusCode: 200}, nil
}

// DecodePayload unmarshals the envelope payload into dst, reporting an
// invalid_payload error on malformed input.
func (e *Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return apperr.New(apperr.KindInvalidPayload, "request payload is required")
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return apperr.Wrap(apperr.KindInvalidPayload, "request payload is malformed", err)
	}
	return nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
