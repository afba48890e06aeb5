// Package captcha issues short-lived arithmetic challenges. They rate-limit
// casual automation; they are not meant to stop a determined attacker.
package captcha

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Verification failure reasons, distinct per check.
const (
	ReasonMissingOrExpired = "missing or expired"
	ReasonScopeMismatch    = "scope mismatch"
	ReasonExpired          = "expired"
	ReasonWrongAnswer      = "wrong answer"
)

// Scopes keep a challenge issued for one flow from being spent on another.
const (
	ScopeLogin  = "login"
	ScopeSignup = "signup"
	ScopeTopUp  = "wallet_topup"
)

const DefaultTTL = 2 * time.Minute

type Challenge struct {
	Nonce         string    `json:"nonce"`
	ChallengeText string    `json:"challenge_text"`
	Scope         string    `json:"scope"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type entry struct {
	scope     string
	answer    int
	expiresAt time.Time
}

type Service struct {
	mu     sync.Mutex
	table  map[string]entry
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func New(ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		table:  make(map[string]entry),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// CreateChallenge issues a new single-use challenge for the given scope.
func (s *Service) CreateChallenge(scope string) Challenge {
	scope = strings.TrimSpace(scope)
	a := rand.Intn(20) + 1
	b := rand.Intn(20) + 1
	nonce := uuid.NewString()

	s.mu.Lock()
	s.sweepLocked()
	expires := s.now().Add(s.ttl)
	s.table[nonce] = entry{scope: scope, answer: a + b, expiresAt: expires}
	s.mu.Unlock()

	return Challenge{
		Nonce:         nonce,
		ChallengeText: fmt.Sprintf("%d + %d = ?", a, b),
		Scope:         scope,
		ExpiresAt:     expires,
	}
}

// VerifyAndConsume removes the nonce regardless of outcome, then checks
// scope, expiry and the numeric answer in that order. The nonce is looked up
// before the sweep so an expired challenge reports the expiry reason rather
// than a missing one.
func (s *Service) VerifyAndConsume(nonce, answer, scope string) (bool, string) {
	nonce = strings.TrimSpace(nonce)

	s.mu.Lock()
	e, ok := s.table[nonce]
	if ok {
		delete(s.table, nonce)
	}
	s.sweepLocked()
	now := s.now()
	s.mu.Unlock()

	if !ok {
		return false, ReasonMissingOrExpired
	}
	if e.scope != scope {
		s.logger.Warn().Str("want", e.scope).Str("got", scope).Msg("Captcha scope mismatch")
		return false, ReasonScopeMismatch
	}
	if now.After(e.expiresAt) {
		return false, ReasonExpired
	}
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n != e.answer {
		return false, ReasonWrongAnswer
	}
	return true, ""
}

// Pending returns the number of live challenges.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}

func (s *Service) sweepLocked() {
	now := s.now()
	for nonce, e := range s.table {
		if now.After(e.expiresAt) {
			delete(s.table, nonce)
		}
	}
}
