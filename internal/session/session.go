// Package session holds the process-wide session table. Tokens are opaque
// and live until explicit invalidation or refresh; there is no implicit
// expiry in the protocol today.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Info struct {
	Token     string
	Username  string
	Role      string
	CreatedAt time.Time
}

type Service struct {
	mu      sync.Mutex
	byToken map[string]*Info
	logger  zerolog.Logger
}

func New(logger zerolog.Logger) *Service {
	return &Service{
		byToken: make(map[string]*Info),
		logger:  logger,
	}
}

// Create issues a new session token for the given identity. An empty
// username yields an empty token.
func (s *Service) Create(username, role string) string {
	username = strings.TrimSpace(username)
	if username == "" {
		return ""
	}
	token := uuid.NewString()

	s.mu.Lock()
	s.byToken[token] = &Info{
		Token:     token,
		Username:  username,
		Role:      role,
		CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	s.logger.Debug().Str("username", username).Str("role", role).Msg("Session created")
	return token
}

// Validate resolves a token to its session. Unknown or empty tokens report
// ok=false.
func (s *Service) Validate(token string) (Info, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Info{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.byToken[token]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Refresh atomically swaps the token while preserving identity. The old
// token becomes invalid.
func (s *Service) Refresh(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.byToken[token]
	if !ok {
		return "", false
	}
	delete(s.byToken, token)

	newToken := uuid.NewString()
	info.Token = newToken
	s.byToken[newToken] = info

	s.logger.Debug().Str("username", info.Username).Msg("Session refreshed")
	return newToken, true
}

// Invalidate removes a session. Unknown tokens report false.
func (s *Service) Invalidate(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.byToken[token]
	if !ok {
		return false
	}
	delete(s.byToken, token)

	s.logger.Debug().Str("username", info.Username).Msg("Session invalidated")
	return true
}

// UpdateUsername rebinds the session to a renamed account.
func (s *Service) UpdateUsername(token, newUsername string) bool {
	token = strings.TrimSpace(token)
	newUsername = strings.TrimSpace(newUsername)
	if token == "" || newUsername == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.byToken[token]
	if !ok {
		return false
	}
	info.Username = newUsername
	return true
}

// Active returns the number of live sessions.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byToken)
}
