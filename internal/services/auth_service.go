package services

import (
	"fmt"
	"strings"

	"adpazar/internal/apperr"
	"adpazar/internal/auth"
	"adpazar/internal/captcha"
	"adpazar/internal/models"
	"adpazar/internal/session"
	"adpazar/internal/store"

	"github.com/rs/zerolog"
)

type AuthService struct {
	store    store.Store
	sessions *session.Service
	captchas *captcha.Service
	hasher   *auth.PasswordHasher
	logger   zerolog.Logger
}

func NewAuthService(st store.Store, sessions *session.Service, captchas *captcha.Service, hasher *auth.PasswordHasher, logger zerolog.Logger) *AuthService {
	return &AuthService{
		store:    st,
		sessions: sessions,
		captchas: captchas,
		hasher:   hasher,
		logger:   logger,
	}
}

func (s *AuthService) Signup(req *models.SignupRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || req.Password == "" {
		return nil, apperr.New(apperr.KindValidation, "username, email and password are required")
	}
	if len(username) < 3 {
		return nil, apperr.New(apperr.KindValidation, "username must be at least 3 characters")
	}
	if len(req.Password) < 6 {
		return nil, apperr.New(apperr.KindValidation, "password must be at least 6 characters")
	}
	if err := s.checkCaptcha(req.CaptchaNonce, req.CaptchaAnswer, captcha.ScopeSignup); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error hashing password")
		return nil, apperr.Wrap(apperr.KindInternal, "failed to hash password", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         string(models.RoleUser),
	}
	userID, err := s.store.Users().CreateUser(user)
	if err != nil {
		return nil, translate(err)
	}
	s.audit("user", int64(userID), "signup", username)

	created, err := s.store.Users().FindByUsername(username)
	if err != nil {
		return nil, translate(err)
	}

	s.logger.Info().Int("user_id", created.ID).Str("username", username).Msg("User registered successfully")
	return created, nil
}

func (s *AuthService) Login(req *models.LoginRequest) (*models.AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, apperr.New(apperr.KindValidation, "username and password are required")
	}
	if err := s.checkCaptcha(req.CaptchaNonce, req.CaptchaAnswer, captcha.ScopeLogin); err != nil {
		return nil, err
	}

	user, err := s.store.Users().FindByUsername(username)
	if err != nil {
		s.logger.Warn().Str("username", username).Msg("Failed authentication attempt")
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid username or password")
	}
	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.logger.Warn().Str("username", username).Msg("Failed authentication attempt")
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid username or password")
	}

	// Legacy digests are upgraded to the structured form on a successful
	// login; a failure here does not block the login itself.
	if s.hasher.NeedsRehash(user.PasswordHash) {
		if upgraded, err := s.hasher.Hash(req.Password); err == nil {
			if err := s.store.Users().UpdatePasswordHash(username, upgraded); err != nil {
				s.logger.Warn().Err(err).Str("username", username).Msg("Failed to upgrade legacy password hash")
			}
		}
	}

	token := s.sessions.Create(user.Username, user.Role)
	s.logger.Info().Int("user_id", user.ID).Str("username", username).Msg("User authenticated successfully")
	return &models.AuthResponse{User: user, Token: token}, nil
}

// Logout invalidates the session. An unknown token is not an error.
func (s *AuthService) Logout(token string) bool {
	return s.sessions.Invalidate(token)
}

// Refresh swaps the session token, keeping the identity.
func (s *AuthService) Refresh(token string) (string, error) {
	newToken, ok := s.sessions.Refresh(token)
	if !ok {
		return "", apperr.New(apperr.KindUnauthorized, "session is missing or invalid")
	}
	return newToken, nil
}

// Rename changes the account's username, cascading through the store and
// rebinding the live session.
func (s *AuthService) Rename(token, oldUsername string, req *models.RenameRequest) error {
	newUsername := strings.TrimSpace(req.NewUsername)
	if newUsername == "" {
		return apperr.New(apperr.KindValidation, "new username is required")
	}
	if len(newUsername) < 3 {
		return apperr.New(apperr.KindValidation, "username must be at least 3 characters")
	}
	if newUsername == oldUsername {
		return apperr.New(apperr.KindValidation, "new username equals the current one")
	}

	if err := s.store.Users().UpdateUsername(oldUsername, newUsername); err != nil {
		return translate(err)
	}
	s.sessions.UpdateUsername(token, newUsername)
	s.audit("user", 0, "rename", fmt.Sprintf("%s -> %s", oldUsername, newUsername))
	return nil
}

func (s *AuthService) checkCaptcha(nonce, answer, scope string) error {
	if strings.TrimSpace(nonce) == "" {
		return apperr.New(apperr.KindCaptchaRequired, "captcha challenge is required")
	}
	if ok, reason := s.captchas.VerifyAndConsume(nonce, answer, scope); !ok {
		return apperr.New(apperr.KindCaptchaInvalid, "captcha verification failed: "+reason)
	}
	return nil
}

func (s *AuthService) audit(entityType string, entityID int64, action, details string) {
	if err := s.store.Audit().Append(entityType, entityID, action, details); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("Failed to record audit row (non-critical)")
	}
}
