package sqlstore

import (
	"database/sql"
	"fmt"

	"adpazar/internal/models"
	"adpazar/internal/store"
)

type userStore struct{ s *Store }

func (u userStore) CreateUser(user *models.User) (int, error) {
	s := u.s

	var existingID int
	err := s.db.QueryRow("SELECT id FROM users WHERE username = ? OR email = ?", user.Username, user.Email).Scan(&existingID)
	if err == nil {
		return 0, fmt.Errorf("user %q: %w", user.Username, store.ErrAlreadyExists)
	}
	if err != sql.ErrNoRows {
		s.logger.Error().Err(err).Msg("Error checking existing user")
		return 0, fmt.Errorf("database error: %w", err)
	}

	result, err := s.db.Exec(
		"INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, ?, ?)",
		user.Username, user.Email, user.PasswordHash, user.Role,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating user")
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	userID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get user ID: %w", err)
	}
	return int(userID), nil
}

func (u userStore) FindByUsername(username string) (*models.User, error) {
	s := u.s

	var user models.User
	err := s.db.QueryRow(
		"SELECT id, username, email, password_hash, role, created_at, updated_at FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Error fetching user")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

// UpdateUsername cascades the rename through every table keyed by username
// in one transaction.
func (u userStore) UpdateUsername(oldUsername, newUsername string) error {
	s := u.s

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting rename transaction")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var takenID int
	err = tx.QueryRow("SELECT id FROM users WHERE username = ?", newUsername).Scan(&takenID)
	if err == nil {
		return fmt.Errorf("user %q: %w", newUsername, store.ErrAlreadyExists)
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("database error: %w", err)
	}

	result, err := tx.Exec("UPDATE users SET username = ? WHERE username = ?", newUsername, oldUsername)
	if err != nil {
		return fmt.Errorf("failed to rename user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %q: %w", oldUsername, store.ErrNotFound)
	}

	cascades := []string{
		"UPDATE ads SET seller_username = ? WHERE seller_username = ?",
		"UPDATE cart_items SET username = ? WHERE username = ?",
		"UPDATE wallets SET username = ? WHERE username = ?",
		"UPDATE wallet_ledger SET username = ? WHERE username = ?",
		"UPDATE wallet_ledger SET counterparty = ? WHERE counterparty = ?",
	}
	for _, q := range cascades {
		if _, err := tx.Exec(q, newUsername, oldUsername); err != nil {
			return fmt.Errorf("failed to cascade rename: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing rename")
		return fmt.Errorf("failed to commit rename: %w", err)
	}

	s.logger.Info().Str("old", oldUsername).Str("new", newUsername).Msg("User renamed")
	return nil
}

func (u userStore) UpdatePasswordHash(username, passwordHash string) error {
	s := u.s

	result, err := s.db.Exec("UPDATE users SET password_hash = ? WHERE username = ?", passwordHash, username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Error updating password hash")
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	return nil
}
