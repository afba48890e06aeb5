package sqlstore

import (
	"fmt"

	"github.com/go-sql-driver/mysql"
)

type cartStore struct{ s *Store }

func (c cartStore) AddItem(username string, adID int64) (bool, error) {
	s := c.s

	_, err := s.db.Exec("INSERT INTO cart_items (username, ad_id) VALUES (?, ?)", username, adID)
	if err != nil {
		// Duplicate key means the ad is already in the cart; the add is a
		// reported no-op, not a failure.
		if mysqlErr, ok := err.(*mysql.MySQLError); ok && mysqlErr.Number == 1062 {
			return false, nil
		}
		s.logger.Error().Err(err).Str("username", username).Int64("ad_id", adID).Msg("Error adding cart item")
		return false, fmt.Errorf("failed to add cart item: %w", err)
	}
	return true, nil
}

func (c cartStore) RemoveItem(username string, adID int64) error {
	s := c.s

	_, err := s.db.Exec("DELETE FROM cart_items WHERE username = ? AND ad_id = ?", username, adID)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Int64("ad_id", adID).Msg("Error removing cart item")
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}

func (c cartStore) ListItems(username string) ([]int64, error) {
	s := c.s

	rows, err := s.db.Query("SELECT ad_id FROM cart_items WHERE username = ? ORDER BY id", username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Error listing cart items")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var items []int64
	for rows.Next() {
		var adID int64
		if err := rows.Scan(&adID); err != nil {
			return nil, fmt.Errorf("error scanning cart item: %w", err)
		}
		items = append(items, adID)
	}
	return items, rows.Err()
}

func (c cartStore) ClearItems(username string) error {
	s := c.s

	_, err := s.db.Exec("DELETE FROM cart_items WHERE username = ?", username)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Msg("Error clearing cart")
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (c cartStore) HasItem(username string, adID int64) (bool, error) {
	s := c.s

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM cart_items WHERE username = ? AND ad_id = ?", username, adID).Scan(&count)
	if err != nil {
		s.logger.Error().Err(err).Str("username", username).Int64("ad_id", adID).Msg("Error checking cart item")
		return false, fmt.Errorf("database error: %w", err)
	}
	return count > 0, nil
}
