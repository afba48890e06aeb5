package sqlstore

import (
	"database/sql"
	"fmt"

	"adpazar/internal/models"
	"adpazar/internal/store"
)

type adStore struct{ s *Store }

func (a adStore) CreatePendingAd(ad *models.Ad) (int64, error) {
	s := a.s

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting ad create transaction")
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		"INSERT INTO ads (title, description, category, price_tokens, seller_username, image, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
		ad.Title, ad.Description, ad.Category, ad.PriceTokens, ad.SellerUsername, ad.ImageBytes, string(models.AdStatusPending),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error creating ad")
		return 0, fmt.Errorf("failed to create ad: %w", err)
	}
	adID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get ad ID: %w", err)
	}

	_, err = tx.Exec(
		"INSERT INTO ad_status_history (ad_id, old_status, new_status, reason) VALUES (?, '', ?, 'created')",
		adID, string(models.AdStatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record status history: %w", err)
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing ad create")
		return 0, fmt.Errorf("failed to commit ad create: %w", err)
	}
	return adID, nil
}

func (a adStore) FindAdByID(adID int64) (*models.Ad, error) {
	s := a.s

	ad, err := scanAd(s.db.QueryRow(
		"SELECT id, title, description, category, price_tokens, seller_username, image, status, created_at, updated_at FROM ads WHERE id = ?",
		adID,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ad %d: %w", adID, store.ErrNotFound)
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("ad_id", adID).Msg("Error fetching ad")
		return nil, fmt.Errorf("database error: %w", err)
	}
	return ad, nil
}

// UpdateStatus is the compare-and-swap transition: the UPDATE only matches
// while the row still carries the expected status, so a concurrent writer
// makes RowsAffected report zero instead of silently double-applying.
func (a adStore) UpdateStatus(adID int64, expected, next models.AdStatus, reason string) error {
	s := a.s

	tx, err := s.db.Begin()
	if err != nil {
		s.logger.Error().Err(err).Msg("Error starting status transition")
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := casAdStatusTx(tx, adID, expected, next, reason); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("Error committing status transition")
		return fmt.Errorf("failed to commit status transition: %w", err)
	}

	s.logger.Info().Int64("ad_id", adID).Str("from", string(expected)).Str("to", string(next)).Msg("Ad status changed")
	return nil
}

func (a adStore) ListApprovedAds(filter models.AdFilter) ([]*models.Ad, error) {
	s := a.s

	rows, err := s.db.Query(
		"SELECT id, title, description, category, price_tokens, seller_username, image, status, created_at, updated_at FROM ads WHERE status = ? ORDER BY id DESC",
		string(models.AdStatusApproved),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error listing ads")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var ads []*models.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning ad: %w", err)
		}
		if filter.Matches(ad) {
			ads = append(ads, ad)
		}
	}
	return ads, rows.Err()
}

func (a adStore) StatusHistory(adID int64) ([]*models.AdStatusChange, error) {
	s := a.s

	rows, err := s.db.Query(
		"SELECT id, ad_id, old_status, new_status, reason, created_at FROM ad_status_history WHERE ad_id = ? ORDER BY id",
		adID,
	)
	if err != nil {
		s.logger.Error().Err(err).Int64("ad_id", adID).Msg("Error fetching status history")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var history []*models.AdStatusChange
	for rows.Next() {
		var change models.AdStatusChange
		var old, next string
		if err := rows.Scan(&change.ID, &change.AdID, &old, &next, &change.Reason, &change.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning status history: %w", err)
		}
		change.OldStatus = models.AdStatus(old)
		change.NewStatus = models.AdStatus(next)
		history = append(history, &change)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAd(row rowScanner) (*models.Ad, error) {
	var ad models.Ad
	var status string
	var image []byte
	err := row.Scan(&ad.ID, &ad.Title, &ad.Description, &ad.Category, &ad.PriceTokens,
		&ad.SellerUsername, &image, &status, &ad.CreatedAt, &ad.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ad.ImageBytes = image
	ad.Status = models.AdStatus(status)
	return &ad, nil
}

func casAdStatusTx(tx *sql.Tx, adID int64, expected, next models.AdStatus, reason string) error {
	result, err := tx.Exec(
		"UPDATE ads SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?",
		string(next), adID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update ad status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRow("SELECT 1 FROM ads WHERE id = ?", adID).Scan(&exists); err == sql.ErrNoRows {
			return fmt.Errorf("ad %d: %w", adID, store.ErrNotFound)
		}
		return fmt.Errorf("ad %d: %w", adID, store.ErrAdNotAvailable)
	}

	_, err = tx.Exec(
		"INSERT INTO ad_status_history (ad_id, old_status, new_status, reason) VALUES (?, ?, ?, ?)",
		adID, string(expected), string(next), reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record status history: %w", err)
	}
	return nil
}
