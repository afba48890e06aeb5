package sqlstore

import (
	"fmt"

	"adpazar/internal/models"
)

type auditStore struct{ s *Store }

func (a auditStore) Append(entityType string, entityID int64, action, details string) error {
	s := a.s

	_, err := s.db.Exec(
		"INSERT INTO audit_logs (entity_type, entity_id, action, details) VALUES (?, ?, ?, ?)",
		entityType, entityID, action, details,
	)
	if err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("Error appending audit row")
		return fmt.Errorf("failed to append audit row: %w", err)
	}
	return nil
}

func (a auditStore) Recent(limit int) ([]*models.AuditEntry, error) {
	s := a.s

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, entity_type, entity_id, action, details, created_at FROM audit_logs ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error fetching audit rows")
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		if err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Action, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning audit row: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
