package services

import (
	"adpazar/internal/models"
	"adpazar/internal/store"

	"github.com/rs/zerolog"
)

// AuditService exposes the audit trail to administrators. Writes happen as
// side effects inside the domain services; this only reads.
type AuditService struct {
	store  store.Store
	logger zerolog.Logger
}

func NewAuditService(st store.Store, logger zerolog.Logger) *AuditService {
	return &AuditService{store: st, logger: logger}
}

func (s *AuditService) Recent(limit int) ([]*models.AuditEntry, error) {
	entries, err := s.store.Audit().Recent(limit)
	if err != nil {
		return nil, translate(err)
	}
	return entries, nil
}
