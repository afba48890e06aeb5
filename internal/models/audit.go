package models

import "time"

// AuditEntry is one append-only row of the audit trail, written as a side
// effect of domain events.
type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type AuditRecentRequest struct {
	Limit int `json:"limit,omitempty"`
}

type AuditListResponse struct {
	Entries []*AuditEntry `json:"entries"`
}
