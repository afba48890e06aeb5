// Package sqlstore is the MySQL-backed store implementation.
package sqlstore

import (
	"database/sql"
	"time"

	"adpazar/internal/store"

	"github.com/rs/zerolog"
)

type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

func New(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

func (s *Store) Users() store.UserStore     { return userStore{s} }
func (s *Store) Ads() store.AdStore         { return adStore{s} }
func (s *Store) Carts() store.CartStore     { return cartStore{s} }
func (s *Store) Wallets() store.WalletStore { return walletStore{s} }
func (s *Store) Audit() store.AuditStore    { return auditStore{s} }
