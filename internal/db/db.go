package db

import (
	"database/sql"
	"log"

	_ "github.com/go-sql-driver/mysql"
)

func InitDB(dbURL string) *sql.DB {
	db, err := sql.Open("mysql", dbURL)
	if err != nil {
		log.Fatal("❌ Veritabanına bağlanılamadı:", err)
	}

	err = db.Ping()
	if err != nil {
		log.Fatal("❌ Veritabanı yanıt vermiyor:", err)
	}

	log.Println("✅ Veritabanına bağlanıldı")
	return db
}

func RunMigrations(db *sql.DB) {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(100) NOT NULL UNIQUE,
			email VARCHAR(100) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(50) NOT NULL DEFAULT 'user',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS ads (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			title VARCHAR(200) NOT NULL,
			description TEXT,
			category VARCHAR(100),
			price_tokens BIGINT NOT NULL,
			seller_username VARCHAR(100) NOT NULL,
			image MEDIUMBLOB,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_ads_status (status),
			INDEX idx_ads_seller (seller_username)
		);`,
		`CREATE TABLE IF NOT EXISTS ad_status_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			ad_id BIGINT NOT NULL,
			old_status VARCHAR(20) NOT NULL,
			new_status VARCHAR(20) NOT NULL,
			reason VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_history_ad (ad_id)
		);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(100) NOT NULL,
			ad_id BIGINT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_cart_user_ad (username, ad_id)
		);`,
		`CREATE TABLE IF NOT EXISTS wallets (
			username VARCHAR(100) PRIMARY KEY,
			balance_tokens BIGINT NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS wallet_ledger (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			username VARCHAR(100) NOT NULL,
			type VARCHAR(30) NOT NULL,
			amount_tokens BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			ad_id BIGINT,
			counterparty VARCHAR(100),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_ledger_user (username),
			INDEX idx_ledger_created (created_at)
		);`,
		`CREATE TABLE IF NOT EXISTS discount_codes (
			code VARCHAR(50) PRIMARY KEY,
			type VARCHAR(20) NOT NULL,
			value_tokens BIGINT NOT NULL,
			max_discount_tokens BIGINT NOT NULL DEFAULT 0,
			min_subtotal_tokens BIGINT NOT NULL DEFAULT 0,
			usage_limit BIGINT NOT NULL DEFAULT -1,
			used_count BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			entity_type VARCHAR(50),
			entity_id BIGINT,
			action VARCHAR(50),
			details TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, q := range queries {
		_, err := db.Exec(q)
		if err != nil {
			log.Fatal("Migration hatası:", err)
		}
	}
	log.Println("Migration tamamlandı")
}
