package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"adpazar/internal/auth"
	"adpazar/internal/captcha"
	"adpazar/internal/config"
	"adpazar/internal/db"
	"adpazar/internal/httpapi"
	"adpazar/internal/logger"
	"adpazar/internal/server"
	"adpazar/internal/services"
	"adpazar/internal/session"
	"adpazar/internal/store/sqlstore"
)

func main() {
	cfg := config.LoadConfig()

	log := logger.InitLogger()
	log.Info().Msg("Uygulama başlıyor")

	database := db.InitDB(cfg.DBUrl)
	defer database.Close()

	db.RunMigrations(database)

	st := sqlstore.New(database, log)
	sessions := session.New(log)
	captchas := captcha.New(captcha.DefaultTTL, log)
	hasher := auth.NewPasswordHasher()

	authService := services.NewAuthService(st, sessions, captchas, hasher, log)
	adService := services.NewAdService(st, log)
	cartService := services.NewCartService(st, log)
	walletService := services.NewWalletService(st, captchas, log)
	auditService := services.NewAuditService(st, log)

	registry := server.NewRegistry(log)
	walletService.SetNotifier(registry)

	dispatcher := server.NewDispatcher(authService, adService, cartService, walletService, auditService, sessions, captchas, log)
	srv := server.New(":"+cfg.Port, registry, dispatcher, log)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: httpapi.SetupRouter(adService, log),
	}

	go func() {
		log.Info().Msgf("Sunucu %s portunda çalışıyor", cfg.Port)
		if err := srv.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("Sunucu hatası")
		}
	}()

	go func() {
		log.Info().Msgf("HTTP sunucusu %s portunda çalışıyor", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP sunucu hatası")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Info().Msg("Kapatma sinyali alındı...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP graceful shutdown başarısız")
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown başarısız")
	}

	log.Info().Msg("Sunucu kapatıldı")
}
