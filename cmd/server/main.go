package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loyalty/config"
	"loyalty/internal/consumer"
	"loyalty/internal/database"
	"loyalty/internal/logger"
	"loyalty/internal/repository"
	"loyalty/internal/router"
	"loyalty/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Server.Env)

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	if err := database.SeedAdmin(db); err != nil {
		log.WithError(err).Warn("admin seed failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional queue intake for payment confirmations, sharing the same
	// settlement path as the HTTP webhook.
	if cfg.RabbitMQ.URL != "" {
		orderRepo := repository.NewOrderRepository(db)
		pointsRepo := repository.NewPointsRepository(db)
		settlementSvc := service.NewSettlementService(db, orderRepo, pointsRepo, &cfg.Points, log)
		cons, err := consumer.New(cfg.RabbitMQ, orderRepo, settlementSvc, log)
		if err != nil {
			log.WithError(err).Fatal("consumer init failed")
		}
		defer cons.Close()
		go func() {
			if err := cons.Start(ctx); err != nil {
				log.WithError(err).Error("consumer stopped")
			}
		}()
	}

	// Optional expired-points sweeper. Order expiry stays reactive; this
	// only deducts point grants whose validity window has passed.
	if cfg.Points.ExpirySweep > 0 {
		userRepo := repository.NewUserRepository(db)
		pointsRepo := repository.NewPointsRepository(db)
		pointsSvc := service.NewPointsService(db, userRepo, pointsRepo, log)
		go func() {
			ticker := time.NewTicker(cfg.Points.ExpirySweep)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := pointsSvc.ProcessExpiredPoints(time.Now()); err != nil {
						log.WithError(err).Error("expired points sweep failed")
					}
				}
			}
		}()
	}

	engine := router.Setup(cfg, db, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server shutdown failed")
	}
	log.Info("server stopped")
}
