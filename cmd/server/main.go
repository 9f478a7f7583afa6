package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"backend/internal/config"
	"backend/internal/db"
	httpapi "backend/internal/http"
	"backend/internal/repository"
	"backend/internal/service"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database error")
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		log.WithError(err).Fatal("migration error")
	}

	repo := repository.New(pool)
	syncSvc := service.NewSync(repo, log, cfg.SyncPullLimit)
	posSvc := service.NewPOS(repo, log)
	masterSvc := service.NewMaster(repo, log)
	importerSvc := service.NewImporter(repo, posSvc, log)

	retention := service.NewRetention(repo, log, cfg.TombstoneTTLDays, cfg.TombstoneSafety, cfg.RetentionInterval)
	if cfg.RetentionBackground {
		retention.Start()
		defer retention.Stop()
	}

	handler := httpapi.NewHandler(syncSvc, posSvc, masterSvc, importerSvc, retention, pool, log)
	router := httpapi.NewRouter(handler, cfg.JWTSecret, log)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
		if closeErr := server.Close(); closeErr != nil {
			log.WithError(closeErr).Error("force close failed")
		}
	}
}
