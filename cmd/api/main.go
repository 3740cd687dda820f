package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/subvault/subvault/internal/api"
	"github.com/subvault/subvault/internal/config"
	"github.com/subvault/subvault/internal/logger"
	"github.com/subvault/subvault/internal/seed"
	"github.com/subvault/subvault/internal/service"
	"github.com/subvault/subvault/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer zlog.Sync()

	var st store.Store
	if cfg.DBSource != "" {
		if err := store.RunMigrations(cfg.DBSource, cfg.MigrationsPath, zlog); err != nil {
			zlog.Fatal("migrations failed", zap.Error(err))
		}
		pg, err := store.NewPostgresStore(context.Background(), cfg.DBSource)
		if err != nil {
			zlog.Fatal("unable to connect to database", zap.Error(err))
		}
		defer pg.Close()
		st = pg
		zlog.Info("using postgres store")
	} else {
		backend, err := store.NewFileBackend(cfg.DataDir)
		if err != nil {
			zlog.Fatal("unable to open data dir", zap.Error(err))
		}
		snap, err := store.NewSnapshotStore(backend, zlog)
		if err != nil {
			zlog.Fatal("unable to load snapshot store", zap.Error(err))
		}
		if err := snap.Bootstrap(seed.Products(), seed.Users()); err != nil {
			zlog.Fatal("unable to seed snapshot store", zap.Error(err))
		}
		st = snap
		zlog.Info("using snapshot store", zap.String("dir", cfg.DataDir))
	}

	// Initialize Layers
	delivery := service.NewDeliveryEngine(st)
	purchases := service.NewPurchaseService(st, st, delivery, st, zlog)
	handler := api.NewHandler(st, purchases)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")
	handler.RegisterRoutes(r.PathPrefix("/api/v1").Subrouter())

	zlog.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
