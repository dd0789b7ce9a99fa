package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/punchamoorthee/bookkeeper/internal/config"
	"github.com/punchamoorthee/bookkeeper/internal/logger"
	"github.com/punchamoorthee/bookkeeper/internal/sandbox"
)

// Serves the in-memory sandbox engine for local development.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	// Initialize Layers
	engine := sandbox.NewEngine()
	handler := sandbox.NewHandler(engine, log)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Register(r.PathPrefix(cfg.APIPrefix).Subrouter())

	log.Info("sandbox ledger engine starting",
		zap.String("port", cfg.Port),
		zap.String("prefix", cfg.APIPrefix),
		zap.String("environment", cfg.Env))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
