package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/finacct/balance-service/internal/balance"
	"github.com/finacct/balance-service/internal/config"
	"github.com/finacct/balance-service/internal/events"
	eventskafka "github.com/finacct/balance-service/internal/events/kafka"
	"github.com/finacct/balance-service/internal/feed"
	"github.com/finacct/balance-service/internal/handler"
	"github.com/finacct/balance-service/internal/mailer"
	"github.com/finacct/balance-service/internal/middleware"
	"github.com/finacct/balance-service/internal/storage/postgres"
	syncpkg "github.com/finacct/balance-service/internal/sync"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	_ = godotenv.Load()
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	store := postgres.NewStore(db)
	feedClient := feed.NewClient(cfg, logger)

	var sink events.Sink = events.NoopSink{}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaBrokers[0] != "" {
		publisher := eventskafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		sink = publisher
	}

	alerts := mailer.NewSender(cfg, logger)
	engine := balance.NewEngine(store, store, store, feedClient, sink, alerts, logger)
	orchestrator := syncpkg.NewOrchestrator(feedClient, store, store, engine, sink, logger)
	h := handler.NewHandler(engine, orchestrator, logger)

	// Setup router
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/balances", h.CalculateAllBalances).Methods("GET")
	authRouter.HandleFunc("/accounts/{accountID}/balance", h.CalculateBalance).Methods("POST")
	authRouter.HandleFunc("/accounts/{accountID}/history", h.GetBalanceHistory).Methods("GET")
	authRouter.HandleFunc("/accounts/{accountID}/range", h.GetBalanceForDateRange).Methods("GET")
	authRouter.HandleFunc("/accounts/{accountID}/beginning-balance", h.SetBeginningBalance).Methods("PUT")
	authRouter.HandleFunc("/items/{itemID}/sync", h.SyncItem).Methods("POST")

	// Scheduled background sync of all active linked items
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SyncSchedule, func() {
		orchestrator.SyncAllItems(context.Background())
	}); err != nil {
		logger.Fatalf("Failed to schedule sync: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
