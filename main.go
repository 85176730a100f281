package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"enrollment-bridge/internal/config"
	"enrollment-bridge/internal/db"
	"enrollment-bridge/internal/duitku"
	"enrollment-bridge/internal/enrollment"
	"enrollment-bridge/internal/event"
	"enrollment-bridge/internal/fulfillment"
	"enrollment-bridge/internal/kafka"
	"enrollment-bridge/internal/kv"
	"enrollment-bridge/internal/ledger"
	"enrollment-bridge/internal/logging"
	"enrollment-bridge/internal/metrics"
	"enrollment-bridge/internal/payment"
	"enrollment-bridge/internal/retry"
	"enrollment-bridge/internal/thinkific"
	"enrollment-bridge/internal/webhook"
)

const (
	defaultContextTTLSeconds = 86_400
	defaultLedgerTTLHours    = 72
	defaultRetryDelayMs      = 60_000
)

func main() {
	cfg := config.MustLoadConfig("config")
	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	ctx := context.Background()

	connStr := db.GetConnStr(cfg.Database)
	if err := db.RunMigrations(connStr, "migrations"); err != nil {
		log.Fatal(err)
	}

	pool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	redisClient, err := kv.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	repo := db.NewRepository(pool)
	store := kv.NewStore(redisClient)
	queue := kv.NewQueue(redisClient)

	contextTTL := time.Duration(cfg.Webhook.ContextTTLSeconds) * time.Second
	if contextTTL == 0 {
		contextTTL = defaultContextTTLSeconds * time.Second
	}
	ledgerTTL := time.Duration(cfg.Webhook.LedgerTTLHours) * time.Hour
	if ledgerTTL == 0 {
		ledgerTTL = defaultLedgerTTLHours * time.Hour
	}

	contextCache := kv.NewContextCache(store, contextTTL)
	dedupeLedger := ledger.New(store, ledgerTTL, logger)

	thinkificClient := thinkific.NewClient(cfg.Thinkific)
	enroller := thinkific.NewEnroller(thinkificClient, logger)

	var publisher fulfillment.Publisher
	if cfg.Kafka.Broker.URL != "" {
		writer := kafka.NewWriter(cfg.Kafka)
		defer writer.Close()
		publisher = event.NewPublisher(writer, logger)
	}

	retryDelay := time.Duration(cfg.Retry.BackoffMs) * time.Millisecond
	if retryDelay == 0 {
		retryDelay = defaultRetryDelayMs * time.Millisecond
	}

	orchestrator := fulfillment.NewOrchestrator(
		cfg.Duitku.MerchantCode, cfg.Duitku.APIKey,
		repo, contextCache, dedupeLedger, enroller, queue, publisher, retryDelay, logger)
	thinkificProcessor := fulfillment.NewThinkificProcessor(repo, dedupeLedger, logger)

	webhookHandler := webhook.NewHandler(orchestrator, thinkificProcessor, cfg.Thinkific.WebhookSecret, repo, logger)

	gateway := duitku.NewClient(cfg.Duitku)
	paymentService := payment.NewService(repo, contextCache, gateway, logger)
	paymentHandler := payment.NewHandler(paymentService, logger)
	enrollmentHandler := enrollment.NewHandler(repo, logger)

	worker := retry.NewWorker(queue, enroller, repo, retry.Config{
		PollingIntervalMs: cfg.Retry.PollingIntervalMs,
		MaxAttempts:       cfg.Retry.MaxAttempts,
		BackoffMs:         cfg.Retry.BackoffMs,
	}, logger)
	worker.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /payments", paymentHandler.HandleInitiate)
	mux.HandleFunc("GET /enrollments", enrollmentHandler.HandleList)
	mux.HandleFunc("POST /webhooks/duitku", webhookHandler.HandleDuitku)
	mux.HandleFunc("POST /webhooks/thinkific", webhookHandler.HandleThinkific)
	mux.HandleFunc("POST /webhooks", webhookHandler.HandleAny)

	logger.Info("Starting server", "port", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, mux))
}
