package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradesignals/checkout-api/internal/amqp"
	"github.com/tradesignals/checkout-api/internal/checkout"
	"github.com/tradesignals/checkout-api/internal/config"
	"github.com/tradesignals/checkout-api/internal/gateway/razorpay"
	"github.com/tradesignals/checkout-api/internal/gateway/stripe"
	"github.com/tradesignals/checkout-api/internal/httpx"
	kafkax "github.com/tradesignals/checkout-api/internal/kafka"
	"github.com/tradesignals/checkout-api/internal/ledger"
	"github.com/tradesignals/checkout-api/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pctx).Err(); err != nil {
		logger.Warn("redis unreachable, idempotent replay degraded", "addr", cfg.RedisAddr, "err", err)
	}
	cancel()

	// Ledger. A broken ledger never takes checkout down; verified payments
	// are then logged as skipped.
	recorder, closeLedger, err := ledger.Open(ctx, cfg, rdb)
	if err != nil {
		logger.Error("ledger unavailable, recording disabled", "backend", cfg.LedgerBackend, "err", err)
		recorder = nil
	}
	defer closeLedger()

	// Events
	var publisher checkout.EventPublisher = checkout.NoopPublisher
	switch cfg.EventsBroker {
	case "kafka":
		prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
		prod.Start(ctx)
		defer prod.WaitClosed()
		defer prod.Close()
		publisher = prod
	case "rabbitmq":
		pub, err := amqp.NewPublisher(cfg.RabbitURL, checkout.TopicPaymentVerified)
		if err != nil {
			logger.Error("rabbitmq unavailable, events disabled", "err", err)
			break
		}
		defer pub.Close()
		publisher = pub
	case "none", "":
	default:
		logger.Warn("unknown events broker, events disabled", "broker", cfg.EventsBroker)
	}

	// Gateways
	sc := stripe.New(stripe.Options{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		BaseURL:       cfg.Stripe.APIURL,
		SiteURL:       cfg.SiteURL,
		ProductName:   cfg.Stripe.ProductName,
		Timeout:       cfg.GatewayTimeout,
	})
	svc := &checkout.Service{
		Logger: logger,
		Prices: cfg.Prices(),
		Gateways: map[checkout.Gateway]checkout.OrderGateway{
			checkout.GatewayRazorpay: razorpay.New(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.APIURL, cfg.GatewayTimeout),
			checkout.GatewayStripe:   sc,
		},
		Sessions:       sc,
		Webhooks:       sc,
		RazorpaySecret: cfg.Razorpay.KeySecret,
		Recorder:       recorder,
		Publisher:      publisher,
		Cache:          &redisx.OrderCache{Redis: rdb},
		ServiceName:    cfg.ServiceName,
		GatewayTimeout: cfg.GatewayTimeout,
		LedgerTimeout:  cfg.LedgerTimeout,
		PublishTimeout: cfg.PublishTimeout,
	}

	router := httpx.NewRouter(cfg.RequestTimeout())
	(&httpx.PaymentsHandler{Service: svc, Logger: logger}).Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("checkout api listening", "addr", cfg.HTTPAddr, "ledger", cfg.LedgerBackend, "events", cfg.EventsBroker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("listen", "err", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)
}
