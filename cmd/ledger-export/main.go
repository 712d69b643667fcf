package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tradesignals/checkout-api/internal/amqp"
	"github.com/tradesignals/checkout-api/internal/checkout"
	"github.com/tradesignals/checkout-api/internal/config"
	"github.com/tradesignals/checkout-api/internal/export"
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

	// Sheet
	sheet, err := ledger.NewSheets(ctx, ledger.SheetsFromConfig(cfg.Sheets))
	if err != nil {
		logger.Error("sheets client", "err", err)
		os.Exit(1)
	}
	if !sheet.Configured() {
		logger.Warn("sheet credentials missing, rows will be acknowledged and skipped")
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &export.Service{
		Ledger:  &ledger.Deduped{Next: sheet, Redis: rdb, Scope: ledger.SheetsScope},
		Logger:  logger,
		Timeout: cfg.LedgerTimeout,
	}

	logger.Info("ledger export started",
		"broker", cfg.EventsBroker, "topic", checkout.TopicPaymentVerified, "workers", cfg.ExportWorkers)

	switch cfg.EventsBroker {
	case "kafka":
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ExportGroup, checkout.TopicPaymentVerified, cfg.ExportWorkers, logger)
		err = cons.Start(ctx, svc.HandleKafka)
	case "rabbitmq":
		cons, cerr := amqp.NewConsumer(cfg.RabbitURL, checkout.TopicPaymentVerified, cfg.ExportQueue, logger)
		if cerr != nil {
			logger.Error("rabbitmq consumer", "err", cerr)
			os.Exit(1)
		}
		defer cons.Close()
		err = cons.Start(ctx, cfg.ExportWorkers, svc.Handle)
	default:
		logger.Error("ledger export needs EVENTS_BROKER=kafka or rabbitmq", "broker", cfg.EventsBroker)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("consumer exit", "err", err)
	}
	logger.Info("ledger export stopped")
}
