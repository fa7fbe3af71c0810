package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tokopay/internal/config"
	"tokopay/internal/events"
	"tokopay/internal/gateway"
	"tokopay/internal/middleware"
	"tokopay/internal/models"
	"tokopay/internal/money"
	"tokopay/internal/repositories"
	"tokopay/internal/server"
	"tokopay/internal/services"
	"tokopay/pkg/kafka"
	"tokopay/pkg/rabbitmq"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load(nil)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// --- Database ---
	db, err := repositories.Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := repositories.AutoMigrate(db); err != nil {
		return err
	}
	store := repositories.NewGORMStore(db)
	seedProducts(ctx, store.Products(), logger)

	// --- Events ---
	publisher, err := newPublisher(ctx, cfg.Events, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	app, cleanup, err := buildApp(cfg, db, publisher, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// --- Start HTTP Server ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.AppPort, "gateway", cfg.Gateway.Name, "events", cfg.Events.Driver)
		errCh <- app.Listen(cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		logger.Error("error during Fiber shutdown", "err", err)
	}
	logger.Info("server gracefully stopped")
	return nil
}

// buildApp wires repositories, gateway and services into the HTTP application. cleanup
// releases the rate limiter.
func buildApp(cfg *config.Config, db *gorm.DB, publisher events.Publisher, logger *slog.Logger) (*fiber.App, func(), error) {
	store := repositories.NewGORMStore(db)

	gw, err := gateway.New(cfg.Gateway)
	if err != nil {
		return nil, nil, err
	}

	emitter := events.NewEmitter(publisher, logger)
	limiter := middleware.NewLimiter(cfg.RateLimit)
	cleanup := func() {
		if c, ok := limiter.(io.Closer); ok {
			c.Close()
		}
	}

	app := server.New(server.Deps{
		Auth:       services.NewAuthService(store.Users(), cfg.JWTSecret),
		Products:   services.NewProductService(store.Products()),
		Orders:     services.NewOrderService(store, emitter),
		Payments:   services.NewPaymentService(store, gw, emitter, cfg.Gateway, logger),
		Limiter:    limiter,
		RequestLog: true,
	})
	return app, cleanup, nil
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newPublisher connects the configured broker and starts an audit consumer on it. The
// consumer stops with ctx.
func newPublisher(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, error) {
	audit := events.AuditHandler(logger)

	switch cfg.Driver {
	case "amqp":
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.RabbitMQExchange,
			Queue:    cfg.RabbitMQQueue,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ client: %w", err)
		}
		if err := mqClient.Consume(ctx, audit); err != nil {
			mqClient.Close()
			return nil, fmt.Errorf("failed to start RabbitMQ consumer: %w", err)
		}
		logger.Info("publishing events to RabbitMQ", "exchange", cfg.RabbitMQExchange, "queue", cfg.RabbitMQQueue)
		return mqClient, nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is empty")
		}
		go kafka.Consume(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, "tokopay-audit", audit)
		logger.Info("publishing events to Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		return kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return events.Nop{}, nil
	}
}

// seedProducts adds a small catalogue to an empty database.
func seedProducts(ctx context.Context, repo repositories.ProductRepository, logger *slog.Logger) {
	existing, err := repo.GetAll(ctx)
	if err != nil {
		logger.Error("failed to list products", "err", err)
		return
	}
	if len(existing) > 0 {
		return
	}

	products := []models.Product{
		{Name: "Laptop", Description: "High performance laptop", Price: money.MustParse("1200.00"), Stock: 10},
		{Name: "Keyboard", Description: "Mechanical keyboard", Price: money.MustParse("75.00"), Stock: 25},
		{Name: "Mouse", Description: "Ergonomic wireless mouse", Price: money.MustParse("25.00"), Stock: 50},
	}
	for i := range products {
		if err := repo.Create(ctx, &products[i]); err != nil {
			logger.Error("error seeding product", "name", products[i].Name, "err", err)
			continue
		}
		logger.Info("seeded product", "name", products[i].Name, "id", products[i].ID)
	}
}
