package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"lob-engine/src/engine"
	"lob-engine/src/handlers"
	"lob-engine/src/logger"
	"lob-engine/src/routes"
)

func main() {
	logger.InitLogger()
	log := logger.GetLogger()

	log.Info().Msg("Initializing limit order book engine")

	maxOrders := engine.DefaultMaxOrders
	if envMax := os.Getenv("BOOK_MAX_ORDERS"); envMax != "" {
		if parsed, err := strconv.Atoi(envMax); err == nil && parsed > 0 {
			maxOrders = parsed
		}
	}

	stpPolicy := engine.StopAtOwn
	if envPolicy := os.Getenv("SELF_TRADE_POLICY"); envPolicy != "" {
		switch p := engine.SelfTradePolicy(envPolicy); p {
		case engine.StopAtOwn, engine.SkipOwn, engine.CancelOldest, engine.CancelNewest:
			stpPolicy = p
		default:
			log.Warn().
				Str("self_trade_policy", envPolicy).
				Msg("Unknown self-trade policy, using STOP_AT_OWN")
		}
	}

	book := engine.NewOrderBook(maxOrders, engine.WithSelfTradePolicy(stpPolicy))

	// collaborator-side fill feed; the handler runs under the book lock and
	// must not call back into the book
	book.SetFillHandler(func(f engine.Fill) {
		log.Debug().
			Uint64("maker_order_id", f.MakerOrderID).
			Uint64("taker_order_id", f.TakerOrderID).
			Uint32("quantity", f.Quantity).
			Int64("price", f.PriceTick).
			Uint64("timestamp", f.Timestamp).
			Msg("Fill")
	})

	orderHandler := handlers.NewOrderHandler(book)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, orderHandler)

	port := ":8080"
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = ":" + envPort
	}

	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			// edge case: ignore shutdown errors, only report real errors
			if err.Error() != "server is shutting down" {
				serverError <- err
			}
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	default:
		log.Info().
			Str("port", port).
			Int("max_orders", maxOrders).
			Str("self_trade_policy", string(stpPolicy)).
			Msg("Limit order book engine started")

		log.Info().
			Strs("endpoints", []string{
				"POST   /api/v1/orders",
				"PUT    /api/v1/orders/:id",
				"DELETE /api/v1/orders/:id",
				"DELETE /api/v1/orders?side=BUY|SELL",
				"GET    /api/v1/orders/:id",
				"GET    /api/v1/orderbook",
				"POST   /api/v1/session/expire",
				"GET    /health",
				"GET    /metrics",
				"POST   /metrics/reset",
			}).
			Msg("API endpoints registered")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	shutdownTimeout := 10 * time.Second
	if envTimeout := os.Getenv("SHUTDOWN_TIMEOUT"); envTimeout != "" {
		if parsed, err := time.ParseDuration(envTimeout); err == nil && parsed > 0 {
			shutdownTimeout = parsed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", shutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	} else {
		log.Info().Msg("Shutdown complete")
	}

	logger.CloseLogger()
}
