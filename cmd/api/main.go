package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/skoocda/async-ticket-server/internal/api/http"
	"github.com/skoocda/async-ticket-server/internal/api/http/handlers"
	"github.com/skoocda/async-ticket-server/internal/config"
	"github.com/skoocda/async-ticket-server/internal/events"
	"github.com/skoocda/async-ticket-server/internal/observability"
	"github.com/skoocda/async-ticket-server/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics(
		server.CommandInsert,
		server.CommandGet,
		server.CommandUpdateStatus,
		server.CommandPatch,
		server.CommandList,
	)

	dispatcher := events.NewInMemoryDispatcher()
	registerAuditSubscriber(dispatcher, logger)

	srv, client := server.Spawn(server.Dependencies{
		Logger:        logger,
		Metrics:       metrics,
		Dispatcher:    dispatcher,
		Limits:        cfg.Server.Limits(),
		QueueCapacity: cfg.Server.QueueCapacity,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, srv)
	ticketsHandler := handlers.NewTicketsHandler(client)
	statsHandler := handlers.NewStatsHandler(metrics)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  healthHandler,
		Tickets: ticketsHandler,
		Stats:   statsHandler,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()

	// Releasing the last handle closes the command queue; the loop drains
	// whatever is left and stops.
	client.Close()
	select {
	case <-srv.Done():
	case <-time.After(5 * time.Second):
		logger.Warn("server loop did not stop in time")
	}
}

func registerAuditSubscriber(dispatcher events.Dispatcher, logger *zap.Logger) {
	audit := func(_ context.Context, event events.Event) error {
		logger.Info("ticket event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID.String()),
		)
		return nil
	}
	dispatcher.Subscribe(events.EventTicketCreated, audit)
	dispatcher.Subscribe(events.EventTicketStatusChanged, audit)
	dispatcher.Subscribe(events.EventTicketPatched, audit)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
