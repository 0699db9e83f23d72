package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/belgrano/ticketera/internal/api/http/handlers"
	"github.com/belgrano/ticketera/internal/auth"
	"github.com/belgrano/ticketera/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Ingest         *handlers.IngestHandler
	Tickets        *handlers.TicketsHandler
	Couriers       *handlers.CouriersHandler
	Stream         *handlers.StreamHandler
	AuthMiddleware *auth.Middleware
	Metrics        *observability.Metrics
	IngestAPIKey   string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	api := app.Group("/api")

	// upstream platform callback, guarded by the pre-shared key
	api.Post("/ingest/tickets", auth.RequireAPIKey(cfg.IngestAPIKey), cfg.Ingest.ReceiveExternal)

	protected := api.Group("", cfg.AuthMiddleware.Handle)

	tickets := protected.Group("/tickets")
	tickets.Post("", auth.RequireAdmin(), cfg.Ingest.CreateManual)
	tickets.Get("", auth.RequireAnyRole(), cfg.Tickets.ListTickets)
	tickets.Get("/:id", auth.RequireAnyRole(), cfg.Tickets.GetTicket)
	tickets.Post("/:id/assign", auth.RequireAdmin(), cfg.Tickets.AssignTicket)
	tickets.Post("/:id/status", auth.RequireAnyRole(), cfg.Tickets.SetStatus)
	tickets.Post("/:id/cancel", auth.RequireAdmin(), cfg.Tickets.CancelTicket)

	couriers := protected.Group("/couriers", auth.RequireAdmin())
	couriers.Get("", cfg.Couriers.ListCouriers)
	couriers.Post("", cfg.Couriers.CreateCourier)

	stream := protected.Group("/stream", auth.RequireAnyRole())
	stream.Get("", cfg.Stream.Stream)
	stream.Post("/:session/ack", cfg.Stream.Ack)
}
