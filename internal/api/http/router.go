package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/picto-request-service/internal/api/http/handlers"
	"github.com/spec-kit/picto-request-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Requests       *handlers.RequestsHandler
	Notifications  *handlers.NotificationsHandler
	Reports        *handlers.ReportsHandler
	Events         *handlers.EventsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	// unauthenticated: the listing is public and the webhook authenticates by signature
	app.Get("/reports", cfg.Reports.List)
	app.Post("/webhooks/tracker", cfg.Reports.Webhook)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireActor())

	requests := protected.Group("/requests")
	requests.Post("/", cfg.Requests.CreateRequest)
	requests.Get("/mine", cfg.Requests.ListMine)
	requests.Get("/", auth.RequirePrivileged(), cfg.Requests.ListAll)
	requests.Get("/:id", cfg.Requests.GetRequest)
	requests.Post("/:id/assign", auth.RequirePrivileged(), cfg.Requests.Assign)
	requests.Post("/:id/status", auth.RequirePrivileged(), cfg.Requests.ChangeStatus)
	requests.Get("/:id/comments", cfg.Requests.ListComments)
	requests.Post("/:id/comments", cfg.Requests.AddComment)
	requests.Get("/:id/history", cfg.Requests.ListHistory)

	notifications := protected.Group("/notifications")
	notifications.Get("/", cfg.Notifications.List)
	notifications.Post("/read", cfg.Notifications.MarkManyRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	reports := protected.Group("/reports")
	reports.Post("/", cfg.Reports.Submit)
	reports.Get("/notifications", cfg.Reports.ListNotifications)
	reports.Post("/notifications/read", cfg.Reports.MarkNotificationsRead)

	protected.Get("/events", cfg.Events.Stream)
}
