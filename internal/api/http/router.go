package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/booking-service/internal/api/http/handlers"
	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Practitioners  *handlers.PractitionersHandler
	Appointments   *handlers.AppointmentsHandler
	Notifications  *handlers.NotificationsHandler
	Operator       *handlers.OperatorHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if reg := cfg.Metrics.Registry(); reg != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	app.Get("/practitioners", cfg.Practitioners.Directory)

	authed := cfg.AuthMiddleware.Handle
	patient := auth.RequireRole(domain.RolePatient)
	practitioner := auth.RequireRole(domain.RolePractitioner)
	operator := auth.RequireRole(domain.RoleOperator)

	app.Post("/practitioners/apply", authed, patient, cfg.Practitioners.Apply)

	appointments := app.Group("/appointments", authed, patient)
	appointments.Post("/", cfg.Appointments.Book)
	appointments.Get("/", cfg.Appointments.ListMine)
	appointments.Post("/:id/cancel", cfg.Appointments.Cancel)

	notifications := app.Group("/notifications", authed, auth.RequireAnyRole())
	notifications.Get("/", cfg.Notifications.List)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	// Guards are attached per route: a group-level Use on "/practitioner" would also
	// match the public "/practitioners" prefix.
	practitionerGroup := app.Group("/practitioner")
	practitionerGroup.Get("/profile", authed, practitioner, cfg.Practitioners.MyProfile)
	practitionerGroup.Put("/profile", authed, practitioner, cfg.Practitioners.UpdateMyProfile)
	practitionerGroup.Get("/appointments", authed, practitioner, cfg.Appointments.ListForPractitioner)
	practitionerGroup.Patch("/appointments/:id/status", authed, practitioner, cfg.Appointments.SetStatus)
	practitionerGroup.Get("/stats", authed, practitioner, cfg.Practitioners.Stats)

	operatorGroup := app.Group("/operator", authed, operator)
	operatorGroup.Get("/stats", cfg.Operator.Stats)
	operatorGroup.Get("/identities", cfg.Operator.ListIdentities)
	operatorGroup.Delete("/identities/:id", cfg.Operator.PurgeIdentity)
	operatorGroup.Get("/practitioners", cfg.Operator.ListPractitioners)
	operatorGroup.Post("/practitioners/:id/approve", cfg.Operator.Approve)
	operatorGroup.Post("/practitioners/:id/reject", cfg.Operator.Reject)
	operatorGroup.Get("/appointments", cfg.Operator.ListAppointments)
}
