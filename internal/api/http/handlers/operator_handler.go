package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/api/dto"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/service"
)

// OperatorHandler serves application review, reporting and account management.
type OperatorHandler struct {
	onboarding   *service.OnboardingService
	appointments *service.AppointmentService
	admin        *service.AdminService
}

// NewOperatorHandler constructs handler.
func NewOperatorHandler(onboarding *service.OnboardingService, appointments *service.AppointmentService, admin *service.AdminService) *OperatorHandler {
	return &OperatorHandler{onboarding: onboarding, appointments: appointments, admin: admin}
}

// Approve POST /operator/practitioners/:id/approve.
func (h *OperatorHandler) Approve(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	profile, err := h.onboarding.Approve(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profileResponse(profile)})
}

// Reject POST /operator/practitioners/:id/reject.
func (h *OperatorHandler) Reject(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	profile, err := h.onboarding.Reject(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profileResponse(profile)})
}

// ListPractitioners GET /operator/practitioners?status=.
func (h *OperatorHandler) ListPractitioners(c *fiber.Ctx) error {
	var status *domain.OnboardingStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.OnboardingStatus(raw)
		status = &s
	}
	items, err := h.onboarding.ListProfiles(c.UserContext(), status, pageFromQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profileResponses(items)})
}

// ListAppointments GET /operator/appointments.
func (h *OperatorHandler) ListAppointments(c *fiber.Ctx) error {
	input, err := appointmentListQuery(c)
	if err != nil {
		return err
	}
	items, err := h.appointments.ListAll(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appointmentResponses(items)})
}

// Stats GET /operator/stats.
func (h *OperatorHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.admin.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// ListIdentities GET /operator/identities?role=.
func (h *OperatorHandler) ListIdentities(c *fiber.Ctx) error {
	var role *domain.Role
	if raw := c.Query("role"); raw != "" {
		r := domain.Role(raw)
		role = &r
	}
	items, err := h.admin.ListIdentities(c.UserContext(), role, pageFromQuery(c))
	if err != nil {
		return err
	}
	resp := make([]dto.IdentityResponse, 0, len(items))
	for i := range items {
		resp = append(resp, identityResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// PurgeIdentity DELETE /operator/identities/:id.
func (h *OperatorHandler) PurgeIdentity(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.admin.PurgeIdentity(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
