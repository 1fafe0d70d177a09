package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/api/dto"
	"github.com/spec-kit/booking-service/internal/service"
)

// PractitionersHandler serves applications, the public directory and profile self-service.
type PractitionersHandler struct {
	onboarding   *service.OnboardingService
	appointments *service.AppointmentService
}

// NewPractitionersHandler constructs handler.
func NewPractitionersHandler(onboarding *service.OnboardingService, appointments *service.AppointmentService) *PractitionersHandler {
	return &PractitionersHandler{onboarding: onboarding, appointments: appointments}
}

// Apply POST /practitioners/apply.
func (h *PractitionersHandler) Apply(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ApplyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	profile, err := h.onboarding.Apply(c.UserContext(), actor, service.ApplyInput{
		FullName:           req.FullName,
		Email:              req.Email,
		PhoneNumber:        req.PhoneNumber,
		Address:            req.Address,
		Specialization:     req.Specialization,
		ExperienceYears:    req.ExperienceYears,
		ConsultationFee:    req.ConsultationFee,
		AvailabilityWindow: req.AvailabilityWindow,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": profileResponse(profile)})
}

// Directory GET /practitioners.
func (h *PractitionersHandler) Directory(c *fiber.Ctx) error {
	items, err := h.onboarding.ListApproved(c.UserContext(), pageFromQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profileResponses(items)})
}

// MyProfile GET /practitioner/profile.
func (h *PractitionersHandler) MyProfile(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	profile, err := h.onboarding.MyProfile(c.UserContext(), actor.IdentityID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profileResponse(profile)})
}

// UpdateMyProfile PUT /practitioner/profile.
func (h *PractitionersHandler) UpdateMyProfile(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	profile, err := h.onboarding.UpdateMyProfile(c.UserContext(), actor.IdentityID, service.ProfileUpdateInput{
		FullName:           req.FullName,
		Email:              req.Email,
		PhoneNumber:        req.PhoneNumber,
		Address:            req.Address,
		Specialization:     req.Specialization,
		ExperienceYears:    req.ExperienceYears,
		ConsultationFee:    req.ConsultationFee,
		AvailabilityWindow: req.AvailabilityWindow,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": profileResponse(profile)})
}

// Stats GET /practitioner/stats.
func (h *PractitionersHandler) Stats(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	stats, err := h.appointments.PractitionerStats(c.UserContext(), actor.IdentityID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}
