package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/api/dto"
	"github.com/spec-kit/booking-service/internal/service"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

// AppointmentsHandler manages patient and practitioner appointment endpoints.
type AppointmentsHandler struct {
	service *service.AppointmentService
}

// NewAppointmentsHandler constructs handler.
func NewAppointmentsHandler(appointmentService *service.AppointmentService) *AppointmentsHandler {
	return &AppointmentsHandler{service: appointmentService}
}

// Book POST /appointments.
func (h *AppointmentsHandler) Book(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.BookAppointmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	appointment, err := h.service.Book(c.UserContext(), actor, service.BookInput{
		PractitionerID: req.PractitionerID,
		Date:           req.Date,
		Time:           req.Time,
		Notes:          req.Notes,
		DocumentRef:    req.DocumentRef,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": appointmentResponse(appointment)})
}

// ListMine GET /appointments.
func (h *AppointmentsHandler) ListMine(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	input, err := appointmentListQuery(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListForPatient(c.UserContext(), actor.IdentityID, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appointmentResponses(items)})
}

// Cancel POST /appointments/:id/cancel.
func (h *AppointmentsHandler) Cancel(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	appointment, err := h.service.Cancel(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appointmentResponse(appointment)})
}

// ListForPractitioner GET /practitioner/appointments.
func (h *AppointmentsHandler) ListForPractitioner(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	input, err := appointmentListQuery(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListForPractitioner(c.UserContext(), actor.IdentityID, input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appointmentResponses(items)})
}

// SetStatus PATCH /practitioner/appointments/:id/status.
func (h *AppointmentsHandler) SetStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateAppointmentStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}

	appointment, err := h.service.SetStatus(c.UserContext(), actor, c.Params("id"), req.Status, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": appointmentResponse(appointment)})
}
