package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/booking-service/internal/api/dto"
	"github.com/spec-kit/booking-service/internal/auth"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/service"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return service.Actor{IdentityID: principal.IdentityID, Role: principal.Role}, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

// pageFromQuery reads ?limit=&offset=.
func pageFromQuery(c *fiber.Ctx) repository.Page {
	return service.NormalizePage(parseInt(c.Query("limit"), 0), parseInt(c.Query("offset"), 0))
}

func appointmentListQuery(c *fiber.Ctx) (service.AppointmentListInput, error) {
	page := pageFromQuery(c)
	input := service.AppointmentListInput{Limit: page.Limit, Offset: page.Offset}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			status := domain.AppointmentStatus(strings.TrimSpace(part))
			if !status.Valid() {
				return input, apperrors.NewValidationError("invalid status filter", map[string]any{"status": part})
			}
			input.Statuses = append(input.Statuses, status)
		}
	}
	if date := strings.TrimSpace(c.Query("date")); date != "" {
		input.Date = &date
	}
	return input, nil
}

func identityResponse(identity *domain.Identity) dto.IdentityResponse {
	return dto.IdentityResponse{
		ID:          identity.ID,
		DisplayName: identity.DisplayName,
		Email:       identity.Email,
		PhoneNumber: identity.PhoneNumber,
		Role:        identity.Role,
		CreatedAt:   identity.CreatedAt,
	}
}

func profileResponse(p *domain.PractitionerProfile) dto.PractitionerProfileResponse {
	return dto.PractitionerProfileResponse{
		ID:                 p.ID,
		IdentityID:         p.IdentityID,
		FullName:           p.FullName,
		Email:              p.Email,
		PhoneNumber:        p.PhoneNumber,
		Address:            p.Address,
		Specialization:     p.Specialization,
		ExperienceYears:    p.ExperienceYears,
		ConsultationFee:    p.ConsultationFee,
		AvailabilityWindow: p.AvailabilityWindow,
		Status:             p.Status,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func profileResponses(items []domain.PractitionerProfile) []dto.PractitionerProfileResponse {
	resp := make([]dto.PractitionerProfileResponse, 0, len(items))
	for i := range items {
		resp = append(resp, profileResponse(&items[i]))
	}
	return resp
}

func appointmentResponse(a *domain.Appointment) dto.AppointmentResponse {
	return dto.AppointmentResponse{
		ID:                a.ID,
		PractitionerID:    a.PractitionerID,
		Practitioner:      a.Practitioner,
		PatientID:         a.PatientID,
		Patient:           a.Patient,
		Date:              a.Date,
		Time:              a.Time,
		Status:            a.Status,
		PatientNotes:      a.PatientNotes,
		DocumentRef:       a.DocumentRef,
		PractitionerNotes: a.PractitionerNotes,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func appointmentResponses(items []domain.Appointment) []dto.AppointmentResponse {
	resp := make([]dto.AppointmentResponse, 0, len(items))
	for i := range items {
		resp = append(resp, appointmentResponse(&items[i]))
	}
	return resp
}

func notificationResponses(items []domain.Notification) []dto.NotificationResponse {
	resp := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, dto.NotificationResponse{
			ID:        n.ID,
			Kind:      n.Kind,
			Message:   n.Message,
			Payload:   n.Payload,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	return resp
}
