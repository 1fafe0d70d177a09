package dto

import (
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
)

// BookAppointmentRequest payload.
type BookAppointmentRequest struct {
	PractitionerID string  `json:"practitioner_id"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Notes          *string `json:"notes"`
	DocumentRef    *string `json:"document_ref"`
}

// UpdateAppointmentStatusRequest payload.
type UpdateAppointmentStatusRequest struct {
	Status domain.AppointmentStatus `json:"status"`
	Notes  *string                  `json:"notes"`
}

// AppointmentResponse is an appointment with the snapshots taken at booking time.
type AppointmentResponse struct {
	ID                string                      `json:"id"`
	PractitionerID    string                      `json:"practitioner_id"`
	Practitioner      domain.PractitionerSnapshot `json:"practitioner"`
	PatientID         string                      `json:"patient_id"`
	Patient           domain.PatientSnapshot      `json:"patient"`
	Date              string                      `json:"date"`
	Time              string                      `json:"time"`
	Status            domain.AppointmentStatus    `json:"status"`
	PatientNotes      *string                     `json:"patient_notes"`
	DocumentRef       *string                     `json:"document_ref"`
	PractitionerNotes *string                     `json:"practitioner_notes"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}
