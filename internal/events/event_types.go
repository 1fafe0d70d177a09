package events

import (
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAppointmentBooked        EventType = "appointment_booked"
	EventAppointmentStatusChanged EventType = "appointment_status_changed"
	EventAppointmentCancelled     EventType = "appointment_cancelled"
	EventPractitionerApplied      EventType = "practitioner_applied"
	EventPractitionerApproved     EventType = "practitioner_approved"
	EventPractitionerRejected     EventType = "practitioner_rejected"
	EventIdentityPurged           EventType = "identity_purged"
	EventRolesReconciled          EventType = "roles_reconciled"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	IdentityID string      `json:"identity_id,omitempty"`
	Role       domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services after their transaction commits.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SubjectID string    `json:"subject_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	// Notification is the log entry appended by the operation, if any.
	Notification *domain.Notification `json:"notification,omitempty"`
	Payload      interface{}          `json:"payload"`
}

// AppointmentBookedPayload payload.
type AppointmentBookedPayload struct {
	PractitionerID string `json:"practitioner_id"`
	PatientID      string `json:"patient_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
}

// AppointmentStatusChangedPayload payload.
type AppointmentStatusChangedPayload struct {
	OldStatus domain.AppointmentStatus `json:"old_status"`
	NewStatus domain.AppointmentStatus `json:"new_status"`
	Notes     string                   `json:"notes,omitempty"`
}

// OnboardingPayload payload.
type OnboardingPayload struct {
	IdentityID string                  `json:"identity_id"`
	Status     domain.OnboardingStatus `json:"status"`
}

// IdentityPurgedPayload payload.
type IdentityPurgedPayload struct {
	Role                domain.Role `json:"role"`
	AppointmentsDeleted int64       `json:"appointments_deleted"`
}

// RolesReconciledPayload payload.
type RolesReconciledPayload struct {
	Promoted []string `json:"promoted"`
	Demoted  []string `json:"demoted"`
}
