package domain

import "time"

// NotificationKind classifies notification entries.
type NotificationKind string

const (
	NotificationNewAppointment          NotificationKind = "new-appointment"
	NotificationAppointmentStatus       NotificationKind = "appointment-status"
	NotificationAppointmentCancelled    NotificationKind = "appointment-cancelled"
	NotificationPractitionerApplication NotificationKind = "practitioner-application"
	NotificationPractitionerApproved    NotificationKind = "practitioner-approved"
	NotificationPractitionerRejected    NotificationKind = "practitioner-rejected"
)

// Notification is one entry in an identity's notification log.
type Notification struct {
	ID         string           `json:"id"`
	IdentityID string           `json:"identity_id"`
	Kind       NotificationKind `json:"kind"`
	Message    string           `json:"message"`
	Payload    map[string]any   `json:"payload"`
	Read       bool             `json:"read"`
	CreatedAt  time.Time        `json:"created_at"`
}
