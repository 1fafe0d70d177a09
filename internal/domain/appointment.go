package domain

import "time"

// AppointmentStatus represents appointment lifecycle states.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentApproved  AppointmentStatus = "approved"
	AppointmentRejected  AppointmentStatus = "rejected"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// AppointmentStatuses lists every status in lifecycle order.
var AppointmentStatuses = []AppointmentStatus{
	AppointmentPending,
	AppointmentApproved,
	AppointmentRejected,
	AppointmentCompleted,
	AppointmentCancelled,
}

// Valid reports whether s is a known status.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentApproved, AppointmentRejected, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// Active reports whether the status occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentPending || s == AppointmentApproved
}

// Terminal reports whether no further transitions are allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentRejected || s == AppointmentCompleted || s == AppointmentCancelled
}

// Slot identifies a practitioner's bookable date and time.
type Slot struct {
	PractitionerID string
	Date           string // YYYY-MM-DD
	Time           string // HH:MM
}

// PractitionerSnapshot is the practitioner as seen at booking time.
type PractitionerSnapshot struct {
	ID              string `json:"id"`
	IdentityID      string `json:"identity_id"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phone_number"`
	Address         string `json:"address"`
	Specialization  string `json:"specialization"`
	ConsultationFee int64  `json:"consultation_fee"`
}

// PatientSnapshot is the patient as seen at booking time.
type PatientSnapshot struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// Appointment is a booking of one practitioner slot by one patient.
type Appointment struct {
	ID                string
	PractitionerID    string
	Practitioner      PractitionerSnapshot
	PatientID         string
	Patient           PatientSnapshot
	Date              string
	Time              string
	Status            AppointmentStatus
	PatientNotes      *string
	DocumentRef       *string
	PractitionerNotes *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Slot returns the slot occupied by the appointment.
func (a *Appointment) Slot() Slot {
	return Slot{PractitionerID: a.PractitionerID, Date: a.Date, Time: a.Time}
}
