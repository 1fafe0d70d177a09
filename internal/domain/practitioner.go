package domain

import "time"

// OnboardingStatus tracks a practitioner application.
type OnboardingStatus string

const (
	OnboardingPending  OnboardingStatus = "pending"
	OnboardingApproved OnboardingStatus = "approved"
	OnboardingRejected OnboardingStatus = "rejected"
)

// Valid reports whether s is a known onboarding status.
func (s OnboardingStatus) Valid() bool {
	switch s {
	case OnboardingPending, OnboardingApproved, OnboardingRejected:
		return true
	}
	return false
}

// PractitionerProfile holds the professional details of a practitioner applicant.
type PractitionerProfile struct {
	ID                 string
	IdentityID         string
	FullName           string
	Email              string
	PhoneNumber        string
	Address            string
	Specialization     string
	ExperienceYears    int
	ConsultationFee    int64 // minor currency units
	AvailabilityWindow string
	Status             OnboardingStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Snapshot captures the practitioner fields copied onto appointments at booking time.
func (p *PractitionerProfile) Snapshot() PractitionerSnapshot {
	return PractitionerSnapshot{
		ID:              p.ID,
		IdentityID:      p.IdentityID,
		FullName:        p.FullName,
		Email:           p.Email,
		PhoneNumber:     p.PhoneNumber,
		Address:         p.Address,
		Specialization:  p.Specialization,
		ConsultationFee: p.ConsultationFee,
	}
}
