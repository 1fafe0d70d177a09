package dto

import (
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
)

// ApplyRequest payload for a practitioner application.
type ApplyRequest struct {
	FullName           string `json:"full_name"`
	Email              string `json:"email"`
	PhoneNumber        string `json:"phone_number"`
	Address            string `json:"address"`
	Specialization     string `json:"specialization"`
	ExperienceYears    int    `json:"experience_years"`
	ConsultationFee    int64  `json:"consultation_fee"`
	AvailabilityWindow string `json:"availability_window"`
}

// UpdateProfileRequest carries optional profile edits.
type UpdateProfileRequest struct {
	FullName           *string `json:"full_name"`
	Email              *string `json:"email"`
	PhoneNumber        *string `json:"phone_number"`
	Address            *string `json:"address"`
	Specialization     *string `json:"specialization"`
	ExperienceYears    *int    `json:"experience_years"`
	ConsultationFee    *int64  `json:"consultation_fee"`
	AvailabilityWindow *string `json:"availability_window"`
}

// PractitionerProfileResponse is a practitioner profile as returned by the API.
type PractitionerProfileResponse struct {
	ID                 string                  `json:"id"`
	IdentityID         string                  `json:"identity_id"`
	FullName           string                  `json:"full_name"`
	Email              string                  `json:"email"`
	PhoneNumber        string                  `json:"phone_number"`
	Address            string                  `json:"address"`
	Specialization     string                  `json:"specialization"`
	ExperienceYears    int                     `json:"experience_years"`
	ConsultationFee    int64                   `json:"consultation_fee"`
	AvailabilityWindow string                  `json:"availability_window"`
	Status             domain.OnboardingStatus `json:"status"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}
