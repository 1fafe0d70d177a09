package dto

import (
	"time"

	"github.com/spec-kit/booking-service/internal/domain"
)

// RegisterRequest payload for new patient accounts.
type RegisterRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdentityResponse is the public view of an identity. The credential hash never leaves
// the service.
type IdentityResponse struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email"`
	PhoneNumber string      `json:"phone_number"`
	Role        domain.Role `json:"role"`
	CreatedAt   time.Time   `json:"created_at"`
}

// LoginResponse bundles the session with the caller's inbox and profile.
type LoginResponse struct {
	Identity      IdentityResponse             `json:"identity"`
	Auth          AuthResponse                 `json:"auth"`
	Notifications []NotificationResponse       `json:"notifications"`
	UnreadCount   int                          `json:"unread_count"`
	Profile       *PractitionerProfileResponse `json:"practitioner_profile,omitempty"`
}
