package domain

import "time"

// Identity is an account able to authenticate against the service.
type Identity struct {
	ID             string
	DisplayName    string
	Email          string
	PhoneNumber    string
	CredentialHash string
	Role           Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Snapshot captures the patient-facing fields copied onto appointments.
func (i *Identity) Snapshot() PatientSnapshot {
	return PatientSnapshot{
		ID:          i.ID,
		DisplayName: i.DisplayName,
		Email:       i.Email,
		PhoneNumber: i.PhoneNumber,
	}
}
