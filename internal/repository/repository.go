package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/booking-service/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when an email uniqueness constraint fails.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateProfile is returned when an identity already owns a practitioner profile.
	ErrDuplicateProfile = errors.New("duplicate practitioner profile")
	// ErrSlotTaken is returned when an active appointment already occupies the slot.
	ErrSlotTaken = errors.New("slot taken")
	// ErrStale is returned when a compare-and-set update finds an unexpected prior state.
	ErrStale = errors.New("stale state")
)

// Transactor runs fn so that every repository call made with the supplied context
// commits or rolls back together. Nested calls join the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

// IdentityRepository defines persistence access for identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity *domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	UpdateRole(ctx context.Context, id string, role domain.Role) error
	List(ctx context.Context, role *domain.Role, page Page) ([]domain.Identity, error)
	CountByRole(ctx context.Context) (map[domain.Role]int, error)
	Delete(ctx context.Context, id string) error
}

// PractitionerFilter narrows practitioner profile listings.
type PractitionerFilter struct {
	Status *domain.OnboardingStatus
	Page
}

// PractitionerRepository defines persistence access for practitioner profiles.
type PractitionerRepository interface {
	Create(ctx context.Context, profile *domain.PractitionerProfile) error
	Update(ctx context.Context, profile *domain.PractitionerProfile) error
	GetByID(ctx context.Context, id string) (*domain.PractitionerProfile, error)
	GetByIdentityID(ctx context.Context, identityID string) (*domain.PractitionerProfile, error)
	GetByEmail(ctx context.Context, email string) (*domain.PractitionerProfile, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.OnboardingStatus) error
	List(ctx context.Context, filter PractitionerFilter) ([]domain.PractitionerProfile, error)
	CountByStatus(ctx context.Context) (map[domain.OnboardingStatus]int, error)
	DeleteByIdentityID(ctx context.Context, identityID string) error
}

// AppointmentFilter narrows appointment listings.
type AppointmentFilter struct {
	PatientID      *string
	PractitionerID *string
	Statuses       []domain.AppointmentStatus
	Date           *string
	Page
}

// AppointmentRepository defines persistence access for appointments.
type AppointmentRepository interface {
	Create(ctx context.Context, appointment *domain.Appointment) error
	GetByID(ctx context.Context, id string) (*domain.Appointment, error)
	FindActiveInSlot(ctx context.Context, slot domain.Slot) (*domain.Appointment, error)
	UpdateStatus(ctx context.Context, appointment *domain.Appointment, from domain.AppointmentStatus) error
	List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error)
	CountByStatus(ctx context.Context, filter AppointmentFilter) (map[domain.AppointmentStatus]int, error)
	DeleteByParticipant(ctx context.Context, identityID string) (int64, error)
}

// NotificationRepository defines persistence access for notification logs.
type NotificationRepository interface {
	Append(ctx context.Context, notification *domain.Notification, retain int) error
	ListByIdentity(ctx context.Context, identityID string, page Page) ([]domain.Notification, error)
	MarkRead(ctx context.Context, identityID, notificationID string) error
	MarkAllRead(ctx context.Context, identityID string) (int64, error)
	CountUnread(ctx context.Context, identityID string) (int, error)
	Trim(ctx context.Context, retain int) (int64, error)
	DeleteByIdentityID(ctx context.Context, identityID string) error
}
