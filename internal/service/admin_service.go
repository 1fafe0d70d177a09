package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/repository"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

// AdminService serves operator-only reporting and account management.
type AdminService struct {
	tx            repository.Transactor
	identities    repository.IdentityRepository
	practitioners repository.PractitionerRepository
	appointments  repository.AppointmentRepository
	notifications repository.NotificationRepository
	eventPublisher
}

// AdminDependencies bundles collaborators for the admin service.
type AdminDependencies struct {
	Transactor       repository.Transactor
	IdentityRepo     repository.IdentityRepository
	PractitionerRepo repository.PractitionerRepository
	AppointmentRepo  repository.AppointmentRepository
	NotificationRepo repository.NotificationRepository
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// SystemStats is the operator dashboard summary.
type SystemStats struct {
	IdentitiesByRole     map[domain.Role]int              `json:"identities_by_role"`
	ProfilesByStatus     map[domain.OnboardingStatus]int  `json:"profiles_by_status"`
	AppointmentsByStatus map[domain.AppointmentStatus]int `json:"appointments_by_status"`
	TotalAppointments    int                              `json:"total_appointments"`
}

// NewAdminService constructs the service.
func NewAdminService(deps AdminDependencies) *AdminService {
	return &AdminService{
		tx:             deps.Transactor,
		identities:     deps.IdentityRepo,
		practitioners:  deps.PractitionerRepo,
		appointments:   deps.AppointmentRepo,
		notifications:  deps.NotificationRepo,
		eventPublisher: newEventPublisher(deps.Dispatcher, deps.Metrics, deps.Logger),
	}
}

// Stats counts identities, profiles and appointments by state.
func (s *AdminService) Stats(ctx context.Context) (*SystemStats, error) {
	roles, err := s.identities.CountByRole(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	profiles, err := s.practitioners.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	appointments, err := s.appointments.CountByStatus(ctx, repository.AppointmentFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stats := &SystemStats{
		IdentitiesByRole:     make(map[domain.Role]int, len(domain.Roles)),
		ProfilesByStatus:     make(map[domain.OnboardingStatus]int, 3),
		AppointmentsByStatus: make(map[domain.AppointmentStatus]int, len(domain.AppointmentStatuses)),
	}
	for _, role := range domain.Roles {
		stats.IdentitiesByRole[role] = roles[role]
	}
	for _, status := range []domain.OnboardingStatus{domain.OnboardingPending, domain.OnboardingApproved, domain.OnboardingRejected} {
		stats.ProfilesByStatus[status] = profiles[status]
	}
	for _, status := range domain.AppointmentStatuses {
		stats.AppointmentsByStatus[status] = appointments[status]
		stats.TotalAppointments += appointments[status]
	}
	return stats, nil
}

// ListIdentities lists accounts, optionally narrowed to one role.
func (s *AdminService) ListIdentities(ctx context.Context, role *domain.Role, page repository.Page) ([]domain.Identity, error) {
	if role != nil && !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": *role})
	}
	items, err := s.identities.List(ctx, role, page)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.Identity{}
	}
	return items, nil
}

// PurgeIdentity deletes an account together with its notifications, its practitioner
// profile and every appointment it takes part in. Operators cannot be purged.
func (s *AdminService) PurgeIdentity(ctx context.Context, actor Actor, identityID string) error {
	if actor.Role != domain.RoleOperator {
		return apperrors.NewForbidden("only operators can purge identities")
	}

	identity, err := s.identities.GetByID(ctx, identityID)
	if err != nil {
		return notFoundOr(err, "identity", map[string]any{"identity_id": identityID})
	}
	if identity.Role == domain.RoleOperator {
		return apperrors.NewForbidden("operator identities cannot be purged")
	}

	var deleted int64
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.notifications.DeleteByIdentityID(ctx, identityID); err != nil {
			return err
		}
		n, err := s.appointments.DeleteByParticipant(ctx, identityID)
		if err != nil {
			return err
		}
		deleted = n
		if err := s.practitioners.DeleteByIdentityID(ctx, identityID); err != nil {
			return err
		}
		return s.identities.Delete(ctx, identityID)
	})
	if err != nil {
		return notFoundOr(err, "identity", map[string]any{"identity_id": identityID})
	}

	s.logger.Info("identity purged",
		zap.String("identity_id", identityID),
		zap.Int64("appointments_deleted", deleted),
		zap.String("operator_id", actor.IdentityID))

	s.publishEvent(ctx, events.Event{
		Type:      events.EventIdentityPurged,
		SubjectID: identityID,
		Actor:     actor.event(),
		Payload:   events.IdentityPurgedPayload{Role: identity.Role, AppointmentsDeleted: deleted},
	})
	return nil
}
