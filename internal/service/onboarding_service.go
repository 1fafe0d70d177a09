package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/repository"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

const (
	msgApplicationSubmitted = "Your practitioner application has been submitted and is under review."
	msgApplicationApproved  = "Your practitioner application has been approved!"
	msgApplicationRejected  = "Your practitioner application has been rejected. Please contact support for more information."
)

// OnboardingService handles practitioner applications and their review.
type OnboardingService struct {
	tx            repository.Transactor
	identities    repository.IdentityRepository
	practitioners repository.PractitionerRepository
	sink          *NotificationSink
	eventPublisher
}

// OnboardingDependencies bundles collaborators for the onboarding service.
type OnboardingDependencies struct {
	Transactor       repository.Transactor
	IdentityRepo     repository.IdentityRepository
	PractitionerRepo repository.PractitionerRepository
	Sink             *NotificationSink
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// ApplyInput carries the professional details of an application.
type ApplyInput struct {
	FullName           string
	Email              string
	PhoneNumber        string
	Address            string
	Specialization     string
	ExperienceYears    int
	ConsultationFee    int64
	AvailabilityWindow string
}

// ProfileUpdateInput carries optional profile edits.
type ProfileUpdateInput struct {
	FullName           *string
	Email              *string
	PhoneNumber        *string
	Address            *string
	Specialization     *string
	ExperienceYears    *int
	ConsultationFee    *int64
	AvailabilityWindow *string
}

// RoleReconciliation reports identities whose role was repaired.
type RoleReconciliation struct {
	Promoted []string `json:"promoted"`
	Demoted  []string `json:"demoted"`
}

// NewOnboardingService constructs the service.
func NewOnboardingService(deps OnboardingDependencies) *OnboardingService {
	return &OnboardingService{
		tx:             deps.Transactor,
		identities:     deps.IdentityRepo,
		practitioners:  deps.PractitionerRepo,
		sink:           deps.Sink,
		eventPublisher: newEventPublisher(deps.Dispatcher, deps.Metrics, deps.Logger),
	}
}

func (in ApplyInput) validate() error {
	problems := fieldErrors{}
	problems.require("full_name", in.FullName)
	problems.require("specialization", in.Specialization)
	if !validEmail(normalizeEmail(in.Email)) {
		problems["email"] = "must be a valid email address"
	}
	if in.ExperienceYears < 0 {
		problems["experience_years"] = "must not be negative"
	}
	if in.ConsultationFee < 0 {
		problems["consultation_fee"] = "must not be negative"
	}
	return problems.err("invalid practitioner application")
}

// Apply files a pending practitioner application for the caller. Each identity may apply
// once; a rejected applicant cannot re-apply.
func (s *OnboardingService) Apply(ctx context.Context, actor Actor, input ApplyInput) (*domain.PractitionerProfile, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	identity, err := s.identities.GetByID(ctx, actor.IdentityID)
	if err != nil {
		return nil, notFoundOr(err, "identity", map[string]any{"identity_id": actor.IdentityID})
	}
	if _, err := s.practitioners.GetByIdentityID(ctx, identity.ID); err == nil {
		return nil, apperrors.NewAlreadyApplied(identity.ID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}
	if identity.Role != domain.RolePatient {
		return nil, apperrors.NewForbidden("only patients can apply as practitioners")
	}

	email := normalizeEmail(input.Email)
	if _, err := s.practitioners.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewEmailTaken(email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.MapError(err)
	}

	profile := &domain.PractitionerProfile{
		IdentityID:         identity.ID,
		FullName:           strings.TrimSpace(input.FullName),
		Email:              email,
		PhoneNumber:        strings.TrimSpace(input.PhoneNumber),
		Address:            strings.TrimSpace(input.Address),
		Specialization:     strings.TrimSpace(input.Specialization),
		ExperienceYears:    input.ExperienceYears,
		ConsultationFee:    input.ConsultationFee,
		AvailabilityWindow: strings.TrimSpace(input.AvailabilityWindow),
		Status:             domain.OnboardingPending,
	}

	var notification *domain.Notification
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.practitioners.Create(ctx, profile); err != nil {
			return err
		}
		n, err := s.sink.Append(ctx, identity.ID, domain.NotificationPractitionerApplication, msgApplicationSubmitted,
			map[string]any{"profile_id": profile.ID, "status": profile.Status})
		notification = n
		return err
	})
	switch {
	case errors.Is(err, repository.ErrDuplicateProfile):
		return nil, apperrors.NewAlreadyApplied(identity.ID)
	case errors.Is(err, repository.ErrDuplicateEmail):
		return nil, apperrors.NewEmailTaken(email)
	case err != nil:
		return nil, apperrors.MapError(err)
	}

	s.metrics.RecordOnboarding("applied")
	s.logger.Info("practitioner application filed", zap.String("profile_id", profile.ID), zap.String("identity_id", identity.ID))

	s.publishEvent(ctx, events.Event{
		Type:         events.EventPractitionerApplied,
		SubjectID:    profile.ID,
		Actor:        actor.event(),
		Notification: notification,
		Payload:      events.OnboardingPayload{IdentityID: identity.ID, Status: profile.Status},
	})
	return profile, nil
}

// Approve accepts a pending application. The profile status, the identity's role and the
// applicant's notification commit together.
func (s *OnboardingService) Approve(ctx context.Context, actor Actor, profileID string) (*domain.PractitionerProfile, error) {
	return s.decide(ctx, actor, profileID, domain.OnboardingApproved)
}

// Reject declines a pending application. The identity keeps its patient role.
func (s *OnboardingService) Reject(ctx context.Context, actor Actor, profileID string) (*domain.PractitionerProfile, error) {
	return s.decide(ctx, actor, profileID, domain.OnboardingRejected)
}

func (s *OnboardingService) decide(ctx context.Context, actor Actor, profileID string, to domain.OnboardingStatus) (*domain.PractitionerProfile, error) {
	if actor.Role != domain.RoleOperator {
		return nil, apperrors.NewForbidden("only operators can review practitioner applications")
	}

	profile, err := s.practitioners.GetByID(ctx, profileID)
	if err != nil {
		return nil, notFoundOr(err, "practitioner", map[string]any{"profile_id": profileID})
	}
	if profile.Status != domain.OnboardingPending {
		return nil, apperrors.NewInvalidTransition(
			fmt.Sprintf("application is already %s", profile.Status),
			map[string]any{"profile_id": profileID, "from": profile.Status, "to": to})
	}

	kind, message, eventType := domain.NotificationPractitionerRejected, msgApplicationRejected, events.EventPractitionerRejected
	if to == domain.OnboardingApproved {
		kind, message, eventType = domain.NotificationPractitionerApproved, msgApplicationApproved, events.EventPractitionerApproved
	}

	var notification *domain.Notification
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.practitioners.UpdateStatus(ctx, profile.ID, domain.OnboardingPending, to); err != nil {
			return err
		}
		if to == domain.OnboardingApproved {
			if err := s.identities.UpdateRole(ctx, profile.IdentityID, domain.RolePractitioner); err != nil {
				return err
			}
		}
		n, err := s.sink.Append(ctx, profile.IdentityID, kind, message,
			map[string]any{"profile_id": profile.ID, "status": to})
		notification = n
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, apperrors.NewInvalidTransition("application changed concurrently", map[string]any{"profile_id": profileID})
		}
		return nil, notFoundOr(err, "practitioner", map[string]any{"profile_id": profileID})
	}
	profile.Status = to

	s.metrics.RecordOnboarding(string(to))
	s.logger.Info("practitioner application reviewed",
		zap.String("profile_id", profile.ID),
		zap.String("decision", string(to)),
		zap.String("operator_id", actor.IdentityID))

	s.publishEvent(ctx, events.Event{
		Type:         eventType,
		SubjectID:    profile.ID,
		Actor:        actor.event(),
		Notification: notification,
		Payload:      events.OnboardingPayload{IdentityID: profile.IdentityID, Status: to},
	})
	return profile, nil
}

// ListApproved returns the public directory of approved practitioners.
func (s *OnboardingService) ListApproved(ctx context.Context, page repository.Page) ([]domain.PractitionerProfile, error) {
	status := domain.OnboardingApproved
	return s.ListProfiles(ctx, &status, page)
}

// ListProfiles returns profiles, optionally narrowed to one onboarding status.
func (s *OnboardingService) ListProfiles(ctx context.Context, status *domain.OnboardingStatus, page repository.Page) ([]domain.PractitionerProfile, error) {
	if status != nil && !status.Valid() {
		return nil, apperrors.NewValidationError("invalid onboarding status", map[string]any{"status": *status})
	}
	items, err := s.practitioners.List(ctx, repository.PractitionerFilter{Status: status, Page: page})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.PractitionerProfile{}
	}
	return items, nil
}

// MyProfile returns the caller's practitioner profile.
func (s *OnboardingService) MyProfile(ctx context.Context, identityID string) (*domain.PractitionerProfile, error) {
	profile, err := s.practitioners.GetByIdentityID(ctx, identityID)
	if err != nil {
		return nil, notFoundOr(err, "practitioner profile", map[string]any{"identity_id": identityID})
	}
	return profile, nil
}

// UpdateMyProfile edits the caller's profile. Existing appointments keep the snapshot
// taken at booking time.
func (s *OnboardingService) UpdateMyProfile(ctx context.Context, identityID string, input ProfileUpdateInput) (*domain.PractitionerProfile, error) {
	profile, err := s.MyProfile(ctx, identityID)
	if err != nil {
		return nil, err
	}

	problems := fieldErrors{}
	if input.FullName != nil {
		problems.require("full_name", *input.FullName)
		profile.FullName = strings.TrimSpace(*input.FullName)
	}
	if input.Specialization != nil {
		problems.require("specialization", *input.Specialization)
		profile.Specialization = strings.TrimSpace(*input.Specialization)
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if !validEmail(email) {
			problems["email"] = "must be a valid email address"
		}
		profile.Email = email
	}
	if input.PhoneNumber != nil {
		profile.PhoneNumber = strings.TrimSpace(*input.PhoneNumber)
	}
	if input.Address != nil {
		profile.Address = strings.TrimSpace(*input.Address)
	}
	if input.AvailabilityWindow != nil {
		profile.AvailabilityWindow = strings.TrimSpace(*input.AvailabilityWindow)
	}
	if input.ExperienceYears != nil {
		if *input.ExperienceYears < 0 {
			problems["experience_years"] = "must not be negative"
		}
		profile.ExperienceYears = *input.ExperienceYears
	}
	if input.ConsultationFee != nil {
		if *input.ConsultationFee < 0 {
			problems["consultation_fee"] = "must not be negative"
		}
		profile.ConsultationFee = *input.ConsultationFee
	}
	if err := problems.err("invalid profile update"); err != nil {
		return nil, err
	}

	if err := s.practitioners.Update(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewEmailTaken(profile.Email)
		}
		return nil, notFoundOr(err, "practitioner profile", map[string]any{"identity_id": identityID})
	}
	return profile, nil
}

// ReconcileRoles repairs identities whose role disagrees with their onboarding status:
// approved applicants become practitioners, practitioners without an approved profile
// revert to patients. Operators are never touched.
//
// The listings only nominate candidates. Each candidate is settled in its own
// transaction that writes the role first and then re-reads the profile, so a review
// committed after the listings is never undone.
func (s *OnboardingService) ReconcileRoles(ctx context.Context) (*RoleReconciliation, error) {
	practitionerRole := domain.RolePractitioner
	practitioners, err := collectPages(func(page repository.Page) ([]domain.Identity, error) {
		return s.identities.List(ctx, &practitionerRole, page)
	})
	if err != nil {
		return nil, err
	}
	approvedStatus := domain.OnboardingApproved
	approved, err := collectPages(func(page repository.Page) ([]domain.PractitionerProfile, error) {
		return s.practitioners.List(ctx, repository.PractitionerFilter{Status: &approvedStatus, Page: page})
	})
	if err != nil {
		return nil, err
	}

	approvedByIdentity := make(map[string]struct{}, len(approved))
	for _, p := range approved {
		approvedByIdentity[p.IdentityID] = struct{}{}
	}
	isPractitioner := make(map[string]struct{}, len(practitioners))
	for _, identity := range practitioners {
		isPractitioner[identity.ID] = struct{}{}
	}

	result := &RoleReconciliation{Promoted: []string{}, Demoted: []string{}}
	for identityID := range approvedByIdentity {
		if _, ok := isPractitioner[identityID]; ok {
			continue
		}
		changed, err := s.settleRole(ctx, identityID, domain.RolePatient, domain.RolePractitioner)
		if err != nil {
			return result, err
		}
		if changed {
			result.Promoted = append(result.Promoted, identityID)
		}
	}
	for identityID := range isPractitioner {
		if _, ok := approvedByIdentity[identityID]; ok {
			continue
		}
		changed, err := s.settleRole(ctx, identityID, domain.RolePractitioner, domain.RolePatient)
		if err != nil {
			return result, err
		}
		if changed {
			result.Demoted = append(result.Demoted, identityID)
		}
	}

	if len(result.Promoted)+len(result.Demoted) > 0 {
		s.logger.Warn("repaired practitioner roles",
			zap.Strings("promoted", result.Promoted),
			zap.Strings("demoted", result.Demoted))
		s.publishEvent(ctx, events.Event{
			Type:    events.EventRolesReconciled,
			Payload: events.RolesReconciledPayload{Promoted: result.Promoted, Demoted: result.Demoted},
		})
	}
	return result, nil
}

var errRoleSettled = errors.New("role already coherent")

// settleRole moves identityID from one role to another when the identity still holds
// from and the profile state still calls for to. It reports whether the role changed.
func (s *OnboardingService) settleRole(ctx context.Context, identityID string, from, to domain.Role) (bool, error) {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		identity, err := s.identities.GetByID(ctx, identityID)
		if err != nil {
			return err
		}
		if identity.Role != from {
			return errRoleSettled
		}
		// The role write takes the identity row before the profile is re-read, so a
		// concurrent approval either commits first and is seen, or waits for this tx.
		if err := s.identities.UpdateRole(ctx, identityID, to); err != nil {
			return err
		}
		approved := false
		profile, err := s.practitioners.GetByIdentityID(ctx, identityID)
		switch {
		case err == nil:
			approved = profile.Status == domain.OnboardingApproved
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		if approved != (to == domain.RolePractitioner) {
			return errRoleSettled
		}
		return nil
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errRoleSettled), errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func collectPages[T any](fetch func(repository.Page) ([]T, error)) ([]T, error) {
	var all []T
	page := repository.Page{Limit: maxPageLimit}
	for {
		items, err := fetch(page)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) < page.Limit {
			return all, nil
		}
		page.Offset += page.Limit
	}
}
