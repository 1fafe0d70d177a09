package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/repository"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

func TestApplyCreatesPendingProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	applicant, _ := h.patient(t, "")

	profile, err := h.onboarding.Apply(ctx, applicant, applyInput("Grey"))
	require.NoError(t, err)
	assert.Equal(t, domain.OnboardingPending, profile.Status)
	assert.Equal(t, applicant.IdentityID, profile.IdentityID)

	identity, err := h.store.Identities().GetByID(ctx, applicant.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePatient, identity.Role)

	inbox := h.notifications(t, applicant.IdentityID)
	require.Len(t, inbox, 1)
	assert.Equal(t, domain.NotificationPractitionerApplication, inbox[0].Kind)
	assert.Equal(t, msgApplicationSubmitted, inbox[0].Message)
	assert.Len(t, h.recorder.ofType(events.EventPractitionerApplied), 1)
}

func TestApplyRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	t.Run("validation", func(t *testing.T) {
		applicant, _ := h.patient(t, "")
		input := applyInput("")
		input.ConsultationFee = -1
		_, err := h.onboarding.Apply(ctx, applicant, input)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
		details := apperrors.ToDomainError(err).Details
		assert.Contains(t, details, "full_name")
		assert.Contains(t, details, "consultation_fee")
	})

	t.Run("duplicate application", func(t *testing.T) {
		applicant, _ := h.patient(t, "")
		_, err := h.onboarding.Apply(ctx, applicant, applyInput("Once"))
		require.NoError(t, err)

		_, err = h.onboarding.Apply(ctx, applicant, applyInput("Twice"))
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyApplied))
	})

	t.Run("no reapplication after rejection", func(t *testing.T) {
		applicant, _ := h.patient(t, "")
		profile, err := h.onboarding.Apply(ctx, applicant, applyInput("Rejected"))
		require.NoError(t, err)
		_, err = h.onboarding.Reject(ctx, h.operator(t), profile.ID)
		require.NoError(t, err)

		_, err = h.onboarding.Apply(ctx, applicant, applyInput("Again"))
		assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyApplied))
	})

	t.Run("professional email taken", func(t *testing.T) {
		first, _ := h.patient(t, "")
		input := applyInput("First")
		_, err := h.onboarding.Apply(ctx, first, input)
		require.NoError(t, err)

		second, _ := h.patient(t, "")
		dup := applyInput("Second")
		dup.Email = input.Email
		_, err = h.onboarding.Apply(ctx, second, dup)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeEmailTaken))
	})

	t.Run("operators cannot apply", func(t *testing.T) {
		_, err := h.onboarding.Apply(ctx, h.operator(t), applyInput("Op"))
		assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	})
}

func TestApprovePromotesIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	applicant, _ := h.patient(t, "")
	profile, err := h.onboarding.Apply(ctx, applicant, applyInput("Ready"))
	require.NoError(t, err)

	approved, err := h.onboarding.Approve(ctx, h.operator(t), profile.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OnboardingApproved, approved.Status)

	identity, err := h.store.Identities().GetByID(ctx, applicant.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePractitioner, identity.Role)

	inbox := h.notifications(t, applicant.IdentityID)
	require.Len(t, inbox, 2)
	assert.Equal(t, domain.NotificationPractitionerApproved, inbox[0].Kind)
	assert.Equal(t, msgApplicationApproved, inbox[0].Message)

	directory, err := h.onboarding.ListApproved(ctx, repository.Page{})
	require.NoError(t, err)
	require.Len(t, directory, 1)
	assert.Equal(t, profile.ID, directory[0].ID)
}

func TestRejectKeepsPatientRole(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	applicant, _ := h.patient(t, "")
	profile, err := h.onboarding.Apply(ctx, applicant, applyInput("No"))
	require.NoError(t, err)

	_, err = h.onboarding.Reject(ctx, h.operator(t), profile.ID)
	require.NoError(t, err)

	identity, err := h.store.Identities().GetByID(ctx, applicant.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePatient, identity.Role)

	inbox := h.notifications(t, applicant.IdentityID)
	assert.Equal(t, msgApplicationRejected, inbox[0].Message)

	_, err = h.onboarding.Approve(ctx, h.operator(t), profile.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestReviewRequiresOperator(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	applicant, _ := h.patient(t, "")
	profile, err := h.onboarding.Apply(ctx, applicant, applyInput("Self"))
	require.NoError(t, err)

	_, err = h.onboarding.Approve(ctx, applicant, profile.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.onboarding.Approve(ctx, h.operator(t), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestApproveRollsBackWhenNotificationFails(t *testing.T) {
	ctx := context.Background()
	var failing *failingNotifications
	h := newHarnessWith(t, func(repo repository.NotificationRepository) repository.NotificationRepository {
		failing = &failingNotifications{NotificationRepository: repo}
		return failing
	})

	applicant, _ := h.patient(t, "")
	profile, err := h.onboarding.Apply(ctx, applicant, applyInput("Atomic"))
	require.NoError(t, err)
	op := h.operator(t)

	failing.armed.Store(true)
	_, err = h.onboarding.Approve(ctx, op, profile.ID)
	require.Error(t, err)

	stored, err := h.store.Practitioners().GetByID(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OnboardingPending, stored.Status)
	identity, err := h.store.Identities().GetByID(ctx, applicant.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, domain.RolePatient, identity.Role)
	assert.Empty(t, h.recorder.ofType(events.EventPractitionerApproved))

	failing.armed.Store(false)
	_, err = h.onboarding.Approve(ctx, op, profile.ID)
	require.NoError(t, err)
}

func TestUpdateMyProfile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	drActor, _ := h.practitioner(t, "Edit")
	_, other := h.practitioner(t, "Taken")

	fee := int64(7500)
	updated, err := h.onboarding.UpdateMyProfile(ctx, drActor.IdentityID, ProfileUpdateInput{
		Specialization:  strPtr("Dermatology"),
		ConsultationFee: &fee,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dermatology", updated.Specialization)
	assert.Equal(t, fee, updated.ConsultationFee)
	assert.Equal(t, domain.OnboardingApproved, updated.Status)

	_, err = h.onboarding.UpdateMyProfile(ctx, drActor.IdentityID, ProfileUpdateInput{Email: strPtr(other.Email)})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEmailTaken))

	_, err = h.onboarding.UpdateMyProfile(ctx, drActor.IdentityID, ProfileUpdateInput{FullName: strPtr("  ")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	patient, _ := h.patient(t, "")
	_, err = h.onboarding.MyProfile(ctx, patient.IdentityID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestListProfilesByStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.practitioner(t, "Approved")
	applicant, _ := h.patient(t, "")
	_, err := h.onboarding.Apply(ctx, applicant, applyInput("Waiting"))
	require.NoError(t, err)

	pending := domain.OnboardingPending
	items, err := h.onboarding.ListProfiles(ctx, &pending, repository.Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Waiting", items[0].FullName)

	all, err := h.onboarding.ListProfiles(ctx, nil, repository.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bogus := domain.OnboardingStatus("bogus")
	_, err = h.onboarding.ListProfiles(ctx, &bogus, repository.Page{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

// assertRolesCoherent checks that exactly the identities with an approved profile hold
// the practitioner role.
func assertRolesCoherent(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	identities, err := h.store.Identities().List(ctx, nil, repository.Page{Limit: 100})
	require.NoError(t, err)
	for _, identity := range identities {
		approved := false
		profile, err := h.store.Practitioners().GetByIdentityID(ctx, identity.ID)
		if err == nil {
			approved = profile.Status == domain.OnboardingApproved
		} else {
			require.ErrorIs(t, err, repository.ErrNotFound)
		}
		assert.Equal(t, approved, identity.Role == domain.RolePractitioner,
			"identity %s role=%s approved=%v", identity.ID, identity.Role, approved)
	}
}

func TestRolesStayCoherentAcrossReviews(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	operator := h.operator(t)

	var profiles []*domain.PractitionerProfile
	for i := 0; i < 4; i++ {
		applicant, _ := h.patient(t, "")
		profile, err := h.onboarding.Apply(ctx, applicant, applyInput("Coherent"))
		require.NoError(t, err)
		profiles = append(profiles, profile)
	}
	assertRolesCoherent(t, h)

	for i, profile := range profiles {
		var err error
		if i%2 == 0 {
			_, err = h.onboarding.Approve(ctx, operator, profile.ID)
		} else {
			_, err = h.onboarding.Reject(ctx, operator, profile.ID)
		}
		require.NoError(t, err)
		assertRolesCoherent(t, h)

		// A repeated review is refused and changes nothing.
		_, err = h.onboarding.Reject(ctx, operator, profile.ID)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
		assertRolesCoherent(t, h)
	}
}

func TestReconcileRoles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// Approved profile whose identity kept the patient role.
	drifted, _ := h.patient(t, "")
	profile, err := h.onboarding.Apply(ctx, drifted, applyInput("Drifted"))
	require.NoError(t, err)
	require.NoError(t, h.store.Practitioners().UpdateStatus(ctx, profile.ID, domain.OnboardingPending, domain.OnboardingApproved))

	// Practitioner role without any profile.
	orphan, _ := h.patient(t, "")
	require.NoError(t, h.store.Identities().UpdateRole(ctx, orphan.IdentityID, domain.RolePractitioner))

	healthy, _ := h.practitioner(t, "Healthy")
	h.operator(t)

	result, err := h.onboarding.ReconcileRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{drifted.IdentityID}, result.Promoted)
	assert.Equal(t, []string{orphan.IdentityID}, result.Demoted)

	for id, want := range map[string]domain.Role{
		drifted.IdentityID: domain.RolePractitioner,
		orphan.IdentityID:  domain.RolePatient,
		healthy.IdentityID: domain.RolePractitioner,
	} {
		identity, err := h.store.Identities().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, identity.Role)
	}
	assert.Len(t, h.recorder.ofType(events.EventRolesReconciled), 1)

	again, err := h.onboarding.ReconcileRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Promoted)
	assert.Empty(t, again.Demoted)
}

// reviewDuringList runs review once, right after the wrapped listing has been read.
type reviewDuringList struct {
	once   sync.Once
	review func()
}

func (r *reviewDuringList) after() { r.once.Do(r.review) }

type identitiesListedBeforeReview struct {
	repository.IdentityRepository
	hook *reviewDuringList
}

func (w identitiesListedBeforeReview) List(ctx context.Context, role *domain.Role, page repository.Page) ([]domain.Identity, error) {
	items, err := w.IdentityRepository.List(ctx, role, page)
	w.hook.after()
	return items, err
}

type profilesListedBeforeReview struct {
	repository.PractitionerRepository
	hook *reviewDuringList
}

func (w profilesListedBeforeReview) List(ctx context.Context, filter repository.PractitionerFilter) ([]domain.PractitionerProfile, error) {
	items, err := w.PractitionerRepository.List(ctx, filter)
	w.hook.after()
	return items, err
}

func TestReconcileRolesKeepsApprovalCommittedMidScan(t *testing.T) {
	for _, tc := range []struct {
		name    string
		// preRole makes the applicant a practitioner before review, so the stale
		// profile listing nominates them for demotion.
		preRole bool
		wrap    func(OnboardingDependencies, *reviewDuringList) OnboardingDependencies
	}{
		{
			name: "approval after identity listing",
			wrap: func(d OnboardingDependencies, hook *reviewDuringList) OnboardingDependencies {
				d.IdentityRepo = identitiesListedBeforeReview{IdentityRepository: d.IdentityRepo, hook: hook}
				return d
			},
		},
		{
			name:    "approval after profile listing",
			preRole: true,
			wrap: func(d OnboardingDependencies, hook *reviewDuringList) OnboardingDependencies {
				d.PractitionerRepo = profilesListedBeforeReview{PractitionerRepository: d.PractitionerRepo, hook: hook}
				return d
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			applicant, _ := h.patient(t, "")
			profile, err := h.onboarding.Apply(ctx, applicant, applyInput("Midscan"))
			require.NoError(t, err)
			if tc.preRole {
				require.NoError(t, h.store.Identities().UpdateRole(ctx, applicant.IdentityID, domain.RolePractitioner))
			}
			operator := h.operator(t)

			hook := &reviewDuringList{review: func() {
				_, err := h.onboarding.Approve(ctx, operator, profile.ID)
				require.NoError(t, err)
			}}
			reconciler := NewOnboardingService(tc.wrap(OnboardingDependencies{
				Transactor:       h.store.Transactor(),
				IdentityRepo:     h.store.Identities(),
				PractitionerRepo: h.store.Practitioners(),
				Sink:             h.sink,
				Dispatcher:       h.dispatcher,
			}, hook))

			result, err := reconciler.ReconcileRoles(ctx)
			require.NoError(t, err)
			assert.Empty(t, result.Demoted)
			assert.Empty(t, result.Promoted)

			identity, err := h.store.Identities().GetByID(ctx, applicant.IdentityID)
			require.NoError(t, err)
			assert.Equal(t, domain.RolePractitioner, identity.Role)
			stored, err := h.store.Practitioners().GetByID(ctx, profile.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.OnboardingApproved, stored.Status)
			assertRolesCoherent(t, h)
		})
	}
}
