package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/repository/memory"
	"github.com/spec-kit/booking-service/internal/slotlock"
)

var emailSeq atomic.Int64

func uniqueEmail() string {
	return fmt.Sprintf("%d.%s", emailSeq.Add(1), gofakeit.Email())
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            4,
		},
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	store        *memory.Store
	dispatcher   events.Dispatcher
	recorder     *eventRecorder
	sink         *NotificationSink
	auth         *AuthService
	onboarding   *OnboardingService
	appointments *AppointmentService
	admin        *AdminService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil)
}

// newHarnessWith builds services on a fresh store. wrap, when set, decorates the
// notification repository used by the sink.
func newHarnessWith(t *testing.T, wrap func(repository.NotificationRepository) repository.NotificationRepository) *harness {
	t.Helper()
	store := memory.NewStore()
	notifications := store.Notifications()
	if wrap != nil {
		notifications = wrap(notifications)
	}

	dispatcher := events.NewInMemoryDispatcher(nil)
	recorder := &eventRecorder{}
	for _, et := range []events.EventType{
		events.EventAppointmentBooked,
		events.EventAppointmentStatusChanged,
		events.EventAppointmentCancelled,
		events.EventPractitionerApplied,
		events.EventPractitionerApproved,
		events.EventPractitionerRejected,
		events.EventIdentityPurged,
		events.EventRolesReconciled,
	} {
		dispatcher.Subscribe(et, recorder.handle)
	}

	sink := NewNotificationSink(notifications, 200)
	guard := NewSlotConflictGuard(store.Appointments(), store.Transactor(), slotlock.NewLocalLocker(2*time.Second))

	return &harness{
		store:      store,
		dispatcher: dispatcher,
		recorder:   recorder,
		sink:       sink,
		auth: NewAuthService(testConfig(), AuthDependencies{
			IdentityRepo:     store.Identities(),
			PractitionerRepo: store.Practitioners(),
			Sink:             sink,
		}),
		onboarding: NewOnboardingService(OnboardingDependencies{
			Transactor:       store.Transactor(),
			IdentityRepo:     store.Identities(),
			PractitionerRepo: store.Practitioners(),
			Sink:             sink,
			Dispatcher:       dispatcher,
		}),
		appointments: NewAppointmentService(AppointmentDependencies{
			Transactor:       store.Transactor(),
			IdentityRepo:     store.Identities(),
			PractitionerRepo: store.Practitioners(),
			AppointmentRepo:  store.Appointments(),
			Guard:            guard,
			Sink:             sink,
			Dispatcher:       dispatcher,
		}),
		admin: NewAdminService(AdminDependencies{
			Transactor:       store.Transactor(),
			IdentityRepo:     store.Identities(),
			PractitionerRepo: store.Practitioners(),
			AppointmentRepo:  store.Appointments(),
			NotificationRepo: store.Notifications(),
			Dispatcher:       dispatcher,
		}),
	}
}

func (h *harness) patient(t *testing.T, name string) (Actor, *domain.Identity) {
	t.Helper()
	if name == "" {
		name = gofakeit.Name()
	}
	identity, _, _, err := h.auth.Register(context.Background(), RegisterInput{
		DisplayName: name,
		Email:       uniqueEmail(),
		PhoneNumber: gofakeit.Phone(),
		Password:    "correct-horse",
	})
	require.NoError(t, err)
	return Actor{IdentityID: identity.ID, Role: identity.Role}, identity
}

func (h *harness) operator(t *testing.T) Actor {
	t.Helper()
	identity, _, _, err := h.auth.ProvisionOperator(context.Background(), RegisterInput{
		DisplayName: "Operator",
		Email:       uniqueEmail(),
		Password:    "operator-pass",
	}, time.Hour)
	require.NoError(t, err)
	return Actor{IdentityID: identity.ID, Role: domain.RoleOperator}
}

func applyInput(fullName string) ApplyInput {
	return ApplyInput{
		FullName:           fullName,
		Email:              uniqueEmail(),
		PhoneNumber:        gofakeit.Phone(),
		Address:            gofakeit.City(),
		Specialization:     "Cardiology",
		ExperienceYears:    gofakeit.Number(1, 30),
		ConsultationFee:    5000,
		AvailabilityWindow: "Mon-Fri 09:00-17:00",
	}
}

// practitioner registers, applies and approves a practitioner named fullName.
func (h *harness) practitioner(t *testing.T, fullName string) (Actor, *domain.PractitionerProfile) {
	t.Helper()
	ctx := context.Background()
	applicant, _ := h.patient(t, fullName)
	profile, err := h.onboarding.Apply(ctx, applicant, applyInput(fullName))
	require.NoError(t, err)
	profile, err = h.onboarding.Approve(ctx, h.operator(t), profile.ID)
	require.NoError(t, err)
	return Actor{IdentityID: applicant.IdentityID, Role: domain.RolePractitioner}, profile
}

func (h *harness) book(t *testing.T, patient Actor, profile *domain.PractitionerProfile, date, clock string) *domain.Appointment {
	t.Helper()
	appt, err := h.appointments.Book(context.Background(), patient, BookInput{
		PractitionerID: profile.ID,
		Date:           date,
		Time:           clock,
	})
	require.NoError(t, err)
	return appt
}

func (h *harness) notifications(t *testing.T, identityID string) []domain.Notification {
	t.Helper()
	items, err := h.sink.ListFor(context.Background(), identityID, repository.Page{Limit: 100})
	require.NoError(t, err)
	return items
}

// failingNotifications fails every Append once armed.
type failingNotifications struct {
	repository.NotificationRepository
	armed atomic.Bool
}

func (f *failingNotifications) Append(ctx context.Context, n *domain.Notification, retain int) error {
	if f.armed.Load() {
		return fmt.Errorf("notification store unavailable")
	}
	return f.NotificationRepository.Append(ctx, n, retain)
}
