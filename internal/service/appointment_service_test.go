package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

func strPtr(s string) *string { return &s }

func TestBookAndRejectScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	drActor, drA := h.practitioner(t, "A")
	p1, _ := h.patient(t, "P")
	p2, _ := h.patient(t, "Q")

	appt := h.book(t, p1, drA, "2024-02-15", "10:00")
	assert.Equal(t, domain.AppointmentPending, appt.Status)
	assert.Equal(t, "A", appt.Practitioner.FullName)
	assert.Equal(t, "P", appt.Patient.DisplayName)

	inbox := h.notifications(t, drActor.IdentityID)
	require.NotEmpty(t, inbox)
	assert.Equal(t, domain.NotificationNewAppointment, inbox[0].Kind)
	assert.Equal(t, "New appointment request from P for 2024-02-15 at 10:00", inbox[0].Message)
	assert.Equal(t, appt.ID, inbox[0].Payload["appointment_id"])

	_, err := h.appointments.Book(ctx, p2, BookInput{PractitionerID: drA.ID, Date: "2024-02-15", Time: "10:00"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotTaken))

	rejected, err := h.appointments.SetStatus(ctx, drActor, appt.ID, domain.AppointmentRejected, strPtr("Fully booked"))
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentRejected, rejected.Status)
	require.NotNil(t, rejected.PractitionerNotes)
	assert.Equal(t, "Fully booked", *rejected.PractitionerNotes)

	patientInbox := h.notifications(t, p1.IdentityID)
	require.Len(t, patientInbox, 1)
	assert.Equal(t, domain.NotificationAppointmentStatus, patientInbox[0].Kind)
	assert.Equal(t,
		"Unfortunately, Dr. A had to decline your appointment for 2024-02-15 at 10:00. Reason: Fully booked",
		patientInbox[0].Message)

	// The slot is free again once the active appointment is rejected.
	rebooked := h.book(t, p2, drA, "2024-02-15", "10:00")
	assert.NotEqual(t, appt.ID, rebooked.ID)
}

func TestBookNormalizesSlot(t *testing.T) {
	h := newHarness(t)
	_, dr := h.practitioner(t, "Norm")
	p, _ := h.patient(t, "")

	appt := h.book(t, p, dr, " 2024-03-01 ", "9:05")
	assert.Equal(t, "2024-03-01", appt.Date)
	assert.Equal(t, "09:05", appt.Time)
}

func TestBookValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	drActor, dr := h.practitioner(t, "Valid")
	p, _ := h.patient(t, "")
	op := h.operator(t)

	tests := []struct {
		name  string
		actor Actor
		input BookInput
		code  string
	}{
		{"bad date", p, BookInput{PractitionerID: dr.ID, Date: "15/02/2024", Time: "10:00"}, apperrors.CodeValidation},
		{"bad time", p, BookInput{PractitionerID: dr.ID, Date: "2024-02-15", Time: "25:00"}, apperrors.CodeValidation},
		{"missing practitioner", p, BookInput{Date: "2024-02-15", Time: "10:00"}, apperrors.CodeValidation},
		{"unknown practitioner", p, BookInput{PractitionerID: "nope", Date: "2024-02-15", Time: "10:00"}, apperrors.CodeNotFound},
		{"practitioner cannot book", drActor, BookInput{PractitionerID: dr.ID, Date: "2024-02-15", Time: "10:00"}, apperrors.CodeForbidden},
		{"operator cannot book", op, BookInput{PractitionerID: dr.ID, Date: "2024-02-15", Time: "10:00"}, apperrors.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.appointments.Book(ctx, tt.actor, tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestBookPendingPractitionerIsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	applicant, _ := h.patient(t, "")
	profile, err := h.onboarding.Apply(ctx, applicant, applyInput("Pending"))
	require.NoError(t, err)

	p, _ := h.patient(t, "")
	_, err = h.appointments.Book(ctx, p, BookInput{PractitionerID: profile.ID, Date: "2024-02-15", Time: "10:00"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestConcurrentBookingSameSlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, dr := h.practitioner(t, "Busy")

	const contenders = 12
	patients := make([]Actor, contenders)
	for i := range patients {
		patients[i], _ = h.patient(t, "")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		taken     int
	)
	start := make(chan struct{})
	for _, p := range patients {
		wg.Add(1)
		go func(p Actor) {
			defer wg.Done()
			<-start
			_, err := h.appointments.Book(ctx, p, BookInput{PractitionerID: dr.ID, Date: "2024-05-01", Time: "14:30"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperrors.HasCode(err, apperrors.CodeSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(p)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, contenders-1, taken)

	active, err := h.appointments.ListAll(ctx, AppointmentListInput{
		Statuses: []domain.AppointmentStatus{domain.AppointmentPending, domain.AppointmentApproved},
	})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	requests := 0
	for _, n := range h.notifications(t, dr.IdentityID) {
		if n.Kind == domain.NotificationNewAppointment {
			requests++
		}
	}
	assert.Equal(t, 1, requests)
}

func TestStatusTransitions(t *testing.T) {
	ctx := context.Background()

	type step struct {
		by     string // "practitioner" or "patient"
		status domain.AppointmentStatus
		code   string
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{"approve then complete", []step{
			{"practitioner", domain.AppointmentApproved, ""},
			{"practitioner", domain.AppointmentCompleted, ""},
		}},
		{"pending cannot complete", []step{
			{"practitioner", domain.AppointmentCompleted, apperrors.CodeInvalidTransition},
		}},
		{"rejected is terminal", []step{
			{"practitioner", domain.AppointmentRejected, ""},
			{"practitioner", domain.AppointmentApproved, apperrors.CodeInvalidTransition},
			{"patient", domain.AppointmentCancelled, apperrors.CodeInvalidTransition},
		}},
		{"completed cannot be cancelled", []step{
			{"practitioner", domain.AppointmentApproved, ""},
			{"practitioner", domain.AppointmentCompleted, ""},
			{"patient", domain.AppointmentCancelled, apperrors.CodeInvalidTransition},
		}},
		{"patient cancels pending", []step{
			{"patient", domain.AppointmentCancelled, ""},
			{"patient", domain.AppointmentCancelled, apperrors.CodeInvalidTransition},
		}},
		{"practitioner cancels approved", []step{
			{"practitioner", domain.AppointmentApproved, ""},
			{"practitioner", domain.AppointmentCancelled, ""},
		}},
		{"practitioner cannot cancel pending", []step{
			{"practitioner", domain.AppointmentCancelled, apperrors.CodeInvalidTransition},
		}},
		{"no move back to pending", []step{
			{"practitioner", domain.AppointmentApproved, ""},
			{"practitioner", domain.AppointmentPending, apperrors.CodeInvalidTransition},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			drActor, dr := h.practitioner(t, "T")
			p, _ := h.patient(t, "")
			appt := h.book(t, p, dr, "2024-06-01", "08:00")

			for _, st := range tt.steps {
				var err error
				if st.by == "patient" {
					_, err = h.appointments.Cancel(ctx, p, appt.ID)
				} else {
					_, err = h.appointments.SetStatus(ctx, drActor, appt.ID, st.status, nil)
				}
				if st.code == "" {
					require.NoError(t, err)
					continue
				}
				assert.True(t, apperrors.HasCode(err, st.code), "got %v", err)
			}
		})
	}
}

func TestCancelCompletedMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	drActor, dr := h.practitioner(t, "Done")
	p, _ := h.patient(t, "")
	appt := h.book(t, p, dr, "2024-06-01", "08:00")

	_, err := h.appointments.SetStatus(ctx, drActor, appt.ID, domain.AppointmentApproved, nil)
	require.NoError(t, err)
	_, err = h.appointments.SetStatus(ctx, drActor, appt.ID, domain.AppointmentCompleted, strPtr("All good"))
	require.NoError(t, err)

	_, err = h.appointments.Cancel(ctx, p, appt.ID)
	require.Error(t, err)
	assert.Equal(t, "cannot cancel a completed appointment", apperrors.ToDomainError(err).Message)

	inbox := h.notifications(t, p.IdentityID)
	require.Len(t, inbox, 2)
	assert.Equal(t, "Your appointment with Dr. Done has been completed. Summary: All good", inbox[0].Message)
	assert.Equal(t, "Great news! Dr. Done has approved your appointment for 2024-06-01 at 08:00.", inbox[1].Message)
}

func TestCancelNotifiesPractitioner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	drActor, dr := h.practitioner(t, "Cancel")
	p, _ := h.patient(t, "Jane")
	appt := h.book(t, p, dr, "2024-07-01", "11:00")

	before := len(h.notifications(t, drActor.IdentityID))
	cancelled, err := h.appointments.Cancel(ctx, p, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentCancelled, cancelled.Status)

	inbox := h.notifications(t, drActor.IdentityID)
	require.Len(t, inbox, before+1)
	assert.Equal(t, domain.NotificationAppointmentCancelled, inbox[0].Kind)
	assert.Equal(t, "Appointment cancelled by Jane", inbox[0].Message)

	require.Len(t, h.recorder.ofType(events.EventAppointmentCancelled), 1)

	// Cancelling frees the slot.
	other, _ := h.patient(t, "")
	h.book(t, other, dr, "2024-07-01", "11:00")
}

func TestOwnershipChecks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, dr := h.practitioner(t, "Owner")
	otherDr, _ := h.practitioner(t, "Other")
	p, _ := h.patient(t, "")
	stranger, _ := h.patient(t, "")
	appt := h.book(t, p, dr, "2024-08-01", "09:00")

	_, err := h.appointments.SetStatus(ctx, otherDr, appt.ID, domain.AppointmentApproved, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.appointments.Cancel(ctx, stranger, appt.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.NotContains(t, err.Error(), "another patient")

	_, err = h.appointments.SetStatus(ctx, p, appt.ID, domain.AppointmentApproved, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.appointments.Cancel(ctx, p, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	stored, err := h.store.Appointments().GetByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AppointmentPending, stored.Status)
}

func TestSnapshotsSurviveProfileEdits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	drActor, dr := h.practitioner(t, "Before")
	p, _ := h.patient(t, "")
	appt := h.book(t, p, dr, "2024-09-01", "10:00")

	_, err := h.onboarding.UpdateMyProfile(ctx, drActor.IdentityID, ProfileUpdateInput{FullName: strPtr("After")})
	require.NoError(t, err)

	stored, err := h.store.Appointments().GetByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Before", stored.Practitioner.FullName)
}

func TestListingsAndStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	drActor, dr := h.practitioner(t, "Stats")
	p, _ := h.patient(t, "")

	today := time.Now().Format(slotDateLayout)
	first := h.book(t, p, dr, today, "09:00")
	h.book(t, p, dr, today, "10:00")
	h.book(t, p, dr, "2030-01-01", "10:00")

	_, err := h.appointments.SetStatus(ctx, drActor, first.ID, domain.AppointmentApproved, nil)
	require.NoError(t, err)

	mine, err := h.appointments.ListForPatient(ctx, p.IdentityID, AppointmentListInput{})
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	pending, err := h.appointments.ListForPractitioner(ctx, drActor.IdentityID, AppointmentListInput{
		Statuses: []domain.AppointmentStatus{domain.AppointmentPending},
	})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	onDate, err := h.appointments.ListForPractitioner(ctx, drActor.IdentityID, AppointmentListInput{Date: &today})
	require.NoError(t, err)
	assert.Len(t, onDate, 2)

	stats, err := h.appointments.PractitionerStats(ctx, drActor.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Today)
	assert.Equal(t, 1, stats.ByStatus[domain.AppointmentApproved])
	assert.Equal(t, 2, stats.ByStatus[domain.AppointmentPending])
	assert.Equal(t, 0, stats.ByStatus[domain.AppointmentCompleted])
}
