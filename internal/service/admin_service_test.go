package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/repository"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

func TestStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	drActor, dr := h.practitioner(t, "S")
	p, _ := h.patient(t, "")
	appt := h.book(t, p, dr, "2024-02-15", "10:00")
	h.book(t, p, dr, "2024-02-15", "11:00")
	_, err := h.appointments.SetStatus(ctx, drActor, appt.ID, domain.AppointmentApproved, nil)
	require.NoError(t, err)

	stats, err := h.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IdentitiesByRole[domain.RolePractitioner])
	assert.Equal(t, 1, stats.IdentitiesByRole[domain.RolePatient])
	assert.Equal(t, 1, stats.IdentitiesByRole[domain.RoleOperator])
	assert.Equal(t, 1, stats.ProfilesByStatus[domain.OnboardingApproved])
	assert.Equal(t, 0, stats.ProfilesByStatus[domain.OnboardingPending])
	assert.Equal(t, 2, stats.TotalAppointments)
	assert.Equal(t, 1, stats.AppointmentsByStatus[domain.AppointmentApproved])
	assert.Equal(t, 1, stats.AppointmentsByStatus[domain.AppointmentPending])
}

func TestListIdentities(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.patient(t, "")
	h.patient(t, "")
	h.operator(t)

	role := domain.RolePatient
	patients, err := h.admin.ListIdentities(ctx, &role, repository.Page{})
	require.NoError(t, err)
	assert.Len(t, patients, 2)

	all, err := h.admin.ListIdentities(ctx, nil, repository.Page{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bogus := domain.Role("root")
	_, err = h.admin.ListIdentities(ctx, &bogus, repository.Page{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestPurgeIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	op := h.operator(t)
	drActor, dr := h.practitioner(t, "Gone")
	p, _ := h.patient(t, "")
	h.book(t, p, dr, "2024-02-15", "10:00")
	h.book(t, p, dr, "2024-02-16", "10:00")

	require.NoError(t, h.admin.PurgeIdentity(ctx, op, drActor.IdentityID))

	_, err := h.store.Identities().GetByID(ctx, drActor.IdentityID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = h.store.Practitioners().GetByIdentityID(ctx, drActor.IdentityID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, h.notifications(t, drActor.IdentityID))

	left, err := h.appointments.ListForPatient(ctx, p.IdentityID, AppointmentListInput{})
	require.NoError(t, err)
	assert.Empty(t, left)

	purged := h.recorder.ofType(events.EventIdentityPurged)
	require.Len(t, purged, 1)
	payload, ok := purged[0].Payload.(events.IdentityPurgedPayload)
	require.True(t, ok)
	assert.Equal(t, int64(2), payload.AppointmentsDeleted)

	assert.True(t, apperrors.HasCode(h.admin.PurgeIdentity(ctx, op, drActor.IdentityID), apperrors.CodeNotFound))
	assert.True(t, apperrors.HasCode(h.admin.PurgeIdentity(ctx, op, op.IdentityID), apperrors.CodeForbidden))
	assert.True(t, apperrors.HasCode(h.admin.PurgeIdentity(ctx, p, p.IdentityID), apperrors.CodeForbidden))
}

func TestNotificationSinkRetention(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p, _ := h.patient(t, "")
	sink := NewNotificationSink(h.store.Notifications(), 3)

	for i := 1; i <= 5; i++ {
		_, err := sink.Append(ctx, p.IdentityID, domain.NotificationAppointmentStatus, fmt.Sprintf("update %d", i), nil)
		require.NoError(t, err)
	}

	items, err := sink.ListFor(ctx, p.IdentityID, repository.Page{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "update 5", items[0].Message)
	assert.Equal(t, "update 3", items[2].Message)

	page, err := sink.ListFor(ctx, p.IdentityID, repository.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "update 3", page[0].Message)

	require.NoError(t, sink.MarkRead(ctx, p.IdentityID, items[0].ID))
	unread, err := sink.UnreadCount(ctx, p.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	other, _ := h.patient(t, "")
	assert.True(t, apperrors.HasCode(sink.MarkRead(ctx, other.IdentityID, items[1].ID), apperrors.CodeNotFound))

	marked, err := sink.MarkAllRead(ctx, p.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
}

func TestNotificationSinkSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p, _ := h.patient(t, "")
	unbounded := NewNotificationSink(h.store.Notifications(), 0)
	for i := 0; i < 6; i++ {
		_, err := unbounded.Append(ctx, p.IdentityID, domain.NotificationNewAppointment, "n", nil)
		require.NoError(t, err)
	}

	evicted, err := NewNotificationSink(h.store.Notifications(), 4).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), evicted)
	assert.Len(t, h.notifications(t, p.IdentityID), 4)
}

type capturePublisher struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (c *capturePublisher) PublishNotification(_ context.Context, n domain.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
	return nil
}

func TestNotificationServiceFanOut(t *testing.T) {
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	publisher := &capturePublisher{}
	svc := NewNotificationService(dispatcher, publisher, zap.NewNop(), config.NotificationConfig{EmailFrom: "noreply@example.com"})
	svc.RegisterHandlers()

	n := &domain.Notification{ID: "n1", IdentityID: "i1", Kind: domain.NotificationNewAppointment, Message: "hello"}
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventAppointmentBooked, Notification: n}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventPractitionerApproved}))
	require.NoError(t, dispatcher.Publish(ctx, events.Event{Type: events.EventIdentityPurged, Notification: n}))

	require.Len(t, publisher.got, 1)
	assert.Equal(t, "hello", publisher.got[0].Message)
}
