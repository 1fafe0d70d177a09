package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/events"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/repository"
	apperrors "github.com/spec-kit/booking-service/pkg/util/errorutil"
)

const (
	slotDateLayout = "2006-01-02"
	slotTimeLayout = "15:04"
	maxNotesLength = 2000
)

// AppointmentService runs the appointment lifecycle.
type AppointmentService struct {
	tx            repository.Transactor
	identities    repository.IdentityRepository
	practitioners repository.PractitionerRepository
	appointments  repository.AppointmentRepository
	guard         *SlotConflictGuard
	sink          *NotificationSink
	eventPublisher
}

// AppointmentDependencies bundles collaborators for the appointment service.
type AppointmentDependencies struct {
	Transactor       repository.Transactor
	IdentityRepo     repository.IdentityRepository
	PractitionerRepo repository.PractitionerRepository
	AppointmentRepo  repository.AppointmentRepository
	Guard            *SlotConflictGuard
	Sink             *NotificationSink
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// BookInput describes a booking request.
type BookInput struct {
	PractitionerID string
	Date           string
	Time           string
	Notes          *string
	DocumentRef    *string
}

// AppointmentListInput describes appointment listing filters.
type AppointmentListInput struct {
	Statuses []domain.AppointmentStatus
	Date     *string
	Limit    int
	Offset   int
}

// AppointmentStats summarizes a practitioner's appointments.
type AppointmentStats struct {
	Total    int                              `json:"total"`
	ByStatus map[domain.AppointmentStatus]int `json:"by_status"`
	Today    int                              `json:"today"`
}

// NewAppointmentService constructs the service.
func NewAppointmentService(deps AppointmentDependencies) *AppointmentService {
	return &AppointmentService{
		tx:             deps.Transactor,
		identities:     deps.IdentityRepo,
		practitioners:  deps.PractitionerRepo,
		appointments:   deps.AppointmentRepo,
		guard:          deps.Guard,
		sink:           deps.Sink,
		eventPublisher: newEventPublisher(deps.Dispatcher, deps.Metrics, deps.Logger),
	}
}

var allowedTransitions = map[domain.AppointmentStatus]map[domain.AppointmentStatus][]domain.Role{
	domain.AppointmentPending: {
		domain.AppointmentApproved:  {domain.RolePractitioner},
		domain.AppointmentRejected:  {domain.RolePractitioner},
		domain.AppointmentCancelled: {domain.RolePatient},
	},
	domain.AppointmentApproved: {
		domain.AppointmentCompleted: {domain.RolePractitioner},
		domain.AppointmentCancelled: {domain.RolePatient, domain.RolePractitioner},
	},
}

func isValidTransition(from, to domain.AppointmentStatus, actor domain.Role) bool {
	for _, role := range allowedTransitions[from][to] {
		if role == actor {
			return true
		}
	}
	return false
}

// canonicalSlot validates and normalizes a booking date and time.
func canonicalSlot(date, clock string) (string, string, fieldErrors) {
	problems := fieldErrors{}
	d, err := time.Parse(slotDateLayout, strings.TrimSpace(date))
	if err != nil {
		problems["date"] = "must be YYYY-MM-DD"
	}
	t, err := time.Parse(slotTimeLayout, strings.TrimSpace(clock))
	if err != nil {
		problems["time"] = "must be HH:MM"
	}
	if len(problems) > 0 {
		return "", "", problems
	}
	return d.Format(slotDateLayout), t.Format(slotTimeLayout), problems
}

// Book creates a pending appointment for the calling patient.
func (s *AppointmentService) Book(ctx context.Context, actor Actor, input BookInput) (*domain.Appointment, error) {
	date, clock, problems := canonicalSlot(input.Date, input.Time)
	problems.require("practitioner_id", input.PractitionerID)
	notes := trimmedPtr(input.Notes)
	if notes != nil && len(*notes) > maxNotesLength {
		problems["notes"] = fmt.Sprintf("must be at most %d characters", maxNotesLength)
	}
	if err := problems.err("invalid booking request"); err != nil {
		return nil, err
	}
	if actor.Role != domain.RolePatient {
		return nil, apperrors.NewForbidden("only patients can book appointments")
	}

	patient, err := s.identities.GetByID(ctx, actor.IdentityID)
	if err != nil {
		return nil, notFoundOr(err, "patient", map[string]any{"patient_id": actor.IdentityID})
	}

	profile, err := s.practitioners.GetByID(ctx, input.PractitionerID)
	if err != nil {
		return nil, notFoundOr(err, "practitioner", map[string]any{"practitioner_id": input.PractitionerID})
	}
	if profile.Status != domain.OnboardingApproved {
		return nil, apperrors.NewNotFound("practitioner", map[string]any{"practitioner_id": input.PractitionerID})
	}

	appointment := &domain.Appointment{
		PractitionerID: profile.ID,
		Practitioner:   profile.Snapshot(),
		PatientID:      patient.ID,
		Patient:        patient.Snapshot(),
		Date:           date,
		Time:           clock,
		Status:         domain.AppointmentPending,
		PatientNotes:   notes,
		DocumentRef:    trimmedPtr(input.DocumentRef),
	}

	var notification *domain.Notification
	err = s.guard.Reserve(ctx, appointment.Slot(), func(ctx context.Context) error {
		if err := s.appointments.Create(ctx, appointment); err != nil {
			return err
		}
		n, err := s.sink.Append(ctx, profile.IdentityID, domain.NotificationNewAppointment,
			fmt.Sprintf("New appointment request from %s for %s at %s", patient.DisplayName, date, clock),
			map[string]any{
				"appointment_id": appointment.ID,
				"patient_name":   patient.DisplayName,
				"date":           date,
				"time":           clock,
			})
		notification = n
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			s.metrics.RecordBooking("slot_taken")
			return nil, apperrors.NewSlotTaken(map[string]any{
				"practitioner_id": profile.ID,
				"date":            date,
				"time":            clock,
			})
		}
		s.metrics.RecordBooking("error")
		return nil, apperrors.MapError(err)
	}

	s.metrics.RecordBooking("booked")
	s.logger.Info("appointment booked",
		zap.String("appointment_id", appointment.ID),
		zap.String("practitioner_id", profile.ID),
		zap.String("date", date),
		zap.String("time", clock))

	s.publishEvent(ctx, events.Event{
		Type:         events.EventAppointmentBooked,
		SubjectID:    appointment.ID,
		Actor:        actor.event(),
		Notification: notification,
		Payload: events.AppointmentBookedPayload{
			PractitionerID: profile.ID,
			PatientID:      patient.ID,
			Date:           date,
			Time:           clock,
		},
	})
	return appointment, nil
}

// SetStatus moves an appointment along a practitioner edge of the lifecycle.
func (s *AppointmentService) SetStatus(ctx context.Context, actor Actor, appointmentID string, status domain.AppointmentStatus, notes *string) (*domain.Appointment, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}
	notes = trimmedPtr(notes)
	if notes != nil && len(*notes) > maxNotesLength {
		return nil, apperrors.NewValidationError("notes too long", map[string]any{"notes": fmt.Sprintf("must be at most %d characters", maxNotesLength)})
	}
	if actor.Role != domain.RolePractitioner {
		return nil, apperrors.NewForbidden("only practitioners can update appointment status")
	}

	appointment, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, notFoundOr(err, "appointment", map[string]any{"appointment_id": appointmentID})
	}
	profile, err := s.practitioners.GetByIdentityID(ctx, actor.IdentityID)
	if err != nil {
		return nil, notFoundOr(err, "practitioner profile", map[string]any{"identity_id": actor.IdentityID})
	}
	if appointment.PractitionerID != profile.ID {
		return nil, apperrors.NewForbidden("appointment belongs to another practitioner")
	}

	from := appointment.Status
	if !isValidTransition(from, status, domain.RolePractitioner) {
		return nil, apperrors.NewInvalidTransition(
			fmt.Sprintf("cannot move appointment from %s to %s", from, status),
			map[string]any{"from": from, "to": status})
	}

	appointment.Status = status
	if notes != nil {
		appointment.PractitionerNotes = notes
	}

	var notification *domain.Notification
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.UpdateStatus(ctx, appointment, from); err != nil {
			return err
		}
		n, err := s.sink.Append(ctx, appointment.PatientID, domain.NotificationAppointmentStatus,
			statusMessage(appointment, notes),
			map[string]any{
				"appointment_id":    appointment.ID,
				"status":            status,
				"practitioner_name": appointment.Practitioner.FullName,
				"date":              appointment.Date,
				"time":              appointment.Time,
				"notes":             derefString(notes),
			})
		notification = n
		return err
	})
	if err != nil {
		return nil, s.transitionError(err, appointment.ID, from, status)
	}

	s.metrics.RecordTransition(string(from), string(status))
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", appointment.ID),
		zap.String("from", string(from)),
		zap.String("to", string(status)))

	s.publishEvent(ctx, events.Event{
		Type:         events.EventAppointmentStatusChanged,
		SubjectID:    appointment.ID,
		Actor:        actor.event(),
		Notification: notification,
		Payload: events.AppointmentStatusChangedPayload{
			OldStatus: from,
			NewStatus: status,
			Notes:     derefString(notes),
		},
	})
	return appointment, nil
}

// Cancel cancels one of the calling patient's appointments.
func (s *AppointmentService) Cancel(ctx context.Context, actor Actor, appointmentID string) (*domain.Appointment, error) {
	if actor.Role != domain.RolePatient {
		return nil, apperrors.NewForbidden("only patients can cancel their appointments")
	}

	appointment, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, notFoundOr(err, "appointment", map[string]any{"appointment_id": appointmentID})
	}
	// Another patient's appointment is reported as absent.
	if appointment.PatientID != actor.IdentityID {
		return nil, apperrors.NewNotFound("appointment", map[string]any{"appointment_id": appointmentID})
	}

	from := appointment.Status
	if from == domain.AppointmentCompleted {
		return nil, apperrors.NewInvalidTransition("cannot cancel a completed appointment", map[string]any{"from": from})
	}
	if !isValidTransition(from, domain.AppointmentCancelled, domain.RolePatient) {
		return nil, apperrors.NewInvalidTransition(fmt.Sprintf("cannot cancel a %s appointment", from), map[string]any{"from": from})
	}

	appointment.Status = domain.AppointmentCancelled

	var notification *domain.Notification
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.appointments.UpdateStatus(ctx, appointment, from); err != nil {
			return err
		}
		n, err := s.sink.Append(ctx, appointment.Practitioner.IdentityID, domain.NotificationAppointmentCancelled,
			fmt.Sprintf("Appointment cancelled by %s", appointment.Patient.DisplayName),
			map[string]any{
				"appointment_id": appointment.ID,
				"patient_name":   appointment.Patient.DisplayName,
				"date":           appointment.Date,
				"time":           appointment.Time,
			})
		notification = n
		return err
	})
	if err != nil {
		return nil, s.transitionError(err, appointment.ID, from, domain.AppointmentCancelled)
	}

	s.metrics.RecordTransition(string(from), string(domain.AppointmentCancelled))
	s.logger.Info("appointment cancelled by patient", zap.String("appointment_id", appointment.ID))

	s.publishEvent(ctx, events.Event{
		Type:         events.EventAppointmentCancelled,
		SubjectID:    appointment.ID,
		Actor:        actor.event(),
		Notification: notification,
		Payload: events.AppointmentStatusChangedPayload{
			OldStatus: from,
			NewStatus: domain.AppointmentCancelled,
		},
	})
	return appointment, nil
}

func (s *AppointmentService) transitionError(err error, appointmentID string, from, to domain.AppointmentStatus) error {
	switch {
	case errors.Is(err, repository.ErrStale):
		return apperrors.NewInvalidTransition("appointment changed concurrently",
			map[string]any{"appointment_id": appointmentID, "from": from, "to": to})
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("appointment", map[string]any{"appointment_id": appointmentID})
	}
	return apperrors.MapError(err)
}

// statusMessage renders the patient-facing text for a practitioner decision.
func statusMessage(a *domain.Appointment, notes *string) string {
	name := a.Practitioner.FullName
	var msg, label string
	switch a.Status {
	case domain.AppointmentApproved:
		msg = fmt.Sprintf("Great news! Dr. %s has approved your appointment for %s at %s.", name, a.Date, a.Time)
		label = "Doctor's note"
	case domain.AppointmentRejected:
		msg = fmt.Sprintf("Unfortunately, Dr. %s had to decline your appointment for %s at %s.", name, a.Date, a.Time)
		label = "Reason"
	case domain.AppointmentCompleted:
		msg = fmt.Sprintf("Your appointment with Dr. %s has been completed.", name)
		label = "Summary"
	case domain.AppointmentCancelled:
		msg = fmt.Sprintf("Your appointment with Dr. %s has been cancelled.", name)
		label = "Reason"
	default:
		return fmt.Sprintf("Your appointment status has been updated to %s", a.Status)
	}
	if notes != nil {
		msg += fmt.Sprintf(" %s: %s", label, *notes)
	}
	return msg
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (in AppointmentListInput) filter() repository.AppointmentFilter {
	return repository.AppointmentFilter{
		Statuses: in.Statuses,
		Date:     in.Date,
		Page:     NormalizePage(in.Limit, in.Offset),
	}
}

// ListForPatient returns the patient's appointments, newest first.
func (s *AppointmentService) ListForPatient(ctx context.Context, patientID string, input AppointmentListInput) ([]domain.Appointment, error) {
	filter := input.filter()
	filter.PatientID = &patientID
	return s.list(ctx, filter)
}

// ListForPractitioner returns appointments booked with the calling practitioner.
func (s *AppointmentService) ListForPractitioner(ctx context.Context, identityID string, input AppointmentListInput) ([]domain.Appointment, error) {
	profile, err := s.practitioners.GetByIdentityID(ctx, identityID)
	if err != nil {
		return nil, notFoundOr(err, "practitioner profile", map[string]any{"identity_id": identityID})
	}
	filter := input.filter()
	filter.PractitionerID = &profile.ID
	return s.list(ctx, filter)
}

// ListAll returns appointments across practitioners for operators.
func (s *AppointmentService) ListAll(ctx context.Context, input AppointmentListInput) ([]domain.Appointment, error) {
	return s.list(ctx, input.filter())
}

func (s *AppointmentService) list(ctx context.Context, filter repository.AppointmentFilter) ([]domain.Appointment, error) {
	items, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.Appointment{}
	}
	return items, nil
}

// PractitionerStats counts the calling practitioner's appointments by status and for today.
func (s *AppointmentService) PractitionerStats(ctx context.Context, identityID string) (*AppointmentStats, error) {
	profile, err := s.practitioners.GetByIdentityID(ctx, identityID)
	if err != nil {
		return nil, notFoundOr(err, "practitioner profile", map[string]any{"identity_id": identityID})
	}

	byStatus, err := s.appointments.CountByStatus(ctx, repository.AppointmentFilter{PractitionerID: &profile.ID})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	today := s.now().Format(slotDateLayout)
	todayCounts, err := s.appointments.CountByStatus(ctx, repository.AppointmentFilter{PractitionerID: &profile.ID, Date: &today})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stats := &AppointmentStats{ByStatus: make(map[domain.AppointmentStatus]int, len(domain.AppointmentStatuses))}
	for _, status := range domain.AppointmentStatuses {
		stats.ByStatus[status] = byStatus[status]
		stats.Total += byStatus[status]
		stats.Today += todayCounts[status]
	}
	return stats, nil
}
