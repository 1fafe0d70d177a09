package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/booking-service/internal/domain"
)

type appointmentRepository struct {
	pool *pgxpool.Pool
}

// NewAppointmentRepository returns a Postgres-backed implementation.
func NewAppointmentRepository(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepository{pool: pool}
}

const appointmentColumns = `id, practitioner_id, practitioner_snapshot, patient_id, patient_snapshot,
    slot_date, slot_time, status, patient_notes, document_ref, practitioner_notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.Practitioner,
		&a.PatientID,
		&a.Patient,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.PatientNotes,
		&a.DocumentRef,
		&a.PractitionerNotes,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// Create inserts a new appointment. The partial unique index on active slots turns a
// concurrent double booking into ErrSlotTaken.
func (r *appointmentRepository) Create(ctx context.Context, a *domain.Appointment) error {
	const query = `
        INSERT INTO appointments (practitioner_id, practitioner_identity_id, practitioner_snapshot, patient_id,
            patient_snapshot, slot_date, slot_time, status, patient_notes, document_ref)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`

	err := db(ctx, r.pool).QueryRow(ctx, query,
		a.PractitionerID,
		a.Practitioner.IdentityID,
		a.Practitioner,
		a.PatientID,
		a.Patient,
		a.Date,
		a.Time,
		a.Status,
		a.PatientNotes,
		a.DocumentRef,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if name, dup := constraintViolation(err); dup && name == "appointments_active_slot_key" {
		return ErrSlotTaken
	}
	return err
}

func (r *appointmentRepository) GetByID(ctx context.Context, id string) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id=$1`
	return scanAppointment(db(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *appointmentRepository) FindActiveInSlot(ctx context.Context, slot domain.Slot) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
        WHERE practitioner_id=$1 AND slot_date=$2 AND slot_time=$3 AND status IN ('pending','approved')
        LIMIT 1`
	return scanAppointment(db(ctx, r.pool).QueryRow(ctx, query, slot.PractitionerID, slot.Date, slot.Time))
}

// UpdateStatus writes status and practitioner notes only if the stored status still equals from.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, a *domain.Appointment, from domain.AppointmentStatus) error {
	const query = `
        UPDATE appointments SET status=$3, practitioner_notes=$4, updated_at=NOW()
        WHERE id=$1 AND status=$2
        RETURNING updated_at`

	err := db(ctx, r.pool).QueryRow(ctx, query, a.ID, from, a.Status, a.PractitionerNotes).Scan(&a.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if _, err := r.GetByID(ctx, a.ID); err != nil {
		return err
	}
	return ErrStale
}

func appointmentClauses(filter AppointmentFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		clauses = append(clauses, fmt.Sprintf("patient_id=$%d", len(args)))
	}
	if filter.PractitionerID != nil {
		args = append(args, *filter.PractitionerID)
		clauses = append(clauses, fmt.Sprintf("practitioner_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Date != nil {
		args = append(args, *filter.Date)
		clauses = append(clauses, fmt.Sprintf("slot_date=$%d", len(args)))
	}
	return clauses, args
}

func (r *appointmentRepository) List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error) {
	clauses, args := appointmentClauses(filter)

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		appointmentColumns, strings.Join(clauses, " AND "), limitOrDefault(filter.Limit), offset)

	rows, err := db(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *appointmentRepository) CountByStatus(ctx context.Context, filter AppointmentFilter) (map[domain.AppointmentStatus]int, error) {
	clauses, args := appointmentClauses(filter)
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM appointments WHERE %s GROUP BY status`, strings.Join(clauses, " AND "))

	rows, err := db(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.AppointmentStatus]int, len(domain.AppointmentStatuses))
	for rows.Next() {
		var (
			status domain.AppointmentStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *appointmentRepository) DeleteByParticipant(ctx context.Context, identityID string) (int64, error) {
	const query = `DELETE FROM appointments WHERE patient_id=$1 OR practitioner_identity_id=$1`

	cmd, err := db(ctx, r.pool).Exec(ctx, query, identityID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
