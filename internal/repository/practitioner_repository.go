package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/booking-service/internal/domain"
)

type practitionerRepository struct {
	pool *pgxpool.Pool
}

// NewPractitionerRepository returns a Postgres-backed implementation.
func NewPractitionerRepository(pool *pgxpool.Pool) PractitionerRepository {
	return &practitionerRepository{pool: pool}
}

const practitionerColumns = `id, identity_id, full_name, email, phone_number, address, specialization,
    experience_years, consultation_fee, availability_window, onboarding_status, created_at, updated_at`

func scanPractitioner(row pgx.Row) (*domain.PractitionerProfile, error) {
	var p domain.PractitionerProfile
	if err := row.Scan(
		&p.ID,
		&p.IdentityID,
		&p.FullName,
		&p.Email,
		&p.PhoneNumber,
		&p.Address,
		&p.Specialization,
		&p.ExperienceYears,
		&p.ConsultationFee,
		&p.AvailabilityWindow,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func profileConstraintError(err error) error {
	name, dup := constraintViolation(err)
	if !dup {
		return err
	}
	if name == "practitioner_profiles_identity_key" {
		return ErrDuplicateProfile
	}
	return ErrDuplicateEmail
}

func (r *practitionerRepository) Create(ctx context.Context, p *domain.PractitionerProfile) error {
	const query = `
        INSERT INTO practitioner_profiles (identity_id, full_name, email, phone_number, address, specialization,
            experience_years, consultation_fee, availability_window, onboarding_status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`

	err := db(ctx, r.pool).QueryRow(ctx, query,
		p.IdentityID,
		p.FullName,
		p.Email,
		p.PhoneNumber,
		p.Address,
		p.Specialization,
		p.ExperienceYears,
		p.ConsultationFee,
		p.AvailabilityWindow,
		p.Status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return profileConstraintError(err)
}

func (r *practitionerRepository) Update(ctx context.Context, p *domain.PractitionerProfile) error {
	const query = `
        UPDATE practitioner_profiles SET full_name=$1, email=$2, phone_number=$3, address=$4, specialization=$5,
            experience_years=$6, consultation_fee=$7, availability_window=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`

	err := db(ctx, r.pool).QueryRow(ctx, query,
		p.FullName,
		p.Email,
		p.PhoneNumber,
		p.Address,
		p.Specialization,
		p.ExperienceYears,
		p.ConsultationFee,
		p.AvailabilityWindow,
		p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return profileConstraintError(notFound(err))
	}
	return nil
}

func (r *practitionerRepository) GetByID(ctx context.Context, id string) (*domain.PractitionerProfile, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioner_profiles WHERE id=$1`
	return scanPractitioner(db(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *practitionerRepository) GetByIdentityID(ctx context.Context, identityID string) (*domain.PractitionerProfile, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioner_profiles WHERE identity_id=$1`
	return scanPractitioner(db(ctx, r.pool).QueryRow(ctx, query, identityID))
}

func (r *practitionerRepository) GetByEmail(ctx context.Context, email string) (*domain.PractitionerProfile, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioner_profiles WHERE LOWER(email)=LOWER($1)`
	return scanPractitioner(db(ctx, r.pool).QueryRow(ctx, query, email))
}

// UpdateStatus moves the profile from one onboarding status to another, returning
// ErrStale when the stored status is not from.
func (r *practitionerRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OnboardingStatus) error {
	const query = `
        UPDATE practitioner_profiles SET onboarding_status=$3, updated_at=NOW()
        WHERE id=$1 AND onboarding_status=$2`

	cmd, err := db(ctx, r.pool).Exec(ctx, query, id, from, to)
	if err != nil {
		return notFound(err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStale
	}
	return nil
}

func (r *practitionerRepository) List(ctx context.Context, filter PractitionerFilter) ([]domain.PractitionerProfile, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioner_profiles
        WHERE ($1::text IS NULL OR onboarding_status=$1)
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	var statusArg *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusArg = &s
	}

	rows, err := db(ctx, r.pool).Query(ctx, query, statusArg, limitOrDefault(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.PractitionerProfile
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (r *practitionerRepository) CountByStatus(ctx context.Context) (map[domain.OnboardingStatus]int, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `SELECT onboarding_status, COUNT(*) FROM practitioner_profiles GROUP BY onboarding_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.OnboardingStatus]int)
	for rows.Next() {
		var (
			status domain.OnboardingStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *practitionerRepository) DeleteByIdentityID(ctx context.Context, identityID string) error {
	_, err := db(ctx, r.pool).Exec(ctx, `DELETE FROM practitioner_profiles WHERE identity_id=$1`, identityID)
	return err
}
