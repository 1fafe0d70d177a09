package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/booking-service/internal/domain"
)

type identityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository returns a Postgres-backed implementation.
func NewIdentityRepository(pool *pgxpool.Pool) IdentityRepository {
	return &identityRepository{pool: pool}
}

const identityColumns = `id, display_name, email, phone_number, credential_hash, role, created_at, updated_at`

func scanIdentity(row pgx.Row) (*domain.Identity, error) {
	var identity domain.Identity
	if err := row.Scan(
		&identity.ID,
		&identity.DisplayName,
		&identity.Email,
		&identity.PhoneNumber,
		&identity.CredentialHash,
		&identity.Role,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &identity, nil
}

func (r *identityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	const query = `
        INSERT INTO identities (display_name, email, phone_number, credential_hash, role)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	err := db(ctx, r.pool).QueryRow(ctx, query,
		identity.DisplayName,
		identity.Email,
		identity.PhoneNumber,
		identity.CredentialHash,
		identity.Role,
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if _, dup := constraintViolation(err); dup {
		return ErrDuplicateEmail
	}
	return err
}

func (r *identityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id=$1`
	return scanIdentity(db(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *identityRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE LOWER(email)=LOWER($1)`
	return scanIdentity(db(ctx, r.pool).QueryRow(ctx, query, email))
}

func (r *identityRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	const query = `UPDATE identities SET role=$1, updated_at=NOW() WHERE id=$2`

	cmd, err := db(ctx, r.pool).Exec(ctx, query, role, id)
	if err != nil {
		return notFound(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *identityRepository) List(ctx context.Context, role *domain.Role, page Page) ([]domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities
        WHERE ($1::text IS NULL OR role=$1)
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	var roleArg *string
	if role != nil {
		s := string(*role)
		roleArg = &s
	}

	rows, err := db(ctx, r.pool).Query(ctx, query, roleArg, limitOrDefault(page.Limit), page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []domain.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	return identities, rows.Err()
}

func (r *identityRepository) CountByRole(ctx context.Context) (map[domain.Role]int, error) {
	const query = `SELECT role, COUNT(*) FROM identities GROUP BY role`

	rows, err := db(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Role]int, len(domain.Roles))
	for rows.Next() {
		var (
			role  domain.Role
			count int
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[role] = count
	}
	return counts, rows.Err()
}

func (r *identityRepository) Delete(ctx context.Context, id string) error {
	cmd, err := db(ctx, r.pool).Exec(ctx, `DELETE FROM identities WHERE id=$1`, id)
	if err != nil {
		return notFound(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
