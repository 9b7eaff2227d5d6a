package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/commdir/apiserver/types"
)

const adminColumns = `id, username, email, password_hash, roles, created_at, updated_at`

// AdminRepository handles persistence for admin accounts.
// The admins.email UNIQUE constraint is the authoritative duplicate guard;
// violations surface as ErrDuplicateEmail.
type AdminRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAdmin(row rowScanner) (types.AdminAccount, error) {
	var admin types.AdminAccount
	err := row.Scan(
		&admin.ID,
		&admin.Username,
		&admin.Email,
		&admin.PasswordHash,
		&admin.Roles,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	)
	return admin, err
}

func (r *AdminRepository) GetByID(ctx context.Context, id int) (types.AdminAccount, error) {
	const query = `
		SELECT ` + adminColumns + `
		FROM admins
		WHERE id = $1`
	admin, err := scanAdmin(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AdminAccount{}, ErrNotFound
		}
		return types.AdminAccount{}, err
	}
	return admin, nil
}

func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (types.AdminAccount, error) {
	const query = `
		SELECT ` + adminColumns + `
		FROM admins
		WHERE email = $1`
	admin, err := scanAdmin(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AdminAccount{}, ErrNotFound
		}
		return types.AdminAccount{}, err
	}
	return admin, nil
}

// List returns all admins in insertion order.
func (r *AdminRepository) List(ctx context.Context) ([]types.AdminAccount, error) {
	const query = `
		SELECT ` + adminColumns + `
		FROM admins
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	admins := make([]types.AdminAccount, 0)
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, admin)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return admins, nil
}

func (r *AdminRepository) Create(ctx context.Context, admin types.AdminAccount) (types.AdminAccount, error) {
	now := r.timestamp()
	admin.CreatedAt = now
	admin.UpdatedAt = now
	if admin.Roles == nil {
		admin.Roles = types.RoleList{}
	}

	const query = `
		INSERT INTO admins (username, email, password_hash, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		admin.Username,
		admin.Email,
		admin.PasswordHash,
		admin.Roles,
		admin.CreatedAt,
		admin.UpdatedAt,
	).Scan(&admin.ID); err != nil {
		if isUniqueViolation(err) {
			return types.AdminAccount{}, ErrDuplicateEmail
		}
		return types.AdminAccount{}, err
	}
	return admin, nil
}

// Update overwrites every mutable column of the admin identified by admin.ID.
func (r *AdminRepository) Update(ctx context.Context, admin types.AdminAccount) (types.AdminAccount, error) {
	admin.UpdatedAt = r.timestamp()
	if admin.Roles == nil {
		admin.Roles = types.RoleList{}
	}

	const query = `
		UPDATE admins
		SET username = $1,
			email = $2,
			password_hash = $3,
			roles = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		admin.Username,
		admin.Email,
		admin.PasswordHash,
		admin.Roles,
		admin.UpdatedAt,
		admin.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.AdminAccount{}, ErrDuplicateEmail
		}
		return types.AdminAccount{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.AdminAccount{}, err
	}
	if affected == 0 {
		return types.AdminAccount{}, ErrNotFound
	}
	return admin, nil
}

func (r *AdminRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM admins WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// timestamp returns the current time at the precision both drivers round-trip.
func (r *AdminRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}
