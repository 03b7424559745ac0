package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/role"
)

const emailConstraint = "users_email_key"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const accountCols = `id, email, password_hash, name, role, phone, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.Email, a.PasswordHash, a.Name, string(a.Role), a.Phone,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountCols+` FROM users WHERE email = $1`, email))
}

func (r *repoPG) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check account email: %w", err)
	}
	return exists, nil
}

func (r *repoPG) Update(ctx context.Context, a *Account) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE users SET email = $2, password_hash = $3, name = $4, role = $5, phone = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Email, a.PasswordHash, a.Name, string(a.Role), a.Phone,
	).Scan(&a.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	if db.IsUniqueViolation(err, emailConstraint) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, filter role.Role, limit, offset int) ([]*Account, int, error) {
	q := db.Conn(ctx, r.pool)
	where, args := "", []interface{}{}
	if filter != "" {
		where = ` WHERE role = $1`
		args = append(args, string(filter))
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, accountCols, where, n+1, n+2),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var items []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var r string
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Name, &r, &a.Phone, &a.CreatedAt, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Role = role.Role(r)
	return &a, nil
}
