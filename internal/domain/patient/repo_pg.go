package patient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const profileCols = `p.id, p.user_id, u.name, u.email, p.date_of_birth, p.gender, p.address,
	p.emergency_contact, p.blood_type, p.phone, p.created_at, p.updated_at`

const profileFrom = ` FROM patients p JOIN users u ON u.id = p.user_id`

func (r *repoPG) Create(ctx context.Context, p *Profile) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, user_id, date_of_birth, gender, address, emergency_contact, blood_type, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.AccountID, p.DateOfBirth, p.Gender, p.Address, p.EmergencyContact, p.BloodType, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient profile: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+profileCols+profileFrom+` WHERE p.id = $1`, id))
}

func (r *repoPG) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	return scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+profileCols+profileFrom+` WHERE p.user_id = $1`, accountID))
}

func (r *repoPG) Update(ctx context.Context, p *Profile) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patients SET date_of_birth = $2, gender = $3, address = $4, emergency_contact = $5,
			blood_type = $6, phone = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.DateOfBirth, p.Gender, p.Address, p.EmergencyContact, p.BloodType, p.Phone,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update patient profile: %w", err)
	}
	return nil
}

func (r *repoPG) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patients WHERE user_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("delete patient profile: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patient profiles: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT `+profileCols+profileFrom+` ORDER BY u.name, p.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patient profiles: %w", err)
	}
	defer rows.Close()

	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Email, &p.DateOfBirth, &p.Gender, &p.Address,
		&p.EmergencyContact, &p.BloodType, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan patient profile: %w", err)
	}
	return &p, nil
}
