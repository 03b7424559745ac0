package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Profile, int, error)
}
