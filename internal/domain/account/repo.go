package account

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/pkg/role"
)

// Repository persists accounts. Lookups return ErrNotFound when no row matches;
// inserts and updates return ErrConflict when the email is taken.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter role.Role, limit, offset int) ([]*Account, int, error)
}

// LockoutStore tracks failed logins per normalized email.
type LockoutStore interface {
	Get(ctx context.Context, key string) (cache.LockoutState, error)
	RecordFailure(ctx context.Context, key string, now time.Time, threshold int, window time.Duration) (cache.LockoutState, error)
	Clear(ctx context.Context, key string) error
}
