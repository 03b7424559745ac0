package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// GetForAccount returns the profile owned by the given account.
func (s *Service) GetForAccount(ctx context.Context, accountID uuid.UUID) (*Profile, error) {
	return s.repo.GetByAccountID(ctx, accountID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update applies the fields present in in to the profile with the given id.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (*Profile, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.Apply(in); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("profile_id", p.ID.String()).Str("account_id", p.AccountID.String()).Msg("patient profile updated")
	return p, nil
}
