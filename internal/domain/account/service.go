package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/role"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

// LockoutPolicy locks an email after MaxAttempts consecutive failures for
// Window. MaxAttempts <= 0 disables lockout.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

type Service struct {
	accounts Repository
	profiles patient.Repository
	tx       db.Transactor
	hasher   PasswordHasher
	tokens   TokenIssuer
	lockout  LockoutStore
	policy   LockoutPolicy
	logger   zerolog.Logger
	now      func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

func NewService(accounts Repository, profiles patient.Repository, tx db.Transactor,
	hasher PasswordHasher, tokens TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		accounts: accounts,
		profiles: profiles,
		tx:       tx,
		hasher:   hasher,
		tokens:   tokens,
		logger:   logger,
		now:      time.Now,
	}
}

// WithLockout enables failed-login lockout backed by store.
func (s *Service) WithLockout(store LockoutStore, policy LockoutPolicy) *Service {
	s.lockout = store
	s.policy = policy
	return s
}

func (s *Service) lockoutEnabled() bool {
	return s.lockout != nil && s.policy.MaxAttempts > 0
}

// Register creates a patient account and its profile in one transaction.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Summary, error) {
	in, err := req.validate()
	if err != nil {
		return nil, err
	}

	a, err := s.create(ctx, in)
	if err != nil {
		s.logFailure(err, in.account.Email, "registration failed")
		return nil, err
	}
	s.logger.Info().Str("account_id", a.ID.String()).Str("email", a.Email).Msg("patient registered")
	sum := a.Summary()
	return &sum, nil
}

// CreateAccount is the admin path: any role, with a profile when the role is patient.
func (s *Service) CreateAccount(ctx context.Context, req CreateRequest) (*Account, error) {
	in, err := req.validate()
	if err != nil {
		return nil, err
	}

	a, err := s.create(ctx, in)
	if err != nil {
		s.logFailure(err, in.account.Email, "account creation failed")
		return nil, err
	}
	s.logger.Info().Str("account_id", a.ID.String()).Str("role", string(a.Role)).Msg("account created")
	return a, nil
}

func (s *Service) create(ctx context.Context, in *newAccount) (*Account, error) {
	a := in.account
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		exists, err := s.accounts.ExistsByEmail(ctx, a.Email)
		if err != nil {
			return err
		}
		if exists {
			return ErrConflict
		}

		hash, err := s.hasher.Hash(in.password)
		if err != nil {
			return err
		}
		a.PasswordHash = hash

		if err := s.accounts.Create(ctx, &a); err != nil {
			return err
		}
		if in.profile != nil {
			in.profile.AccountID = a.ID
			if err := s.profiles.Create(ctx, in.profile); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify("create account", err)
	}
	return &a, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	if s.lockoutEnabled() {
		st, err := s.lockout.Get(ctx, email)
		if err != nil {
			s.logger.Warn().Err(err).Msg("lockout lookup failed")
		} else if st.Locked(s.now()) {
			return nil, ErrAccountLocked
		}
	}

	a, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		// Spend the same bcrypt work as a wrong password so unknown emails
		// cannot be told apart by response time.
		_ = s.hasher.Compare(s.decoy(), password)
		s.recordFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("login lookup failed")
		return nil, classify("find account", err)
	}

	if err := s.hasher.Compare(a.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error().Err(err).Str("account_id", a.ID.String()).Msg("stored password hash unusable")
		}
		s.recordFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}

	if s.lockoutEnabled() {
		if err := s.lockout.Clear(ctx, email); err != nil {
			s.logger.Warn().Err(err).Msg("lockout clear failed")
		}
	}

	token, exp, err := s.tokens.Issue(auth.Principal{ID: a.ID, Email: a.Email, Role: a.Role})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("account_id", a.ID.String()).Str("role", string(a.Role)).Msg("login succeeded")
	return &LoginResult{Token: token, Role: a.Role, User: a.Summary(), ExpiresAt: exp}, nil
}

func (s *Service) recordFailure(ctx context.Context, email string) {
	if !s.lockoutEnabled() {
		return
	}
	st, err := s.lockout.RecordFailure(ctx, email, s.now(), s.policy.MaxAttempts, s.policy.Window)
	if err != nil {
		s.logger.Warn().Err(err).Msg("lockout record failed")
		return
	}
	if st.LockedUntil != nil {
		s.logger.Warn().Str("email", email).Time("locked_until", *st.LockedUntil).Msg("login locked")
	}
}

// Me returns the summary of the account behind the current token.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*Summary, error) {
	a, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := a.Summary()
	return &sum, nil
}

func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, classify("get account", err)
	}
	return a, nil
}

func (s *Service) ListAccounts(ctx context.Context, filter string, limit, offset int) ([]*Account, int, error) {
	var r role.Role
	if strings.TrimSpace(filter) != "" {
		parsed, err := role.Parse(filter)
		if err != nil {
			return nil, 0, validationError("%v", err)
		}
		r = parsed
	}
	items, total, err := s.accounts.List(ctx, r, limit, offset)
	if err != nil {
		return nil, 0, classify("list accounts", err)
	}
	return items, total, nil
}

// UpdateAccount applies admin edits. Moving an account to the patient role
// creates an empty profile if it has none.
func (s *Service) UpdateAccount(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Account, error) {
	var updated *Account
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.applyUpdate(a, req); err != nil {
			return err
		}
		if err := s.accounts.Update(ctx, a); err != nil {
			return err
		}
		if a.Role == role.Patient {
			if err := s.ensureProfile(ctx, a); err != nil {
				return err
			}
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, classify("update account", err)
	}
	s.logger.Info().Str("account_id", id.String()).Msg("account updated")
	return updated, nil
}

func (s *Service) applyUpdate(a *Account, req UpdateRequest) error {
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if email == "" || !strings.Contains(email, "@") {
			return validationError("a valid email is required")
		}
		a.Email = email
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return validationError("name cannot be blank")
		}
		a.Name = name
	}
	if req.Phone != nil {
		a.Phone = patient.NormalizeOptional(req.Phone)
	}
	if req.Role != nil {
		r, err := role.Parse(*req.Role)
		if err != nil {
			return validationError("%v", err)
		}
		a.Role = r
	}
	if req.Password != nil {
		if *req.Password == "" {
			return validationError("password cannot be blank")
		}
		if err := checkPasswordLength(*req.Password); err != nil {
			return err
		}
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return err
		}
		a.PasswordHash = hash
	}
	return nil
}

func (s *Service) ensureProfile(ctx context.Context, a *Account) error {
	_, err := s.profiles.GetByAccountID(ctx, a.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, patient.ErrNotFound) {
		return err
	}
	p, _ := patient.NewProfile(nil, a.Phone)
	p.AccountID = a.ID
	return s.profiles.Create(ctx, p)
}

// DeleteAccount removes the account and any profile it owns. Admins cannot
// delete themselves.
func (s *Service) DeleteAccount(ctx context.Context, actor, id uuid.UUID) error {
	if actor == id {
		return validationError("cannot delete your own account")
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.profiles.DeleteByAccountID(ctx, id); err != nil {
			return err
		}
		return s.accounts.Delete(ctx, id)
	})
	if err != nil {
		return classify("delete account", err)
	}
	s.logger.Info().Str("account_id", id.String()).Msg("account deleted")
	return nil
}

// decoy returns a hash at the configured cost that no login password matches.
func (s *Service) decoy() string {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn().Err(err).Msg("decoy password hash unavailable")
			return
		}
		s.decoyHash = hash
	})
	return s.decoyHash
}

// classify keeps domain errors as they are and turns anything else into a
// transient storage error.
func classify(op string, err error) error {
	for _, known := range []error{
		ErrValidation, ErrForbiddenRole, ErrConflict, ErrInvalidCredentials,
		ErrNotFound, ErrAccountLocked, ErrTransientStorage,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, patient.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, patient.ErrInvalidInput) || errors.Is(err, auth.ErrPasswordTooLong) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransientStorage, op, err)
}

func (s *Service) logFailure(err error, email, msg string) {
	if errors.Is(err, ErrTransientStorage) {
		s.logger.Error().Err(err).Str("email", email).Msg(msg)
		return
	}
	s.logger.Debug().Err(err).Str("email", email).Msg(msg)
}
