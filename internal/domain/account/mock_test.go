package account

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/role"
)

var errStorageDown = errors.New("connection refused")

// memStore backs both mock repositories so the fake transactor can roll them
// back together.
type memStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	profiles map[uuid.UUID]*patient.Profile

	failProfileCreate error
	failLookup        error
	// skipExistsCheck makes ExistsByEmail report false so the insert is the
	// only uniqueness guard.
	skipExistsCheck bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*Account),
		profiles: make(map[uuid.UUID]*patient.Profile),
	}
}

func (s *memStore) snapshot() (map[uuid.UUID]*Account, map[uuid.UUID]*patient.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accts := make(map[uuid.UUID]*Account, len(s.accounts))
	for k, v := range s.accounts {
		cp := *v
		accts[k] = &cp
	}
	profs := make(map[uuid.UUID]*patient.Profile, len(s.profiles))
	for k, v := range s.profiles {
		cp := *v
		profs[k] = &cp
	}
	return accts, profs
}

func (s *memStore) restore(accts map[uuid.UUID]*Account, profs map[uuid.UUID]*patient.Profile) {
	s.mu.Lock()
	s.accounts, s.profiles = accts, profs
	s.mu.Unlock()
}

func (s *memStore) accountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *memStore) profileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

func (s *memStore) byEmail(email string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return a
		}
	}
	return nil
}

func (s *memStore) profileFor(accountID uuid.UUID) *patient.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.AccountID == accountID {
			return p
		}
	}
	return nil
}

// -- fake transactor --

// fakeTx serializes transactions so snapshot and restore stay consistent.
// Concurrent transactions against Postgres are covered in test/integration.
type fakeTx struct {
	mu    sync.Mutex
	store *memStore
}

func (t *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	accts, profs := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(accts, profs)
		return err
	}
	return nil
}

// -- mock account repo --

type mockAccountRepo struct{ s *memStore }

func (m *mockAccountRepo) Create(_ context.Context, a *Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.accounts {
		if existing.Email == a.Email {
			return ErrConflict
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.s.accounts[a.ID] = &cp
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failLookup != nil {
		return nil, m.s.failLookup
	}
	a, ok := m.s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (*Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failLookup != nil {
		return nil, m.s.failLookup
	}
	for _, a := range m.s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockAccountRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failLookup != nil {
		return false, m.s.failLookup
	}
	if m.s.skipExistsCheck {
		return false, nil
	}
	for _, a := range m.s.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockAccountRepo) Update(_ context.Context, a *Account) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.accounts[a.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range m.s.accounts {
		if id != a.ID && existing.Email == a.Email {
			return ErrConflict
		}
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.s.accounts[a.ID] = &cp
	return nil
}

func (m *mockAccountRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.accounts, id)
	return nil
}

func (m *mockAccountRepo) List(_ context.Context, filter role.Role, limit, offset int) ([]*Account, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var all []*Account
	for _, a := range m.s.accounts {
		if filter == "" || a.Role == filter {
			cp := *a
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email < all[j].Email })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// -- mock profile repo --

type mockProfileRepo struct{ s *memStore }

func (m *mockProfileRepo) Create(_ context.Context, p *patient.Profile) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.failProfileCreate != nil {
		return m.s.failProfileCreate
	}
	if _, ok := m.s.accounts[p.AccountID]; !ok {
		return errors.New("foreign key violation")
	}
	p.ID = uuid.New()
	cp := *p
	m.s.profiles[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Profile, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	p, ok := m.s.profiles[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) GetByAccountID(_ context.Context, accountID uuid.UUID) (*patient.Profile, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, p := range m.s.profiles {
		if p.AccountID == accountID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, patient.ErrNotFound
}

func (m *mockProfileRepo) Update(_ context.Context, p *patient.Profile) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.profiles[p.ID]; !ok {
		return patient.ErrNotFound
	}
	cp := *p
	m.s.profiles[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) DeleteByAccountID(_ context.Context, accountID uuid.UUID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for id, p := range m.s.profiles {
		if p.AccountID == accountID {
			delete(m.s.profiles, id)
		}
	}
	return nil
}

func (m *mockProfileRepo) List(_ context.Context, limit, offset int) ([]*patient.Profile, int, error) {
	return nil, 0, nil
}

// -- fixture --

type fixture struct {
	store  *memStore
	tokens *auth.TokenManager
	hasher *countingHasher
	svc    *Service
}

// countingHasher records how often the bcrypt work is invoked.
type countingHasher struct {
	*auth.Hasher
	mu       sync.Mutex
	hashes   int
	compares int
}

func (h *countingHasher) Hash(password string) (string, error) {
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return h.Hasher.Hash(password)
}

func (h *countingHasher) Compare(hash, password string) error {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	return h.Hasher.Compare(hash, password)
}

func (h *countingHasher) hashCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hashes
}

func (h *countingHasher) compareCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compares
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	tokens, err := auth.NewTokenManager([]byte("account-test-secret-key-0123456789"), "hms", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error: %v", err)
	}
	hasher := &countingHasher{Hasher: auth.NewHasher(bcrypt.MinCost)}
	svc := NewService(
		&mockAccountRepo{s: store},
		&mockProfileRepo{s: store},
		&fakeTx{store: store},
		hasher,
		tokens,
		zerolog.New(io.Discard),
	)
	return &fixture{store: store, tokens: tokens, hasher: hasher, svc: svc}
}

func rawPassword(pw string) []byte {
	return []byte(`"` + pw + `"`)
}

func (f *fixture) register(t *testing.T, email, password, name string) *Summary {
	t.Helper()
	sum, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: email, Password: rawPassword(password), Name: name,
	})
	if err != nil {
		t.Fatalf("Register(%s) error: %v", email, err)
	}
	return sum
}

func strPtr(s string) *string { return &s }
