package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/pkg/role"
)

// Manager owns the client session. It is the only writer of both the
// in-memory state and the persisted keys.
type Manager struct {
	mu     sync.RWMutex
	store  Storage
	state  State
	logger zerolog.Logger
}

// NewManager returns a manager in the Resolving state. Call Restore to settle it.
func NewManager(store Storage, logger zerolog.Logger) *Manager {
	return &Manager{store: store, state: ResolvingState(), logger: logger}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Restore loads the persisted session. Anything short of a complete, valid
// token/role/user triple clears storage and yields Anonymous.
func (m *Manager) Restore() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.read()
	if err != nil {
		m.logger.Debug().Err(err).Msg("no usable stored session")
		m.clear() //nolint:errcheck // best effort
		m.state = AnonymousState()
		return m.state
	}
	m.state = AuthenticatedState(*creds)
	return m.state
}

func (m *Manager) read() (*Credentials, error) {
	values := make(map[string]string, len(Keys))
	for _, k := range Keys {
		v, ok, err := m.store.Get(k)
		if err != nil {
			return nil, err
		}
		if !ok || strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("missing %q", k)
		}
		values[k] = v
	}

	r, err := role.Parse(values[KeyRole])
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal([]byte(values[KeyUser]), &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if u.ID == uuid.Nil {
		return nil, errors.New("stored user has no id")
	}
	if u.Role != "" {
		ur, err := role.Parse(string(u.Role))
		if err != nil || ur != r {
			return nil, errors.New("stored user role disagrees with session role")
		}
	}
	u.Role = r
	return &Credentials{Token: values[KeyToken], Role: r, User: u}, nil
}

// Login persists a fresh session and moves to Authenticated. If persisting
// fails the keys are cleared and the manager ends up Anonymous.
func (m *Manager) Login(token, rawRole string, user User) (State, error) {
	if strings.TrimSpace(token) == "" {
		return m.State(), errors.New("token is required")
	}
	r, err := role.Parse(rawRole)
	if err != nil {
		return m.State(), err
	}
	if user.ID == uuid.Nil {
		return m.State(), errors.New("user id is required")
	}
	user.Role = r

	userJSON, err := json.Marshal(user)
	if err != nil {
		return m.State(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, kv := range [][2]string{{KeyToken, token}, {KeyRole, string(r)}, {KeyUser, string(userJSON)}} {
		if err := m.store.Set(kv[0], kv[1]); err != nil {
			m.clear() //nolint:errcheck // best effort
			m.state = AnonymousState()
			return m.state, fmt.Errorf("persist session: %w", err)
		}
	}
	m.state = AuthenticatedState(Credentials{Token: token, Role: r, User: user})
	m.logger.Debug().Str("role", string(r)).Msg("session started")
	return m.state, nil
}

// Logout clears every persisted key and moves to Anonymous.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.clear()
	m.state = AnonymousState()
	return err
}

func (m *Manager) clear() error {
	var errs []error
	for _, k := range Keys {
		if err := m.store.Remove(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
