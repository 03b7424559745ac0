package account

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/role"
)

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         role.Role `json:"role"`
	Phone        *string   `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is the client-facing projection of an account.
type Summary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  role.Role `json:"role"`
}

func (a *Account) Summary() Summary {
	return Summary{ID: a.ID, Name: a.Name, Email: a.Email, Role: a.Role}
}

// RegisterRequest is the self-registration payload. Password is kept raw so a
// non-string value is rejected instead of coerced.
type RegisterRequest struct {
	Email          string          `json:"email"`
	Password       json.RawMessage `json:"password"`
	Name           string          `json:"name"`
	Phone          *string         `json:"phone"`
	Role           *string         `json:"role"`
	PatientProfile *patient.Input  `json:"patientProfile"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	Role      role.Role `json:"role"`
	User      Summary   `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateRequest is the admin account-creation payload.
type CreateRequest struct {
	Email          string         `json:"email"`
	Password       string         `json:"password"`
	Name           string         `json:"name"`
	Phone          *string        `json:"phone"`
	Role           string         `json:"role"`
	PatientProfile *patient.Input `json:"patientProfile"`
}

// UpdateRequest carries admin edits. Nil fields are left unchanged.
type UpdateRequest struct {
	Email    *string `json:"email"`
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// decodePassword accepts only a non-empty JSON string.
func decodePassword(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", validationError("password is required")
	}
	var pw string
	if err := json.Unmarshal(raw, &pw); err != nil {
		return "", validationError("password must be a string")
	}
	if pw == "" {
		return "", validationError("password is required")
	}
	if err := checkPasswordLength(pw); err != nil {
		return "", err
	}
	return pw, nil
}

func checkPasswordLength(pw string) error {
	if len(pw) > auth.MaxPasswordBytes {
		return validationError("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	return nil
}

// newAccount is a validated account ready to be persisted with its password.
type newAccount struct {
	account  Account
	password string
	profile  *patient.Profile
}

func (req RegisterRequest) validate() (*newAccount, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, validationError("email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, validationError("email is invalid")
	}
	password, err := decodePassword(req.Password)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	if requested := patient.NormalizeOptional(req.Role); requested != nil && strings.ToLower(*requested) != string(role.Patient) {
		return nil, ErrForbiddenRole
	}

	phone := patient.NormalizeOptional(req.Phone)
	profile, err := patient.NewProfile(req.PatientProfile, phone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return &newAccount{
		account:  Account{Email: email, Name: name, Role: role.Patient, Phone: phone},
		password: password,
		profile:  profile,
	}, nil
}

func (req CreateRequest) validate() (*newAccount, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationError("a valid email is required")
	}
	if req.Password == "" {
		return nil, validationError("password is required")
	}
	if err := checkPasswordLength(req.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	r, err := role.Parse(req.Role)
	if err != nil {
		return nil, validationError("%v", err)
	}

	phone := patient.NormalizeOptional(req.Phone)
	var profile *patient.Profile
	if r == role.Patient {
		profile, err = patient.NewProfile(req.PatientProfile, phone)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	return &newAccount{
		account:  Account{Email: email, Name: name, Role: r, Phone: phone},
		password: req.Password,
		profile:  profile,
	}, nil
}
