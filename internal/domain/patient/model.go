package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("patient profile not found")
	ErrInvalidInput = errors.New("invalid patient profile")
)

// DateLayout is the wire format for date of birth.
const DateLayout = "2006-01-02"

var bloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

// Profile is the clinical and contact record owned by one patient account.
// Name and Email are read from the owning account and never written here.
type Profile struct {
	ID               uuid.UUID  `json:"id"`
	AccountID        uuid.UUID  `json:"user_id"`
	Name             string     `json:"name,omitempty"`
	Email            string     `json:"email,omitempty"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty"`
	Gender           *string    `json:"gender,omitempty"`
	Address          *string    `json:"address,omitempty"`
	EmergencyContact *string    `json:"emergency_contact,omitempty"`
	BloodType        *string    `json:"blood_type,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Input carries the optional profile fields accepted on registration and update.
type Input struct {
	DateOfBirth      *string `json:"dateOfBirth"`
	Gender           *string `json:"gender"`
	Address          *string `json:"address"`
	EmergencyContact *string `json:"emergencyContact"`
	BloodType        *string `json:"bloodType"`
	Phone            *string `json:"phone"`
}

// NormalizeOptional trims s and returns nil when the result is blank.
func NormalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// NewProfile builds a profile from in. A missing phone falls back to fallbackPhone.
func NewProfile(in *Input, fallbackPhone *string) (*Profile, error) {
	p := &Profile{}
	if in != nil {
		if err := p.Apply(*in); err != nil {
			return nil, err
		}
	}
	if p.Phone == nil {
		p.Phone = NormalizeOptional(fallbackPhone)
	}
	return p, nil
}

// Apply copies the fields present in in onto p. A present but blank field clears
// the stored value; an absent field leaves it unchanged.
func (p *Profile) Apply(in Input) error {
	if in.DateOfBirth != nil {
		dob, err := parseDate(in.DateOfBirth)
		if err != nil {
			return err
		}
		p.DateOfBirth = dob
	}
	if in.BloodType != nil {
		bt := NormalizeOptional(in.BloodType)
		if bt != nil {
			upper := strings.ToUpper(*bt)
			if !bloodTypes[upper] {
				return fmt.Errorf("%w: unknown blood type %q", ErrInvalidInput, *bt)
			}
			bt = &upper
		}
		p.BloodType = bt
	}
	if in.Gender != nil {
		p.Gender = NormalizeOptional(in.Gender)
	}
	if in.Address != nil {
		p.Address = NormalizeOptional(in.Address)
	}
	if in.EmergencyContact != nil {
		p.EmergencyContact = NormalizeOptional(in.EmergencyContact)
	}
	if in.Phone != nil {
		p.Phone = NormalizeOptional(in.Phone)
	}
	return nil
}

func parseDate(raw *string) (*time.Time, error) {
	s := NormalizeOptional(raw)
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, *s)
	if err != nil {
		return nil, fmt.Errorf("%w: date of birth must be YYYY-MM-DD", ErrInvalidInput)
	}
	if t.After(time.Now()) {
		return nil, fmt.Errorf("%w: date of birth is in the future", ErrInvalidInput)
	}
	return &t, nil
}
