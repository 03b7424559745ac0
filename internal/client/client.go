package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/session"
)

var (
	ErrBadRequest   = errors.New("request rejected")
	ErrUnauthorized = errors.New("not authorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("too many requests")
	ErrServer       = errors.New("server error, try again")
)

// APIError is a non-2xx response. Only the status and message cross the wire.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return e.Message
}

// Is lets callers match an APIError against the package sentinels by status.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrServer:
		return e.Status >= http.StatusInternalServerError
	}
	return false
}

type errorBody struct {
	Message string `json:"message"`
}

type ProfileInput struct {
	DateOfBirth      string `json:"dateOfBirth,omitempty"`
	Gender           string `json:"gender,omitempty"`
	Address          string `json:"address,omitempty"`
	EmergencyContact string `json:"emergencyContact,omitempty"`
	BloodType        string `json:"bloodType,omitempty"`
	Phone            string `json:"phone,omitempty"`
}

type RegisterInput struct {
	Email          string        `json:"email"`
	Password       string        `json:"password"`
	Name           string        `json:"name"`
	Phone          string        `json:"phone,omitempty"`
	PatientProfile *ProfileInput `json:"patientProfile,omitempty"`
}

type registerResponse struct {
	Message string       `json:"message"`
	User    session.User `json:"user"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	Role      string       `json:"role"`
	User      session.User `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Client talks to the hms API auth endpoints.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/api/v1").
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only reads are retried; register and login are not idempotent.
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{http: rc, logger: logger}
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (*session.User, error) {
	var out registerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(in).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/auth/register")
	if err := c.check(resp, err, "register"); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/auth/login")
	if err := c.check(resp, err, "login"); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, fmt.Errorf("login: response carried no token")
	}
	return &out, nil
}

// Me fetches the account behind token.
func (c *Client) Me(ctx context.Context, token string) (*session.User, error) {
	var out session.User
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/auth/me")
	if err := c.check(resp, err, "me"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Msg("request failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		apiErr.Message = body.Message
	}
	c.logger.Debug().Int("status", apiErr.Status).Str("op", op).Msg("request rejected")
	return apiErr
}
