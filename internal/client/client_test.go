package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/pkg/role"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, zerolog.New(io.Discard))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestClient_Register(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/register", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice@example.com", body["email"])
		assert.Equal(t, "secret1", body["password"])
		_, hasRole := body["role"]
		assert.False(t, hasRole, "client never sends a role")

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"message": "registration successful",
			"user":    map[string]string{"id": id.String(), "name": "Alice", "email": "alice@example.com", "role": "patient"},
		})
	}))

	u, err := c.Register(context.Background(), RegisterInput{Email: "alice@example.com", Password: "secret1", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, role.Patient, u.Role)
}

func TestClient_RegisterErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusConflict, ErrConflict},
		{http.StatusInternalServerError, ErrServer},
		{http.StatusServiceUnavailable, ErrServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				writeJSON(w, tt.status, map[string]string{"message": "an account with this email already exists"})
			}))

			_, err := c.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: "x", Name: "A"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, "an account with this email already exists", apiErr.Message)
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "register must not be retried")
		})
	}
}

func TestClient_Login(t *testing.T) {
	id := uuid.New()
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid email or password"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":      "tok-abc",
			"role":       "patient",
			"user":       map[string]string{"id": id.String(), "name": "Alice", "email": "alice@example.com", "role": "patient"},
			"expires_at": exp,
		})
	}))

	res, err := c.Login(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", res.Token)
	assert.Equal(t, "patient", res.Role)
	assert.Equal(t, id, res.User.ID)
	assert.True(t, exp.Equal(res.ExpiresAt))

	_, err = c.Login(context.Background(), "alice@example.com", "wrongpass")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.EqualError(t, err, "invalid email or password")
}

func TestClient_LoginWithoutToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"role": "patient"})
	}))
	_, err := c.Login(context.Background(), "a@b.c", "x")
	assert.Error(t, err)
}

func TestClient_Me(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer good" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
			return
		}
		if n == 1 {
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": uuid.NewString(), "name": "Doc", "email": "doc@example.com", "role": "doctor"})
	}))

	u, err := c.Me(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, role.Doctor, u.Role)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "a failed read is retried")

	_, err = c.Me(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond, zerolog.New(io.Discard))
	_, err := c.Login(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestAPIError_Is(t *testing.T) {
	err := &APIError{Status: http.StatusTooManyRequests, Message: "slow down"}
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrServer)
	assert.Equal(t, "slow down", err.Error())
	assert.Equal(t, "http 404", (&APIError{Status: 404}).Error())
}
