//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/skill-worlds/internal/domain"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewInputError("text", "empty"), http.StatusUnprocessableEntity},
		{domain.ErrUnauthenticated, http.StatusUnauthorized},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{&domain.StorageError{Op: "insert", Table: "test_results", Err: errors.New("disk full")}, http.StatusServiceUnavailable},
		{domain.ErrBusy, http.StatusConflict},
		{fmt.Errorf("register: %w", domain.ErrConflict), http.StatusConflict},
		{domain.ErrNotFound, http.StatusNotFound},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteErrorHidesStorageDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	WriteError(w, r, &domain.StorageError{Op: "select", Table: "profiles", Err: errors.New("/var/db/secret.db: locked")})

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", w.Code)
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Code != "storage_unavailable" {
		t.Errorf("Expected storage_unavailable, got %q", body.Code)
	}
	if body.Error == "" || body.Error != "storage is temporarily unavailable, please retry" {
		t.Errorf("Unexpected error message %q", body.Error)
	}
}

func TestWriteErrorReportsField(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/auth/register", nil)
	WriteError(w, r, domain.NewInputError("email", "must be a valid email address"))

	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if w.Code != http.StatusUnprocessableEntity || body.Field != "email" || body.Code != "invalid_input" {
		t.Errorf("Unexpected response %d %+v", w.Code, body)
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{name: "healthy", status: http.StatusOK, want: "healthy"},
		{name: "database down", err: errors.New("closed"), status: http.StatusServiceUnavailable, want: "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(fakePinger{err: tt.err}, 0)
			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, w.Code)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Status != tt.want {
				t.Errorf("Expected status %q, got %q", tt.want, body.Status)
			}
		})
	}
}
