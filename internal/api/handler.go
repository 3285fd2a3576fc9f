// Package api provides HTTP handlers for the Skill Worlds API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/skill-worlds/internal/catalog"
	"github.com/ashureev/skill-worlds/internal/chatsocket"
	"github.com/ashureev/skill-worlds/internal/dashboard"
	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/guide"
	"github.com/ashureev/skill-worlds/internal/identity"
	"github.com/ashureev/skill-worlds/internal/shared"
)

const maxBodyBytes = 1 << 20

// Handler provides the API endpoints.
type Handler struct {
	accounts     *identity.Service
	catalog      *catalog.Catalog
	flows        *guide.Registry
	dashboard    *dashboard.Service
	sockets      *chatsocket.Hub
	secureCookie bool
}

// Deps are the services the handlers call into.
type Deps struct {
	Accounts  *identity.Service
	Catalog   *catalog.Catalog
	Flows     *guide.Registry
	Dashboard *dashboard.Service
	Sockets   *chatsocket.Hub
	// SecureCookie sets the Secure flag on the token cookie.
	SecureCookie bool
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		accounts:     d.Accounts,
		catalog:      d.Catalog,
		flows:        d.Flows,
		dashboard:    d.Dashboard,
		sockets:      d.Sockets,
		secureCookie: d.SecureCookie,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// errorBody is the payload of a failed request.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// WriteError maps err to a status and writes it. Storage and unexpected
// errors are logged and reported without internals.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Code: domain.Code(err)}

	var ie *domain.InputError
	if errors.As(err, &ie) {
		body.Field = ie.Field
	}
	switch status {
	case http.StatusServiceUnavailable:
		slog.Warn("Request failed on storage", "path", r.URL.Path, "user_id", identity.UserIDFromContext(r.Context()), "error", err)
		body.Error = "storage is temporarily unavailable, please retry"
	case http.StatusInternalServerError:
		slog.Error("Request failed", "path", r.URL.Path, "user_id", identity.UserIDFromContext(r.Context()), "error", err)
		body.Error = "internal error"
	}
	JSON(w, status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. Malformed bodies are input errors.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewInputError("body", "request body is empty")
		}
		return domain.NewInputError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}

// decodeValid decodes v and checks its validate tags.
func decodeValid(w http.ResponseWriter, r *http.Request, v any) error {
	if err := decode(w, r, v); err != nil {
		return err
	}
	return shared.Validate(v)
}
