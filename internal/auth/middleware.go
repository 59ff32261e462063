package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/gigboard/internal/models"
)

// ErrorWriter renders an authentication failure in the caller's response envelope
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// Middleware authenticates requests with bearer tokens
type Middleware struct {
	tokens   *TokenManager
	writeErr ErrorWriter
}

// NewMiddleware creates auth middleware backed by tokens
func NewMiddleware(tokens *TokenManager, writeErr ErrorWriter) *Middleware {
	if writeErr == nil {
		writeErr = plainError
	}
	return &Middleware{tokens: tokens, writeErr: writeErr}
}

// Authenticate resolves the bearer token into an actor on the request context
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			m.writeErr(w, http.StatusUnauthorized, "unauthorized", "provide Authorization header with a Bearer token")
			return
		}

		actor, err := m.tokens.Parse(token)
		if err != nil {
			slog.Warn("rejected token", "error", err, "remote_addr", r.RemoteAddr)
			m.writeErr(w, http.StatusUnauthorized, "unauthorized", "the provided token is not valid")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireRole returns middleware that admits only actors with role
func (m *Middleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				m.writeErr(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			if actor.Role != role {
				slog.Warn("role denied", "actor", actor.ID, "required", role, "has", actor.Role)
				m.writeErr(w, http.StatusForbidden, "forbidden", "this action requires the "+string(role)+" role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func plainError(w http.ResponseWriter, status int, _, message string) {
	http.Error(w, message, status)
}
