package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// ObserverIDKey is the context key for the observer ID
	ObserverIDKey ContextKey = "observer_id"
	// SessionIDKey is the context key for the per-connection session ID
	SessionIDKey ContextKey = "session_id"
	// ClaimsKey is the context key for JWT claims
	ClaimsKey ContextKey = "claims"
)

// ErrorResponse is the JSON body of an auth failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Middleware authenticates the request when tokens are enabled and tags
// every request with an observer and session ID. The token is read from the
// Authorization header or, for browsers opening a WebSocket, from ?token=.
func (s *TokenService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := uuid.NewString()
		ctx := context.WithValue(r.Context(), SessionIDKey, sessionID)

		if !s.Enabled() {
			ctx = context.WithValue(ctx, ObserverIDKey, "anonymous-"+sessionID[:8])
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		tokenString, ok := extractToken(r)
		if !ok {
			sendError(w, http.StatusUnauthorized, "MissingToken", "Bearer token or token query parameter required")
			return
		}
		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			sendError(w, http.StatusUnauthorized, "InvalidToken", "Invalid or expired token")
			return
		}

		ctx = context.WithValue(ctx, ObserverIDKey, claims.ObserverID)
		ctx = context.WithValue(ctx, ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: code, Message: message})
}

// GetObserverID extracts the observer ID from request context
func GetObserverID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(ObserverIDKey).(string)
	return id, ok
}

// GetSessionID extracts the session ID from request context
func GetSessionID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(SessionIDKey).(string)
	return id, ok
}

// GetClaims extracts JWT claims from request context
func GetClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	return claims, ok
}
