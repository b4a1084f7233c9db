package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/trustsplit/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// SessionIDKey is the context key for the authenticated wallet session id.
	SessionIDKey contextKey = "session_id"
	// IdentityKey is the context key for the identity the token was issued to.
	IdentityKey contextKey = "identity"
)

// GetSessionID extracts the session ID from the context.
// Returns empty string if not found.
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// GetIdentity extracts the token identity from the context.
// Returns empty string if not found.
func GetIdentity(ctx context.Context) string {
	who, _ := ctx.Value(IdentityKey).(string)
	return who
}

// WithSession returns ctx carrying the given session claims.
func WithSession(ctx context.Context, sessionID, identity string) context.Context {
	ctx = context.WithValue(ctx, SessionIDKey, sessionID)
	return context.WithValue(ctx, IdentityKey, identity)
}

// RequireSession returns an interceptor that validates the bearer token and
// puts its session into the context. Procedures listed in public skip the
// check.
func RequireSession(jwtManager *auth.JWTManager, public ...string) connect.UnaryInterceptorFunc {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if open[req.Spec().Procedure] {
				return next(ctx, req)
			}

			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(tokenString)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			return next(WithSession(ctx, claims.SessionID, claims.Identity), req)
		}
	}
}
