package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	callerKey    contextKey = "caller"
)

// caller is the introspected identity of the bearer token on a request.
type caller struct {
	Sub string
}

// withRequestID stamps every request with a correlation id used in error
// bodies and log lines, generating one when the client did not supply
// X-Request-Id.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requireAuth introspects the request's Bearer token and attaches the
// caller's subject identity to the request context. Every request handler
// under /triggers requires this.
func (c *Component) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || token == "" {
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if c.identity == nil {
			writeError(w, r, http.StatusInternalServerError, "identity client not configured")
			return
		}

		result, err := c.identity.Introspect(r.Context(), token)
		if err != nil || !result.Active {
			writeError(w, r, http.StatusUnauthorized, "token invalid or expired")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, caller{Sub: result.Sub})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFrom(ctx context.Context) (caller, bool) {
	c, ok := ctx.Value(callerKey).(caller)
	return c, ok
}
