package httpapi

import (
	"context"
	"fmt"
	"net/http"
)

// Role is the closed set of caller roles. The upstream identity service
// supplies the role name per request; unknown names are rejected outright
// instead of being probed against at every handler.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleSeller    Role = "seller"
	RoleBuyer     Role = "buyer"
)

// ParseRole maps a role name to the closed enum. The deprecated "operator"
// name is folded into moderator here, in exactly one place.
func ParseRole(s string) (Role, error) {
	switch s {
	case "admin":
		return RoleAdmin, nil
	case "moderator", "operator":
		return RoleModerator, nil
	case "seller":
		return RoleSeller, nil
	case "buyer":
		return RoleBuyer, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Caller identifies the authenticated request principal.
type Caller struct {
	ID   string
	Role Role
}

// CanModerate reports whether the caller may approve or reject listings.
func (c Caller) CanModerate() bool {
	return c.Role == RoleAdmin || c.Role == RoleModerator
}

type callerKey struct{}

// CallerFromContext returns the caller attached by the identity middleware.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// WithCaller returns a context carrying the caller. Exposed for tests.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// Identity extracts the caller from the X-Caller-ID and X-Caller-Role
// headers set by the upstream authentication layer. Requests without a
// valid identity are rejected before reaching any handler.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Caller-ID")
		roleName := r.Header.Get("X-Caller-Role")
		if id == "" || roleName == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing caller identity", nil)
			return
		}
		role, err := ParseRole(roleName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), Caller{ID: id, Role: role})))
	})
}
