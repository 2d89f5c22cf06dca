package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mcoot/clanadmin/internal/api/apierr"
	"github.com/mcoot/clanadmin/internal/services/auth"
)

type contextKey string

const staffContextKey contextKey = "staff"

// StaffAuth rejects requests without a valid staff bearer token
func StaffAuth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			staff, err := authService.Authenticate(token)
			if err != nil {
				apierr.WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), staffContextKey, staff)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken extracts the bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// GetStaff returns the authenticated staff member from the request context
func GetStaff(ctx context.Context) *auth.Staff {
	staff, _ := ctx.Value(staffContextKey).(*auth.Staff)
	return staff
}

// Actor returns the RSN changes should be attributed to, or ""
func Actor(ctx context.Context) string {
	if staff := GetStaff(ctx); staff != nil {
		return staff.RSN
	}
	return ""
}
