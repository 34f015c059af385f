package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/mveljko/backend-cenik/internal/common"
)

// Middleware wires module-role authentication into HTTP handlers.
type Middleware struct {
	Service *Service
}

// RequireRole enforces that the request carries a valid token for the given
// module. Admin tokens are accepted everywhere.
func (m Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Service == nil {
				common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
				return
			}
			tokenRole, err := m.Service.ParseToken(extractToken(r))
			if err != nil {
				var appErr *common.AppError
				if errors.As(err, &appErr) {
					status := appErr.HTTPStatus
					if status == 0 {
						status = http.StatusUnauthorized
					}
					common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
					return
				}
				common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
				return
			}
			if tokenRole != role && tokenRole != RoleAdmin {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "token not valid for this module", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithModuleRole(r.Context(), tokenRole)))
		})
	}
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
