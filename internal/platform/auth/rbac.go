package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Role ladder, least to most privileged. "clinicadmin" and "doctor" sit at
// the same clinical tier; "admin" passes every check.
const (
	RolePatient     = "patient"
	RoleDoctor      = "doctor"
	RoleClinicAdmin = "clinicadmin"
	RoleAdmin       = "admin"
)

// RequireRole returns middleware that allows the request through when the
// caller holds any of the given roles. Admin always passes.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userRoles := RolesFromContext(c.Request().Context())
			for _, required := range roles {
				for _, has := range userRoles {
					if has == required || has == RoleAdmin {
						return next(c)
					}
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("Access denied: Insufficient permissions (required role: %s)", strings.Join(roles, " or ")))
		}
	}
}

// RequirePatientOrHigher gates read access.
func RequirePatientOrHigher() echo.MiddlewareFunc {
	return RequireRole(RolePatient, RoleDoctor, RoleClinicAdmin)
}

// RequireDoctorOrHigher gates clinical mutations.
func RequireDoctorOrHigher() echo.MiddlewareFunc {
	return RequireRole(RoleDoctor, RoleClinicAdmin)
}

// RequireAdmin gates destructive record-level operations.
func RequireAdmin() echo.MiddlewareFunc {
	return RequireRole(RoleAdmin)
}
