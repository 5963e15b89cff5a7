package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// API permissions carried in the "permissions" claim of a token.
const (
	PermGraphExtract  = "graph.extract"
	PermGraphOptimize = "graph.optimize"
	PermBatchCreate   = "batch.create"
	PermSchemaView    = "schema.view"
	PermCacheView     = "cache.view"
	PermCacheDelete   = "cache.delete"
	PermCachePurge    = "cache.purge"
	// PermCacheAdmin grants every destructive cache operation.
	PermCacheAdmin = "cache.admin"
)

const RoleAdmin = "admin"

var allPermissions = []string{
	PermGraphExtract,
	PermGraphOptimize,
	PermBatchCreate,
	PermSchemaView,
	PermCacheView,
	PermCacheDelete,
	PermCachePurge,
	PermCacheAdmin,
}

// AllPermissions returns every permission known to the API.
func AllPermissions() []string {
	return slices.Clone(allPermissions)
}

// HasPermission reports whether user holds permission. Admins hold every
// permission.
func HasPermission(user *AppUser, permission string) bool {
	if user == nil {
		return false
	}
	return IsAdmin(user) || slices.Contains(user.Permissions, permission)
}

func HasAnyPermission(user *AppUser, permissions ...string) bool {
	return slices.ContainsFunc(permissions, func(p string) bool {
		return HasPermission(user, p)
	})
}

func IsAdmin(user *AppUser) bool {
	return user != nil && user.Role == RoleAdmin
}

func RequirePermission(permission string) echo.MiddlewareFunc {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission lets a request through when the user holds at least
// one of permissions.
func RequireAnyPermission(permissions ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := c.(*AppContext).User
			if user == nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			if !HasAnyPermission(user, permissions...) {
				return c.JSON(http.StatusForbidden, map[string]any{
					"error":    "Forbidden: missing permission",
					"required": permissions,
				})
			}

			return next(c)
		}
	}
}
