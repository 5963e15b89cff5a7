package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHasAnyPermission(t *testing.T) {
	tests := []struct {
		name  string
		user  *AppUser
		perms []string
		want  bool
	}{
		{"nil user", nil, []string{PermCacheView}, false},
		{"holds one", &AppUser{Permissions: []string{PermCacheAdmin}}, []string{PermCacheDelete, PermCacheAdmin}, true},
		{"holds none", &AppUser{Permissions: []string{PermCacheView}}, []string{PermCacheDelete, PermCacheAdmin}, false},
		{"admin role", &AppUser{Role: RoleAdmin}, []string{PermCachePurge}, true},
		{"nothing required", &AppUser{Role: RoleAdmin}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAnyPermission(tt.user, tt.perms...); got != tt.want {
				t.Errorf("HasAnyPermission() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequireAnyPermission(t *testing.T) {
	e := echo.New()
	handler := RequireAnyPermission(PermCacheDelete, PermCacheAdmin)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	tests := []struct {
		name string
		user *AppUser
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"viewer", &AppUser{Permissions: []string{PermCacheView}}, http.StatusForbidden},
		{"cache admin", &AppUser{Permissions: []string{PermCacheAdmin}}, http.StatusNoContent},
		{"admin", &AppUser{Role: RoleAdmin}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := &AppContext{Context: e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec), User: tt.user}
			if err := handler(c); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	if got := AllPermissions(); len(got) != len(allPermissions) || &got[0] == &allPermissions[0] {
		t.Error("AllPermissions must return a copy of every permission")
	}
}
