package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/storygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/storygraph/pkg/cache"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"
	"github.com/OFFIS-RIT/storygraph/pkg/source"

	"github.com/labstack/echo/v4"
)

type messageResponse struct {
	Message string `json:"message"`
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, cache.ErrNotFound), errors.Is(err, source.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}

func appOf(c echo.Context) *middleware.App {
	return c.(*middleware.AppContext).App
}

// requireCache answers 503 when the server runs without a cache.
func requireCache(c echo.Context) (*cache.ContentCache, bool) {
	cc := appOf(c).Graph.Cache()
	if cc == nil {
		_ = c.JSON(http.StatusServiceUnavailable, messageResponse{Message: "Cache is not configured"})
		return nil, false
	}
	return cc, true
}
