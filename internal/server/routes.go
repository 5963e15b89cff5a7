package server

import (
	"github.com/OFFIS-RIT/storygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/storygraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Extraction routes
	apiRoutes.POST("/extract", routes.ExtractHandler, middleware.RequirePermission(middleware.PermGraphExtract))
	apiRoutes.POST("/extract/batch", routes.CreateBatchHandler, middleware.RequirePermission(middleware.PermBatchCreate))
	apiRoutes.POST("/optimize", routes.OptimizeHandler, middleware.RequirePermission(middleware.PermGraphOptimize))
	apiRoutes.GET("/schemas", routes.GetSchemasHandler, middleware.RequirePermission(middleware.PermSchemaView))

	// Cache routes
	apiRoutes.GET("/cache", routes.GetCacheHandler, middleware.RequirePermission(middleware.PermCacheView))
	apiRoutes.GET("/cache/stats", routes.GetCacheStatsHandler, middleware.RequirePermission(middleware.PermCacheView))
	apiRoutes.GET("/cache/:key", routes.GetCacheEntryHandler, middleware.RequirePermission(middleware.PermCacheView))
	apiRoutes.DELETE("/cache/:key", routes.DeleteCacheEntryHandler, middleware.RequireAnyPermission(middleware.PermCacheDelete, middleware.PermCacheAdmin))
	apiRoutes.POST("/cache/purge", routes.PurgeCacheHandler, middleware.RequireAnyPermission(middleware.PermCachePurge, middleware.PermCacheAdmin))
}
