package routes

import (
	"net/http"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/cache"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

func DeleteCacheEntryHandler(c echo.Context) error {
	key := c.Param("key")
	if !cache.IsKey(key) {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid cache key"})
	}

	cc, ok := requireCache(c)
	if !ok {
		return nil
	}

	ctx := c.Request().Context()
	if _, err := cc.Metadata(ctx, key); err != nil {
		return c.JSON(statusFor(err), messageResponse{Message: messageFor(err)})
	}
	if err := cc.Delete(ctx, key); err != nil {
		logger.Error("[Server] failed to delete cache entry", "key", key, "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Cache entry deleted"})
}

// PurgeCacheHandler removes entries older than the given age. An empty age
// removes every entry.
func PurgeCacheHandler(c echo.Context) error {
	type purgeBody struct {
		OlderThan string `json:"older_than"`
	}

	type purgeResponse struct {
		Message string `json:"message"`
		Removed int    `json:"removed"`
	}

	data := new(purgeBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, purgeResponse{Message: "Invalid request body"})
	}

	var age time.Duration
	if data.OlderThan != "" {
		d, err := time.ParseDuration(data.OlderThan)
		if err != nil || d < 0 {
			return c.JSON(http.StatusBadRequest, purgeResponse{Message: "older_than must be a duration like 72h"})
		}
		age = d
	}

	cc, ok := requireCache(c)
	if !ok {
		return nil
	}

	removed, err := cc.Purge(c.Request().Context(), age)
	if err != nil {
		logger.Error("[Server] failed to purge cache", "err", err)
		return c.JSON(http.StatusInternalServerError, purgeResponse{Message: "Internal server error", Removed: removed})
	}
	return c.JSON(http.StatusOK, purgeResponse{Message: "Cache purged", Removed: removed})
}
