package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/storygraph/pkg/cache"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetCacheHandler lists cache entries, optionally only those of one schema.
func GetCacheHandler(c echo.Context) error {
	type listParams struct {
		Schema string `query:"schema"`
	}

	type listResponse struct {
		Message string            `json:"message"`
		Entries []cache.EntryInfo `json:"entries"`
	}

	params := new(listParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, listResponse{Message: "Invalid request params"})
	}

	cc, ok := requireCache(c)
	if !ok {
		return nil
	}

	ctx := c.Request().Context()
	var (
		entries []cache.EntryInfo
		err     error
	)
	if params.Schema != "" {
		entries, err = cc.FindBySchema(ctx, params.Schema)
	} else {
		entries, err = cc.List(ctx)
	}
	if err != nil {
		logger.Error("[Server] failed to list cache", "err", err)
		return c.JSON(http.StatusInternalServerError, listResponse{Message: "Internal server error"})
	}
	if entries == nil {
		entries = []cache.EntryInfo{}
	}
	return c.JSON(http.StatusOK, listResponse{Message: "OK", Entries: entries})
}

func GetCacheStatsHandler(c echo.Context) error {
	cc, ok := requireCache(c)
	if !ok {
		return nil
	}
	stats, err := cc.Stats(c.Request().Context())
	if err != nil {
		logger.Error("[Server] failed to compute cache stats", "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, stats)
}

func GetCacheEntryHandler(c echo.Context) error {
	type entryResponse struct {
		Message string             `json:"message"`
		Entry   *common.CacheEntry `json:"entry,omitempty"`
	}

	key := c.Param("key")
	if !cache.IsKey(key) {
		return c.JSON(http.StatusBadRequest, entryResponse{Message: "Invalid cache key"})
	}

	cc, ok := requireCache(c)
	if !ok {
		return nil
	}

	entry, err := cc.Entry(c.Request().Context(), key)
	if err != nil {
		return c.JSON(statusFor(err), entryResponse{Message: messageFor(err)})
	}
	return c.JSON(http.StatusOK, entryResponse{Message: "OK", Entry: entry})
}
