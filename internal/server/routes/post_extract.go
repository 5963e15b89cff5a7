package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
	"github.com/OFFIS-RIT/storygraph/pkg/source"

	"github.com/labstack/echo/v4"
)

// ExtractHandler extracts the graph of one chapter. The text is taken from the
// body, or read from the text source when omitted.
func ExtractHandler(c echo.Context) error {
	type extractBody struct {
		NovelID      string                 `json:"novel_id" validate:"required"`
		ChapterID    string                 `json:"chapter_id" validate:"required"`
		Text         string                 `json:"text"`
		Schema       string                 `json:"schema"`
		ChunkSize    int                    `json:"chunk_size" validate:"gte=0"`
		ChunkOverlap int                    `json:"chunk_overlap" validate:"gte=0"`
		NoCache      bool                   `json:"no_cache"`
		Optimize     *common.OptimizeParams `json:"optimize"`
	}

	type extractResponse struct {
		Message    string                `json:"message"`
		CacheKey   string                `json:"cache_key,omitempty"`
		Status     int                   `json:"status"`
		Cancelled  bool                  `json:"cancelled"`
		FromCache  bool                  `json:"from_cache"`
		DurationMs int64                 `json:"duration_ms"`
		Schema     string                `json:"schema,omitempty"`
		Graph      *common.GraphDocument `json:"graph,omitempty"`
	}

	data := new(extractBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, extractResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, extractResponse{Message: "Invalid request body"})
	}
	if !source.ValidID(data.NovelID) || !source.ValidID(data.ChapterID) {
		return c.JSON(http.StatusBadRequest, extractResponse{Message: "Invalid novel or chapter id"})
	}

	app := appOf(c)
	ctx := c.Request().Context()

	schemaName := data.Schema
	if schemaName == "" {
		schemaName = app.DefaultSchema
	}
	schema, err := app.Catalog.Resolve(schemaName)
	if err != nil {
		return c.JSON(http.StatusBadRequest, extractResponse{Message: err.Error()})
	}

	text := data.Text
	if text == "" {
		if app.Source == nil {
			return c.JSON(http.StatusBadRequest, extractResponse{Message: "text is required"})
		}
		text, err = app.Source.Text(ctx, data.NovelID, data.ChapterID)
		if err != nil {
			return c.JSON(statusFor(err), extractResponse{Message: messageFor(err)})
		}
	}

	chunkSize, chunkOverlap := app.ChunkSize, app.ChunkOverlap
	if data.ChunkSize > 0 {
		chunkSize, chunkOverlap = data.ChunkSize, data.ChunkOverlap
	}

	res, err := app.Graph.Extract(ctx, common.ExtractionConfig{
		NovelID:      data.NovelID,
		ChapterID:    data.ChapterID,
		Text:         text,
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Schema:       schema,
		UseCache:     app.UseCache && !data.NoCache,
		Optimize:     data.Optimize,
	})
	if err != nil {
		logger.Error("[Server] extraction failed", "novel", data.NovelID, "chapter", data.ChapterID, "err", err)
		return c.JSON(statusFor(err), extractResponse{Message: messageFor(err)})
	}

	return c.JSON(http.StatusOK, extractResponse{
		Message:    "Extraction finished",
		CacheKey:   res.CacheKey,
		Status:     res.Status,
		Cancelled:  res.Cancelled,
		FromCache:  res.FromCache,
		DurationMs: res.Duration.Milliseconds(),
		Schema:     res.Schema.Name,
		Graph:      &res.Document,
	})
}
