package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/queue"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
	"github.com/OFFIS-RIT/storygraph/pkg/source"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// CreateBatchHandler enqueues the chapters of a novel for the worker.
func CreateBatchHandler(c echo.Context) error {
	type batchBody struct {
		NovelID      string                 `json:"novel_id" validate:"required"`
		Chapters     []string               `json:"chapters"`
		Schema       string                 `json:"schema"`
		ChunkSize    int                    `json:"chunk_size" validate:"gte=0"`
		ChunkOverlap int                    `json:"chunk_overlap" validate:"gte=0"`
		NoCache      bool                   `json:"no_cache"`
		Export       bool                   `json:"export"`
		Optimize     *common.OptimizeParams `json:"optimize"`
	}

	type batchResponse struct {
		Message     string   `json:"message"`
		BatchID     string   `json:"batch_id,omitempty"`
		Chapters    []string `json:"chapters,omitempty"`
		EstimatedMs int64    `json:"estimated_ms,omitempty"`
	}

	data := new(batchBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, batchResponse{Message: "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, batchResponse{Message: "Invalid request body"})
	}
	if !source.ValidID(data.NovelID) {
		return c.JSON(http.StatusBadRequest, batchResponse{Message: "Invalid novel id"})
	}
	if data.ChunkSize > 0 && data.ChunkOverlap >= data.ChunkSize {
		return c.JSON(http.StatusBadRequest, batchResponse{Message: "chunk_overlap must be smaller than chunk_size"})
	}

	app := appOf(c)
	if app.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, batchResponse{Message: "Queue is not configured"})
	}
	if data.Schema != "" {
		if _, err := app.Catalog.Resolve(data.Schema); err != nil {
			return c.JSON(http.StatusBadRequest, batchResponse{Message: err.Error()})
		}
	}

	ctx := c.Request().Context()
	chapters := data.Chapters
	if len(chapters) == 0 && app.Source != nil {
		var err error
		chapters, err = app.Source.Chapters(ctx, data.NovelID)
		if err != nil {
			return c.JSON(statusFor(err), batchResponse{Message: messageFor(err)})
		}
	}
	for _, ch := range chapters {
		if !source.ValidID(ch) {
			return c.JSON(http.StatusBadRequest, batchResponse{Message: "Invalid chapter id " + ch})
		}
	}

	batchID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, batchResponse{Message: "Internal server error"})
	}

	msg := queue.ExtractMessage{
		BatchID:      batchID,
		NovelID:      data.NovelID,
		Chapters:     chapters,
		Schema:       data.Schema,
		ChunkSize:    data.ChunkSize,
		ChunkOverlap: data.ChunkOverlap,
		NoCache:      data.NoCache,
		Export:       data.Export,
		Optimize:     data.Optimize,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, batchResponse{Message: "Internal server error"})
	}
	if err := queue.PublishFIFO(app.Queue, queue.ExtractQueue, body); err != nil {
		logger.Error("[Server] failed to enqueue batch", "novel", data.NovelID, "err", err)
		return c.JSON(http.StatusInternalServerError, batchResponse{Message: "Internal server error"})
	}

	logger.Info("[Server] batch enqueued", "batch", batchID, "novel", data.NovelID, "chapters", len(chapters))
	return c.JSON(http.StatusAccepted, batchResponse{
		Message:     "Batch enqueued",
		BatchID:     batchID,
		Chapters:    chapters,
		EstimatedMs: estimate(c, data.NovelID, chapters).Milliseconds(),
	})
}

// estimate predicts the batch duration from past extraction times. It
// returns zero when no prediction is possible.
func estimate(c echo.Context, novelID string, chapters []string) time.Duration {
	app := appOf(c)
	if app.Timing == nil || app.Source == nil {
		return 0
	}
	ctx := c.Request().Context()
	runes := 0
	for _, ch := range chapters {
		text, err := app.Source.Text(ctx, novelID, ch)
		if err != nil {
			return 0
		}
		runes += len([]rune(text))
	}
	d, err := app.Timing.PredictExtractionTime(ctx, app.Graph.Identity().Model, runes)
	if err != nil {
		logger.Debug("[Server] no extraction time prediction", "err", err)
		return 0
	}
	return d
}
