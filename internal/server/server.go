package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/app"
	"github.com/OFFIS-RIT/storygraph/internal/config"
	"github.com/OFFIS-RIT/storygraph/internal/queue"
	mid "github.com/OFFIS-RIT/storygraph/internal/server/middleware"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance with middleware and routes.
func New(a *mid.App, bodyLimit string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(a))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	if bodyLimit != "" {
		e.Use(middleware.BodyLimit(bodyLimit))
	}

	RegisterRoutes(e)
	return e
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	pipeline, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	a := &mid.App{
		Graph:          pipeline.Client,
		Catalog:        pipeline.Catalog,
		Source:         pipeline.Source,
		DefaultSchema:  cfg.Extract.DefaultSchema,
		ChunkSize:      cfg.Extract.ChunkSize,
		ChunkOverlap:   cfg.Extract.ChunkOverlap,
		UseCache:       cfg.Extract.UseCache,
		MasterAPIKey:   cfg.Server.MasterAPIKey,
		MasterUserID:   int64(cfg.Server.MasterUserID),
		MasterUserRole: cfg.Server.MasterUserRole,
	}
	if pipeline.Timing != nil {
		a.Timing = pipeline.Timing
	}

	if cfg.Server.AuthURL != "" {
		k, err := keyfunc.NewDefault([]string{cfg.Server.AuthURL + "/jwks"})
		if err != nil {
			return err
		}
		a.KeyFunc = k.Keyfunc
	} else if cfg.Server.MasterAPIKey == "" {
		logger.Warn("[Server] neither AUTH_URL nor MASTER_API_KEY is set, every API request will be rejected")
	}

	conn, err := queue.Dial(cfg.Rabbit.URL())
	if err != nil {
		logger.Warn("[Server] queue unavailable, batch endpoint disabled", "err", err)
	} else {
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			return err
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, queue.Queues); err != nil {
			return err
		}
		a.Queue = ch
	}

	e := New(a, cfg.Server.BodyLimit)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port)
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
	return nil
}
