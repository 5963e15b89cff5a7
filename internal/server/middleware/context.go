package middleware

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/queue"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"
	"github.com/OFFIS-RIT/storygraph/pkg/source"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      int64
	Role        string
	Permissions []string
}

// Predictor estimates extraction time from past samples.
type Predictor interface {
	PredictExtractionTime(ctx context.Context, model string, runes int) (time.Duration, error)
}

// App is shared by every request. Queue, Timing and KeyFunc are optional.
type App struct {
	Graph   *graph.GraphClient
	Catalog *graph.SchemaCatalog
	Source  source.TextSource
	Queue   queue.Publisher
	Timing  Predictor
	KeyFunc jwt.Keyfunc

	DefaultSchema string
	ChunkSize     int
	ChunkOverlap  int
	UseCache      bool

	MasterAPIKey   string
	MasterUserID   int64
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
