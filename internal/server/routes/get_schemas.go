package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/storygraph/pkg/common"

	"github.com/labstack/echo/v4"
)

func GetSchemasHandler(c echo.Context) error {
	type schemasResponse struct {
		Default string          `json:"default"`
		Schemas []common.Schema `json:"schemas"`
	}

	app := appOf(c)
	return c.JSON(http.StatusOK, schemasResponse{
		Default: app.DefaultSchema,
		Schemas: app.Catalog.List(),
	})
}
