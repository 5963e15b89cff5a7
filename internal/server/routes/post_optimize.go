package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/storygraph/pkg/common"

	"github.com/labstack/echo/v4"
)

func OptimizeHandler(c echo.Context) error {
	type optimizeBody struct {
		Graph  common.GraphDocument   `json:"graph"`
		Params *common.OptimizeParams `json:"params"`
	}

	type optimizeResponse struct {
		Message string                `json:"message"`
		Graph   *common.GraphDocument `json:"graph,omitempty"`
	}

	data := new(optimizeBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, optimizeResponse{Message: "Invalid request body"})
	}

	var params common.OptimizeParams
	if data.Params != nil {
		params = *data.Params
	}
	doc := appOf(c).Graph.Optimize(c.Request().Context(), data.Graph, params)
	return c.JSON(http.StatusOK, optimizeResponse{Message: "Graph optimized", Graph: &doc})
}
