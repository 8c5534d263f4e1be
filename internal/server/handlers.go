package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"xchain-radar/internal/flows"
	"xchain-radar/internal/service"
)

// Explainer runs the briefing pipeline for one (day, chain).
type Explainer interface {
	Explain(ctx context.Context, day time.Time, chain string) service.ExplainResult
}

// Handlers holds the dependencies of the HTTP endpoints.
type Handlers struct {
	Pipeline     Explainer
	DefaultChain string
	Location     *time.Location
	Logger       zerolog.Logger
}

type explainRequest struct {
	Day   string `query:"day" json:"day"`
	Chain string `query:"chain" json:"chain"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type healthResponse struct {
	OK bool `json:"ok"`
}

// Health reports liveness.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{OK: true})
}

// Explain triggers one pipeline run. Pipeline degradation is reported inside
// the 200 body; only a malformed request yields a non-200.
func (h *Handlers) Explain(c echo.Context) error {
	var req explainRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	// POST binds the body only; query params still count for both verbs.
	if req.Day == "" {
		req.Day = c.QueryParam("day")
	}
	if req.Chain == "" {
		req.Chain = c.QueryParam("chain")
	}

	day := flows.Yesterday(h.Location)
	if req.Day != "" {
		parsed, err := flows.ParseDay(req.Day)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "day must be YYYY-MM-DD"})
		}
		day = parsed
	}

	chain := req.Chain
	if chain == "" {
		chain = h.DefaultChain
	}

	res := h.Pipeline.Explain(c.Request().Context(), day, chain)
	return c.JSON(http.StatusOK, res)
}
