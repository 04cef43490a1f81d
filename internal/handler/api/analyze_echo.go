package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/usecase"
	xhttp "SignalForge/pkg/http"
	xlogger "SignalForge/pkg/logger"
)

// Analyzer runs the pipeline for one item.
type Analyzer interface {
	Analyze(ctx context.Context, in models.AnalysisInput, opts usecase.Options) (*models.AnalysisResult, error)
}

type InstrumentLister interface {
	Instruments() []models.Instrument
}

// Limiter admits or rejects one request for a client key.
type Limiter interface {
	Allow(key string) bool
}

// AnalyzeRequest is an AnalysisInput plus an optional memory cutoff.
type AnalyzeRequest struct {
	models.AnalysisInput
	AsOf *time.Time `json:"as_of,omitempty"`
}

type AnalyzeEchoHandler struct {
	logger   *xlogger.Logger
	analyzer Analyzer
	allow    InstrumentLister
	limiter  Limiter
}

func NewAnalyzeEchoHandler(logger *xlogger.Logger, analyzer Analyzer, allow InstrumentLister, limiter Limiter) *AnalyzeEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &AnalyzeEchoHandler{logger: logger, analyzer: analyzer, allow: allow, limiter: limiter}
}

func (h *AnalyzeEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.POST("/analyze", h.Analyze)
	g.GET("/allowlist", h.AllowList)
}

// Analyze runs one item through the pipeline. Pipeline degradation still
// yields 200 with a fallback decision; only an unavailable classifier or a
// malformed item fails the request.
func (h *AnalyzeEchoHandler) Analyze(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.RateLimitedError("too many analyze requests"))
	}

	req := &AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationResponse(c, verr)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	opts := usecase.Options{}
	if req.AsOf != nil {
		opts.AsOf = req.AsOf.UTC()
	}

	res, err := h.analyzer.Analyze(c.Request().Context(), req.AnalysisInput, opts)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidInput):
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
		case errors.Is(err, models.ErrLLMUnavailable):
			h.logger.Error("analyze: classifier unavailable",
				xlogger.String("item_id", req.ID),
				xlogger.Error(err),
			)
			return xhttp.AppErrorResponse(c, xhttp.UpstreamError("ERR_LLM_UNAVAILABLE", "completion service unavailable").WithError(err))
		default:
			h.logger.Error("analyze usecase error", xlogger.String("item_id", req.ID), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyzeEchoHandler) AllowList(c echo.Context) error {
	rows := h.allow.Instruments()
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *AnalyzeEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
