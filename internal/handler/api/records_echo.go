package api

import (
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/service/anomaly"
	"StockWatchdog/internal/usecase"
	xhttp "StockWatchdog/pkg/http"
	xlogger "StockWatchdog/pkg/logger"
)

// RecordsEchoHandler exposes normalization, cached records and the rate gate over HTTP.
type RecordsEchoHandler struct {
	logger     *xlogger.Logger
	normalizer *usecase.Normalizer
	coord      *usecase.FetchCoordinator
	metrics    metricsRecorder
	now        func() time.Time
}

type metricsRecorder interface {
	RecordAdmission(api string, d models.Decision)
}

func NewRecordsEchoHandler(
	logger *xlogger.Logger,
	normalizer *usecase.Normalizer,
	coord *usecase.FetchCoordinator,
	metrics metricsRecorder,
) *RecordsEchoHandler {
	return &RecordsEchoHandler{logger: logger, normalizer: normalizer, coord: coord, metrics: metrics, now: time.Now}
}

func (h *RecordsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/normalize", h.Normalize)
	g.POST("/fetch", h.Fetch)
	g.GET("/records/:symbol", h.Record)
	g.GET("/summary", h.Summary)

	gate := g.Group("/gate")
	gate.POST("/admit", h.Admit)
	gate.POST("/feedback", h.Feedback)
	gate.GET("/status", h.Status)
}

// Normalize runs one caller-supplied payload through the pipeline without touching upstream.
func (h *RecordsEchoHandler) Normalize(c echo.Context) error {
	req := &models.NormalizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.normalizer.Normalize(models.RawPayload{
		Symbol:    req.Symbol,
		Source:    req.Source,
		FetchedAt: xhttp.ParseTimeDefault(req.FetchedAt, h.now().UTC()),
		Fields:    req.Fields,
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, validationAppError(err))
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *RecordsEchoHandler) Fetch(c echo.Context) error {
	req := &models.FetchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := models.ParsePriority(req.Priority)
	if err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}
	results := h.coord.FetchBatch(c.Request().Context(), req.Symbols, p, req.Refresh)
	return xhttp.ListResponse(c, results, int64(len(results)))
}

// Record serves the latest cached record; it never calls upstream.
func (h *RecordsEchoHandler) Record(c echo.Context) error {
	rec, ok, err := h.coord.Cached(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return xhttp.AppErrorResponse(c, validationAppError(err))
	}
	if !ok {
		return xhttp.NotFoundResponse(c, "no record cached for "+c.Param("symbol"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rec)
}

// Summary aggregates warnings over the cached records of ?symbols=a,b,c.
func (h *RecordsEchoHandler) Summary(c echo.Context) error {
	raw := strings.Split(c.QueryParam("symbols"), ",")
	records := make([]*models.DualTruthRecord, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		rec, ok, err := h.coord.Cached(c.Request().Context(), s)
		if err == nil && ok {
			records = append(records, rec)
		}
	}
	return xhttp.SuccessResponse(c, anomaly.Summarize(records))
}

// Admit lets an external fetcher ask the gate before calling upstream itself.
func (h *RecordsEchoHandler) Admit(c echo.Context) error {
	req := &models.AdmitRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := models.ParsePriority(req.Priority)
	if err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}
	d := h.coord.Gate().Admit(req.API, p)
	if h.metrics != nil {
		h.metrics.RecordAdmission(req.API, d)
	}
	if !d.Allowed {
		return xhttp.TooManyRequestsResponse(c, d.RetryAfter, d)
	}
	return xhttp.SuccessResponse(c, d)
}

func (h *RecordsEchoHandler) Feedback(c echo.Context) error {
	req := &models.FeedbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st := h.coord.Feedback(c.Request().Context(), *req)
	if !req.Success {
		h.logger.Warn("upstream failure reported",
			xlogger.String("api", req.API),
			xlogger.Int("status", req.Status),
			xlogger.Duration("backoff", st.BackoffRemaining),
		)
	}
	return xhttp.SuccessResponse(c, st)
}

// Status returns one budget for ?api=name, or all budgets.
func (h *RecordsEchoHandler) Status(c echo.Context) error {
	if api := c.QueryParam("api"); api != "" {
		return xhttp.SuccessResponse(c, h.coord.Gate().Status(api))
	}
	return xhttp.SuccessResponse(c, h.coord.Gate().Snapshot())
}

func validationAppError(err error) error {
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	return xhttp.UnprocessableError(ve.Field, ve.Error()).
		WithParam("symbol", ve.Symbol).
		WithError(err)
}
