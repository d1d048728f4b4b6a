package importer

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/notesync/internal/domain/importjob"
	"github.com/ehr/notesync/pkg/pagination"
)

// Trigger starts a background run.
type Trigger interface {
	Trigger(ctx context.Context) error
	Running() bool
}

// Handler is the operator API for import runs.
type Handler struct {
	trigger Trigger
	jobs    importjob.Repository
}

func NewHandler(trigger Trigger, jobs importjob.Repository) *Handler {
	return &Handler{trigger: trigger, jobs: jobs}
}

// RegisterRoutes mounts the import routes. triggerMW guards only the route
// that starts a run.
func (h *Handler) RegisterRoutes(api *echo.Group, triggerMW ...echo.MiddlewareFunc) {
	api.POST("/import/runs", h.StartRun, triggerMW...)
	api.GET("/import/runs", h.ListRuns)
	api.GET("/import/runs/:id", h.GetRun)
	api.GET("/import/runs/:id/errors", h.ListRunErrors)
	api.GET("/import/status", h.Status)
}

func (h *Handler) StartRun(c echo.Context) error {
	err := h.trigger.Trigger(c.Request().Context())
	if errors.Is(err, ErrRunInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"running": h.trigger.Running()})
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.jobs.ListRuns(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return err
	}
	run, err := h.jobs.GetRun(c.Request().Context(), id)
	if errors.Is(err, importjob.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListRunErrors(c echo.Context) error {
	id, err := runID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.jobs.GetRun(ctx, id); err != nil {
		if errors.Is(err, importjob.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "job run not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	pg := pagination.FromContext(c)
	items, total, err := h.jobs.ListErrors(ctx, id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func runID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}
	return id, nil
}
