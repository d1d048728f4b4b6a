package note

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/notesync/pkg/pagination"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/persons/:id/notes", h.ListPersonNotes)
}

// ListPersonNotes returns a person's notes, most recently modified first.
func (h *Handler) ListPersonNotes(c echo.Context) error {
	personID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid person id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.repo.ListByPerson(c.Request().Context(), personID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
