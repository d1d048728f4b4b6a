package person

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/notesync/pkg/pagination"
)

// Handler exposes migrated persons read-only to operators.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/persons", h.ListPersons)
	api.GET("/persons/:id", h.GetPerson)
	api.GET("/persons/by-guid/:guid", h.GetPersonByGUID)
}

func (h *Handler) ListPersons(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.repo.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPerson(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.repo.GetByID(c.Request().Context(), id)
	return respond(c, p, err)
}

func (h *Handler) GetPersonByGUID(c echo.Context) error {
	guid, err := uuid.Parse(c.Param("guid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid guid")
	}
	p, err := h.repo.FindByIdentifier(c.Request().Context(), guid)
	return respond(c, p, err)
}

func respond(c echo.Context, p *Person, err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "person not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}
