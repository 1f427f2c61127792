package opd

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/wardops/wardops/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/opd")
	g.GET("", h.List)
	g.POST("", h.Enqueue)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.PUT("/:id/status", h.Transition)
	g.DELETE("/:id", h.Remove)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type visitRequest struct {
	Name            string `json:"name"`
	Age             int    `json:"age"`
	Contact         string `json:"contact"`
	Issue           string `json:"issue"`
	Doctor          string `json:"doctor"`
	AppointmentTime string `json:"appointment_time"`
	Notes           string `json:"notes"`
}

func (r visitRequest) visit() *Visit {
	return &Visit{
		Name:            r.Name,
		Age:             r.Age,
		Contact:         r.Contact,
		Issue:           r.Issue,
		Doctor:          r.Doctor,
		AppointmentTime: r.AppointmentTime,
		Notes:           r.Notes,
	}
}

func (h *Handler) Enqueue(c echo.Context) error {
	var req visitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := req.visit()
	if err := h.svc.Enqueue(c.Request().Context(), v); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, v)
}

// List accepts status (or "all") and q query parameters.
func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), ListFilter{
		Status:  c.QueryParam("status"),
		Keyword: c.QueryParam("q"),
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req visitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := req.visit()
	v.ID = id
	if err := h.svc.Update(c.Request().Context(), v); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Transition(c.Request().Context(), id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Remove(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Remove(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}
