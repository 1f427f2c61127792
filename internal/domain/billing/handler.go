package billing

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/expenses/catalog", h.Catalog)
	api.POST("/patients/:id/expenses", h.AddExpense)
	api.GET("/patients/:id/expenses", h.ListExpenses)
	api.GET("/patients/:id/expenses/total", h.Total)
	api.GET("/patients/:id/statement", h.Statement)

	api.POST("/discharges/:id/payments", h.RecordPayment)
	api.GET("/discharges/:id/settlement", h.Settlement)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type addExpenseRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate string          `json:"expense_date"`
}

func (h *Handler) AddExpense(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	var req addExpenseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var date time.Time
	if req.ExpenseDate != "" {
		if date, err = time.Parse("2006-01-02", req.ExpenseDate); err != nil {
			return apperr.HTTP(apperr.Validation("expense_date must be YYYY-MM-DD"))
		}
	}
	e, err := h.svc.AddExpense(c.Request().Context(), patientID, req.Description, req.Amount, date)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListExpenses(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListFor(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Total(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	total, err := h.svc.TotalFor(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"total":      total,
	})
}

func (h *Handler) Statement(c echo.Context) error {
	patientID, err := pathID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Statement(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Catalog(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.CommonExpenses())
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
}

func (h *Handler) RecordPayment(c echo.Context) error {
	summaryID, err := pathID(c)
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.RecordPayment(c.Request().Context(), summaryID, req.Amount, req.Method, req.Reference)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Settlement(c echo.Context) error {
	summaryID, err := pathID(c)
	if err != nil {
		return err
	}
	st, err := h.svc.Settlement(c.Request().Context(), summaryID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}
