package inpatient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardops/wardops/internal/domain/billing"
	"github.com/wardops/wardops/internal/platform/apperr"
	"github.com/wardops/wardops/internal/platform/export"
	"github.com/wardops/wardops/pkg/pagination"
)

// maxDocumentSize caps intake uploads sent to the extractor.
const maxDocumentSize = 10 << 20

// ExpenseLister supplies the bill lines shown on exported documents.
type ExpenseLister interface {
	ListFor(ctx context.Context, patientID uuid.UUID) ([]*billing.Expense, error)
}

type Handler struct {
	svc      *Service
	expenses ExpenseLister
	hospital string
	render   func(format string, b *export.Bill) (*export.Document, error)
}

func NewHandler(svc *Service, expenses ExpenseLister, hospital string) *Handler {
	return &Handler{svc: svc, expenses: expenses, hospital: hospital, render: export.Render}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/beds", h.Board)
	api.GET("/beds/vacant", h.ListVacantBeds)
	api.POST("/beds", h.CreateBed)
	api.GET("/beds/:id", h.GetBed)
	api.PUT("/beds/:id/maintenance", h.SetMaintenance)
	api.POST("/beds/:id/admit", h.Admit)
	api.POST("/admissions/extract", h.Extract)

	api.GET("/patients", h.ListAdmitted)
	api.GET("/patients/:id", h.GetPatient)
	api.PATCH("/patients/:id/care", h.UpdateCare)
	api.GET("/patients/:id/discharge-draft", h.DischargeDraft)
	api.POST("/patients/:id/discharge", h.Discharge)

	api.GET("/discharges", h.ListDischarged)
	api.GET("/discharges/:id", h.GetDischargeSummary)
	api.GET("/discharges/:id/export", h.Export)
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Beds --

func (h *Handler) Board(c echo.Context) error {
	board, err := h.svc.ListBedsWithOccupants(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) ListVacantBeds(c echo.Context) error {
	beds, err := h.svc.ListVacantBeds(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	if beds == nil {
		beds = []*Bed{}
	}
	return c.JSON(http.StatusOK, beds)
}

type createBedRequest struct {
	BedNumber int    `json:"bed_number"`
	Ward      string `json:"ward"`
}

func (h *Handler) CreateBed(c echo.Context) error {
	var req createBedRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.CreateBed(c.Request().Context(), req.BedNumber, req.Ward)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBed(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	b, err := h.svc.GetBed(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

type maintenanceRequest struct {
	UnderMaintenance bool `json:"under_maintenance"`
}

func (h *Handler) SetMaintenance(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req maintenanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.SetMaintenance(c.Request().Context(), id, req.UnderMaintenance)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

// -- Admission --

func (h *Handler) Admit(c echo.Context) error {
	bedID, err := pathID(c)
	if err != nil {
		return err
	}
	var req AdmissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Admit(c.Request().Context(), bedID, &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// Extract accepts a multipart upload in the "document" field and returns
// a prefilled admission form.
func (h *Handler) Extract(c echo.Context) error {
	fh, err := c.FormFile("document")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "document file is required")
	}
	if fh.Size > maxDocumentSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "document too large")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read document")
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxDocumentSize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read document")
	}

	req, err := h.svc.DraftFromDocument(c.Request().Context(), Document{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Data:        data,
	})
	switch {
	case errors.Is(err, ErrExtractionUnavailable):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	case err != nil && apperr.IsDomain(err):
		return apperr.HTTP(err)
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, "document extraction failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, req)
}

// -- Patients --

func (h *Handler) ListAdmitted(c echo.Context) error {
	patients, err := h.svc.ListAdmitted(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateCare(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req CareUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdateCare(c.Request().Context(), id, &req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DischargeDraft(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	text, err := h.svc.DraftSummary(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"summary_text": text})
}

type dischargeRequest struct {
	SummaryText string `json:"summary_text"`
}

func (h *Handler) Discharge(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req dischargeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.svc.Discharge(c.Request().Context(), id, req.SummaryText)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, s)
}

// -- Discharges --

func parseDay(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, apperr.Validation(fmt.Sprintf("%s must be YYYY-MM-DD", name))
	}
	return t, nil
}

// ListDischarged serves the discharged-patients view. Query: q (name, phone
// or doctor), from and to (inclusive discharge dates), limit, offset.
func (h *Handler) ListDischarged(c echo.Context) error {
	from, err := parseDay(c, "from")
	if err != nil {
		return apperr.HTTP(err)
	}
	to, err := parseDay(c, "to")
	if err != nil {
		return apperr.HTTP(err)
	}
	pg := pagination.FromContext(c)
	f := DischargedFilter{Keyword: c.QueryParam("q"), From: from, To: to}

	items, total, err := h.svc.ListDischarged(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*DischargedPatient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) GetDischargeSummary(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.GetDischargeSummary(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

// Export downloads a discharge bill as text, html or xlsx.
func (h *Handler) Export(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	s, err := h.svc.GetDischargeSummary(ctx, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	p, err := h.svc.GetPatient(ctx, s.PatientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	expenses, err := h.expenses.ListFor(ctx, s.PatientID)
	if err != nil {
		return apperr.HTTP(err)
	}

	doc, err := h.render(c.QueryParam("format"), billOf(s, p, expenses, h.hospital))
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return apperr.HTTP(apperr.Validation(err.Error()))
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("summary_id", id.String()).Msg("render discharge bill failed")
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Filename))
	return c.Blob(http.StatusOK, doc.ContentType, doc.Body)
}

// billOf lists only the expenses recorded up to the discharge date; the
// printed total is always the frozen summary total.
func billOf(s *DischargeSummary, p *Patient, expenses []*billing.Expense, hospital string) *export.Bill {
	b := &export.Bill{
		SummaryID:     s.ID.String(),
		PatientName:   p.Name,
		BloodGroup:    p.BloodGroup,
		Phone:         p.Phone,
		Doctor:        p.Doctor,
		Issue:         p.Issue,
		BedNumber:     s.BedNumber,
		AdmissionDate: p.AdmissionDate,
		DischargeDate: s.DischargeDate,
		SummaryText:   s.SummaryText,
		Total:         s.TotalBill,
		Hospital:      hospital,
	}
	cutoff := s.CreatedAt
	for _, e := range expenses {
		if !cutoff.IsZero() && e.CreatedAt.After(cutoff) {
			continue
		}
		b.Lines = append(b.Lines, export.Line{Date: e.ExpenseDate, Description: e.Description, Amount: e.Amount})
	}
	return b
}
