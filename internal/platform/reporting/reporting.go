// Package reporting computes the ward dashboard figures for a period and
// keeps short-lived snapshots in Redis.
package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/internal/platform/apperr"
)

// Periods accepted by Summary.
const (
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodYear    = "year"
)

// Window returns the calendar period containing now, from its first
// instant up to now. Weeks start on Monday.
func Window(period string, now time.Time) (from, to time.Time, err error) {
	y, m, d := now.Date()
	loc := now.Location()
	switch period {
	case PeriodWeek:
		offset := (int(now.Weekday()) + 6) % 7
		from = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case PeriodMonth:
		from = time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case PeriodQuarter:
		from = time.Date(y, m-(m-1)%3, 1, 0, 0, 0, 0, loc)
	case PeriodYear:
		from = time.Date(y, 1, 1, 0, 0, 0, 0, loc)
	default:
		return time.Time{}, time.Time{}, apperr.Validation(fmt.Sprintf("period %q is not one of week, month, quarter, year", period))
	}
	return from, now, nil
}

// MeasureDefinition defines a reporting measure with its SQL query. Measures
// with parameters take the period window as $1 (from) and $2 (to).
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"sql"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	Period      string                   `json:"period,omitempty"`
	From        *time.Time               `json:"from,omitempty"`
	To          *time.Time               `json:"to,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
}

var windowParams = []string{"from", "to"}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "admissions",
		Name:        "Admissions",
		Description: "Patients admitted in the period",
		SQL:         `SELECT COUNT(*) AS total FROM patients WHERE admission_date >= $1 AND admission_date < $2`,
		Parameters:  windowParams,
	},
	{
		ID:          "discharges",
		Name:        "Discharges",
		Description: "Discharge summaries written in the period",
		SQL:         `SELECT COUNT(*) AS total FROM discharge_summaries WHERE discharge_date >= $1 AND discharge_date < $2`,
		Parameters:  windowParams,
	},
	{
		ID:          "revenue",
		Name:        "Revenue",
		Description: "Sum of discharge bill totals in the period",
		SQL:         `SELECT COALESCE(SUM(total_bill), 0)::TEXT AS total FROM discharge_summaries WHERE discharge_date >= $1 AND discharge_date < $2`,
		Parameters:  windowParams,
	},
	{
		ID:          "average-stay",
		Name:        "Average Stay",
		Description: "Mean days between admission and discharge for discharges in the period",
		SQL: `SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (ds.discharge_date - p.admission_date)) / 86400), 0)::FLOAT8 AS days
			FROM discharge_summaries ds JOIN patients p ON p.id = ds.patient_id
			WHERE ds.discharge_date >= $1 AND ds.discharge_date < $2`,
		Parameters: windowParams,
	},
	{
		ID:          "pending-payments",
		Name:        "Pending Payments",
		Description: "Outstanding balance across all discharge bills",
		SQL: `SELECT COALESCE(SUM(GREATEST(ds.total_bill - COALESCE(pay.paid, 0), 0)), 0)::TEXT AS total
			FROM discharge_summaries ds
			LEFT JOIN (SELECT discharge_summary_id, SUM(amount) AS paid FROM payments GROUP BY discharge_summary_id) pay
				ON pay.discharge_summary_id = ds.id`,
		Parameters: []string{},
	},
	{
		ID:          "beds-by-status",
		Name:        "Beds by Status",
		Description: "Current bed count per status",
		SQL:         `SELECT status, COUNT(*) AS total FROM beds GROUP BY status ORDER BY status`,
		Parameters:  []string{},
	},
	{
		ID:          "opd-by-status",
		Name:        "OPD Visits by Status",
		Description: "Outpatient visits registered in the period per status",
		SQL:         `SELECT status, COUNT(*) AS total FROM opd_visits WHERE created_at >= $1 AND created_at < $2 GROUP BY status ORDER BY status`,
		Parameters:  windowParams,
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// Figures are the raw period aggregates read from the database.
type Figures struct {
	Admissions      int
	Discharges      int
	Revenue         decimal.Decimal
	AverageStayDays float64
	PendingPayments decimal.Decimal
	Beds            map[string]int
	OPD             map[string]int
}

// Snapshot is the dashboard payload for one period.
type Snapshot struct {
	Period          string          `json:"period"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Admissions      int             `json:"admissions"`
	Discharges      int             `json:"discharges"`
	Revenue         decimal.Decimal `json:"revenue"`
	OccupancyRate   float64         `json:"occupancy_rate"`
	AverageStayDays float64         `json:"average_stay_days"`
	PendingPayments decimal.Decimal `json:"pending_payments"`
	TotalBeds       int             `json:"total_beds"`
	Beds            map[string]int  `json:"beds"`
	OPD             map[string]int  `json:"opd"`
}

// Source reads aggregates from storage.
type Source interface {
	Figures(ctx context.Context, from, to time.Time) (*Figures, error)
	Evaluate(ctx context.Context, m *MeasureDefinition, args ...interface{}) ([]map[string]interface{}, error)
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// newSnapshot derives the presentation figures. Occupancy is the share of
// all beds holding a patient, in percent.
func newSnapshot(period string, from, to, now time.Time, f *Figures) *Snapshot {
	s := &Snapshot{
		Period:          period,
		From:            from,
		To:              to,
		GeneratedAt:     now,
		Admissions:      f.Admissions,
		Discharges:      f.Discharges,
		Revenue:         f.Revenue,
		AverageStayDays: round1(f.AverageStayDays),
		PendingPayments: f.PendingPayments,
		Beds:            map[string]int{},
		OPD:             map[string]int{},
	}
	for status, n := range f.Beds {
		s.Beds[status] = n
		s.TotalBeds += n
	}
	for status, n := range f.OPD {
		s.OPD[status] = n
	}
	if s.TotalBeds > 0 {
		s.OccupancyRate = round1(float64(f.Beds["patient_admitted"]) * 100 / float64(s.TotalBeds))
	}
	return s
}

// Service serves dashboard snapshots, consulting Redis first when a client
// is configured.
type Service struct {
	source Source
	rdb    redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

func NewService(source Source, rdb redis.Cmdable, ttl time.Duration) *Service {
	return &Service{source: source, rdb: rdb, ttl: ttl, now: time.Now}
}

func cacheKey(period string, from time.Time) string {
	return fmt.Sprintf("wardops:report:%s:%s", period, from.Format("2006-01-02"))
}

// Summary returns the snapshot for period. Redis errors are logged and
// the figures are read from the database instead.
func (s *Service) Summary(ctx context.Context, period string) (*Snapshot, error) {
	if period == "" {
		period = PeriodMonth
	}
	now := s.now()
	from, to, err := Window(period, now)
	if err != nil {
		return nil, err
	}
	key := cacheKey(period, from)
	log := zerolog.Ctx(ctx)

	if s.rdb != nil && s.ttl > 0 {
		raw, err := s.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			var snap Snapshot
			if jerr := json.Unmarshal([]byte(raw), &snap); jerr == nil {
				return &snap, nil
			}
			log.Warn().Str("key", key).Msg("discarding unreadable report snapshot")
		case !errors.Is(err, redis.Nil):
			log.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		}
	}

	figures, err := s.source.Figures(ctx, from, to)
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(period, from, to, now, figures)

	if s.rdb != nil && s.ttl > 0 {
		data, err := json.Marshal(snap)
		if err == nil {
			err = s.rdb.Set(ctx, key, string(data), s.ttl).Err()
		}
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("report cache write failed")
		}
	}
	return snap, nil
}

// Evaluate runs one predefined measure, windowed by period when the
// measure takes parameters.
func (s *Service) Evaluate(ctx context.Context, id, period string) (*MeasureReport, error) {
	m := FindMeasure(id)
	if m == nil {
		return nil, apperr.NotFound("measure", id)
	}
	now := s.now()
	report := &MeasureReport{MeasureID: m.ID, MeasureName: m.Name, GeneratedAt: now}

	var args []interface{}
	if len(m.Parameters) > 0 {
		if period == "" {
			period = PeriodMonth
		}
		from, to, err := Window(period, now)
		if err != nil {
			return nil, err
		}
		args = []interface{}{from, to}
		report.Period, report.From, report.To = period, &from, &to
	}

	results, err := s.source.Evaluate(ctx, m, args...)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []map[string]interface{}{}
	}
	report.Results = results
	return report, nil
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports")
	g.GET("/summary", h.Summary)
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// Summary returns the dashboard snapshot for ?period= (default month).
func (h *Handler) Summary(c echo.Context) error {
	snap, err := h.svc.Summary(c.Request().Context(), c.QueryParam("period"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

func (h *Handler) EvaluateMeasure(c echo.Context) error {
	report, err := h.svc.Evaluate(c.Request().Context(), c.Param("id"), c.QueryParam("period"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, report)
}

// =========== Postgres source ===========

type pgSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) Source {
	return &pgSource{pool: pool}
}

func (p *pgSource) scalar(ctx context.Context, id string, dest interface{}, args ...interface{}) error {
	m := FindMeasure(id)
	if err := p.pool.QueryRow(ctx, m.SQL, args...).Scan(dest); err != nil {
		return apperr.Persistence("measure "+id, err)
	}
	return nil
}

func (p *pgSource) counts(ctx context.Context, id string, args ...interface{}) (map[string]int, error) {
	rows, err := p.pool.Query(ctx, FindMeasure(id).SQL, args...)
	if err != nil {
		return nil, apperr.Persistence("measure "+id, err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperr.Persistence("scan measure "+id, err)
		}
		out[status] = n
	}
	return out, apperr.Persistence("iterate measure "+id, rows.Err())
}

func (p *pgSource) Figures(ctx context.Context, from, to time.Time) (*Figures, error) {
	f := &Figures{}
	var revenue, pending string
	if err := p.scalar(ctx, "admissions", &f.Admissions, from, to); err != nil {
		return nil, err
	}
	if err := p.scalar(ctx, "discharges", &f.Discharges, from, to); err != nil {
		return nil, err
	}
	if err := p.scalar(ctx, "revenue", &revenue, from, to); err != nil {
		return nil, err
	}
	if err := p.scalar(ctx, "average-stay", &f.AverageStayDays, from, to); err != nil {
		return nil, err
	}
	if err := p.scalar(ctx, "pending-payments", &pending); err != nil {
		return nil, err
	}
	var err error
	if f.Revenue, err = decimal.NewFromString(revenue); err != nil {
		return nil, apperr.Persistence("parse revenue", err)
	}
	if f.PendingPayments, err = decimal.NewFromString(pending); err != nil {
		return nil, apperr.Persistence("parse pending payments", err)
	}
	if f.Beds, err = p.counts(ctx, "beds-by-status"); err != nil {
		return nil, err
	}
	if f.OPD, err = p.counts(ctx, "opd-by-status", from, to); err != nil {
		return nil, err
	}
	return f, nil
}

// Evaluate runs a measure's SQL and returns rows as column-keyed maps.
func (p *pgSource) Evaluate(ctx context.Context, m *MeasureDefinition, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := p.pool.Query(ctx, m.SQL, args...)
	if err != nil {
		return nil, apperr.Persistence("evaluate "+m.ID, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, apperr.Persistence("evaluate "+m.ID, err)
		}
		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, apperr.Persistence("evaluate "+m.ID, rows.Err())
}
