package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/internal/platform/apperr"
)

type stubSource struct {
	figures   *Figures
	err       error
	calls     int
	evaluated []interface{}
}

func (s *stubSource) Figures(_ context.Context, _, _ time.Time) (*Figures, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.figures, nil
}

func (s *stubSource) Evaluate(_ context.Context, m *MeasureDefinition, args ...interface{}) ([]map[string]interface{}, error) {
	s.evaluated = args
	return []map[string]interface{}{{"total": 3}}, nil
}

func sampleFigures() *Figures {
	return &Figures{
		Admissions:      12,
		Discharges:      9,
		Revenue:         decimal.RequireFromString("98500.50"),
		AverageStayDays: 4.26,
		PendingPayments: decimal.RequireFromString("12000"),
		Beds:            map[string]int{"vacant": 4, "patient_admitted": 7, "under_maintenance": 1},
		OPD:             map[string]int{"waiting": 3, "completed": 10},
	}
}

var fixedNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC) // a Wednesday

func TestWindow(t *testing.T) {
	tests := []struct {
		period string
		want   time.Time
	}{
		{PeriodWeek, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)},
		{PeriodMonth, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodQuarter, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{PeriodYear, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			from, to, err := Window(tt.period, fixedNow)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !from.Equal(tt.want) || !to.Equal(fixedNow) {
				t.Errorf("got [%v, %v], want from %v", from, to, tt.want)
			}
		})
	}
}

func TestWindow_SundayBelongsToPreviousWeek(t *testing.T) {
	sunday := time.Date(2024, 5, 19, 8, 0, 0, 0, time.UTC)
	from, _, _ := Window(PeriodWeek, sunday)
	if want := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Errorf("expected %v, got %v", want, from)
	}
}

func TestWindow_Invalid(t *testing.T) {
	if _, _, err := Window("decade", fixedNow); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewSnapshot(t *testing.T) {
	snap := newSnapshot(PeriodMonth, fixedNow, fixedNow, fixedNow, sampleFigures())
	if snap.TotalBeds != 12 {
		t.Errorf("expected 12 beds, got %d", snap.TotalBeds)
	}
	if snap.OccupancyRate != 58.3 {
		t.Errorf("expected occupancy 58.3, got %v", snap.OccupancyRate)
	}
	if snap.AverageStayDays != 4.3 {
		t.Errorf("expected average stay 4.3, got %v", snap.AverageStayDays)
	}
}

func TestNewSnapshot_NoBeds(t *testing.T) {
	snap := newSnapshot(PeriodWeek, fixedNow, fixedNow, fixedNow, &Figures{})
	if snap.OccupancyRate != 0 || snap.Beds == nil || snap.OPD == nil {
		t.Errorf("unexpected empty snapshot %+v", snap)
	}
}

func newTestService(src Source) (*Service, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	svc := NewService(src, db, 30*time.Second)
	svc.now = func() time.Time { return fixedNow }
	return svc, mock
}

func TestService_Summary_CacheMiss(t *testing.T) {
	src := &stubSource{figures: sampleFigures()}
	svc, mock := newTestService(src)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	key := "wardops:report:month:2024-05-01"
	want, _ := json.Marshal(newSnapshot(PeriodMonth, from, fixedNow, fixedNow, sampleFigures()))

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, string(want), 30*time.Second).SetVal("OK")

	snap, err := svc.Summary(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Period != PeriodMonth || snap.Admissions != 12 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if src.calls != 1 {
		t.Errorf("expected one database read, got %d", src.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestService_Summary_CacheHit(t *testing.T) {
	src := &stubSource{figures: sampleFigures()}
	svc, mock := newTestService(src)

	cached := newSnapshot(PeriodWeek, fixedNow, fixedNow, fixedNow, sampleFigures())
	cached.Admissions = 99
	data, _ := json.Marshal(cached)
	mock.ExpectGet("wardops:report:week:2024-05-13").SetVal(string(data))

	snap, err := svc.Summary(context.Background(), PeriodWeek)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Admissions != 99 {
		t.Errorf("expected cached snapshot, got %+v", snap)
	}
	if src.calls != 0 {
		t.Errorf("expected no database read, got %d", src.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestService_Summary_RedisDown(t *testing.T) {
	src := &stubSource{figures: sampleFigures()}
	svc, mock := newTestService(src)
	mock.ExpectGet("wardops:report:year:2024-01-01").SetErr(errors.New("connection refused"))

	snap, err := svc.Summary(context.Background(), PeriodYear)
	if err != nil {
		t.Fatalf("expected fallback to database, got %v", err)
	}
	if snap.Discharges != 9 || src.calls != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestService_Summary_NoCache(t *testing.T) {
	src := &stubSource{figures: sampleFigures()}
	svc := NewService(src, nil, 0)
	svc.now = func() time.Time { return fixedNow }

	if _, err := svc.Summary(context.Background(), PeriodQuarter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Summary(context.Background(), PeriodQuarter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("expected every call to hit the database, got %d", src.calls)
	}
}

func TestService_Summary_SourceError(t *testing.T) {
	src := &stubSource{err: apperr.Persistence("measure admissions", errors.New("boom"))}
	svc := NewService(src, nil, 0)
	if _, err := svc.Summary(context.Background(), PeriodMonth); !errors.Is(err, apperr.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestService_Evaluate(t *testing.T) {
	src := &stubSource{}
	svc := NewService(src, nil, 0)
	svc.now = func() time.Time { return fixedNow }

	report, err := svc.Evaluate(context.Background(), "admissions", PeriodWeek)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Period != PeriodWeek || len(src.evaluated) != 2 || len(report.Results) != 1 {
		t.Errorf("unexpected report %+v", report)
	}

	report, err = svc.Evaluate(context.Background(), "beds-by-status", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.From != nil || len(src.evaluated) != 0 {
		t.Errorf("expected unwindowed measure, got %+v", report)
	}

	if _, err := svc.Evaluate(context.Background(), "nonexistent", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPredefinedMeasures(t *testing.T) {
	expectedIDs := []string{
		"admissions",
		"discharges",
		"revenue",
		"average-stay",
		"pending-payments",
		"beds-by-status",
		"opd-by-status",
	}
	if len(PredefinedMeasures) != len(expectedIDs) {
		t.Fatalf("expected %d predefined measures, got %d", len(expectedIDs), len(PredefinedMeasures))
	}
	for i, id := range expectedIDs {
		m := PredefinedMeasures[i]
		if m.ID != id {
			t.Errorf("expected measure[%d].ID = %s, got %s", i, id, m.ID)
		}
		if m.SQL == "" || m.Name == "" || m.Description == "" {
			t.Errorf("measure %s is incomplete", m.ID)
		}
		if len(m.Parameters) > 0 && !strings.Contains(m.SQL, "$2") {
			t.Errorf("windowed measure %s does not use $2", m.ID)
		}
	}
}

func TestHandler_Summary(t *testing.T) {
	svc := NewService(&stubSource{figures: sampleFigures()}, nil, 0)
	svc.now = func() time.Time { return fixedNow }
	h := NewHandler(svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?period=week", nil), rec)
	if err := h.Summary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"occupancy_rate":58.3`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?period=fortnight", nil), httptest.NewRecorder())
	err := h.Summary(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
