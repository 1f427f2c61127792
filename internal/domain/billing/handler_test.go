package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_AddExpense(t *testing.T) {
	h, f, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"description":"Blood Test","amount":"500.00","expense_date":"2024-05-01"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patientID.String())

	if err := h.AddExpense(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got Expense
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Amount.Equal(dec("500")) || got.ExpenseDate.Day() != 1 {
		t.Errorf("unexpected expense %+v", got)
	}
}

func TestHandler_AddExpense_NumericAmount(t *testing.T) {
	h, f, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"description":"ECG","amount":100}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patientID.String())

	if err := h.AddExpense(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_AddExpense_Negative(t *testing.T) {
	h, f, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"description":"Refund","amount":"-5"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.patientID.String())

	if code := httpCode(t, h.AddExpense(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_AddExpense_BadDate(t *testing.T) {
	h, f, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"description":"ECG","amount":"1","expense_date":"01/05/2024"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.patientID.String())

	if code := httpCode(t, h.AddExpense(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_AddExpense_UnknownPatient(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"description":"ECG","amount":"1"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if code := httpCode(t, h.AddExpense(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if code := httpCode(t, h.ListExpenses(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_Total(t *testing.T) {
	h, f, e := newTestHandler()
	f.svc.AddExpense(context.Background(), f.patientID, "Blood Test", dec("500"), f.svc.now())
	f.svc.AddExpense(context.Background(), f.patientID, "Consultation Fee", dec("600"), f.svc.now())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patientID.String())

	if err := h.Total(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":"1100"`) {
		t.Errorf("expected total 1100 in %s", rec.Body.String())
	}
}

func TestHandler_ListExpenses(t *testing.T) {
	h, f, e := newTestHandler()
	f.svc.AddExpense(context.Background(), f.patientID, "X-Ray", dec("150"), f.svc.now())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.patientID.String())

	if err := h.ListExpenses(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Expense
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Description != "X-Ray" {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestHandler_Catalog(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := h.Catalog(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"Surgery Fee"`) {
		t.Errorf("expected catalogue in body, got %s", rec.Body.String())
	}
}

func TestHandler_RecordPaymentAndSettlement(t *testing.T) {
	h, f, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"amount":"100","method":"card","reference":"POS-1"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.summaryID.String())
	if err := h.RecordPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(f.summaryID.String())
	if err := h.Settlement(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st Settlement
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != "partial" || !st.Paid.Equal(dec("100")) {
		t.Errorf("unexpected settlement %+v", st)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/patients/:id/expenses":      false,
		"GET /api/v1/patients/:id/expenses/total": false,
		"POST /api/v1/discharges/:id/payments":    false,
		"GET /api/v1/discharges/:id/settlement":   false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("route %s not registered", k)
		}
	}
}
