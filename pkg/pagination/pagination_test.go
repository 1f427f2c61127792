package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=10&offset=30", 10, 30},
		{"limit=500", MaxLimit, 0},
		{"limit=-3&offset=-9", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/discharges?"+tt.query, nil), httptest.NewRecorder())
			p := FromContext(c)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got %d/%d, want %d/%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	tests := []struct {
		total, limit, offset int
		want                 bool
	}{
		{45, 20, 0, true},
		{45, 20, 20, true},
		{45, 20, 40, false},
		{40, 20, 20, false},
		{0, 20, 0, false},
	}
	for _, tt := range tests {
		if got := NewResponse(nil, tt.total, tt.limit, tt.offset).HasMore; got != tt.want {
			t.Errorf("total=%d limit=%d offset=%d: HasMore=%v, want %v", tt.total, tt.limit, tt.offset, got, tt.want)
		}
	}
}

func TestPreviousOffset_NeverNegative(t *testing.T) {
	if got := (Params{Limit: 20, Offset: 5}).PreviousOffset(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := (Params{Limit: 20, Offset: 50}).PreviousOffset(); got != 30 {
		t.Errorf("expected 30, got %d", got)
	}
}

func TestWithLinks(t *testing.T) {
	u, _ := url.Parse("/api/v1/discharges?q=sharma&limit=20&offset=20")

	r := NewResponse([]string{}, 45, 20, 20).WithLinks(u)
	if r.Links == nil {
		t.Fatal("expected links")
	}
	want := map[string]string{
		"self":     "/api/v1/discharges?limit=20&offset=20&q=sharma",
		"next":     "/api/v1/discharges?limit=20&offset=40&q=sharma",
		"previous": "/api/v1/discharges?limit=20&offset=0&q=sharma",
	}
	got := map[string]string{"self": r.Links.Self, "next": r.Links.Next, "previous": r.Links.Previous}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestWithLinks_SinglePage(t *testing.T) {
	u, _ := url.Parse("/api/v1/discharges")
	r := NewResponse([]string{}, 3, 20, 0).WithLinks(u)
	if r.Links.Next != "" || r.Links.Previous != "" {
		t.Errorf("expected no neighbours, got %+v", r.Links)
	}
}
