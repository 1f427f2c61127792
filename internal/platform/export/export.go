// Package export renders a discharge bill as a text download, a printable
// HTML page or an XLSX workbook.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/pkg/money"
)

// Formats accepted by Render.
const (
	FormatText = "text"
	FormatHTML = "html"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned by Render for a format it cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Line is one expense on the bill.
type Line struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// Bill is everything a rendered discharge document shows.
type Bill struct {
	SummaryID     string
	PatientName   string
	BloodGroup    string
	Phone         string
	Doctor        string
	Issue         string
	BedNumber     int
	AdmissionDate time.Time
	DischargeDate time.Time
	SummaryText   string
	Lines         []Line
	Total         decimal.Decimal
	Hospital      string
}

// Document is a rendered bill ready to be served as a download.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Render dispatches on format. An empty format means text.
func Render(format string, b *Bill) (*Document, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return &Document{
			Filename:    filename(b, "txt"),
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(Text(b)),
		}, nil
	case FormatHTML:
		body, err := HTML(b)
		if err != nil {
			return nil, err
		}
		return &Document{
			Filename:    filename(b, "html"),
			ContentType: "text/html; charset=utf-8",
			Body:        body,
		}, nil
	case FormatXLSX:
		body, err := XLSX(b)
		if err != nil {
			return nil, err
		}
		return &Document{
			Filename:    filename(b, "xlsx"),
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Body:        body,
		}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
}

// Text is the plain download: the summary narrative followed by the
// billing lines and the total.
func Text(b *Bill) string {
	var sb strings.Builder
	sb.WriteString(b.SummaryText)
	sb.WriteString("\n\nBILLING SUMMARY:\n")
	for _, l := range b.Lines {
		fmt.Fprintf(&sb, "%s: %s\n", l.Description, money.Rupees(l.Amount))
	}
	fmt.Fprintf(&sb, "\nTOTAL AMOUNT: %s", money.Rupees(b.Total))
	return sb.String()
}

func filename(b *Bill, ext string) string {
	name := strings.Join(strings.Fields(b.PatientName), "-")
	if name == "" {
		name = "patient"
	}
	return fmt.Sprintf("discharge-summary-%s-%s.%s", name, b.DischargeDate.Format("2006-01-02"), ext)
}
