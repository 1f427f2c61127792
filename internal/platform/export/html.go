package export

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/pkg/money"
)

var billTemplate = template.Must(template.New("bill").Funcs(template.FuncMap{
	"rupees": func(d decimal.Decimal) string { return money.Rupees(d) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Discharge Summary &amp; Bill - {{.PatientName}}</title>
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; }
.header { text-align: center; border-bottom: 3px solid #164e63; padding-bottom: 20px; margin-bottom: 30px; }
.hospital-name { font-size: 32px; font-weight: bold; color: #164e63; }
.summary-text { white-space: pre-line; border: 2px solid #e2e8f0; padding: 20px; }
table { width: 100%; border-collapse: collapse; }
th, td { border-bottom: 1px solid #e2e8f0; padding: 8px; text-align: left; }
td.amount, th.amount { text-align: right; }
tr.total td { font-weight: bold; border-top: 2px solid #164e63; }
@media print { body { padding: 0; } }
</style>
</head>
<body>
<div class="header">
  <div class="hospital-name">{{.Hospital}}</div>
  <div class="document-title">Discharge Summary &amp; Bill</div>
  {{if .SummaryID}}<div class="bill-number">Bill No: {{.SummaryID}}</div>{{end}}
</div>
<div class="patient-info">
  <p><strong>Patient:</strong> {{.PatientName}}</p>
  {{if .BloodGroup}}<p><strong>Blood Group:</strong> {{.BloodGroup}}</p>{{end}}
  {{if .Phone}}<p><strong>Phone:</strong> {{.Phone}}</p>{{end}}
  <p><strong>Bed:</strong> #{{.BedNumber}}</p>
  {{if .Doctor}}<p><strong>Attending Physician:</strong> {{.Doctor}}</p>{{end}}
  {{if .Issue}}<p><strong>Diagnosis:</strong> {{.Issue}}</p>{{end}}
  {{if not .AdmissionDate.IsZero}}<p><strong>Admitted:</strong> {{.AdmissionDate.Format "02/01/2006"}}</p>{{end}}
  <p><strong>Discharged:</strong> {{.DischargeDate.Format "02/01/2006"}}</p>
</div>
<div class="section">
  <h2>Discharge Summary</h2>
  <div class="summary-text">{{.SummaryText}}</div>
</div>
<div class="section">
  <h2>Billing Details</h2>
  <table>
    <tr><th>Date</th><th>Description</th><th class="amount">Amount</th></tr>
    {{range .Lines}}<tr><td>{{.Date.Format "02/01/2006"}}</td><td>{{.Description}}</td><td class="amount">{{rupees .Amount}}</td></tr>
    {{end}}<tr class="total"><td></td><td>TOTAL AMOUNT</td><td class="amount">{{rupees .Total}}</td></tr>
  </table>
</div>
</body>
</html>
`))

// HTML renders the printable bill. All patient-supplied text is escaped.
func HTML(b *Bill) ([]byte, error) {
	view := *b
	if view.Hospital == "" {
		view.Hospital = DefaultHospital
	}
	var buf bytes.Buffer
	if err := billTemplate.Execute(&buf, &view); err != nil {
		return nil, fmt.Errorf("render html bill: %w", err)
	}
	return buf.Bytes(), nil
}

// DefaultHospital heads documents when no hospital name is configured.
const DefaultHospital = "City General Hospital"
