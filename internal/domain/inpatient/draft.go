package inpatient

import (
	"strings"
	"text/template"
	"time"
)

var draftTmpl = template.Must(template.New("draft").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.Format("02/01/2006") },
	"lower": strings.ToLower,
}).Parse(`DISCHARGE SUMMARY

Patient Name: {{.P.Name}}
Date of Birth: {{date .P.DateOfBirth}}
Blood Group: {{.P.BloodGroup}}
Admission Date: {{date .P.AdmissionDate}}
Discharge Date: {{date .Now}}

DIAGNOSIS:
{{.P.Issue}}

TREATMENT PROVIDED:
The patient was admitted with {{lower .P.Issue}} and received comprehensive medical care under the supervision of {{.P.Doctor}}.

MEDICATIONS PRESCRIBED:
{{if .P.Medicines}}{{.P.Medicines}}{{else}}No specific medications prescribed{{end}}

RECOVERY STATUS:
Patient showed {{.P.RecoveryRate}}% recovery during the treatment period.

DISCHARGE INSTRUCTIONS:
1. Continue prescribed medications as directed
2. Follow up with {{.P.Doctor}} in 1-2 weeks
3. Rest and avoid strenuous activities
4. Contact hospital immediately if symptoms worsen

FOLLOW-UP CARE:
Regular monitoring recommended. Next appointment scheduled as per doctor's advice.

Attending Physician: {{.P.Doctor}}
Discharge Date: {{date .Now}}
`))

func renderDraft(p *Patient, now time.Time) (string, error) {
	var b strings.Builder
	err := draftTmpl.Execute(&b, struct {
		P   *Patient
		Now time.Time
	}{p, now})
	return b.String(), err
}
