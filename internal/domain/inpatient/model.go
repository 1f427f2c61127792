package inpatient

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bed statuses.
const (
	BedVacant           = "vacant"
	BedUnderMaintenance = "under_maintenance"
	BedPatientAdmitted  = "patient_admitted"
)

// DefaultStay is added to the admission date when no expected discharge
// date is supplied.
const DefaultStay = 7 * 24 * time.Hour

// Column widths of the beds and patients tables.
const (
	maxNameLen  = 255
	maxPhoneLen = 32
	maxWardLen  = 100
)

var validBloodGroups = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

// Bed maps to the beds table.
type Bed struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BedNumber int       `db:"bed_number" json:"bed_number"`
	Ward      string    `db:"ward" json:"ward,omitempty"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patients table. BedID is set while the patient is
// admitted and cleared exactly once, at discharge.
type Patient struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	Name                  string     `db:"name" json:"name"`
	DateOfBirth           time.Time  `db:"date_of_birth" json:"date_of_birth"`
	BloodGroup            string     `db:"blood_group" json:"blood_group"`
	Phone                 string     `db:"phone" json:"phone"`
	Address               string     `db:"address" json:"address,omitempty"`
	EmergencyContactName  string     `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string     `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	Issue                 string     `db:"issue" json:"issue"`
	RecoveryRate          int        `db:"recovery_rate" json:"recovery_rate"`
	ExpectedDischargeDate *time.Time `db:"expected_discharge_date" json:"expected_discharge_date,omitempty"`
	Doctor                string     `db:"doctor" json:"doctor"`
	Medicines             string     `db:"medicines" json:"medicines,omitempty"`
	CaretakerName         string     `db:"caretaker_name" json:"caretaker_name,omitempty"`
	CaretakerContact      string     `db:"caretaker_contact" json:"caretaker_contact,omitempty"`
	AdmissionDate         time.Time  `db:"admission_date" json:"admission_date"`
	BedID                 *uuid.UUID `db:"bed_id" json:"bed_id,omitempty"`
	DischargedAt          *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Admitted reports whether the patient currently occupies a bed.
func (p *Patient) Admitted() bool { return p.BedID != nil }

// DischargeSummary maps to the discharge_summaries table. Written once per
// patient and never updated.
type DischargeSummary struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	BedID         *uuid.UUID      `db:"bed_id" json:"bed_id,omitempty"`
	BedNumber     int             `db:"bed_number" json:"bed_number"`
	SummaryText   string          `db:"summary_text" json:"summary_text"`
	TotalBill     decimal.Decimal `db:"total_bill" json:"total_bill"`
	DischargeDate time.Time       `db:"discharge_date" json:"discharge_date"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// BedOccupancy is one row of the bed board.
type BedOccupancy struct {
	Bed     *Bed     `json:"bed"`
	Patient *Patient `json:"patient"`
}

// DischargedPatient is one row of the discharged-patients view.
type DischargedPatient struct {
	Patient       *Patient          `json:"patient"`
	Summary       *DischargeSummary `json:"summary"`
	PaidAmount    decimal.Decimal   `json:"paid_amount"`
	PaymentStatus string            `json:"payment_status"`
}

// DischargedFilter narrows ListDischarged. Zero values mean no constraint.
type DischargedFilter struct {
	Keyword string
	From    time.Time
	To      time.Time // inclusive: the whole To day matches
}

// before is the exclusive upper bound of the discharge date range, the
// start of the day after To. Zero when To is unset.
func (f DischargedFilter) before() time.Time {
	if f.To.IsZero() {
		return time.Time{}
	}
	y, m, d := f.To.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, f.To.Location())
}

// Date is a calendar date in YYYY-MM-DD form on the wire.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		d.Time = time.Time{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// AdmissionRequest carries the intake form. Name, DateOfBirth, BloodGroup,
// Phone, Issue and Doctor are mandatory.
type AdmissionRequest struct {
	Name                  string `json:"name"`
	DateOfBirth           Date   `json:"date_of_birth"`
	BloodGroup            string `json:"blood_group"`
	Phone                 string `json:"phone"`
	Address               string `json:"address,omitempty"`
	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`
	Issue                 string `json:"issue"`
	Doctor                string `json:"doctor"`
	Medicines             string `json:"medicines,omitempty"`
	CaretakerName         string `json:"caretaker_name,omitempty"`
	CaretakerContact      string `json:"caretaker_contact,omitempty"`
	RecoveryRate          *int   `json:"recovery_rate,omitempty"`
	ExpectedDischargeDate Date   `json:"expected_discharge_date"`
}

// CareUpdate changes the clinical progress of an admitted patient. Nil
// fields are left unchanged.
type CareUpdate struct {
	RecoveryRate          *int    `json:"recovery_rate,omitempty"`
	ExpectedDischargeDate *Date   `json:"expected_discharge_date,omitempty"`
	Doctor                *string `json:"doctor,omitempty"`
	Medicines             *string `json:"medicines,omitempty"`
	CaretakerName         *string `json:"caretaker_name,omitempty"`
	CaretakerContact      *string `json:"caretaker_contact,omitempty"`
}
