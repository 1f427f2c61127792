package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment methods accepted at the billing desk.
const (
	MethodCash      = "cash"
	MethodCard      = "card"
	MethodUPI       = "upi"
	MethodInsurance = "insurance"
	MethodOther     = "other"
)

// maxReferenceLen matches payments.reference.
const maxReferenceLen = 255

var validMethods = map[string]bool{
	MethodCash: true, MethodCard: true, MethodUPI: true, MethodInsurance: true, MethodOther: true,
}

// Expense maps to the expenses table. Entries are never updated or deleted.
type Expense struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Seq         int64           `db:"seq" json:"-"`
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	Description string          `db:"description" json:"description"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	ExpenseDate time.Time       `db:"expense_date" json:"expense_date"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Payment maps to the payments table. Append-only.
type Payment struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	DischargeSummaryID uuid.UUID       `db:"discharge_summary_id" json:"discharge_summary_id"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	Method             string          `db:"method" json:"method"`
	Reference          string          `db:"reference" json:"reference,omitempty"`
	PaidAt             time.Time       `db:"paid_at" json:"paid_at"`
}

// Statement is a patient's expense list with its running total.
type Statement struct {
	PatientID uuid.UUID       `json:"patient_id"`
	Expenses  []*Expense      `json:"expenses"`
	Total     decimal.Decimal `json:"total"`
}

// Settlement is the derived payment position of a discharge bill.
type Settlement struct {
	DischargeSummaryID uuid.UUID       `json:"discharge_summary_id"`
	Total              decimal.Decimal `json:"total"`
	Paid               decimal.Decimal `json:"paid"`
	Balance            decimal.Decimal `json:"balance"`
	Status             string          `json:"status"`
	Payments           []*Payment      `json:"payments"`
}

// CatalogItem is a quick-pick entry of the add-expense form.
type CatalogItem struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

var commonExpenses = []CatalogItem{
	{"X-Ray", decimal.NewFromInt(150)},
	{"CT Scan", decimal.NewFromInt(500)},
	{"MRI Scan", decimal.NewFromInt(800)},
	{"Blood Test", decimal.NewFromInt(75)},
	{"Ultrasound", decimal.NewFromInt(200)},
	{"ECG", decimal.NewFromInt(100)},
	{"Drug Injection", decimal.NewFromInt(50)},
	{"Dressing", decimal.NewFromInt(25)},
	{"Consultation Fee", decimal.NewFromInt(100)},
	{"Surgery Fee", decimal.NewFromInt(2500)},
	{"Room Charges", decimal.NewFromInt(200)},
	{"Nursing Care", decimal.NewFromInt(150)},
}
