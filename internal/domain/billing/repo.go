package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ExpenseRepository interface {
	Create(ctx context.Context, e *Expense) error
	// ListByPatient orders by expense date, then insertion order.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Expense, error)
	SumByPatient(ctx context.Context, patientID uuid.UUID) (decimal.Decimal, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	// LockSummary serialises payments against one discharge bill for the
	// rest of the transaction.
	LockSummary(ctx context.Context, summaryID uuid.UUID) error
	ListBySummary(ctx context.Context, summaryID uuid.UUID) ([]*Payment, error)
	SumBySummary(ctx context.Context, summaryID uuid.UUID) (decimal.Decimal, error)
	// Outstanding sums the unpaid balance of every discharge bill.
	Outstanding(ctx context.Context) (decimal.Decimal, error)
}

// PatientLookup is satisfied by the inpatient patient repository.
type PatientLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// SummaryLookup is satisfied by the inpatient discharge summaries.
type SummaryLookup interface {
	BillTotal(ctx context.Context, summaryID uuid.UUID) (decimal.Decimal, error)
}
