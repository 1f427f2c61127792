package inpatient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bed, error)
	// List returns every bed ordered by bed number.
	List(ctx context.Context) ([]*Bed, error)
	ListByStatus(ctx context.Context, status string) ([]*Bed, error)
	// TransitionStatus moves the bed from one status to another only when it
	// is currently in from. It reports whether the row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// GetForUpdate locks the patient row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ListAdmitted(ctx context.Context) ([]*Patient, error)
	UpdateCare(ctx context.Context, p *Patient) error
	// Release clears bed_id and stamps discharged_at. It reports false when
	// the patient held no bed.
	Release(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListDischarged(ctx context.Context, f DischargedFilter, limit, offset int) ([]*DischargedPatient, int, error)
}

type SummaryRepository interface {
	Create(ctx context.Context, s *DischargeSummary) error
	GetByID(ctx context.Context, id uuid.UUID) (*DischargeSummary, error)
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*DischargeSummary, error)
	BillTotal(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)
}
