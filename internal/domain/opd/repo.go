package opd

import (
	"context"

	"github.com/google/uuid"
)

type VisitRepository interface {
	// Create assigns the next queue number and inserts the visit.
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	List(ctx context.Context, f ListFilter) ([]*Visit, error)
	Update(ctx context.Context, v *Visit) error
	// SetStatus moves the visit to status only when it is still in from.
	SetStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CountByStatus(ctx context.Context) (map[string]int, error)
}
