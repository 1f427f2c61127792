package opd

import (
	"time"

	"github.com/google/uuid"
)

// Visit statuses.
const (
	StatusWaiting        = "waiting"
	StatusInConsultation = "in_consultation"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

// transitions lists the statuses reachable from each status.
var transitions = map[string][]string{
	StatusWaiting:        {StatusInConsultation, StatusCancelled},
	StatusInConsultation: {StatusCompleted, StatusCancelled},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// Column widths of opd_visits.
const (
	maxNameLen  = 255
	maxShortLen = 32
)

// Visit maps to the opd_visits table.
type Visit struct {
	ID              uuid.UUID `db:"id" json:"id"`
	QueueNumber     int       `db:"queue_number" json:"queue_number"`
	Name            string    `db:"name" json:"name"`
	Age             int       `db:"age" json:"age"`
	Contact         string    `db:"contact" json:"contact"`
	Issue           string    `db:"issue" json:"issue"`
	Doctor          string    `db:"doctor" json:"doctor"`
	AppointmentTime string    `db:"appointment_time" json:"appointment_time,omitempty"`
	Status          string    `db:"status" json:"status"`
	Notes           string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ListFilter narrows List. Empty fields mean no constraint.
type ListFilter struct {
	Status  string
	Keyword string
}

// QueueStats counts visits per status.
type QueueStats struct {
	Total          int `json:"total"`
	Waiting        int `json:"waiting"`
	InConsultation int `json:"in_consultation"`
	Completed      int `json:"completed"`
	Cancelled      int `json:"cancelled"`
}

// Add counts n visits in status.
func (s *QueueStats) Add(status string, n int) {
	switch status {
	case StatusWaiting:
		s.Waiting += n
	case StatusInConsultation:
		s.InConsultation += n
	case StatusCompleted:
		s.Completed += n
	case StatusCancelled:
		s.Cancelled += n
	}
	s.Total += n
}

func validStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

// canTransition reports whether a visit may move from one status to another.
func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
