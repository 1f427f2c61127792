package opd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardops/wardops/internal/platform/apperr"
	"github.com/wardops/wardops/internal/platform/db"
	"github.com/wardops/wardops/internal/platform/websocket"
)

type Service struct {
	visits VisitRepository
	tx     db.Transactor
	events websocket.EventPublisher
}

func NewService(visits VisitRepository, tx db.Transactor) *Service {
	return &Service{visits: visits, tx: tx}
}

// SetEventPublisher attaches a publisher notified after each queue change.
func (s *Service) SetEventPublisher(p websocket.EventPublisher) {
	s.events = p
}

func (s *Service) publish(ctx context.Context, eventType string, v *Visit) {
	if s.events == nil {
		return
	}
	evt := websocket.NewEvent(websocket.TopicOPD, eventType, "Visit", v.ID.String(), v)
	if err := s.events.Publish(ctx, evt); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", eventType).Msg("publish event failed")
	}
}

func validateVisit(v *Visit) error {
	v.Name = strings.TrimSpace(v.Name)
	v.Contact = strings.TrimSpace(v.Contact)
	v.Issue = strings.TrimSpace(v.Issue)
	v.Doctor = strings.TrimSpace(v.Doctor)
	v.AppointmentTime = strings.TrimSpace(v.AppointmentTime)

	var fields []string
	if v.Name == "" {
		fields = append(fields, "name is required")
	}
	if v.Age < 0 || v.Age > 150 {
		fields = append(fields, "age must be between 0 and 150")
	}
	if v.Contact == "" {
		fields = append(fields, "contact is required")
	}
	if v.Issue == "" {
		fields = append(fields, "issue is required")
	}
	if v.Doctor == "" {
		fields = append(fields, "doctor is required")
	}
	fields = apperr.MaxLength(fields, "name", v.Name, maxNameLen)
	fields = apperr.MaxLength(fields, "contact", v.Contact, maxShortLen)
	fields = apperr.MaxLength(fields, "doctor", v.Doctor, maxNameLen)
	fields = apperr.MaxLength(fields, "appointment_time", v.AppointmentTime, maxShortLen)
	return apperr.Validation(fields...)
}

// Enqueue adds a walk-in to the end of the queue in waiting status.
func (s *Service) Enqueue(ctx context.Context, v *Visit) error {
	if err := validateVisit(v); err != nil {
		return err
	}
	v.Status = StatusWaiting
	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.visits.Create(ctx, v)
	}); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().
		Str("visit_id", v.ID.String()).
		Int("queue_number", v.QueueNumber).
		Msg("opd visit enqueued")
	s.publish(ctx, "opd.enqueued", v)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.visits.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Visit, error) {
	if f.Status == "all" {
		f.Status = ""
	}
	if f.Status != "" && !validStatus(f.Status) {
		return nil, apperr.Validation(fmt.Sprintf("status %q is not valid", f.Status))
	}
	items, err := s.visits.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Visit{}
	}
	return items, nil
}

// Update edits the visit details. Queue number and status are not editable
// here; status moves go through Transition.
func (s *Service) Update(ctx context.Context, v *Visit) error {
	if err := validateVisit(v); err != nil {
		return err
	}
	current, err := s.visits.GetByID(ctx, v.ID)
	if err != nil {
		return err
	}
	v.QueueNumber = current.QueueNumber
	v.Status = current.Status
	v.CreatedAt = current.CreatedAt
	if err := s.visits.Update(ctx, v); err != nil {
		return err
	}
	s.publish(ctx, "opd.updated", v)
	return nil
}

func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	if err := s.visits.Delete(ctx, id); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("visit_id", id.String()).Msg("opd visit removed")
	s.publish(ctx, "opd.removed", &Visit{ID: id})
	return nil
}

// Transition moves a visit along waiting -> in_consultation -> completed,
// with cancellation allowed from either open status.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to string) (*Visit, error) {
	if !validStatus(to) {
		return nil, apperr.Validation(fmt.Sprintf("status %q is not valid", to))
	}
	v, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(v.Status, to) {
		return nil, apperr.Conflict("cannot move visit from %s to %s", v.Status, to)
	}
	moved, err := s.visits.SetStatus(ctx, id, v.Status, to)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apperr.Conflict("visit %s changed status concurrently", id)
	}
	v.Status = to
	s.publish(ctx, "opd.status_changed", v)
	return v, nil
}

func (s *Service) Stats(ctx context.Context) (*QueueStats, error) {
	counts, err := s.visits.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	st := &QueueStats{}
	for status, n := range counts {
		st.Add(status, n)
	}
	return st, nil
}
