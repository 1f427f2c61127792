package inpatient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/internal/platform/apperr"
	"github.com/wardops/wardops/internal/platform/db"
	"github.com/wardops/wardops/internal/platform/websocket"
	"github.com/wardops/wardops/pkg/money"
)

// BillCalculator returns the running total of a patient's expenses.
type BillCalculator interface {
	TotalFor(ctx context.Context, patientID uuid.UUID) (decimal.Decimal, error)
}

// Document is an uploaded intake document.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Extractor turns an intake document into a prefilled admission form.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (*AdmissionRequest, error)
}

// ErrExtractionUnavailable is returned when no Extractor is configured.
var ErrExtractionUnavailable = errors.New("document extraction is not configured")

type Service struct {
	beds      BedRepository
	patients  PatientRepository
	summaries SummaryRepository
	tx        db.Transactor
	bills     BillCalculator
	extractor Extractor
	events    websocket.EventPublisher
	now       func() time.Time
}

func NewService(beds BedRepository, patients PatientRepository, summaries SummaryRepository, tx db.Transactor, bills BillCalculator) *Service {
	return &Service{
		beds:      beds,
		patients:  patients,
		summaries: summaries,
		tx:        tx,
		bills:     bills,
		now:       time.Now,
	}
}

// SetExtractor attaches the document extraction collaborator.
func (s *Service) SetExtractor(x Extractor) {
	s.extractor = x
}

// SetEventPublisher attaches a publisher notified after each committed change.
func (s *Service) SetEventPublisher(p websocket.EventPublisher) {
	s.events = p
}

func (s *Service) publish(ctx context.Context, eventType, resourceType string, id uuid.UUID, data any) {
	if s.events == nil {
		return
	}
	evt := websocket.NewEvent(websocket.TopicBeds, eventType, resourceType, id.String(), data)
	if err := s.events.Publish(ctx, evt); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", eventType).Msg("publish event failed")
	}
}

// -- Beds --

func (s *Service) CreateBed(ctx context.Context, bedNumber int, ward string) (*Bed, error) {
	var fields []string
	if bedNumber <= 0 {
		fields = append(fields, "bed_number must be a positive integer")
	}
	fields = apperr.MaxLength(fields, "ward", ward, maxWardLen)
	if err := apperr.Validation(fields...); err != nil {
		return nil, err
	}
	b := &Bed{BedNumber: bedNumber, Ward: strings.TrimSpace(ward), Status: BedVacant}
	if err := s.beds.Create(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, "bed.created", "Bed", b.ID, b)
	return b, nil
}

// SeedBeds creates beds 1..count in ward, skipping numbers that already
// exist. It returns how many were created.
func (s *Service) SeedBeds(ctx context.Context, count int, ward string) (int, error) {
	if count <= 0 {
		return 0, apperr.Validation("count must be a positive integer")
	}
	created := 0
	for n := 1; n <= count; n++ {
		_, err := s.CreateBed(ctx, n, ward)
		switch {
		case err == nil:
			created++
		case errors.Is(err, apperr.ErrConflict):
		default:
			return created, err
		}
	}
	zerolog.Ctx(ctx).Info().Int("created", created).Int("requested", count).Msg("beds seeded")
	return created, nil
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.beds.GetByID(ctx, id)
}

// ListVacantBeds feeds the admission form's bed picker.
func (s *Service) ListVacantBeds(ctx context.Context) ([]*Bed, error) {
	return s.beds.ListByStatus(ctx, BedVacant)
}

// ListBedsWithOccupants returns every bed ordered by bed number, paired
// with its admitted patient or nil.
func (s *Service) ListBedsWithOccupants(ctx context.Context) ([]BedOccupancy, error) {
	var (
		beds     []*Bed
		admitted []*Patient
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if beds, err = s.beds.List(ctx); err != nil {
			return err
		}
		admitted, err = s.patients.ListAdmitted(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	byBed := make(map[uuid.UUID]*Patient, len(admitted))
	for _, p := range admitted {
		byBed[*p.BedID] = p
	}
	board := make([]BedOccupancy, 0, len(beds))
	for _, b := range beds {
		board = append(board, BedOccupancy{Bed: b, Patient: byBed[b.ID]})
	}
	return board, nil
}

// SetMaintenance toggles a bed between vacant and under_maintenance.
// A bed holding a patient cannot be toggled.
func (s *Service) SetMaintenance(ctx context.Context, bedID uuid.UUID, on bool) (*Bed, error) {
	from, to := BedVacant, BedUnderMaintenance
	if !on {
		from, to = BedUnderMaintenance, BedVacant
	}

	var bed *Bed
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if bed, err = s.beds.GetByID(ctx, bedID); err != nil {
			return err
		}
		if bed.Status == to {
			return nil
		}
		moved, err := s.beds.TransitionStatus(ctx, bedID, from, to)
		if err != nil {
			return err
		}
		if !moved {
			return apperr.BedUnavailable(bed.BedNumber, bed.Status)
		}
		bed.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "bed.status_changed", "Bed", bed.ID, bed)
	return bed, nil
}

// -- Admission --

func validateAdmission(req *AdmissionRequest, now time.Time) error {
	var fields []string
	if strings.TrimSpace(req.Name) == "" {
		fields = append(fields, "name is required")
	}
	if req.DateOfBirth.IsZero() {
		fields = append(fields, "date_of_birth is required")
	} else if req.DateOfBirth.After(now) {
		fields = append(fields, "date_of_birth cannot be in the future")
	}
	switch bg := strings.TrimSpace(req.BloodGroup); {
	case bg == "":
		fields = append(fields, "blood_group is required")
	case !validBloodGroups[strings.ToUpper(bg)]:
		fields = append(fields, fmt.Sprintf("blood_group %q is not valid", bg))
	}
	if strings.TrimSpace(req.Phone) == "" {
		fields = append(fields, "phone is required")
	}
	if strings.TrimSpace(req.Issue) == "" {
		fields = append(fields, "issue is required")
	}
	if strings.TrimSpace(req.Doctor) == "" {
		fields = append(fields, "doctor is required")
	}
	if req.RecoveryRate != nil && (*req.RecoveryRate < 0 || *req.RecoveryRate > 100) {
		fields = append(fields, "recovery_rate must be between 0 and 100")
	}
	fields = apperr.MaxLength(fields, "name", req.Name, maxNameLen)
	fields = apperr.MaxLength(fields, "phone", req.Phone, maxPhoneLen)
	fields = apperr.MaxLength(fields, "emergency_contact_name", req.EmergencyContactName, maxNameLen)
	fields = apperr.MaxLength(fields, "emergency_contact_phone", req.EmergencyContactPhone, maxPhoneLen)
	fields = apperr.MaxLength(fields, "doctor", req.Doctor, maxNameLen)
	fields = apperr.MaxLength(fields, "caretaker_name", req.CaretakerName, maxNameLen)
	fields = apperr.MaxLength(fields, "caretaker_contact", req.CaretakerContact, maxPhoneLen)
	return apperr.Validation(fields...)
}

// Admit places a new patient into a vacant bed. The bed is claimed with a
// conditional status update in the same transaction as the patient insert,
// so two concurrent admissions to one bed cannot both succeed.
func (s *Service) Admit(ctx context.Context, bedID uuid.UUID, req *AdmissionRequest) (*Patient, error) {
	now := s.now()
	if err := validateAdmission(req, now); err != nil {
		return nil, err
	}

	p := &Patient{
		Name:                  strings.TrimSpace(req.Name),
		DateOfBirth:           req.DateOfBirth.Time,
		BloodGroup:            strings.ToUpper(strings.TrimSpace(req.BloodGroup)),
		Phone:                 strings.TrimSpace(req.Phone),
		Address:               req.Address,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		Issue:                 strings.TrimSpace(req.Issue),
		Doctor:                strings.TrimSpace(req.Doctor),
		Medicines:             req.Medicines,
		CaretakerName:         req.CaretakerName,
		CaretakerContact:      req.CaretakerContact,
		AdmissionDate:         now,
		BedID:                 &bedID,
	}
	if req.RecoveryRate != nil {
		p.RecoveryRate = *req.RecoveryRate
	}
	expected := now.Add(DefaultStay)
	if !req.ExpectedDischargeDate.IsZero() {
		expected = req.ExpectedDischargeDate.Time
	}
	p.ExpectedDischargeDate = &expected

	var bed *Bed
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if bed, err = s.beds.GetByID(ctx, bedID); err != nil {
			return err
		}
		claimed, err := s.beds.TransitionStatus(ctx, bedID, BedVacant, BedPatientAdmitted)
		if err != nil {
			return err
		}
		if !claimed {
			if current, err := s.beds.GetByID(ctx, bedID); err == nil {
				bed = current
			}
			return apperr.BedUnavailable(bed.BedNumber, bed.Status)
		}
		bed.Status = BedPatientAdmitted
		return s.patients.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("patient_id", p.ID.String()).
		Int("bed_number", bed.BedNumber).
		Msg("patient admitted")
	s.publish(ctx, "bed.admitted", "Bed", bed.ID, BedOccupancy{Bed: bed, Patient: p})
	return p, nil
}

// DraftFromDocument asks the configured Extractor to prefill an admission
// form from an uploaded document.
func (s *Service) DraftFromDocument(ctx context.Context, doc Document) (*AdmissionRequest, error) {
	if s.extractor == nil {
		return nil, ErrExtractionUnavailable
	}
	if len(doc.Data) == 0 {
		return nil, apperr.Validation("document is empty")
	}
	req, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract admission form: %w", err)
	}
	return req, nil
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListAdmitted(ctx context.Context) ([]*Patient, error) {
	return s.patients.ListAdmitted(ctx)
}

// UpdateCare records clinical progress for an admitted patient.
func (s *Service) UpdateCare(ctx context.Context, id uuid.UUID, u *CareUpdate) (*Patient, error) {
	var fields []string
	if u.RecoveryRate != nil && (*u.RecoveryRate < 0 || *u.RecoveryRate > 100) {
		fields = append(fields, "recovery_rate must be between 0 and 100")
	}
	if u.Doctor != nil {
		if strings.TrimSpace(*u.Doctor) == "" {
			fields = append(fields, "doctor cannot be empty")
		}
		fields = apperr.MaxLength(fields, "doctor", *u.Doctor, maxNameLen)
	}
	if err := apperr.Validation(fields...); err != nil {
		return nil, err
	}

	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Admitted() {
		return nil, apperr.ErrNotAdmitted
	}

	if u.RecoveryRate != nil {
		p.RecoveryRate = *u.RecoveryRate
	}
	if u.ExpectedDischargeDate != nil {
		d := u.ExpectedDischargeDate.Time
		p.ExpectedDischargeDate = &d
	}
	if u.Doctor != nil {
		p.Doctor = strings.TrimSpace(*u.Doctor)
	}
	if u.Medicines != nil {
		p.Medicines = *u.Medicines
	}
	if u.CaretakerName != nil {
		p.CaretakerName = *u.CaretakerName
	}
	if u.CaretakerContact != nil {
		p.CaretakerContact = *u.CaretakerContact
	}
	if err := s.patients.UpdateCare(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, "patient.updated", "Patient", p.ID, p)
	return p, nil
}

// DraftSummary renders the default discharge narrative for a patient.
func (s *Service) DraftSummary(ctx context.Context, patientID uuid.UUID) (string, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return "", err
	}
	return renderDraft(p, s.now())
}

// -- Discharge --

// Discharge closes a patient's stay in one transaction: the bill total is
// computed, the summary written, the bed vacated and the patient released.
// A summary left behind by an earlier interrupted discharge is reused, so a
// patient never gets two. The summary text of the retry is ignored in that
// case.
func (s *Service) Discharge(ctx context.Context, patientID uuid.UUID, summaryText string) (*DischargeSummary, error) {
	summaryText = strings.TrimSpace(summaryText)
	if summaryText == "" {
		return nil, apperr.Validation("summary_text is required")
	}

	now := s.now()
	var (
		summary *DischargeSummary
		resumed bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetForUpdate(ctx, patientID)
		if err != nil {
			return err
		}
		if !p.Admitted() {
			return apperr.ErrNotAdmitted
		}
		bedID := *p.BedID

		bed, err := s.beds.GetByID(ctx, bedID)
		if err != nil {
			return err
		}

		summary, err = s.summaries.GetByPatient(ctx, patientID)
		switch {
		case err == nil:
			resumed = true
		case errors.Is(err, apperr.ErrNotFound):
			total, err := s.bills.TotalFor(ctx, patientID)
			if err != nil {
				return err
			}
			summary = &DischargeSummary{
				PatientID:     patientID,
				BedID:         &bedID,
				BedNumber:     bed.BedNumber,
				SummaryText:   summaryText,
				TotalBill:     total,
				DischargeDate: now,
			}
			if err := s.summaries.Create(ctx, summary); err != nil {
				return err
			}
		default:
			return err
		}

		vacated, err := s.beds.TransitionStatus(ctx, bedID, BedPatientAdmitted, BedVacant)
		if err != nil {
			return err
		}
		if !vacated {
			zerolog.Ctx(ctx).Warn().
				Str("bed_id", bedID.String()).
				Str("status", bed.Status).
				Msg("discharge found bed not marked admitted")
		}

		released, err := s.patients.Release(ctx, patientID, now)
		if err != nil {
			return err
		}
		if !released {
			return apperr.ErrNotAdmitted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("patient_id", patientID.String()).
		Str("summary_id", summary.ID.String()).
		Str("total_bill", summary.TotalBill.StringFixed(2)).
		Bool("resumed", resumed).
		Msg("patient discharged")
	if summary.BedID != nil {
		s.publish(ctx, "bed.vacated", "Bed", *summary.BedID, summary)
	}
	return summary, nil
}

func (s *Service) GetDischargeSummary(ctx context.Context, id uuid.UUID) (*DischargeSummary, error) {
	return s.summaries.GetByID(ctx, id)
}

func (s *Service) GetSummaryForPatient(ctx context.Context, patientID uuid.UUID) (*DischargeSummary, error) {
	return s.summaries.GetByPatient(ctx, patientID)
}

func (s *Service) ListDischarged(ctx context.Context, f DischargedFilter, limit, offset int) ([]*DischargedPatient, int, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, 0, apperr.Validation("to must not be before from")
	}
	items, total, err := s.patients.ListDischarged(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, it := range items {
		it.PaymentStatus = money.Status(it.Summary.TotalBill, it.PaidAmount)
	}
	return items, total, nil
}

// BillTotal exposes a summary's frozen total to the billing settlement.
func (s *Service) BillTotal(ctx context.Context, summaryID uuid.UUID) (decimal.Decimal, error) {
	return s.summaries.BillTotal(ctx, summaryID)
}
