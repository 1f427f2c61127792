package inpatient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/internal/platform/apperr"
	"github.com/wardops/wardops/internal/platform/db"
)

func notFoundOr(err error, what string, id any, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(what, id)
	}
	return apperr.Persistence(op, err)
}

// =========== Bed Repository ===========

type bedRepoPG struct{ pool *pgxpool.Pool }

func NewBedRepoPG(pool *pgxpool.Pool) BedRepository { return &bedRepoPG{pool: pool} }

func (r *bedRepoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

const bedCols = `id, bed_number, ward, status, created_at, updated_at`

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	err := row.Scan(&b.ID, &b.BedNumber, &b.Ward, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	if b.Status == "" {
		b.Status = BedVacant
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO beds (id, bed_number, ward, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		b.ID, b.BedNumber, b.Ward, b.Status).Scan(&b.CreatedAt, &b.UpdatedAt)
	if db.IsUniqueViolation(err, "beds_bed_number_key") {
		return apperr.Conflict("bed number %d already exists", b.BedNumber)
	}
	return apperr.Persistence("insert bed", err)
}

func (r *bedRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM beds WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "bed", id, "get bed")
	}
	return b, nil
}

func (r *bedRepoPG) List(ctx context.Context) ([]*Bed, error) {
	return r.list(ctx, `SELECT `+bedCols+` FROM beds ORDER BY bed_number`)
}

func (r *bedRepoPG) ListByStatus(ctx context.Context, status string) ([]*Bed, error) {
	return r.list(ctx, `SELECT `+bedCols+` FROM beds WHERE status = $1 ORDER BY bed_number`, status)
}

func (r *bedRepoPG) list(ctx context.Context, query string, args ...any) ([]*Bed, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("list beds", err)
	}
	defer rows.Close()
	var items []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, apperr.Persistence("scan bed", err)
		}
		items = append(items, b)
	}
	return items, apperr.Persistence("iterate beds", rows.Err())
}

func (r *bedRepoPG) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE beds SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, apperr.Persistence("update bed status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

const patientCols = `id, name, date_of_birth, blood_group, phone, address,
	emergency_contact_name, emergency_contact_phone, issue, recovery_rate,
	expected_discharge_date, doctor, medicines, caretaker_name, caretaker_contact,
	admission_date, bed_id, discharged_at, created_at, updated_at`

func patientFields(p *Patient) []any {
	return []any{&p.ID, &p.Name, &p.DateOfBirth, &p.BloodGroup, &p.Phone, &p.Address,
		&p.EmergencyContactName, &p.EmergencyContactPhone, &p.Issue, &p.RecoveryRate,
		&p.ExpectedDischargeDate, &p.Doctor, &p.Medicines, &p.CaretakerName, &p.CaretakerContact,
		&p.AdmissionDate, &p.BedID, &p.DischargedAt, &p.CreatedAt, &p.UpdatedAt}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(patientFields(&p)...)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, name, date_of_birth, blood_group, phone, address,
			emergency_contact_name, emergency_contact_phone, issue, recovery_rate,
			expected_discharge_date, doctor, medicines, caretaker_name, caretaker_contact,
			admission_date, bed_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.DateOfBirth, p.BloodGroup, p.Phone, p.Address,
		p.EmergencyContactName, p.EmergencyContactPhone, p.Issue, p.RecoveryRate,
		p.ExpectedDischargeDate, p.Doctor, p.Medicines, p.CaretakerName, p.CaretakerContact,
		p.AdmissionDate, p.BedID).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "patients_active_bed_key") {
		return fmt.Errorf("bed %s already holds a patient: %w", p.BedID, apperr.ErrBedUnavailable)
	}
	return apperr.Persistence("insert patient", err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "patient", id, "get patient")
	}
	return p, nil
}

func (r *patientRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "patient", id, "lock patient")
	}
	return p, nil
}

func (r *patientRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, apperr.Persistence("check patient", err)
	}
	return exists, nil
}

func (r *patientRepoPG) ListAdmitted(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients WHERE bed_id IS NOT NULL ORDER BY admission_date`)
	if err != nil {
		return nil, apperr.Persistence("list admitted patients", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, apperr.Persistence("scan patient", err)
		}
		items = append(items, p)
	}
	return items, apperr.Persistence("iterate patients", rows.Err())
}

func (r *patientRepoPG) UpdateCare(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET recovery_rate=$2, expected_discharge_date=$3, doctor=$4,
			medicines=$5, caretaker_name=$6, caretaker_contact=$7, updated_at=NOW()
		WHERE id = $1 AND bed_id IS NOT NULL`,
		p.ID, p.RecoveryRate, p.ExpectedDischargeDate, p.Doctor,
		p.Medicines, p.CaretakerName, p.CaretakerContact)
	if err != nil {
		return apperr.Persistence("update patient care", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotAdmitted
	}
	return nil
}

func (r *patientRepoPG) Release(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET bed_id = NULL, discharged_at = $2, updated_at = NOW()
		WHERE id = $1 AND bed_id IS NOT NULL`, id, at)
	if err != nil {
		return false, apperr.Persistence("release patient bed", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *patientRepoPG) ListDischarged(ctx context.Context, f DischargedFilter, limit, offset int) ([]*DischargedPatient, int, error) {
	where := []string{"p.discharged_at IS NOT NULL"}
	var args []any
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		args = append(args, "%"+kw+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(p.name ILIKE $%d OR p.phone ILIKE $%d OR p.doctor ILIKE $%d)", n, n, n))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("s.discharge_date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.before())
		where = append(where, fmt.Sprintf("s.discharge_date < $%d", len(args)))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patients p
		JOIN discharge_summaries s ON s.patient_id = p.id
		WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count discharged patients", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s, %s,
			COALESCE((SELECT SUM(amount) FROM payments WHERE discharge_summary_id = s.id), 0)
		FROM patients p
		JOIN discharge_summaries s ON s.patient_id = p.id
		WHERE %s
		ORDER BY s.discharge_date DESC
		LIMIT $%d OFFSET $%d`,
		prefixCols("p", patientCols), prefixCols("s", summaryCols), whereSQL, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Persistence("list discharged patients", err)
	}
	defer rows.Close()

	var items []*DischargedPatient
	for rows.Next() {
		var p Patient
		var s DischargeSummary
		var paid decimal.Decimal
		dest := append(patientFields(&p), summaryFields(&s)...)
		dest = append(dest, &paid)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, apperr.Persistence("scan discharged patient", err)
		}
		items = append(items, &DischargedPatient{Patient: &p, Summary: &s, PaidAmount: paid})
	}
	return items, total, apperr.Persistence("iterate discharged patients", rows.Err())
}

func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

// =========== Discharge Summary Repository ===========

type summaryRepoPG struct{ pool *pgxpool.Pool }

func NewSummaryRepoPG(pool *pgxpool.Pool) SummaryRepository { return &summaryRepoPG{pool: pool} }

func (r *summaryRepoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

const summaryCols = `id, patient_id, bed_id, bed_number, summary_text, total_bill, discharge_date, created_at`

func summaryFields(s *DischargeSummary) []any {
	return []any{&s.ID, &s.PatientID, &s.BedID, &s.BedNumber, &s.SummaryText, &s.TotalBill, &s.DischargeDate, &s.CreatedAt}
}

func scanSummary(row pgx.Row) (*DischargeSummary, error) {
	var s DischargeSummary
	err := row.Scan(summaryFields(&s)...)
	return &s, err
}

func (r *summaryRepoPG) Create(ctx context.Context, s *DischargeSummary) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO discharge_summaries (id, patient_id, bed_id, bed_number, summary_text, total_bill, discharge_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		s.ID, s.PatientID, s.BedID, s.BedNumber, s.SummaryText, s.TotalBill, s.DischargeDate).Scan(&s.CreatedAt)
	if db.IsUniqueViolation(err, "discharge_summaries_patient_id_key") {
		return apperr.Conflict("patient %s already has a discharge summary", s.PatientID)
	}
	return apperr.Persistence("insert discharge summary", err)
}

func (r *summaryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DischargeSummary, error) {
	s, err := scanSummary(r.conn(ctx).QueryRow(ctx, `SELECT `+summaryCols+` FROM discharge_summaries WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "discharge summary", id, "get discharge summary")
	}
	return s, nil
}

func (r *summaryRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*DischargeSummary, error) {
	s, err := scanSummary(r.conn(ctx).QueryRow(ctx, `SELECT `+summaryCols+` FROM discharge_summaries WHERE patient_id = $1`, patientID))
	if err != nil {
		return nil, notFoundOr(err, "discharge summary for patient", patientID, "get discharge summary")
	}
	return s, nil
}

func (r *summaryRepoPG) BillTotal(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `SELECT total_bill FROM discharge_summaries WHERE id = $1`, id).Scan(&total)
	if err != nil {
		return decimal.Zero, notFoundOr(err, "discharge summary", id, "get bill total")
	}
	return total, nil
}
