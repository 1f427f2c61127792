package opd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardops/wardops/internal/platform/apperr"
	"github.com/wardops/wardops/internal/platform/db"
)

// queueLockKey is the advisory lock serialising queue number assignment.
const queueLockKey = 720_001

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository { return &visitRepoPG{pool: pool} }

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

const visitCols = `id, queue_number, name, age, contact, issue, doctor,
	appointment_time, status, notes, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.QueueNumber, &v.Name, &v.Age, &v.Contact, &v.Issue, &v.Doctor,
		&v.AppointmentTime, &v.Status, &v.Notes, &v.CreatedAt, &v.UpdatedAt)
	return &v, err
}

// Create must run inside a transaction: the advisory lock is released at
// commit, after the new number is visible to the next caller. Numbers come
// from opd_queue_counter so removing the newest visit never frees its number.
func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, queueLockKey); err != nil {
		return apperr.Persistence("lock opd queue", err)
	}
	if err := q.QueryRow(ctx, `
		UPDATE opd_queue_counter SET last_number = last_number + 1
		RETURNING last_number`).Scan(&v.QueueNumber); err != nil {
		return apperr.Persistence("next queue number", err)
	}

	v.ID = uuid.New()
	err := q.QueryRow(ctx, `
		INSERT INTO opd_visits (id, queue_number, name, age, contact, issue, doctor,
			appointment_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		v.ID, v.QueueNumber, v.Name, v.Age, v.Contact, v.Issue, v.Doctor,
		v.AppointmentTime, v.Status, v.Notes).Scan(&v.CreatedAt, &v.UpdatedAt)
	if db.IsUniqueViolation(err, "opd_visits_queue_number_key") {
		return apperr.Conflict("queue number %d already taken", v.QueueNumber)
	}
	return apperr.Persistence("insert opd visit", err)
}

func (r *visitRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM opd_visits WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("opd visit", id)
	}
	if err != nil {
		return nil, apperr.Persistence("get opd visit", err)
	}
	return v, nil
}

func (r *visitRepoPG) List(ctx context.Context, f ListFilter) ([]*Visit, error) {
	query := `SELECT ` + visitCols + ` FROM opd_visits WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		query += fmt.Sprintf(` AND (name ILIKE $%d OR contact ILIKE $%d OR doctor ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+kw+"%")
		idx++
	}
	query += ` ORDER BY queue_number`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("list opd visits", err)
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, apperr.Persistence("scan opd visit", err)
		}
		items = append(items, v)
	}
	return items, apperr.Persistence("iterate opd visits", rows.Err())
}

func (r *visitRepoPG) Update(ctx context.Context, v *Visit) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE opd_visits SET name = $2, age = $3, contact = $4, issue = $5, doctor = $6,
			appointment_time = $7, notes = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		v.ID, v.Name, v.Age, v.Contact, v.Issue, v.Doctor, v.AppointmentTime, v.Notes).Scan(&v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("opd visit", v.ID)
	}
	return apperr.Persistence("update opd visit", err)
}

func (r *visitRepoPG) SetStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE opd_visits SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, apperr.Persistence("update opd status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *visitRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM opd_visits WHERE id = $1`, id)
	if err != nil {
		return apperr.Persistence("delete opd visit", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("opd visit", id)
	}
	return nil
}

func (r *visitRepoPG) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM opd_visits GROUP BY status`)
	if err != nil {
		return nil, apperr.Persistence("count opd visits", err)
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperr.Persistence("scan opd count", err)
		}
		counts[status] = n
	}
	return counts, apperr.Persistence("iterate opd counts", rows.Err())
}
