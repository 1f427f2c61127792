package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/internal/platform/apperr"
	"github.com/wardops/wardops/internal/platform/db"
)

// =========== Expense Repository ===========

type expenseRepoPG struct{ pool *pgxpool.Pool }

func NewExpenseRepoPG(pool *pgxpool.Pool) ExpenseRepository { return &expenseRepoPG{pool: pool} }

func (r *expenseRepoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

const expenseCols = `id, seq, patient_id, description, amount, expense_date, created_at`

func scanExpense(row pgx.Row) (*Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Seq, &e.PatientID, &e.Description, &e.Amount, &e.ExpenseDate, &e.CreatedAt)
	return &e, err
}

func (r *expenseRepoPG) Create(ctx context.Context, e *Expense) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO expenses (id, patient_id, description, amount, expense_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq, created_at`,
		e.ID, e.PatientID, e.Description, e.Amount, e.ExpenseDate).Scan(&e.Seq, &e.CreatedAt)
	return apperr.Persistence("insert expense", err)
}

func (r *expenseRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Expense, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+expenseCols+` FROM expenses
		WHERE patient_id = $1
		ORDER BY expense_date, seq`, patientID)
	if err != nil {
		return nil, apperr.Persistence("list expenses", err)
	}
	defer rows.Close()
	var items []*Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, apperr.Persistence("scan expense", err)
		}
		items = append(items, e)
	}
	return items, apperr.Persistence("iterate expenses", rows.Err())
}

func (r *expenseRepoPG) SumByPatient(ctx context.Context, patientID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return decimal.Zero, apperr.Persistence("sum expenses", err)
	}
	return total, nil
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Executor(ctx, r.pool)
}

const paymentCols = `id, discharge_summary_id, amount, method, reference, paid_at`

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (id, discharge_summary_id, amount, method, reference)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING paid_at`,
		p.ID, p.DischargeSummaryID, p.Amount, p.Method, p.Reference).Scan(&p.PaidAt)
	return apperr.Persistence("insert payment", err)
}

func (r *paymentRepoPG) LockSummary(ctx context.Context, summaryID uuid.UUID) error {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM discharge_summaries WHERE id = $1 FOR UPDATE`, summaryID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("discharge summary", summaryID)
	}
	return apperr.Persistence("lock discharge summary", err)
}

func (r *paymentRepoPG) ListBySummary(ctx context.Context, summaryID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+paymentCols+` FROM payments
		WHERE discharge_summary_id = $1
		ORDER BY paid_at, id`, summaryID)
	if err != nil {
		return nil, apperr.Persistence("list payments", err)
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.DischargeSummaryID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt); err != nil {
			return nil, apperr.Persistence("scan payment", err)
		}
		items = append(items, &p)
	}
	return items, apperr.Persistence("iterate payments", rows.Err())
}

func (r *paymentRepoPG) SumBySummary(ctx context.Context, summaryID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE discharge_summary_id = $1`, summaryID).Scan(&total)
	if err != nil {
		return decimal.Zero, apperr.Persistence("sum payments", err)
	}
	return total, nil
}

func (r *paymentRepoPG) Outstanding(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(GREATEST(s.total_bill - COALESCE(p.paid, 0), 0)), 0)
		FROM discharge_summaries s
		LEFT JOIN (
			SELECT discharge_summary_id, SUM(amount) AS paid
			FROM payments GROUP BY discharge_summary_id
		) p ON p.discharge_summary_id = s.id`).Scan(&total)
	if err != nil {
		return decimal.Zero, apperr.Persistence("sum outstanding balances", err)
	}
	return total, nil
}
