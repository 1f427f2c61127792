package billing

import (
	"context"
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

type Service struct {
	expenses  ExpenseRepository
	payments  PaymentRepository
	patients  PatientLookup
	summaries SummaryLookup
	tx        db.Transactor
	events    websocket.EventPublisher
	now       func() time.Time
}

func NewService(exp ExpenseRepository, pay PaymentRepository, patients PatientLookup, summaries SummaryLookup, tx db.Transactor) *Service {
	return &Service{
		expenses:  exp,
		payments:  pay,
		patients:  patients,
		summaries: summaries,
		tx:        tx,
		now:       time.Now,
	}
}

// SetEventPublisher attaches a publisher notified after each committed change.
func (s *Service) SetEventPublisher(p websocket.EventPublisher) {
	s.events = p
}

func (s *Service) publish(ctx context.Context, eventType, resourceType string, id uuid.UUID, data any) {
	if s.events == nil {
		return
	}
	evt := websocket.NewEvent(websocket.TopicBilling, eventType, resourceType, id.String(), data)
	if err := s.events.Publish(ctx, evt); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", eventType).Msg("publish event failed")
	}
}

func (s *Service) requirePatient(ctx context.Context, patientID uuid.UUID) error {
	ok, err := s.patients.Exists(ctx, patientID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("patient", patientID)
	}
	return nil
}

// -- Expenses --

// AddExpense appends a line item to a patient's bill. A zero expense date
// means today. Amounts have no upper bound.
func (s *Service) AddExpense(ctx context.Context, patientID uuid.UUID, description string, amount decimal.Decimal, expenseDate time.Time) (*Expense, error) {
	var fields []string
	description = strings.TrimSpace(description)
	if description == "" {
		fields = append(fields, "description is required")
	}
	if amount.IsNegative() {
		fields = append(fields, "amount must not be negative")
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		fields = append(fields, "amount cannot have more than two decimal places")
	}
	if err := apperr.Validation(fields...); err != nil {
		return nil, err
	}
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}

	if expenseDate.IsZero() {
		expenseDate = s.now()
	}
	y, m, d := expenseDate.Date()
	e := &Expense{
		PatientID:   patientID,
		Description: description,
		Amount:      amount.Round(2),
		ExpenseDate: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}
	if err := s.expenses.Create(ctx, e); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("patient_id", patientID.String()).
		Str("expense_id", e.ID.String()).
		Str("amount", amount.StringFixed(2)).
		Msg("expense added")
	s.publish(ctx, "expense.added", "Expense", e.ID, e)
	return e, nil
}

// TotalFor is the exact sum of a patient's expenses.
func (s *Service) TotalFor(ctx context.Context, patientID uuid.UUID) (decimal.Decimal, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return decimal.Zero, err
	}
	return s.expenses.SumByPatient(ctx, patientID)
}

// ListFor returns a patient's expenses by expense date, ties in insertion order.
func (s *Service) ListFor(ctx context.Context, patientID uuid.UUID) ([]*Expense, error) {
	if err := s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}
	items, err := s.expenses.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Expense{}
	}
	return items, nil
}

// Statement returns the expense list and its total from one read.
func (s *Service) Statement(ctx context.Context, patientID uuid.UUID) (*Statement, error) {
	items, err := s.ListFor(ctx, patientID)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, e := range items {
		total = total.Add(e.Amount)
	}
	return &Statement{PatientID: patientID, Expenses: items, Total: total}, nil
}

// CommonExpenses is the quick-pick catalogue of the add-expense form.
func (s *Service) CommonExpenses() []CatalogItem {
	out := make([]CatalogItem, len(commonExpenses))
	copy(out, commonExpenses)
	return out
}

// -- Payments --

// RecordPayment applies a payment to a discharge bill. Payments beyond the
// outstanding balance are rejected.
func (s *Service) RecordPayment(ctx context.Context, summaryID uuid.UUID, amount decimal.Decimal, method, reference string) (*Payment, error) {
	var fields []string
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = MethodCash
	}
	if !amount.IsPositive() {
		fields = append(fields, "amount must be greater than zero")
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		fields = append(fields, "amount cannot have more than two decimal places")
	}
	if !validMethods[method] {
		fields = append(fields, fmt.Sprintf("payment method %q is not valid", method))
	}
	reference = strings.TrimSpace(reference)
	fields = apperr.MaxLength(fields, "reference", reference, maxReferenceLen)
	if err := apperr.Validation(fields...); err != nil {
		return nil, err
	}

	p := &Payment{
		DischargeSummaryID: summaryID,
		Amount:             amount.Round(2),
		Method:             method,
		Reference:          reference,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.payments.LockSummary(ctx, summaryID); err != nil {
			return err
		}
		total, err := s.summaries.BillTotal(ctx, summaryID)
		if err != nil {
			return err
		}
		paid, err := s.payments.SumBySummary(ctx, summaryID)
		if err != nil {
			return err
		}
		if balance := money.Balance(total, paid); amount.GreaterThan(balance) {
			return apperr.Validation(fmt.Sprintf("amount %s exceeds outstanding balance %s",
				amount.StringFixed(2), balance.StringFixed(2)))
		}
		return s.payments.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("summary_id", summaryID.String()).
		Str("payment_id", p.ID.String()).
		Str("amount", amount.StringFixed(2)).
		Msg("payment recorded")
	s.publish(ctx, "payment.recorded", "Payment", p.ID, p)
	return p, nil
}

// Settlement reports total, paid, balance and derived status of a bill.
func (s *Service) Settlement(ctx context.Context, summaryID uuid.UUID) (*Settlement, error) {
	total, err := s.summaries.BillTotal(ctx, summaryID)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListBySummary(ctx, summaryID)
	if err != nil {
		return nil, err
	}
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	if payments == nil {
		payments = []*Payment{}
	}
	return &Settlement{
		DischargeSummaryID: summaryID,
		Total:              total,
		Paid:               paid,
		Balance:            money.Balance(total, paid),
		Status:             money.Status(total, paid),
		Payments:           payments,
	}, nil
}

// PendingPayments sums the outstanding balances of every discharge bill.
func (s *Service) PendingPayments(ctx context.Context) (decimal.Decimal, error) {
	return s.payments.Outstanding(ctx)
}
