package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/internal/domain/inpatient"
	"github.com/wardops/wardops/internal/domain/opd"
	"github.com/wardops/wardops/internal/platform/apperr"
	"github.com/wardops/wardops/pkg/money"
)

func admission(name string) *inpatient.AdmissionRequest {
	return &inpatient.AdmissionRequest{
		Name:        name,
		DateOfBirth: inpatient.Date{Time: time.Date(1975, 3, 2, 0, 0, 0, 0, time.UTC)},
		BloodGroup:  "O+",
		Phone:       "9876543210",
		Issue:       "Observation",
		Doctor:      "Dr. Iyer",
	}
}

func TestWard_ConcurrentAdmitsOneWinner(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	bed, err := l.inpatient.CreateBed(ctx, 1, "General")
	if err != nil {
		t.Fatalf("create bed: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, unavailable := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.inpatient.Admit(ctx, bed.ID, admission("Racer"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, apperr.ErrBedUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected admit error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || unavailable != n-1 {
		t.Fatalf("expected 1 winner and %d rejections, got %d and %d", n-1, wins, unavailable)
	}

	var admitted int
	if err := l.pool.QueryRow(ctx, `SELECT count(*) FROM patients WHERE bed_id = $1`, bed.ID).Scan(&admitted); err != nil {
		t.Fatal(err)
	}
	if admitted != 1 {
		t.Fatalf("expected exactly one patient on the bed, got %d", admitted)
	}
	got, _ := l.inpatient.GetBed(ctx, bed.ID)
	if got.Status != inpatient.BedPatientAdmitted {
		t.Fatalf("expected bed admitted, got %s", got.Status)
	}
}

func TestWard_AdmitBillDischargePay(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	bed, err := l.inpatient.CreateBed(ctx, 3, "General")
	if err != nil {
		t.Fatalf("create bed: %v", err)
	}
	p, err := l.inpatient.Admit(ctx, bed.ID, admission("Meera Nair"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	for _, amt := range []string{"0.10", "0.20", "999.70", "100"} {
		if _, err := l.billing.AddExpense(ctx, p.ID, "Item "+amt, decimal.RequireFromString(amt), time.Time{}); err != nil {
			t.Fatalf("add expense: %v", err)
		}
	}
	total, err := l.billing.TotalFor(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !total.Equal(decimal.RequireFromString("1100")) {
		t.Fatalf("expected exact total 1100, got %s", total)
	}

	summary, err := l.inpatient.Discharge(ctx, p.ID, "Recovered well.")
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if !summary.TotalBill.Equal(total) || summary.BedNumber != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if _, err := l.inpatient.Discharge(ctx, p.ID, "again"); !errors.Is(err, apperr.ErrNotAdmitted) {
		t.Fatalf("expected not admitted on second discharge, got %v", err)
	}
	var summaries int
	if err := l.pool.QueryRow(ctx, `SELECT count(*) FROM discharge_summaries WHERE patient_id = $1`, p.ID).Scan(&summaries); err != nil {
		t.Fatal(err)
	}
	if summaries != 1 {
		t.Fatalf("expected one summary, got %d", summaries)
	}

	got, _ := l.inpatient.GetBed(ctx, bed.ID)
	if got.Status != inpatient.BedVacant {
		t.Fatalf("expected bed vacant after discharge, got %s", got.Status)
	}
	archived, err := l.inpatient.GetPatient(ctx, p.ID)
	if err != nil {
		t.Fatalf("expected archived patient to remain readable: %v", err)
	}
	if archived.Admitted() || archived.DischargedAt == nil {
		t.Fatalf("expected archived patient, got %+v", archived)
	}

	if _, err := l.billing.RecordPayment(ctx, summary.ID, decimal.NewFromInt(600), "upi", "TXN1"); err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	st, err := l.billing.Settlement(ctx, summary.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != money.StatusPartial || !st.Balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected partial with 500 due, got %s %s", st.Status, st.Balance)
	}
	if _, err := l.billing.RecordPayment(ctx, summary.ID, decimal.NewFromInt(501), "cash", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected overpayment rejected, got %v", err)
	}
	if _, err := l.billing.RecordPayment(ctx, summary.ID, decimal.NewFromInt(500), "cash", ""); err != nil {
		t.Fatalf("final payment: %v", err)
	}
	pending, err := l.billing.PendingPayments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !pending.IsZero() {
		t.Fatalf("expected nothing pending, got %s", pending)
	}

	// The bed is reusable.
	if _, err := l.inpatient.Admit(ctx, bed.ID, admission("Next Patient")); err != nil {
		t.Fatalf("readmit to vacated bed: %v", err)
	}
}

func TestWard_LargeBillRoundTrips(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	bed, err := l.inpatient.CreateBed(ctx, 9, "ICU")
	if err != nil {
		t.Fatalf("create bed: %v", err)
	}
	p, err := l.inpatient.Admit(ctx, bed.ID, admission("Rohan Iyer"))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	big := decimal.RequireFromString("123456789012345678.99")
	if _, err := l.billing.AddExpense(ctx, p.ID, "Transplant", big, time.Time{}); err != nil {
		t.Fatalf("add expense: %v", err)
	}
	summary, err := l.inpatient.Discharge(ctx, p.ID, "ok")
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if !summary.TotalBill.Equal(big) {
		t.Fatalf("expected total %s, got %s", big, summary.TotalBill)
	}
	if _, err := l.billing.RecordPayment(ctx, summary.ID, big, "insurance", "CLAIM1"); err != nil {
		t.Fatalf("payment: %v", err)
	}
	st, err := l.billing.Settlement(ctx, summary.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != money.StatusPaid {
		t.Fatalf("expected paid, got %s", st.Status)
	}
}

func TestWard_DuplicateBedNumber(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	if _, err := l.inpatient.CreateBed(ctx, 9, "ICU"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.inpatient.CreateBed(ctx, 9, "ICU"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestWard_MaintenanceBlocksAdmission(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	bed, _ := l.inpatient.CreateBed(ctx, 4, "")
	if _, err := l.inpatient.SetMaintenance(ctx, bed.ID, true); err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if _, err := l.inpatient.Admit(ctx, bed.ID, admission("Blocked")); !errors.Is(err, apperr.ErrBedUnavailable) {
		t.Fatalf("expected bed unavailable, got %v", err)
	}
}

func TestWard_ListDischargedFilters(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	if _, err := l.inpatient.SeedBeds(ctx, 2, "General"); err != nil {
		t.Fatal(err)
	}
	vacant, _ := l.inpatient.ListVacantBeds(ctx)
	if len(vacant) != 2 {
		t.Fatalf("expected 2 vacant beds, got %d", len(vacant))
	}
	for i, name := range []string{"Arjun Das", "Kavya Shah"} {
		p, err := l.inpatient.Admit(ctx, vacant[i].ID, admission(name))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := l.inpatient.Discharge(ctx, p.ID, "ok"); err != nil {
			t.Fatal(err)
		}
	}

	rows, total, err := l.inpatient.ListDischarged(ctx, inpatient.DischargedFilter{Keyword: "kavya"}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(rows) != 1 || rows[0].Patient.Name != "Kavya Shah" {
		t.Fatalf("expected Kavya only, got %d rows (total %d)", len(rows), total)
	}
	if rows[0].PaymentStatus != money.StatusPaid {
		t.Errorf("expected zero bill to read as paid, got %s", rows[0].PaymentStatus)
	}

	y, m, d := time.Now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	_, total, err = l.inpatient.ListDischarged(ctx, inpatient.DischargedFilter{From: today, To: today}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("expected both discharges within a same-day range, got %d", total)
	}
}

func TestOPD_ConcurrentEnqueueNumbersAreUnique(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.opd.Enqueue(ctx, &opd.Visit{
				Name: "Walk-in", Age: 30, Contact: "9000000000",
				Issue: "Fever", Doctor: "Dr. Rao",
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	visits, err := l.opd.List(ctx, opd.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(visits) != n {
		t.Fatalf("expected %d visits, got %d", n, len(visits))
	}
	for i, v := range visits {
		if v.QueueNumber != i+1 {
			t.Fatalf("expected gapless numbering, position %d has %d", i, v.QueueNumber)
		}
	}

	for _, to := range []string{opd.StatusInConsultation, opd.StatusCompleted} {
		if _, err := l.opd.Transition(ctx, visits[0].ID, to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	if _, err := l.opd.Transition(ctx, visits[0].ID, opd.StatusWaiting); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict leaving completed, got %v", err)
	}
}

func TestOPD_RemovedNumberIsNotReused(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	var last *opd.Visit
	for i := 0; i < 3; i++ {
		last = &opd.Visit{Name: "Walk-in", Age: 40, Contact: "9000000001", Issue: "Cough", Doctor: "Dr. Rao"}
		if err := l.opd.Enqueue(ctx, last); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := l.opd.Remove(ctx, last.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	next := &opd.Visit{Name: "Late", Age: 22, Contact: "9000000002", Issue: "Rash", Doctor: "Dr. Rao"}
	if err := l.opd.Enqueue(ctx, next); err != nil {
		t.Fatalf("enqueue after remove: %v", err)
	}
	if next.QueueNumber != 4 {
		t.Fatalf("expected queue number 4, got %d", next.QueueNumber)
	}
}
