// Package sandbox fills an empty ward with reproducible synthetic
// admissions and bills for demos, developer on-boarding and load checks.
// A given seed always produces the same patients and line items.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wardops/wardops/internal/domain/billing"
	"github.com/wardops/wardops/internal/domain/inpatient"
	"github.com/wardops/wardops/internal/platform/apperr"
)

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	Admissions         int   `json:"admissions"`
	ExpensesPerPatient int   `json:"expenses_per_patient"`
	Seed               int64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Admissions:         10,
		ExpensesPerPatient: 3,
		Seed:               1,
	}
}

// SeedResult summarizes one run.
type SeedResult struct {
	Admitted int             `json:"admitted"`
	Skipped  int             `json:"skipped"`
	Expenses int             `json:"expenses"`
	Billed   decimal.Decimal `json:"billed"`
	Duration time.Duration   `json:"duration_ns"`
}

// Ward is the part of the inpatient service the seeder drives.
type Ward interface {
	ListVacantBeds(ctx context.Context) ([]*inpatient.Bed, error)
	Admit(ctx context.Context, bedID uuid.UUID, req *inpatient.AdmissionRequest) (*inpatient.Patient, error)
}

// Ledger is the part of the billing service the seeder drives.
type Ledger interface {
	AddExpense(ctx context.Context, patientID uuid.UUID, description string, amount decimal.Decimal, expenseDate time.Time) (*billing.Expense, error)
	CommonExpenses() []billing.CatalogItem
}

var (
	givenNames = []string{
		"Aarav", "Vivaan", "Aditya", "Ishaan", "Reyansh", "Ananya", "Diya",
		"Saanvi", "Meera", "Kavya", "Rohan", "Priya", "Arjun", "Nisha",
	}
	familyNames = []string{
		"Sharma", "Verma", "Iyer", "Nair", "Patel", "Reddy", "Gupta",
		"Menon", "Das", "Kulkarni", "Singh", "Bose",
	}
	bloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	issues      = []string{
		"Dengue fever", "Fractured femur", "Pneumonia", "Appendicitis",
		"Diabetic ketoacidosis", "Acute gastroenteritis", "Post-operative care",
		"Chest pain under observation", "Asthma exacerbation", "Typhoid",
	}
	doctors = []string{
		"Dr. Rao", "Dr. Kapoor", "Dr. Fernandes", "Dr. Mukherjee", "Dr. Pillai",
	}
	cities    = []string{"Pune", "Chennai", "Kochi", "Jaipur", "Lucknow", "Indore"}
	medicines = []string{
		"Paracetamol 500mg", "Ceftriaxone 1g IV", "Pantoprazole 40mg",
		"Insulin glargine", "Salbutamol nebulisation", "Ondansetron 4mg",
	}
)

// DataGenerator produces synthetic intake forms from a seeded source.
type DataGenerator struct {
	rng *rand.Rand
	now time.Time
}

func NewDataGenerator(seed int64, now time.Time) *DataGenerator {
	return &DataGenerator{rng: rand.New(rand.NewSource(seed)), now: now}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) phone() string {
	return fmt.Sprintf("9%09d", g.rng.Intn(1_000_000_000))
}

// Admission returns a complete intake form with an adult date of birth and
// an expected discharge one to ten days out.
func (g *DataGenerator) Admission() *inpatient.AdmissionRequest {
	age := 18 + g.rng.Intn(70)
	dob := g.now.AddDate(-age, -g.rng.Intn(12), -g.rng.Intn(28))
	recovery := g.rng.Intn(60)
	family := g.pick(familyNames)

	return &inpatient.AdmissionRequest{
		Name:                  g.pick(givenNames) + " " + family,
		DateOfBirth:           inpatient.Date{Time: truncateDay(dob)},
		BloodGroup:            g.pick(bloodGroups),
		Phone:                 g.phone(),
		Address:               fmt.Sprintf("%d MG Road, %s", 1+g.rng.Intn(300), g.pick(cities)),
		EmergencyContactName:  g.pick(givenNames) + " " + family,
		EmergencyContactPhone: g.phone(),
		Issue:                 g.pick(issues),
		Doctor:                g.pick(doctors),
		Medicines:             g.pick(medicines),
		RecoveryRate:          &recovery,
		ExpectedDischargeDate: inpatient.Date{Time: truncateDay(g.now.AddDate(0, 0, 1+g.rng.Intn(10)))},
	}
}

// Expense picks a catalogue item and a date within the last three days.
func (g *DataGenerator) Expense(catalog []billing.CatalogItem) (billing.CatalogItem, time.Time) {
	item := catalog[g.rng.Intn(len(catalog))]
	return item, truncateDay(g.now.AddDate(0, 0, -g.rng.Intn(3)))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Seeder admits generated patients into vacant beds and bills them.
type Seeder struct {
	ward   Ward
	ledger Ledger
	cfg    SeedConfig
	now    func() time.Time
}

func NewSeeder(ward Ward, ledger Ledger, cfg SeedConfig) *Seeder {
	return &Seeder{ward: ward, ledger: ledger, cfg: cfg, now: time.Now}
}

// Run admits up to cfg.Admissions patients, never more than there are
// vacant beds. A bed taken concurrently by someone else is skipped.
func (s *Seeder) Run(ctx context.Context) (*SeedResult, error) {
	if s.cfg.Admissions <= 0 {
		return nil, apperr.Validation("admissions must be greater than zero")
	}
	if s.cfg.ExpensesPerPatient < 0 {
		return nil, apperr.Validation("expenses_per_patient must not be negative")
	}

	start := s.now()
	gen := NewDataGenerator(s.cfg.Seed, start)
	catalog := s.ledger.CommonExpenses()
	res := &SeedResult{Billed: decimal.Zero}

	beds, err := s.ward.ListVacantBeds(ctx)
	if err != nil {
		return nil, err
	}
	if len(beds) == 0 {
		return nil, fmt.Errorf("no vacant beds to seed: %w", apperr.ErrBedUnavailable)
	}

	log := zerolog.Ctx(ctx)
	for _, bed := range beds {
		if res.Admitted == s.cfg.Admissions {
			break
		}
		p, err := s.ward.Admit(ctx, bed.ID, gen.Admission())
		if errors.Is(err, apperr.ErrBedUnavailable) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, err
		}
		res.Admitted++

		for i := 0; i < s.cfg.ExpensesPerPatient && len(catalog) > 0; i++ {
			item, date := gen.Expense(catalog)
			if _, err := s.ledger.AddExpense(ctx, p.ID, item.Description, item.Amount, date); err != nil {
				return res, err
			}
			res.Expenses++
			res.Billed = res.Billed.Add(item.Amount)
		}
		log.Debug().Int("bed", bed.BedNumber).Str("patient_id", p.ID.String()).Msg("seeded admission")
	}

	res.Duration = s.now().Sub(start)
	log.Info().
		Int("admitted", res.Admitted).
		Int("skipped", res.Skipped).
		Int("expenses", res.Expenses).
		Str("billed", res.Billed.StringFixed(2)).
		Msg("ward seeded")
	return res, nil
}
