package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wardops/wardops/internal/domain/billing"
	"github.com/wardops/wardops/internal/domain/inpatient"
	"github.com/wardops/wardops/internal/domain/opd"
	"github.com/wardops/wardops/internal/platform/cache"
	"github.com/wardops/wardops/internal/platform/db"
	"github.com/wardops/wardops/migrations"
)

// Setting these points the suite at already running services instead of
// starting containers.
const (
	envDatabaseURL = "WARDOPS_TEST_DATABASE_URL"
	envRedisURL    = "WARDOPS_TEST_REDIS_URL"
)

var (
	// globalPool is the migrated test database, nil when none is available.
	globalPool *pgxpool.Pool
	// globalRedis is nil when Redis is unavailable; only cache tests skip.
	globalRedis *redis.Client
	setupErr    error
	redisErr    error
)

func provide(ctx context.Context, env string, spec containerSpec) (string, func(), error) {
	if url := os.Getenv(env); url != "" {
		return url, func() {}, nil
	}
	return spec.start(ctx)
}

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	dsn, stopPG, err := provide(ctx, envDatabaseURL, postgresSpec)
	if err != nil {
		setupErr = err
		return m.Run()
	}
	defer stopPG()

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: dsn, MaxConns: 30})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		return 1
	}
	defer pool.Close()
	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		return 1
	}
	globalPool = pool

	if url, stopRedis, err := provide(ctx, envRedisURL, redisSpec); err != nil {
		redisErr = err
	} else {
		defer stopRedis()
		if globalRedis, err = cache.Connect(ctx, url); err != nil {
			redisErr = err
		} else {
			defer globalRedis.Close()
		}
	}

	return m.Run()
}

// ledger is the fully wired set of services over the test database.
type ledger struct {
	pool      *pgxpool.Pool
	inpatient *inpatient.Service
	billing   *billing.Service
	opd       *opd.Service
}

// newLedger skips without a database and otherwise empties every table.
func newLedger(t *testing.T) *ledger {
	t.Helper()
	if globalPool == nil {
		t.Skipf("postgres unavailable: %v", setupErr)
	}
	ctx := context.Background()
	if _, err := globalPool.Exec(ctx,
		`TRUNCATE payments, discharge_summaries, expenses, patients, beds, opd_visits RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := globalPool.Exec(ctx, `UPDATE opd_queue_counter SET last_number = 0`); err != nil {
		t.Fatalf("reset opd counter: %v", err)
	}

	tx := db.NewTransactor(globalPool)
	patients := inpatient.NewPatientRepoPG(globalPool)
	summaries := inpatient.NewSummaryRepoPG(globalPool)
	bills := billing.NewService(
		billing.NewExpenseRepoPG(globalPool),
		billing.NewPaymentRepoPG(globalPool),
		patients,
		summaries,
		tx,
	)
	return &ledger{
		pool:      globalPool,
		inpatient: inpatient.NewService(inpatient.NewBedRepoPG(globalPool), patients, summaries, tx, bills),
		billing:   bills,
		opd:       opd.NewService(opd.NewVisitRepoPG(globalPool), tx),
	}
}

// redisClient skips without Redis and flushes the test database.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	if globalRedis == nil {
		t.Skipf("redis unavailable: %v", redisErr)
	}
	if err := globalRedis.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return globalRedis
}
