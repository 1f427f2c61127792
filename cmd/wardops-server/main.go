package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wardops/wardops/internal/config"
	"github.com/wardops/wardops/internal/domain/billing"
	"github.com/wardops/wardops/internal/domain/inpatient"
	"github.com/wardops/wardops/internal/platform/db"
	"github.com/wardops/wardops/internal/platform/sandbox"
	"github.com/wardops/wardops/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "wardops-server",
		Short:        "Hospital bed occupancy and billing ledger",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(bedsCmd())
	root.AddCommand(demoCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ward API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(cfg.Level()).With().Timestamp().Str("service", "wardops").Logger()
}

// openPool loads configuration and connects, for the one-shot commands.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "wardops",
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// bedService opens the pool and builds just enough of the ledger to manage
// beds from the command line.
func bedService(ctx context.Context) (*inpatient.Service, func(), error) {
	_, pool, err := openPool(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc := inpatient.NewService(
		inpatient.NewBedRepoPG(pool),
		inpatient.NewPatientRepoPG(pool),
		inpatient.NewSummaryRepoPG(pool),
		db.NewTransactor(pool),
		nil,
	)
	return svc, pool.Close, nil
}

func bedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "beds",
		Short: "Manage the bed inventory",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a bed",
		RunE: func(cmd *cobra.Command, args []string) error {
			number, _ := cmd.Flags().GetInt("number")
			ward, _ := cmd.Flags().GetString("ward")
			if number <= 0 {
				return fmt.Errorf("--number is required")
			}

			svc, closeFn, err := bedService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			bed, err := svc.CreateBed(cmd.Context(), number, ward)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created bed %d (%s) id=%s\n", bed.BedNumber, bed.Ward, bed.ID)
			return nil
		},
	}
	addCmd.Flags().Int("number", 0, "Bed number (unique, positive)")
	addCmd.Flags().String("ward", "General", "Ward name")
	cmd.AddCommand(addCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create beds 1..count that do not exist yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			ward, _ := cmd.Flags().GetString("ward")

			svc, closeFn, err := bedService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := svc.SeedBeds(cmd.Context(), count, ward)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d new bed(s).\n", n)
			return nil
		},
	}
	seedCmd.Flags().Int("count", 20, "Number of beds the ward should have")
	seedCmd.Flags().String("ward", "General", "Ward name")
	cmd.AddCommand(seedCmd)

	return cmd
}

func demoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Admit synthetic patients into vacant beds and bill them",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seedCfg sandbox.SeedConfig
			seedCfg.Admissions, _ = cmd.Flags().GetInt("admissions")
			seedCfg.ExpensesPerPatient, _ = cmd.Flags().GetInt("expenses")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")

			cfg, pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			logger := newLogger(cfg, cmd.ErrOrStderr())
			ctx := logger.WithContext(cmd.Context())

			tx := db.NewTransactor(pool)
			patients := inpatient.NewPatientRepoPG(pool)
			summaries := inpatient.NewSummaryRepoPG(pool)
			billingSvc := billing.NewService(billing.NewExpenseRepoPG(pool), billing.NewPaymentRepoPG(pool), patients, summaries, tx)
			inpatientSvc := inpatient.NewService(inpatient.NewBedRepoPG(pool), patients, summaries, tx, billingSvc)

			res, err := sandbox.NewSeeder(inpatientSvc, billingSvc, seedCfg).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admitted %d patient(s), %d expense(s) totalling %s.\n",
				res.Admitted, res.Expenses, res.Billed.StringFixed(2))
			return nil
		},
	}
	def := sandbox.DefaultSeedConfig()
	cmd.Flags().Int("admissions", def.Admissions, "Patients to admit")
	cmd.Flags().Int("expenses", def.ExpensesPerPatient, "Expenses per patient")
	cmd.Flags().Int64("seed", def.Seed, "Random seed")
	return cmd
}
