// =============================================================================
// Invoice Reconciler - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   reconciler
//   ├── run        reconcile a month
//   ├── resume     reopen a saved, cancelled or failed session
//   ├── history    list sessions
//   ├── show       session detail with pending debits
//   ├── delete     remove a finished or abandoned session
//   ├── invoices   import / list / cancel ledger invoices
//   ├── export     XML or XLSX report of a session
//   ├── validate   check config and statement files
//   └── version
//
// CONFIGURATION:
//   The YAML file named by --config is loaded first. Flags (--verbose,
//   --db-dsn, --db-driver) and RECONCILER_* environment variables are then
//   layered on top through viper, e.g. RECONCILER_DATABASE_DSN or
//   RECONCILER_OUTPUT_DIR.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ginjaninja78/invoice-reconciler/internal/config"
	"github.com/ginjaninja78/invoice-reconciler/internal/logging"
	"github.com/ginjaninja78/invoice-reconciler/internal/session"
	"github.com/ginjaninja78/invoice-reconciler/internal/source"
	"github.com/ginjaninja78/invoice-reconciler/internal/store"
)

const envPrefix = "RECONCILER"

// skipSetup marks commands that run without configuration or store.
const skipSetup = "skip-setup"

// =============================================================================
// APPLICATION STATE
// =============================================================================

// app holds what the commands share once the configuration is loaded.
type app struct {
	cfg      *config.MainConfig
	log      logging.Logger
	closeLog func() error

	store        *store.Store
	tracker      *session.Tracker
	continuation *session.Continuation

	// invoices is the store wrapped with the retry policy.
	invoices source.InvoiceSource
}

// setup loads the configuration and the logger. Log records go to stderr so
// stdout stays readable for command output.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, closeLog, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Stdout: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.log, a.closeLog = log, closeLog
	return nil
}

// openStore opens the store and builds the session workflows on top of it.
// Sessions left in "processing" by a crashed run are moved to "error".
func (a *app) openStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	st, err := store.Open(ctx, a.cfg.Database, a.log)
	if err != nil {
		return err
	}
	a.store = st
	a.log.Debug("store opened", "driver", st.Driver())
	a.invoices = source.NewRetrying(st, a.cfg.Retry, a.log)
	a.tracker = session.NewTracker(st, session.Options{
		StepDelay:         a.cfg.Processing.StepDelay,
		ProgressSaveEvery: a.cfg.Processing.ProgressSaveEvery,
		Logger:            a.log,
	})
	a.continuation = session.NewContinuation(a.tracker, a.invoices)

	recovered, err := a.tracker.RecoverStalled(ctx, a.cfg.Processing.StallAfter)
	if err != nil {
		return fmt.Errorf("failed to recover stalled sessions: %w", err)
	}
	if len(recovered) > 0 {
		a.log.Warn("stalled sessions recovered", "count", len(recovered))
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
		a.closeLog = nil
	}
	return errors.Join(errs...)
}

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// newRootCmd builds the command tree over a. The caller releases what the
// commands opened with a.close, see execute.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Invoice Reconciler - match bank transactions to invoices",
		Long: `Invoice Reconciler matches the debit transactions of a month's bank
statements against that month's active invoices. A debit is paired with the
first unclaimed invoice whose total equals its amount exactly.

Every run is stored as a session. Sessions that end with pending debits can be
resumed later, once the missing invoices have been imported.

Example Usage:
  reconciler invoices import ./ledger/march.csv
  reconciler run --month 2024-03
  reconciler resume <session-id> --auto
  reconciler export <session-id> --format xlsx`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "config.yaml", "Path to the main configuration file")
	flags.BoolP("verbose", "v", false, "Enable verbose output for debugging")
	flags.String("db-dsn", "", "Database DSN (overrides database.dsn)")
	flags.String("db-driver", "", "Database driver: sqlite or postgres (overrides database.driver)")

	rootCmd.AddCommand(
		newRunCmd(a),
		newResumeCmd(a),
		newHistoryCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newInvoicesCmd(a),
		newExportCmd(a),
		newValidateCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context, which
// stops a running session and stores it as "cancelled".
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := execute(ctx, newRootCmd(a), a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// execute runs root and then closes the store and the log file, whether the
// command succeeded or not. Cobra skips post-run hooks after a failed RunE.
func execute(ctx context.Context, root *cobra.Command, a *app) error {
	err := root.ExecuteContext(ctx)
	if closeErr := a.close(); err == nil {
		err = closeErr
	}
	return err
}

// =============================================================================
// CONFIGURATION LOADING
// =============================================================================

// stringOverrides are the settings that flags or RECONCILER_* variables may
// replace.
func stringOverrides(cfg *config.MainConfig) map[string]*string {
	return map[string]*string{
		"database.driver":        &cfg.Database.Driver,
		"database.dsn":           &cfg.Database.DSN,
		"statements_dir":         &cfg.StatementsDir,
		"output_dir":             &cfg.OutputDir,
		"statements_archive_dir": &cfg.StatementsArchiveDir,
		"log_file":               &cfg.LogFile,
		"log_level":              &cfg.LogLevel,
	}
}

// loadConfig reads the YAML file and layers flags and environment on top. A
// missing file is only an error when --config was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.MainConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	flags := cmd.Root().PersistentFlags()
	bindings := map[string]string{
		"config":          "config",
		"verbose":         "verbose",
		"database.dsn":    "db-dsn",
		"database.driver": "db-driver",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	path := v.GetString("config")
	cfg, err := config.LoadMainConfig(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || flags.Changed("config") {
			return nil, err
		}
		cfg = config.DefaultMainConfig()
	}

	for key, target := range stringOverrides(cfg) {
		if value := v.GetString(key); value != "" {
			*target = value
		}
	}
	if v.GetBool("verbose") {
		cfg.LogLevel = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// out is where command output goes.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
