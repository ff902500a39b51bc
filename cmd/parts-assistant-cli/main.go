// Package main provides the parts assistant CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/machineparts/parts-assistant/internal/app"
	"github.com/machineparts/parts-assistant/internal/config"
	"github.com/machineparts/parts-assistant/internal/ingest"
	"github.com/machineparts/parts-assistant/internal/observability"
	"github.com/machineparts/parts-assistant/internal/storage"
)

const version = "0.1.0"

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parts-assistant-cli",
		Short: "Parts assistant CLI for catalog data, matching and the support queue",
		Long: `Parts assistant CLI provides commands for operating the shopping assistant.

Use this tool to:
- Migrate and seed the reference catalog
- Try query analysis, symptom mapping and compatibility checks
- Inspect recommendations and rebuild frequently-bought-together data
- Work the human escalation queue

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			level := cfg.Observability.LogLevel
			if verbose {
				level = "debug"
			}
			logFormat := "console"
			if outputJSON {
				logFormat = "json"
			}

			logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      logFormat,
				ServiceName: "parts-assistant-cli",
				Output:      cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSeedCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newSymptomCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRecommendCmd())
	rootCmd.AddCommand(newFBTCmd())
	rootCmd.AddCommand(newEscalationsCmd())
	rootCmd.AddCommand(newSupportCmd())
	rootCmd.AddCommand(newContextCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newUI(cmd *cobra.Command) *UI {
	return NewUI(cmd.OutOrStdout(), outputJSON, noColor)
}

// withApp opens the configured storage, runs fn and releases everything afterwards.
func withApp(timeout time.Duration, fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release resources")
		}
	}()

	return fn(ctx, a)
}

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply pending schema migrations for the configured driver (SQLite or Postgres).
Use --check to list pending migrations without applying them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			db, err := storage.Open(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			mgr := storage.NewMigrationManager(db, cfg.Database.Driver)

			if check {
				status, err := mgr.CheckMigrations(ctx)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(status)
				}
				if status.UpToDate {
					ui.Success("Schema is up to date (%d applied)", len(status.Applied))
					return nil
				}
				for _, name := range status.Pending {
					ui.Step("pending: %s", name)
				}
				return nil
			}

			logger.Info().Str("driver", cfg.Database.Driver).Msg("Running migrations")

			stop := ui.Spinner("Applying migrations")
			status, err := mgr.Migrate(ctx)
			stop()
			if err != nil {
				return err
			}

			if outputJSON {
				return ui.JSON(status)
			}
			ui.Success("Applied %d migration(s) on %s", len(status.Pending), cfg.Database.Driver)
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "only report pending migrations")
	return cmd
}

// newSeedCmd creates the seed subcommand.
func newSeedCmd() *cobra.Command {
	var (
		demo bool
		file string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the reference catalog",
		Long: `Seed upserts machine types, manufacturers, models, part categories, symptoms,
intents, knowledge base entries and quick replies. It is safe to run repeatedly.

With --file it imports an authored YAML catalog instead of the built-in one. The file is
validated against itself and the stored taxonomy and written in a single transaction.

With --demo it also loads a small compatibility and purchase ledger for cat-320d.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)
			defer ui.Close()

			return withApp(5*time.Minute, func(ctx context.Context, a *app.App) error {
				var (
					result *ingest.ImportResult
					err    error
				)
				if file != "" {
					result, err = importCatalog(ctx, a, ui, file)
				} else {
					result, err = seedDefault(ctx, a, ui)
				}
				if err != nil {
					if result != nil && !outputJSON {
						for _, p := range result.Problems {
							if p.Severity == "error" {
								ui.Error("%s", p.Error())
							} else {
								ui.Warning("%s", p.Error())
							}
						}
					}
					return err
				}

				if demo {
					if err := storage.SeedDemoLedger(ctx, a.Repos, time.Now()); err != nil {
						return err
					}
				}

				// Seeded rows change the taxonomy snapshot.
				if err := a.Taxonomy.Invalidate(ctx); err != nil {
					logger.Warn().Err(err).Msg("Failed to invalidate taxonomy cache")
				}

				if outputJSON {
					return ui.JSON(map[string]any{"tables": result.Tables, "rows": result.Rows, "problems": result.Problems, "demo": demo})
				}
				for _, p := range result.Problems {
					ui.Warning("%s", p.Error())
				}
				ui.Success("Seeded %d rows across %d tables", result.Rows, len(result.Tables))
				if demo {
					ui.Info("Demo ledger loaded for cat-320d")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&demo, "demo", false, "also load the demo compatibility and purchase ledger")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML catalog to import instead of the built-in data")
	return cmd
}

func seedDefault(ctx context.Context, a *app.App, ui *UI) (*ingest.ImportResult, error) {
	data := storage.DefaultSeedData()
	result := &ingest.ImportResult{Tables: data.Tables()}
	bars := ui.TableBars(tableTotals(result.Tables))

	err := storage.Seed(ctx, a.Repos, data, func(table string, done, total int) {
		result.Rows++
		if bar := bars[table]; bar != nil {
			bar.SetCurrent(int64(done))
		}
	})
	return result, err
}

func importCatalog(ctx context.Context, a *app.App, ui *UI, path string) (*ingest.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	doc, err := ingest.ParseCatalog(f)
	if err != nil {
		return nil, err
	}

	data, err := doc.ToSeedData()
	if err != nil {
		return nil, err
	}
	bars := ui.TableBars(tableTotals(data.Tables()))

	return ingest.NewImporter(a.DB, a.Repos, logger).Import(ctx, doc, func(table string, done, total int) {
		if bar := bars[table]; bar != nil {
			bar.SetCurrent(int64(done))
		}
	})
}

func tableTotals(tables []storage.SeedTable) map[string]int64 {
	totals := make(map[string]int64, len(tables))
	for _, t := range tables {
		if t.Total > 0 {
			totals[t.Name] = int64(t.Total)
		}
	}
	return totals
}

// newContextCmd creates the context subcommand.
func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage conversation context",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired conversation context entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)
			return withApp(time.Minute, func(ctx context.Context, a *app.App) error {
				n, err := a.Conversations.PurgeExpiredContext(ctx)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(map[string]int64{"purged": n})
				}
				ui.Success("Purged %d expired context entries", n)
				return nil
			})
		},
	})
	return cmd
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				return newUI(cmd).JSON(map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "parts-assistant-cli v%s\n", version)
			return nil
		},
	}
}
