package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/machineparts/parts-assistant/internal/app"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// newAnalyzeCmd creates the analyze subcommand.
func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <query>",
		Short: "Extract machine and issue information from a free-text query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)
			query := strings.Join(args, " ")

			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				analysis, err := a.Interpreter.Analyze(ctx, query)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(analysis)
				}

				ui.Section("Query analysis")
				ui.KeyValue("Machine type", orDash(analysis.MachineType))
				ui.KeyValue("Manufacturer", orDash(analysis.Manufacturer))
				ui.KeyValue("Model", orDash(analysis.Model))
				ui.KeyValue("Issue", orDash(analysis.Issue))
				ui.KeyValue("Category", orDash(analysis.SuggestedCategory))
				ui.KeyValue("Subcategory", orDash(analysis.Subcategory))
				ui.KeyValue("Confidence", fmt.Sprintf("%d%%", analysis.Confidence))
				return nil
			})
		},
	}
}

// newSymptomCmd creates the symptom subcommand.
func newSymptomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symptom <description>",
		Short: "Map a symptom description to part categories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)
			text := strings.Join(args, " ")

			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				matches, err := a.Symptoms.Map(ctx, text)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(map[string]any{"matches": matches})
				}
				if len(matches) == 0 {
					ui.Warning("No matching symptoms")
					return nil
				}

				rows := make([][]string, 0, len(matches))
				for _, m := range matches {
					rows = append(rows, []string{m.SymptomID, m.Symptom, m.Category, m.Subcategory, fmt.Sprintf("%.0f", m.Confidence)})
				}
				ui.Table([]string{"ID", "Symptom", "Category", "Subcategory", "Confidence"}, rows)
				return nil
			})
		},
	}
}

// newValidateCmd creates the validate subcommand.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <machine-model-id> <product-id>",
		Short: "Check whether a product fits a machine model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)

			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				result, err := a.Validator.Validate(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(result)
				}

				if result.Compatible {
					ui.Success("Compatible: %s", result.Reason)
				} else {
					ui.Error("Not compatible: %s", result.Reason)
				}
				ui.KeyValue("Level", levelLabel(result.Level, ui.noColor))
				ui.KeyValue("Confidence", fmt.Sprintf("%.0f%%", result.Confidence))
				if result.Notes != "" {
					ui.KeyValue("Notes", result.Notes)
				}
				return nil
			})
		},
	}
}

func levelLabel(level storage.CompatibilityLevel, plain bool) string {
	label := string(level)
	if label == "" {
		label = "unknown"
	}
	if plain {
		return label
	}
	switch level {
	case storage.CompatibilityPerfect, storage.CompatibilityCompatible:
		return color.GreenString(label)
	case storage.CompatibilityCheckSpecs:
		return color.YellowString(label)
	default:
		return color.RedString(label)
	}
}

// newRecommendCmd creates the recommend subcommand.
func newRecommendCmd() *cobra.Command {
	var current string

	cmd := &cobra.Command{
		Use:   "recommend <machine-model-id>",
		Short: "List products frequently bought for a machine model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)

			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				recs, err := a.Recommender.Recommend(ctx, args[0], current)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(map[string]any{"machineModelId": args[0], "recommendations": recs})
				}
				if len(recs) == 0 {
					ui.Warning("No recommendations for %s", args[0])
					return nil
				}

				rows := make([][]string, 0, len(recs))
				for _, r := range recs {
					rows = append(rows, []string{r.ProductID, r.Reason, r.Source})
				}
				ui.Table([]string{"Product", "Reason", "Source"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&current, "current", "", "product already in the cart")
	return cmd
}

// newFBTCmd creates the fbt subcommand.
func newFBTCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fbt",
		Short: "Manage frequently-bought-together data",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "recompute",
		Short: "Rebuild frequently-bought-together rows from purchase history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)

			return withApp(30*time.Minute, func(ctx context.Context, a *app.App) error {
				var (
					bar     *progressbar.ProgressBar
					started bool
				)
				report, err := a.Recomputer.RecomputeAll(ctx, func(modelID string, done, total int) {
					if !started {
						bar = ui.ProgressBar(total, "Recomputing")
						started = true
					}
					if bar != nil {
						_ = bar.Set(done)
					}
					logger.Debug().Str("machine_model_id", modelID).Int("done", done).Int("total", total).Msg("Model recomputed")
				})
				if err != nil {
					return err
				}

				if outputJSON {
					return ui.JSON(report)
				}
				ui.Success("Rebuilt %d rows for %d models in %s", report.Rows, report.Models, FormatDuration(report.Duration))
				return nil
			})
		},
	})
	return cmd
}

// newSupportCmd creates the support subcommand.
func newSupportCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "support",
		Short: "Show support desk availability and queue length",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)

			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				status, err := a.Support.Availability(ctx, time.Now(), language)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(status)
				}

				if status.Available {
					ui.Success("Support is open")
				} else {
					ui.Warning("Support is closed")
				}
				ui.KeyValue("Hours", status.Hours+" ("+status.Timezone+")")
				ui.KeyValue("Phone", status.Phone)
				if status.Email != "" {
					ui.KeyValue("Email", status.Email)
				}
				ui.KeyValue("Queue", status.QueueLength)
				ui.KeyValue("Estimated wait", fmt.Sprintf("%d min", status.EstimatedWaitMinutes))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&language, "language", "", "reply language (en or pl)")
	return cmd
}
