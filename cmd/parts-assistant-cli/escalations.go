package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/machineparts/parts-assistant/internal/app"
	"github.com/machineparts/parts-assistant/internal/storage"
)

// newEscalationsCmd creates the escalations subcommand.
func newEscalationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "Work the human escalation queue",
	}

	cmd.AddCommand(newEscalationsListCmd())
	cmd.AddCommand(newEscalationsAssignCmd())
	cmd.AddCommand(newEscalationsResolveCmd())
	return cmd
}

func newEscalationsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List escalations, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)

			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				entries, err := a.Conversations.ListEscalations(ctx, storage.EscalationStatus(status))
				if err != nil {
					return err
				}
				if outputJSON {
					if entries == nil {
						entries = []*storage.EscalationEntry{}
					}
					return ui.JSON(map[string]any{"escalations": entries})
				}
				if len(entries) == 0 {
					ui.Info("No escalations")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.ID,
						e.ConversationID,
						string(e.Priority),
						string(e.Status),
						orDash(e.AssignedTo),
						e.CreatedAt.Format(time.RFC3339),
					})
				}
				ui.Table([]string{"ID", "Conversation", "Priority", "Status", "Agent", "Created"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, assigned, resolved)")
	return cmd
}

func newEscalationsAssignCmd() *cobra.Command {
	var agent string

	cmd := &cobra.Command{
		Use:   "assign <escalation-id>",
		Short: "Assign a pending escalation to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)
			if agent == "" {
				agent = os.Getenv("USER")
			}

			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				entry, err := a.Conversations.Assign(ctx, args[0], agent)
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(entry)
				}
				ui.Success("Escalation %s assigned to %s", entry.ID, agent)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "", "agent id (default: $USER)")
	return cmd
}

func newEscalationsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <escalation-id>",
		Short: "Mark an assigned escalation as resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newUI(cmd)

			return withApp(30*time.Second, func(ctx context.Context, a *app.App) error {
				entry, err := a.Conversations.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				if outputJSON {
					return ui.JSON(entry)
				}
				ui.Success("Escalation %s resolved", entry.ID)
				return nil
			})
		},
	}
}
