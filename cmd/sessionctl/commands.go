package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/models"

	"github.com/spf13/cobra"
)

const dayLayout = "2006-01-02"

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or update providers from a YAML file",
	RunE:  runSeed,
}

var autoCompleteCmd = &cobra.Command{
	Use:   "autocomplete",
	Short: "Complete confirmed bookings whose end has passed",
	Long: `Run auto-completion once.

Without --force the run is skipped when another run happened within
auto_complete.min_interval. --preview lists what would be completed
without writing anything.`,
	RunE: runAutoComplete,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a booking",
	Long: `Cancel a booking. With --provider the booking must belong to that
provider; without it the command acts as an operator.`,
	RunE: runCancel,
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Mark a confirmed booking as completed",
	RunE:  runComplete,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recount completed sessions of every client",
	RunE:  runReconcile,
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List a provider's clients with their completed-session counters",
	RunE:  runClients,
}

var failedTasksCmd = &cobra.Command{
	Use:   "failed-tasks",
	Short: "List outbox tasks that exhausted their retries",
	RunE:  runFailedTasks,
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Show one outbox task",
	Long: `Show one outbox task. --requeue returns a failed task to pending so the
running server delivers it again.`,
	RunE: runTask,
}

var exportCmd = &cobra.Command{
	Use:   "export <provider>",
	Short: "Write a provider's bookings to an xlsx file",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	seedCmd.Flags().StringP("file", "f", "configs/providers.yaml", "provider seed file")

	autoCompleteCmd.Flags().String("provider", "", "limit the run to one provider slug")
	autoCompleteCmd.Flags().Bool("force", false, "ignore the minimum interval between runs")
	autoCompleteCmd.Flags().Bool("preview", false, "report without completing")

	for _, c := range []*cobra.Command{cancelCmd, completeCmd} {
		c.Flags().Int64("booking", 0, "booking id (required)")
		c.Flags().String("provider", "", "owning provider slug")
		_ = c.MarkFlagRequired("booking")
	}

	reconcileCmd.Flags().String("provider", "", "limit to one provider slug")

	clientsCmd.Flags().String("provider", "", "provider slug (required)")
	_ = clientsCmd.MarkFlagRequired("provider")

	taskCmd.Flags().Int64("id", 0, "task id (required)")
	taskCmd.Flags().Bool("requeue", false, "return a failed task to pending")
	_ = taskCmd.MarkFlagRequired("id")

	exportCmd.Flags().String("from", "", "first day, YYYY-MM-DD (required)")
	exportCmd.Flags().String("to", "", "last day, YYYY-MM-DD (required)")
	exportCmd.Flags().StringP("output", "o", "", "output file (default <exports.path>/bookings_<provider>_<from>_<to>.xlsx)")
	_ = exportCmd.MarkFlagRequired("from")
	_ = exportCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(seedCmd, autoCompleteCmd, cancelCmd, completeCmd, reconcileCmd,
		clientsCmd, failedTasksCmd, taskCmd, exportCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	providers, err := config.LoadProviders(file)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	if err := e.db.SeedProviders(ctx, providers); err != nil {
		return err
	}
	return printJSON(cmd, providers)
}

func runAutoComplete(cmd *cobra.Command, args []string) error {
	slug, _ := cmd.Flags().GetString("provider")
	force, _ := cmd.Flags().GetBool("force")
	preview, _ := cmd.Flags().GetBool("preview")

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	providerID, err := e.providerID(ctx, slug)
	if err != nil {
		return err
	}

	result, err := e.lifecycle.RunAutoCompletion(ctx, models.AutoCompleteOptions{
		ProviderID: providerID,
		Force:      force,
		Preview:    preview,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, err := bookingFlag(cmd)
	if err != nil {
		return err
	}
	slug, _ := cmd.Flags().GetString("provider")

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	providerID, err := e.providerID(ctx, slug)
	if err != nil {
		return err
	}

	result, err := e.lifecycle.CancelBooking(ctx, id, providerID)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runComplete(cmd *cobra.Command, args []string) error {
	id, err := bookingFlag(cmd)
	if err != nil {
		return err
	}
	slug, _ := cmd.Flags().GetString("provider")

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	providerID, err := e.providerID(ctx, slug)
	if err != nil {
		return err
	}

	booking, err := e.lifecycle.CompleteBooking(ctx, id, providerID)
	if err != nil {
		return err
	}
	return printJSON(cmd, booking)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	slug, _ := cmd.Flags().GetString("provider")

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	providerID, err := e.providerID(ctx, slug)
	if err != nil {
		return err
	}

	result, err := e.lifecycle.ReconcileCounters(ctx, providerID)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runClients(cmd *cobra.Command, args []string) error {
	slug, _ := cmd.Flags().GetString("provider")

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	providerID, err := e.providerID(ctx, slug)
	if err != nil {
		return err
	}

	clients, err := e.db.ListClients(ctx, providerID)
	if err != nil {
		return err
	}
	if clients == nil {
		clients = []*models.Client{}
	}
	return printJSON(cmd, clients)
}

func runFailedTasks(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	tasks, err := e.db.GetFailedSyncTasks(ctx)
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []models.SyncTask{}
	}
	return printJSON(cmd, tasks)
}

func runTask(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetInt64("id")
	requeue, _ := cmd.Flags().GetBool("requeue")
	if id <= 0 {
		return fmt.Errorf("invalid task id %d", id)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	task, err := e.db.GetSyncTask(ctx, id)
	if err != nil {
		return fmt.Errorf("task %d: %w", id, err)
	}

	if requeue {
		if task.Status != models.SyncStatusFailed {
			return fmt.Errorf("task %d is %s, only failed tasks can be requeued", id, task.Status)
		}
		if err := e.db.UpdateSyncTaskStatus(ctx, id, models.SyncStatusPending, "", nil); err != nil {
			return err
		}
		e.logger.Info().Int64("task_id", id).Str("type", task.TaskType).Msg("Task requeued")
		if task, err = e.db.GetSyncTask(ctx, id); err != nil {
			return err
		}
	}
	return printJSON(cmd, task)
}

func runExport(cmd *cobra.Command, args []string) error {
	slug := args[0]
	fromRaw, _ := cmd.Flags().GetString("from")
	toRaw, _ := cmd.Flags().GetString("to")
	output, _ := cmd.Flags().GetString("output")

	from, err := time.Parse(dayLayout, fromRaw)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := time.Parse(dayLayout, toRaw)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	if output == "" {
		dir := e.cfg.Exports.Path
		if dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		output = filepath.Join(dir, fmt.Sprintf("bookings_%s_%s_%s.xlsx", slug, fromRaw, toRaw))
	}

	file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer file.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	if err := e.export.ExportBookings(ctx, slug, 0, from, to.AddDate(0, 0, 1), file); err != nil {
		_ = os.Remove(output)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", output)
	return nil
}

func bookingFlag(cmd *cobra.Command) (int64, error) {
	id, err := cmd.Flags().GetInt64("booking")
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid booking id %d", id)
	}
	return id, nil
}
