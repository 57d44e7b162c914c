package cmd

import (
	"fmt"
	"strconv"

	"flakeview/internal/history"
	"flakeview/internal/ui"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyShow  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded deployments",
	Long: `List recorded deployments, newest first. --show prints the views of one
deployment, including where a failed run stopped.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().String("history-dir", "", "deployment history directory (default ~/.flakeview/history)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of deployments to list, 0 for all")
	historyCmd.Flags().StringVar(&historyShow, "show", "", "show the views of this deployment")
}

func runHistory(cmd *cobra.Command, args []string) error {
	hm, err := historyManager(appConfig)
	if err != nil {
		return err
	}

	if historyShow != "" {
		rec, err := hm.Get(historyShow)
		if err != nil {
			return err
		}
		showRecord(rec)
		return nil
	}

	records := hm.List(historyLimit)
	if len(records) == 0 {
		ui.ShowInfo("No deployments recorded yet")
		return nil
	}

	table := ui.NewTable("ID", "Started", "State", "Target", "Views", "Duration", "Commit")
	for _, rec := range records {
		table.Append([]string{
			rec.ID,
			ui.RelativeTime(rec.StartTime),
			ui.State(string(rec.State)),
			describeScope(rec.Scope),
			viewSummary(rec),
			ui.FormatDuration(rec.Duration()),
			shortCommit(rec.Commit),
		})
	}
	table.Render()
	return nil
}

func showRecord(rec *history.Record) {
	ui.ShowHeader("Deployment " + rec.ID)
	ui.PrintKeyValue("State", ui.State(string(rec.State)))
	ui.PrintKeyValue("Target", describeScope(rec.Scope))
	ui.PrintKeyValue("Pipeline", rec.Pipeline)
	ui.PrintKeyValue("Started", rec.StartTime.Format("2006-01-02 15:04:05"))
	ui.PrintKeyValue("Duration", ui.FormatDuration(rec.Duration()))
	if rec.Commit != "" {
		ui.PrintKeyValue("Commit", rec.Commit)
	}
	if rec.PreviousID != "" {
		ui.PrintKeyValue("Previous", rec.PreviousID)
	}
	if rec.ErrorMessage != "" {
		ui.PrintKeyValue("Error", fmt.Sprintf("[%s] %s", rec.ErrorCode, rec.ErrorMessage))
	}
	fmt.Fprintln(ui.Output)

	table := ui.NewTable("#", "View", "Target", "Result", "Duration")
	for _, exec := range rec.Views {
		result := ui.ColorSuccess("applied")
		if !exec.Success {
			result = ui.ColorError("failed")
		}
		table.Append([]string{strconv.Itoa(exec.Order), exec.Name, exec.Target, result, ui.FormatDuration(exec.Duration)})
	}
	for _, name := range rec.Pending {
		table.Append([]string{"-", name, "", ui.ColorDim("not attempted"), ""})
	}
	table.Render()

	for _, exec := range rec.Views {
		if exec.ErrorMessage != "" {
			fmt.Fprintf(ui.Output, "\n%s %s: %s\n", ui.ColorError("✗"), exec.Name, exec.ErrorMessage)
		}
	}

	if from, ok := rec.ResumeFrom(); ok {
		fmt.Fprintln(ui.Output)
		ui.ShowInfo(fmt.Sprintf("Resume with: flakeview deploy --resume (starts at %s)", from))
	}
}

func viewSummary(rec *history.Record) string {
	applied := 0
	for _, exec := range rec.Views {
		if exec.Success {
			applied++
		}
	}
	total := len(rec.Views) + len(rec.Pending)
	return fmt.Sprintf("%d/%d", applied, total)
}

func shortCommit(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
