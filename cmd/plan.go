package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"flakeview/internal/common"
	"flakeview/internal/pipeline"
	"flakeview/internal/ui"
	"flakeview/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	planRef    string
	planExport string
	planSort   bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate the view pipeline and show its dependencies",
	Long: `Validate the pipeline without connecting anywhere and print each view with
the pipeline views it reads from. A view must come after every view it reads.

--export writes the pipeline as YAML, which is a starting point for a custom
--pipeline file.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().String("pipeline", "", "pipeline YAML file (default built-in harmonize pipeline)")
	planCmd.Flags().StringVar(&planRef, "ref", "", "read the pipeline file as of this git revision")
	planCmd.Flags().StringVar(&planExport, "export", "", "write the pipeline to this YAML file")
	planCmd.Flags().BoolVar(&planSort, "sort", false, "show the pipeline in dependency order")
}

func runPlan(cmd *cobra.Command, args []string) error {
	p, source, err := loadPipeline(appConfig, planRef)
	if err != nil {
		return err
	}
	if planSort {
		if p, err = p.Sorted(); err != nil {
			return err
		}
	}

	ui.ShowHeader("flakeview plan")
	ui.PrintKeyValue("Pipeline", source)
	ui.PrintKeyValue("Views", strconv.Itoa(len(p)))
	fmt.Fprintln(ui.Output)

	printPlanTable(p)

	if err := p.Validate(); err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			if issues, ok := appErr.Context["issues"].([]string); ok {
				ui.PrintSection("Issues")
				for _, issue := range issues {
					fmt.Fprintf(ui.Output, "  %s %s\n", ui.ColorError("✗"), issue)
				}
			}
		}
		return err
	}

	if planExport != "" {
		if err := exportPipeline(p, planExport); err != nil {
			return err
		}
		ui.ShowInfo("Pipeline written to " + planExport)
	}

	fmt.Fprintln(ui.Output)
	ui.ShowSuccess("Pipeline is valid")
	return nil
}

func printPlanTable(p pipeline.Pipeline) {
	deps := p.Dependencies()
	levels, _ := p.Graph().Levels()

	table := ui.NewTable("#", "View", "Creates", "Reads from", "Level")
	for i, view := range p {
		var reads []string
		for _, j := range deps[i] {
			name := p[j].Name
			if j > i {
				name += " (later!)"
			}
			reads = append(reads, name)
		}

		level := "-"
		if l, ok := levels[view.Name]; ok {
			level = strconv.Itoa(l)
		}

		target := view.Target()
		if target == "" {
			target = "?"
		}
		table.Append([]string{strconv.Itoa(i + 1), view.Name, target, strings.Join(reads, ", "), level})
	}
	table.Render()
}

func exportPipeline(p pipeline.Pipeline, path string) error {
	data, err := pipeline.Marshal(p)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode pipeline")
	}

	cleaned, err := common.CleanPath(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid export path").WithContext("path", path)
	}
	if err := os.WriteFile(cleaned, data, common.FilePermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to write pipeline file").WithContext("path", cleaned)
	}
	return nil
}
