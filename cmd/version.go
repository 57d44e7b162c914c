package cmd

import (
	"fmt"
	"runtime"

	"flakeview/internal/ui"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "dev"
	// BuildTime is set at build time
	BuildTime = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display flakeview version information",
	Long:  `Display the current version of flakeview along with build information.`,
	Args:  cobra.NoArgs,
	// Works without a readable config file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Output, "flakeview version %s\n", Version)
		fmt.Fprintf(ui.Output, "Built at: %s\n", BuildTime)
		fmt.Fprintf(ui.Output, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
