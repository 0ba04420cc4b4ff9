package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/majorcontext/portico/internal/ui"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Version returns the build version string.
func Version() string {
	return version
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of portico",
	Run: func(cmd *cobra.Command, args []string) {
		ui.Infof("portico %s", version)
		if commit != "none" {
			ui.Infof("  commit: %s", commit)
		}
		if date != "unknown" {
			ui.Infof("  built:  %s", date)
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Fprintf(ui.Stdout(), "  go:     %s\n", info.GoVersion)
		}
	},
}
