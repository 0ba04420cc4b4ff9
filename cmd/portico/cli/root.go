// Package cli implements the portico command-line interface using Cobra.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/majorcontext/portico/internal/config"
	"github.com/majorcontext/portico/internal/log"
)

var (
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "portico",
	Short: "Portico - local reverse proxy that injects per-target credentials",
	Long: `Portico is a local reverse proxy for API clients.

A caller sends a request to portico with an X-Target-Id header naming a
registered target. Portico forwards it to that target's host, replacing
any Authorization header with the target's configured credentials (basic,
bearer, or an OAuth client-credentials token it fetches and caches).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		globalCfg, _ := config.LoadGlobal()

		if err := log.Init(log.Options{
			Verbose:       verbose,
			JSONFormat:    jsonOut,
			DebugDir:      config.DebugDir(),
			RetentionDays: globalCfg.Debug.RetentionDays,
		}); err != nil {
			// Non-fatal: the default stderr logger stays in place.
			cmd.PrintErrf("Warning: failed to initialize debug logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Close()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
}
