package cmd

import (
	"os"

	"github.com/miniiam/apiserver/config"
	"github.com/miniiam/apiserver/internal/telemetry"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "miniiam",
	Short: "Identity lifecycle and access-governance service",
	Long: `MiniIAM manages user accounts, role-based permissions, access requests
with approval workflows, and an immutable audit trail.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		telemetry.SetupLogger(cfg.Log.Format, cfg.Log.Level)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
