package deploybotcli

import (
	"github.com/haloydev/deploybot/internal/config"
	"github.com/haloydev/deploybot/internal/ui"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deploybot",
		Short: "deploybot deploys, rolls back, pauses and resumes Rancher workloads from chat",
		Long: `deploybot runs chat commands against Rancher workloads.

Every command goes through the same pipeline:
  - the actor is checked against the allow-list
  - the source repository, commit, project, workload and image are verified
  - the target revision is resolved for rollbacks
  - the action is sent to Rancher, unless it is a dry run`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadEnvFiles()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file or directory (default: $DEPLOYBOT_CONFIG or .)")

	cmd.AddCommand(
		serveCmd(&configPath),
		runCmd(&configPath),
		configCmd(&configPath),
		versionCmd(),
	)

	return cmd
}

func Execute() int {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		ui.Error("%v", err)
		return 1
	}
	return 0
}
