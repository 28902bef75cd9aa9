package deploybotcli

import (
	"fmt"
	"os"
	"strings"

	"github.com/haloydev/deploybot/internal/command"
	"github.com/haloydev/deploybot/internal/deploytypes"
	"github.com/haloydev/deploybot/internal/logging"
	"github.com/haloydev/deploybot/internal/notify"
	"github.com/spf13/cobra"
)

func runCmd(configPath *string) *cobra.Command {
	var (
		actor   string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run <command>",
		Short: "Run one chat command from the terminal",
		Long: `Run one chat command and print its progress in the terminal.

The command text uses the chat syntax:
  deploy <commit> to workload <name> in <Staging|Production> [dry run]
  rollback project <id> workload <id> <revision <name>|latest|previous> [dry run]
  pause project <id> workload <id> [dry run]
  resume project <id> workload <id> [dry run]
  list projects
  list project <id> workloads
  list project <id> workload <id> revisions

The actor must be in the allow-list, just as in chat.`,
		Example: `  deploybot run deploy 1a2b3c4 to workload web-api in Staging dry run
  deploybot run --actor alice rollback project c-1:p-1 workload deployment:web:api previous`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = os.Getenv("USER")
			}
			parsed, err := command.Parse(actor, strings.Join(args, " "))
			if err != nil {
				return err
			}

			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			level := logging.ParseLevel("warn")
			if verbose {
				level = logging.ParseLevel(cfg.Log.Level)
			}
			logger := logging.NewLogger(level, cfg.Log.Format, cmd.ErrOrStderr())

			a, err := newApp(cmd.Context(), cfg, logger, notify.Terminal{})
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.orchestrator.Handle(cmd.Context(), parsed)
			if report.Outcome != deploytypes.OutcomeCompleted {
				label := parsed.Kind.String()
				if parsed.Kind == command.KindAction {
					label = string(parsed.Request.Action)
				}
				return fmt.Errorf("%s %s (request %s)", label, strings.ToLower(string(report.Outcome)), report.RequestID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Name checked against the allow-list (default: $USER)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show pipeline logs")

	return cmd
}
