package deploybotcli

import (
	"fmt"

	"github.com/haloydev/deploybot/internal/config"
	"github.com/haloydev/deploybot/internal/ui"
	"github.com/spf13/cobra"
)

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the deploybot configuration",
	}

	cmd.AddCommand(
		configValidateCmd(configPath),
		configShowCmd(configPath),
	)

	return cmd
}

func configValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the config file loads and is complete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, file, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ui.Success("Config file %s is valid", file)
			return nil
		},
	}
}

func configShowCmd(configPath *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Long: `Print the configuration after defaults, .env files and ${VAR} references
are applied. Tokens, keys and webhook URLs are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			masked, err := cfg.Masked()
			if err != nil {
				return err
			}
			out, err := config.Marshal(masked, format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml, json or toml")

	return cmd
}
