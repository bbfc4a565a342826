package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autosync-project/autosync/pkg/color"
	"github.com/autosync-project/autosync/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Inspect the autosync configuration",
	Long: `Inspect the autosync configuration file.

Available commands:
  show      - Print the configuration after defaults and path expansion
  validate  - Load the configuration and report every problem found`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long: `Show the configuration as autosync will use it: names normalized,
~ expanded, paths made absolute and rsync defaults filled in.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, cfg.Redacted())
		}

		data, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		fmt.Fprintf(out, "# %s\n", configPath)
		_, err = out.Write(data)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, map[string]any{
				"valid":    true,
				"projects": len(cfg.Projects),
				"watched":  len(cfg.Watched()),
			})
		}
		fmt.Fprintf(out, "%s %d project(s), %d watched\n",
			color.Success("valid:"), len(cfg.Projects), len(cfg.Watched()))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
