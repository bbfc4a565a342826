package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autosync-project/autosync/internal/doctor"
	"github.com/autosync-project/autosync/pkg/color"
	"github.com/autosync-project/autosync/pkg/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the configuration for problems",
	Long: `Check the configuration for problems.

Loads the configuration and verifies that rsync can be found, that every
source exists, that destination parents exist, and that no destination
lies inside its own source. Exits with status 1 if any critical finding
is reported.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		result, err := doctor.NewDoctor(cfg).Check()
		if err != nil {
			return fmt.Errorf("doctor: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := outputJSON(out, result); err != nil {
				return err
			}
		} else if len(result.Findings) == 0 {
			fmt.Fprintln(out, color.Success(fmt.Sprintf("Configuration is healthy (%d project(s)).", len(cfg.Projects))))
		} else {
			fmt.Fprintln(out, color.Header(fmt.Sprintf("Findings (%d):", len(result.Findings))))
			for _, f := range result.Findings {
				scope := f.Category
				if f.Project != "" {
					scope = f.Project + "/" + f.Category
				}
				fmt.Fprintf(out, "  [%s] %s: %s\n", color.Severity(f.Severity), scope, f.Description)
				if f.Path != "" {
					fmt.Fprintf(out, "      %s\n", color.Dim(f.Path))
				}
			}
		}

		if !result.Healthy {
			return &exitError{code: 1}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
