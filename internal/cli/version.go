package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the autosync version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{
			"version": Version,
			"go":      runtime.Version(),
			"os_arch": runtime.GOOS + "/" + runtime.GOARCH,
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return outputJSON(out, info)
		}
		fmt.Fprintf(out, "autosync %s (%s, %s)\n", info["version"], info["go"], info["os_arch"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
