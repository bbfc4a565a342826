package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/autosync-project/autosync/internal/supervisor"
	"github.com/autosync-project/autosync/pkg/color"
	"github.com/autosync-project/autosync/pkg/config"
)

var (
	jsonOutput  bool
	noColor     bool
	configPath  string
	logPath     string
	once        bool
	metricsAddr string

	rootCmd = &cobra.Command{
		Use:   "autosync",
		Short: "autosync - mirror directories as they change",
		Long: `autosync watches source directories and mirrors every change into a
destination directory by running rsync. Each project is synced once at
startup; projects with watch enabled are then re-synced whenever a file
changes, at most once every two seconds.`,
		Args:             cobra.NoArgs,
		SilenceUsage:     true,
		SilenceErrors:    true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) { color.Init(noColor) },
		RunE:             runRoot,
	}
)

// exitError carries a non-zero exit code whose cause has already been
// reported through the log stream.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	addPersistentFlags(rootCmd)
	addRunFlags(rootCmd)
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the configuration file")
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&logPath, "log", "l", "", "also write logs to this file (rotated)")
	cmd.Flags().BoolVarP(&once, "once", "o", false, "sync every project once and exit")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")
}

func runRoot(cmd *cobra.Command, args []string) error {
	code := supervisor.Run(cmd.Context(), supervisor.Options{
		ConfigPath:  configPath,
		LogPath:     logPath,
		Once:        once,
		MetricsAddr: metricsAddr,
		Stdout:      cmd.OutOrStdout(),
	})
	if code != supervisor.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

// Execute runs the root command and exits the process on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmtErr("%v", err)
		os.Exit(1)
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(w io.Writer, v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtErr(format string, args ...any) {
	prefix := "autosync: "
	if color.Enabled() {
		prefix = color.Error("autosync:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
