package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autosync-project/autosync/pkg/color"
	"github.com/autosync-project/autosync/pkg/config"
	"github.com/autosync-project/autosync/pkg/errclass"
)

func createTestRootCmd() *cobra.Command {
	jsonOutput = false
	noColor = false
	configPath = config.DefaultPath
	logPath = ""
	once = false
	metricsAddr = ""
	color.Disable()

	cmd := &cobra.Command{
		Use:           "autosync",
		Short:         rootCmd.Short,
		Long:          rootCmd.Long,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}
	addPersistentFlags(cmd)
	addRunFlags(cmd)

	cmd.AddCommand(doctorCmd)
	cmd.AddCommand(configCmd)
	cmd.AddCommand(versionCmd)
	cmd.AddCommand(completionCmd)
	return cmd
}

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// writeConfig writes a config file whose rsync path is "sh" so tool lookups
// succeed without rsync installed.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync_config.yml")
	require.NoError(t, os.WriteFile(path, []byte("rsync:\n  path: sh\n"+body), 0644))
	return path
}

func projectYAML(name, src, dst string, watch bool) string {
	return fmt.Sprintf("  - name: %s\n    src: %s\n    dst: %s\n    watch: %t\n", name, src, dst, watch)
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return -1
}

func TestRootCommand_Help(t *testing.T) {
	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "rsync")
	assert.Contains(t, stdout, "--once")
	assert.Contains(t, stdout, "--metrics-addr")
}

func TestRootCommand_JSONFlag(t *testing.T) {
	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "--json", "--help")
	require.NoError(t, err)
	assert.True(t, jsonOutput)
}

func TestRootCommand_RejectsArgs(t *testing.T) {
	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "unknown-command-xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRootCommand_OnceMode(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "missing")
	cfg := writeConfig(t, "projects:\n"+projectYAML("docs", missing, filepath.Join(root, "out"), false))

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "-c", cfg, "--once")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Performing one-time sync for all projects")
	assert.Contains(t, stdout, "Syncing project: docs")
	assert.Contains(t, stdout, "Source path does not exist")
	assert.Contains(t, stdout, "One-time sync completed, exiting")
}

func TestRootCommand_OnceModeWritesLogFile(t *testing.T) {
	root := t.TempDir()
	cfg := writeConfig(t, "projects:\n"+projectYAML("docs", filepath.Join(root, "missing"), filepath.Join(root, "out"), false))
	logFile := filepath.Join(root, "logs", "autosync.log")

	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "-c", cfg, "-o", "-l", logFile)
	require.NoError(t, err)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "One-time sync completed, exiting")
}

func TestRootCommand_MissingConfig(t *testing.T) {
	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "-c", filepath.Join(t.TempDir(), "nope.yml"), "--once")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, stdout, "Failed to load configuration")
}

func TestRootCommand_EmptyProjects(t *testing.T) {
	cfg := writeConfig(t, "projects: []\n")

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "-c", cfg)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, stdout, "No projects found in configuration file")
}

func TestVersionCommand(t *testing.T) {
	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "autosync "+Version)
}

func TestVersionCommand_JSON(t *testing.T) {
	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--json", "version")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, Version, info["version"])
}

func TestDoctorCommand_Healthy(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.Mkdir(src, 0755))
	cfg := writeConfig(t, "projects:\n"+projectYAML("docs", src, filepath.Join(root, "dst"), true))

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "doctor", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Configuration is healthy (1 project(s))")
}

func TestDoctorCommand_Unhealthy(t *testing.T) {
	src := t.TempDir()
	cfg := writeConfig(t, "projects:\n"+projectYAML("loop", src, filepath.Join(src, "backup"), true))

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "doctor", "-c", cfg)
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, stdout, "Findings (1):")
	assert.Contains(t, stdout, "[critical] loop/overlap")
	assert.Contains(t, stdout, filepath.Join(src, "backup"))
}

func TestDoctorCommand_JSON(t *testing.T) {
	root := t.TempDir()
	cfg := writeConfig(t, "projects:\n"+projectYAML("gone", filepath.Join(root, "missing"), filepath.Join(root, "dst"), false))

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--json", "doctor", "-c", cfg)
	require.NoError(t, err)

	var result struct {
		Healthy  bool `json:"healthy"`
		Findings []struct {
			Category string `json:"category"`
			Project  string `json:"project"`
			Severity string `json:"severity"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.True(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "source", result.Findings[0].Category)
	assert.Equal(t, "gone", result.Findings[0].Project)
	assert.Equal(t, "warning", result.Findings[0].Severity)
}

func TestDoctorCommand_MissingConfig(t *testing.T) {
	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "doctor", "-c", filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrConfigNotFound))
}

func TestConfigShowCommand(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	cfg := writeConfig(t, "projects:\n"+projectYAML("docs", src+"/", filepath.Join(root, "dst"), true))

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "config", "show", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "# "+cfg)
	assert.Contains(t, stdout, "src: "+src+"/")
	assert.Contains(t, stdout, "flags: -aP")
	assert.Contains(t, stdout, "path: sh")
}

func TestConfigShowCommand_JSON(t *testing.T) {
	root := t.TempDir()
	cfg := writeConfig(t, "projects:\n"+projectYAML("docs", filepath.Join(root, "src"), filepath.Join(root, "dst"), false))

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--json", "config", "show", "-c", cfg)
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.Len(t, got.Projects, 1)
	assert.Equal(t, "docs", got.Projects[0].Name)
	assert.Equal(t, "-aP", got.Rsync.Flags)
}

func TestConfigValidateCommand(t *testing.T) {
	root := t.TempDir()
	cfg := writeConfig(t, "projects:\n"+
		projectYAML("a", filepath.Join(root, "a"), filepath.Join(root, "a-out"), true)+
		projectYAML("b", filepath.Join(root, "b"), filepath.Join(root, "b-out"), false))

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "config", "validate", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "valid: 2 project(s), 1 watched")
}

func TestConfigValidateCommand_Invalid(t *testing.T) {
	cfg := writeConfig(t, "projects:\n  - name: a\n    src: /x\n")

	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "config", "validate", "-c", cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrConfigInvalid))
	assert.Contains(t, err.Error(), "dst is required")
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			cmd := createTestRootCmd()
			stdout, err := executeCommand(cmd, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, stdout, "autosync")
		})
	}
}

func TestCompletionCommand_InvalidShell(t *testing.T) {
	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "completion", "tcsh")
	assert.Error(t, err)
}
