// Package cmd implements the diagd command line interface.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/silvermint/diagd/internal/config"
	"github.com/silvermint/diagd/internal/observability"
)

// versionInfo holds the build metadata injected by the linker.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata before Execute runs.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile  string
	logLevel string

	// loadedConfig is populated by the persistent pre-run and shared by
	// all commands.
	loadedConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "diagd",
	Short: "Device diagnostics daemon",
	Long: `diagd runs hardware diagnostic routines on the local device.

Run it as a daemon exposing an HTTP control surface, or drive individual
routines from the terminal with the diag subcommands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		loadedConfig = cfg

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		if err := observability.InitCLILogger(level); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default: diagd.yaml in /etc/diagd or cwd)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug|info|warn|error)")
}

// Execute runs the CLI. The returned error may carry a process exit code
// retrievable with ExitCode.
func Execute() error {
	defer observability.Sync()
	return rootCmd.Execute()
}

// codedError pairs an error with a process exit code.
type codedError struct {
	code    int
	message string
	err     error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *codedError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the
// given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, message: message, err: err}
}

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
