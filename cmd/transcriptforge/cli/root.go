// Package cli wires together transcriptforge's subcommands, settings,
// logging and telemetry.
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/transcriptforge/cli/internal/settings"
	"github.com/transcriptforge/cli/internal/telemetry"
)

// Version information, overridable at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// SilentError wraps an error that has already been reported to the user
// (e.g. logged with context), so main.go should exit non-zero without
// printing it again.
type SilentError struct {
	err error
}

// NewSilentError wraps err as a SilentError.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string { return e.err.Error() }
func (e *SilentError) Unwrap() error { return e.err }

// NewRootCmd builds the transcriptforge command tree.
func NewRootCmd() *cobra.Command {
	var runStats telemetry.RunStats

	cmd := &cobra.Command{
		Use:   "transcriptforge",
		Short: "Convert IDE interaction traces into shell-transcript training records",
		Long: "transcriptforge turns recorded IDE sessions (tab switches, edits,\n" +
			"terminal commands and output, branch checkouts) into alternating\n" +
			"Assistant/User shell-transcript conversations for fine-tuning.",
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			var telemetryEnabled *bool
			if s, err := settings.Load(); err == nil {
				telemetryEnabled = s.Telemetry
			}

			client := telemetry.NewClient(Version, telemetryEnabled)
			defer client.Close()
			client.TrackCommand(cmd, runStats)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newSerializeCmd(&runStats))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "transcriptforge %s (%s)\n", Version, Commit)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
