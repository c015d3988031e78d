// Package telemetry sends anonymous, opt-in usage events for the
// transcriptforge CLI. No file contents, file paths, or command/terminal
// output ever leave the process — only command names, flag names, and
// coarse run statistics.
package telemetry

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// PostHogAPIKey is set at build time for production.
	PostHogAPIKey = "phc_development_key"
	// PostHogEndpoint is set at build time for production.
	PostHogEndpoint = "https://eu.i.posthog.com"
)

// Client defines the telemetry interface.
type Client interface {
	TrackCommand(cmd *cobra.Command, stats RunStats)
	Close()
}

// RunStats carries coarse, non-identifying statistics about a completed
// serialize run.
type RunStats struct {
	Tokenizer         string
	TotalSessions     int
	TotalConversations int
}

// NoOpClient is a no-op implementation used when telemetry is disabled.
type NoOpClient struct{}

func (NoOpClient) TrackCommand(*cobra.Command, RunStats) {}
func (NoOpClient) Close()                                {}

// silentLogger suppresses PostHog log output - expected for best-effort telemetry.
type silentLogger struct{}

func (silentLogger) Logf(string, ...interface{})   {}
func (silentLogger) Debugf(string, ...interface{}) {}
func (silentLogger) Warnf(string, ...interface{})  {}
func (silentLogger) Errorf(string, ...interface{}) {}

// PostHogClient is the real telemetry client.
type PostHogClient struct {
	client     posthog.Client
	machineID  string
	cliVersion string
	mu         sync.RWMutex
}

// NewClient creates a telemetry client based on opt-in settings. telemetryEnabled
// comes from settings; nil or false means disabled (the default).
//
//nolint:ireturn // Factory function - returns NoOpClient or PostHogClient based on settings
func NewClient(version string, telemetryEnabled *bool) Client {
	if os.Getenv("TRANSCRIPTFORGE_TELEMETRY_OPTOUT") != "" {
		return NoOpClient{}
	}

	if telemetryEnabled == nil || !*telemetryEnabled {
		return NoOpClient{}
	}

	id, err := machineid.ProtectedID("transcriptforge-cli")
	if err != nil {
		return NoOpClient{}
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 100 * time.Millisecond,
		}).DialContext,
		TLSHandshakeTimeout:   100 * time.Millisecond,
		ResponseHeaderTimeout: 100 * time.Millisecond,
	}

	client, err := posthog.NewWithConfig(PostHogAPIKey, posthog.Config{
		Endpoint:           PostHogEndpoint,
		ShutdownTimeout:    100 * time.Millisecond,
		BatchUploadTimeout: 200 * time.Millisecond,
		Transport:          transport,
		Logger:             silentLogger{},
		DisableGeoIP:       posthog.Ptr(true),
		DefaultEventProperties: posthog.NewProperties().
			Set("cli_version", version).
			Set("os", runtime.GOOS).
			Set("arch", runtime.GOARCH),
	})
	if err != nil {
		return NoOpClient{}
	}

	return &PostHogClient{
		client:     client,
		machineID:  id,
		cliVersion: version,
	}
}

// TrackCommand records a command execution and its run statistics.
func (p *PostHogClient) TrackCommand(cmd *cobra.Command, stats RunStats) {
	if cmd == nil || cmd.Hidden {
		return
	}

	p.mu.RLock()
	id := p.machineID
	c := p.client
	p.mu.RUnlock()

	if c == nil {
		return
	}

	var flags []string
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		flags = append(flags, flag.Name)
	})

	props := posthog.NewProperties().
		Set("command", cmd.CommandPath()).
		Set("tokenizer", stats.Tokenizer).
		Set("total_sessions", stats.TotalSessions).
		Set("total_conversations", stats.TotalConversations)

	if len(flags) > 0 {
		props.Set("flags", strings.Join(flags, ","))
	}

	//nolint:errcheck // Best-effort telemetry, failures should not affect CLI
	_ = c.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      "cli_command_executed",
		Properties: props,
	})
}

// Close flushes pending events.
func (p *PostHogClient) Close() {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()

	if c != nil {
		_ = c.Close()
	}
}
