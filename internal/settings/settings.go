// Package settings provides configuration loading for transcriptforge,
// merging a project settings file with local overrides and CLI flags.
package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/transcriptforge/cli/internal/csm"
	"github.com/transcriptforge/cli/redact"
)

const (
	// SettingsFile is the path to the project settings file.
	SettingsFile = ".transcriptforge/settings.json"
	// SettingsLocalFile is the path to the local override file (not committed).
	SettingsLocalFile = ".transcriptforge/settings.local.json"
)

// DefaultTokenizer is the tokenizer backend used when none is configured.
const DefaultTokenizer = "approx"

// Settings represents the .transcriptforge/settings.json configuration:
// defaults for the serialize command, overridable by CLI flags.
type Settings struct {
	// Tokenizer selects the token-counting backend (see internal/tokenizer).
	Tokenizer string `json:"tokenizer,omitempty"`

	// LogLevel sets logging verbosity (debug, info, warn, error). Can be
	// overridden by the TRANSCRIPTFORGE_LOG_LEVEL environment variable.
	LogLevel string `json:"log_level,omitempty"`

	// Telemetry controls anonymous usage analytics.
	// nil = not asked yet, true = opted in, false = opted out.
	Telemetry *bool `json:"telemetry,omitempty"`

	// ViewportRadius and CoalesceRadius mirror csm.Config.
	ViewportRadius int `json:"viewport_radius,omitempty"`
	CoalesceRadius int `json:"coalesce_radius,omitempty"`

	// MaxTokensPerMessage and MaxTokensPerTerminalOutput mirror csm.Config.
	MaxTokensPerMessage        int `json:"max_tokens_per_message,omitempty"`
	MaxTokensPerTerminalOutput int `json:"max_tokens_per_terminal_output,omitempty"`

	// MaxTokensPerConversation enables chunking when non-zero.
	MaxTokensPerConversation int `json:"max_tokens_per_conversation,omitempty"`
	// MinConversationMessages is the minimum message count to keep a chunk.
	MinConversationMessages int `json:"min_conversation_messages,omitempty"`

	// ValRatio is the fraction of sessions routed to validation.jsonl.
	ValRatio float64 `json:"val_ratio,omitempty"`

	// RedactEntropyThreshold is the minimum Shannon entropy (see
	// redact.EntropyThreshold) a candidate string must exceed to be
	// redacted from output. Lower it to catch more borderline secrets at
	// the cost of false positives on dense non-secret text; raise it for
	// sessions that legitimately contain high-entropy non-secret content
	// (minified bundles, content hashes).
	RedactEntropyThreshold float64 `json:"redact_entropy_threshold,omitempty"`
}

// Load loads settings from .transcriptforge/settings.json, then applies any
// overrides from .transcriptforge/settings.local.json if present. Returns
// defaults if neither file exists.
func Load() (*Settings, error) {
	s, err := loadFromFile(SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	localData, err := os.ReadFile(SettingsLocalFile) //nolint:gosec // constant path
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading local settings file: %w", err)
		}
	} else if err := mergeJSON(s, localData); err != nil {
		return nil, fmt.Errorf("merging local settings: %w", err)
	}

	applyDefaults(s)
	return s, nil
}

func loadFromFile(filePath string) (*Settings, error) {
	s := &Settings{}
	applyDefaults(s)

	data, err := os.ReadFile(filePath) //nolint:gosec // caller-controlled constant path
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("%w", err)
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings file: %w", err)
	}
	applyDefaults(s)
	return s, nil
}

func mergeJSON(s *Settings, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	if tokenizerRaw, ok := raw["tokenizer"]; ok {
		var v string
		if err := json.Unmarshal(tokenizerRaw, &v); err != nil {
			return fmt.Errorf("parsing tokenizer field: %w", err)
		}
		if v != "" {
			s.Tokenizer = v
		}
	}

	if logLevelRaw, ok := raw["log_level"]; ok {
		var v string
		if err := json.Unmarshal(logLevelRaw, &v); err != nil {
			return fmt.Errorf("parsing log_level field: %w", err)
		}
		if v != "" {
			s.LogLevel = v
		}
	}

	if telemetryRaw, ok := raw["telemetry"]; ok {
		var v bool
		if err := json.Unmarshal(telemetryRaw, &v); err != nil {
			return fmt.Errorf("parsing telemetry field: %w", err)
		}
		s.Telemetry = &v
	}

	if valRatioRaw, ok := raw["val_ratio"]; ok {
		var v float64
		if err := json.Unmarshal(valRatioRaw, &v); err != nil {
			return fmt.Errorf("parsing val_ratio field: %w", err)
		}
		s.ValRatio = v
	}

	if thresholdRaw, ok := raw["redact_entropy_threshold"]; ok {
		var v float64
		if err := json.Unmarshal(thresholdRaw, &v); err != nil {
			return fmt.Errorf("parsing redact_entropy_threshold field: %w", err)
		}
		s.RedactEntropyThreshold = v
	}

	intFields := map[string]*int{
		"viewport_radius":                &s.ViewportRadius,
		"coalesce_radius":                &s.CoalesceRadius,
		"max_tokens_per_message":         &s.MaxTokensPerMessage,
		"max_tokens_per_terminal_output": &s.MaxTokensPerTerminalOutput,
		"max_tokens_per_conversation":    &s.MaxTokensPerConversation,
		"min_conversation_messages":      &s.MinConversationMessages,
	}
	for field, dst := range intFields {
		fieldRaw, ok := raw[field]
		if !ok {
			continue
		}
		var v int
		if err := json.Unmarshal(fieldRaw, &v); err != nil {
			return fmt.Errorf("parsing %s field: %w", field, err)
		}
		*dst = v
	}

	return nil
}

func applyDefaults(s *Settings) {
	if s.Tokenizer == "" {
		s.Tokenizer = DefaultTokenizer
	}
	if s.ViewportRadius == 0 {
		s.ViewportRadius = csm.DefaultViewportRadius
	}
	if s.CoalesceRadius == 0 {
		s.CoalesceRadius = csm.DefaultCoalesceRadius
	}
	if s.MaxTokensPerMessage == 0 {
		s.MaxTokensPerMessage = csm.DefaultMaxTokensPerMessage
	}
	if s.MaxTokensPerTerminalOutput == 0 {
		s.MaxTokensPerTerminalOutput = csm.DefaultMaxTokensPerTerminalOutput
	}
	if s.MaxTokensPerConversation == 0 {
		s.MaxTokensPerConversation = 8192
	}
	if s.MinConversationMessages == 0 {
		s.MinConversationMessages = 5
	}
	if s.ValRatio == 0 {
		s.ValRatio = 0.1
	}
	if s.RedactEntropyThreshold == 0 {
		s.RedactEntropyThreshold = redact.DefaultEntropyThreshold
	}
}
