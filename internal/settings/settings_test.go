package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFiles(t *testing.T) {
	chdirTemp(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenizer, s.Tokenizer)
	assert.Equal(t, 10, s.ViewportRadius)
	assert.Equal(t, 8192, s.MaxTokensPerConversation)
	assert.Equal(t, 0.1, s.ValRatio)
}

func TestLoad_ReadsProjectSettings(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".transcriptforge"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFile), []byte(`{"tokenizer":"approx","val_ratio":0.2}`), 0o644))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "approx", s.Tokenizer)
	assert.Equal(t, 0.2, s.ValRatio)
}

func TestLoad_LocalOverridesProject(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".transcriptforge"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFile), []byte(`{"log_level":"info"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsLocalFile), []byte(`{"log_level":"debug"}`), 0o644))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", s.LogLevel)
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	return dir
}
