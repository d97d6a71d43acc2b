package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

func TestDefaultPreferences(t *testing.T) {
	prefs := DefaultPreferences()
	require.NotNil(t, prefs)

	assert.NotEmpty(t, prefs.DefaultDownloadDir)
	assert.True(t, strings.Contains(strings.ToLower(prefs.DefaultDownloadDir), "downloads"))
	assert.True(t, prefs.WarnOnDuplicate)
	assert.False(t, prefs.AutoResume)
	assert.True(t, prefs.ClipboardMonitor)
	assert.Equal(t, ThemeAdaptive, prefs.Theme)
}

func TestDefaultPreferences_Consistency(t *testing.T) {
	p1 := DefaultPreferences()
	p2 := DefaultPreferences()
	assert.NotSame(t, p1, p2)
	assert.Equal(t, *p1, *p2)
}

func TestGetStateDir(t *testing.T) {
	dir := GetStateDir()
	require.NotEmpty(t, dir)
	assert.True(t, filepath.IsAbs(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveAndLoadPreferences(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	original := &Preferences{
		DefaultDownloadDir: filepath.Join(home, "dl"),
		WarnOnDuplicate:    false,
		AutoResume:         true,
		ClipboardMonitor:   false,
		Theme:              ThemeDark,
	}

	require.NoError(t, SavePreferences(original))

	loaded, err := LoadPreferences()
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadPreferences_MissingFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	prefs, err := LoadPreferences()
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences(), prefs)
}

func TestLoadPreferences_CorruptedJSON(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".floodgate"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".floodgate", "preferences.json"), []byte("{invalid"), 0o644))

	_, err := LoadPreferences()
	assert.Error(t, err)
}

func TestPreferencesMetadata(t *testing.T) {
	meta := PreferencesMetadata()
	require.NotEmpty(t, meta)
	for _, m := range meta {
		assert.NotEmpty(t, m.Key)
		assert.NotEmpty(t, m.Label)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.Type)
	}
}

func TestLoadEngineSettingsDefaults(t *testing.T) {
	// BindFlags registers engine.DefaultSettings' values as its flag
	// defaults, which is what LoadEngineSettings returns when no flag or
	// environment variable is set; this checks those default values.
	defaults := engine.DefaultSettings()
	assert.Equal(t, 3, defaults.ConcurrencyLimit)
	assert.Equal(t, 8, defaults.DownloadThreads)
	assert.Equal(t, 5, defaults.DownloadRetries)
}
