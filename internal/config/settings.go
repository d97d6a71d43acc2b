// Package config resolves an engine.Settings from cobra flags/environment
// (via viper) at process start, and separately persists a small UI-facing
// preferences file (default download directory, clipboard-monitor
// toggle, theme) through LoadPreferences/SavePreferences.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

// BindFlags registers the engine settings as persistent flags on cmd and
// binds them into v, with FLOODGATE_* environment variable fallbacks.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	d := engine.DefaultSettings()

	flags := cmd.PersistentFlags()
	flags.Uint64("speed-limit", d.SpeedLimit, "aggregate speed cap in bytes/sec (0 = unlimited)")
	flags.Int("concurrency-limit", d.ConcurrencyLimit, "max simultaneous downloads")
	flags.Int("download-threads", d.DownloadThreads, "segments per range-capable download")
	flags.Duration("download-timeout", d.DownloadTimeout, "per-chunk read timeout")
	flags.Int("download-retries", d.DownloadRetries, "retry attempts per segment")
	flags.Int("port", d.ServerPort, "control surface port (0 = pick automatically)")

	v.SetEnvPrefix("floodgate")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)
}

// LoadEngineSettings resolves BindFlags' values into an engine.Settings.
func LoadEngineSettings(v *viper.Viper) engine.Settings {
	return engine.Settings{
		SpeedLimit:       v.GetUint64("speed-limit"),
		ConcurrencyLimit: v.GetInt("concurrency-limit"),
		DownloadThreads:  v.GetInt("download-threads"),
		DownloadTimeout:  v.GetDuration("download-timeout"),
		DownloadRetries:  v.GetInt("download-retries"),
		ServerPort:       v.GetInt("port"),
	}
}

// GetStateDir returns the directory floodgate keeps its log file,
// preferences file, history database and pid file in, creating it if
// necessary.
func GetStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".floodgate")
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

const (
	ThemeAdaptive = 0
	ThemeLight    = 1
	ThemeDark     = 2
)

// Preferences is the small set of user-facing toggles that persist
// across runs independent of any single invocation's flags.
type Preferences struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	WarnOnDuplicate    bool   `json:"warn_on_duplicate"`
	AutoResume         bool   `json:"auto_resume"`
	ClipboardMonitor   bool   `json:"clipboard_monitor"`
	Theme              int    `json:"theme"`
}

// SettingMeta describes one Preferences field for a settings-page UI.
type SettingMeta struct {
	Key         string
	Label       string
	Description string
	Type        string
}

// PreferencesMetadata returns display metadata for every Preferences
// field, in display order.
func PreferencesMetadata() []SettingMeta {
	return []SettingMeta{
		{Key: "default_download_dir", Label: "Default Download Dir", Description: "Default directory for new downloads. Leave empty to use current directory.", Type: "string"},
		{Key: "warn_on_duplicate", Label: "Warn on Duplicate", Description: "Show warning when adding a download that already exists.", Type: "bool"},
		{Key: "auto_resume", Label: "Auto Resume", Description: "Automatically resume paused downloads on startup.", Type: "bool"},
		{Key: "clipboard_monitor", Label: "Clipboard Monitor", Description: "Watch clipboard for URLs and prompt to download them.", Type: "bool"},
		{Key: "theme", Label: "App Theme", Description: "UI Theme (System, Light, Dark).", Type: "int"},
	}
}

// DefaultPreferences returns the preferences a fresh install starts with.
func DefaultPreferences() *Preferences {
	home, _ := os.UserHomeDir()
	return &Preferences{
		DefaultDownloadDir: filepath.Join(home, "Downloads"),
		WarnOnDuplicate:    true,
		AutoResume:         false,
		ClipboardMonitor:   true,
		Theme:              ThemeAdaptive,
	}
}

func preferencesPath() string {
	return filepath.Join(GetStateDir(), "preferences.json")
}

// LoadPreferences reads the preferences file, returning defaults (merged
// over whatever the file does contain) if it doesn't exist.
func LoadPreferences() (*Preferences, error) {
	data, err := os.ReadFile(preferencesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPreferences(), nil
		}
		return nil, err
	}
	prefs := DefaultPreferences()
	if err := json.Unmarshal(data, prefs); err != nil {
		return nil, fmt.Errorf("parse preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences writes the preferences file atomically (temp file then
// rename) so a crash mid-write never leaves a half-written file behind.
func SavePreferences(p *Preferences) error {
	path := preferencesPath()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
