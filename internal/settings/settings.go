// Package settings loads and persists the application configuration.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/akozyrev/launchman/internal/logger"
)

// ErrGameDirInvalid means the configured game folder does not contain the
// client executable.
var ErrGameDirInvalid = errors.New("game folder does not contain the client")

// Settings is the full configuration, stored as a JSON file next to the
// roster so the whole state directory is portable.
type Settings struct {
	// GameDir is the game installation root. The client binary is expected
	// at <GameDir>/element/elementclient.exe.
	GameDir string `mapstructure:"game_dir" json:"game_dir"`
	// ScriptsDir holds generated launch scripts.
	ScriptsDir string `mapstructure:"scripts_dir" json:"scripts_dir"`
	// AccountsPath is the roster JSON file.
	AccountsPath string `mapstructure:"accounts_path" json:"accounts_path"`

	// ClientNames are substrings matched against process names when
	// discovering freshly launched clients.
	ClientNames []string `mapstructure:"client_names" json:"client_names"`

	LaunchIntervalSec int `mapstructure:"launch_interval_sec" json:"launch_interval_sec"`
	SettleSec         int `mapstructure:"settle_sec" json:"settle_sec"`
	TerminateGraceSec int `mapstructure:"terminate_grace_sec" json:"terminate_grace_sec"`
	ReconcileSec      int `mapstructure:"reconcile_sec" json:"reconcile_sec"`

	Listen        string `mapstructure:"listen" json:"listen"`
	MetricsListen string `mapstructure:"metrics_listen" json:"metrics_listen"`
	HistoryDSN    string `mapstructure:"history_dsn" json:"history_dsn"`

	// Browser is the executable used to open account pages in a private
	// window. Empty means pick a platform default.
	Browser  string `mapstructure:"browser" json:"browser"`
	LoginURL string `mapstructure:"login_url" json:"login_url"`

	// TerminateOnExit stops all tracked clients during shutdown.
	TerminateOnExit bool `mapstructure:"terminate_on_exit" json:"terminate_on_exit"`

	Log logger.Config `mapstructure:"log" json:"log"`
}

func setDefaults(v *viper.Viper, stateDir string) {
	v.SetDefault("scripts_dir", filepath.Join(stateDir, "scripts"))
	v.SetDefault("accounts_path", filepath.Join(stateDir, "accounts.json"))
	v.SetDefault("client_names", []string{"elementclient", "asgrad"})
	v.SetDefault("launch_interval_sec", 3)
	v.SetDefault("settle_sec", 3)
	v.SetDefault("terminate_grace_sec", 5)
	v.SetDefault("reconcile_sec", 15)
	v.SetDefault("listen", "127.0.0.1:8832")
	v.SetDefault("metrics_listen", "")
	v.SetDefault("history_dsn", filepath.Join(stateDir, "history.db"))
	v.SetDefault("login_url", "https://asgard.pw/")
	v.SetDefault("terminate_on_exit", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", filepath.Join(stateDir, "logs"))
}

// Load reads settings from path. A missing file yields defaults anchored at
// the file's directory; a malformed file is an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v, filepath.Dir(path))
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &s, nil
}

// Save writes settings to path atomically.
func Save(path string, s *Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// ClientPath returns the expected path of the game client executable.
func (s *Settings) ClientPath() string {
	return filepath.Join(s.GameDir, "element", "elementclient.exe")
}

// ValidateGameDir checks that GameDir points at a real installation.
func (s *Settings) ValidateGameDir() error {
	if s.GameDir == "" {
		return fmt.Errorf("%w: game folder not set", ErrGameDirInvalid)
	}
	if _, err := os.Stat(s.ClientPath()); err != nil {
		return fmt.Errorf("%w: %s", ErrGameDirInvalid, s.ClientPath())
	}
	return nil
}

func secs(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func (s *Settings) LaunchInterval() time.Duration { return secs(s.LaunchIntervalSec, 3) }
func (s *Settings) Settle() time.Duration         { return secs(s.SettleSec, 3) }
func (s *Settings) TerminateGrace() time.Duration { return secs(s.TerminateGraceSec, 5) }
func (s *Settings) ReconcileEvery() time.Duration { return secs(s.ReconcileSec, 15) }
