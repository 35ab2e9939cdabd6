package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes logging for the tool itself and for captured client output.
// When Dir is set, the application log goes to Dir/launchman.log and each
// launched client's stdout/stderr go to Dir/<key>.stdout.log / Dir/<key>.stderr.log.
type Config struct {
	Level      string `json:"level" mapstructure:"level"` // debug, info, warn, error
	Dir        string `json:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Setup installs the default slog logger: colored text on stderr plus a
// rotated file under Dir when configured.
func (c Config) Setup() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}
	var w io.Writer = os.Stderr
	if c.Dir != "" {
		_ = os.MkdirAll(c.Dir, 0o750)
		w = io.MultiWriter(os.Stderr, c.rotatedWriter(filepath.Join(c.Dir, "launchman.log")))
	}
	l := slog.New(NewColorTextHandler(w, opts))
	slog.SetDefault(l)
	return l
}

// ClientWriters returns rotated stdout/stderr writers for a launched client
// identified by key. Both are nil when Dir is unset (callers fall back to
// the null device).
func (c Config) ClientWriters(key string) (io.WriteCloser, io.WriteCloser) {
	if c.Dir == "" {
		return nil, nil
	}
	_ = os.MkdirAll(c.Dir, 0o750)
	outW := c.rotatedWriter(filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", key)))
	errW := c.rotatedWriter(filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", key)))
	return outW, errW
}

func (c Config) rotatedWriter(path string) io.WriteCloser {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
