// Package script generates and parses the Windows batch files that start a
// game client logged into a specific account.
package script

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
)

// ErrNotLaunchScript means the .bat file does not follow the generated layout.
var ErrNotLaunchScript = errors.New("not a launch script")

// Params are the values baked into one launch script.
type Params struct {
	Login       string
	Password    string
	Character   string
	Owner       string
	Description string
}

// Entry pairs a parsed script with its location on disk.
type Entry struct {
	Path   string
	Params Params
}

const clientExe = "elementclient.exe"

var (
	reOwner       = regexp.MustCompile(`^:: Owner: (.*)$`)
	reDescription = regexp.MustCompile(`^:: Description: (.*)$`)
	reStart       = regexp.MustCompile(`^start ` + clientExe + ` startbypatcher user:(\S+) pwd:(\S*)(?: role:(\S+))?\s*$`)
)

// render produces the script body. The client reads its arguments in the
// OEM codepage, so the file is written as cp1251, not UTF-8.
func render(gameDir string, p Params) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":: Owner: %s\r\n", p.Owner)
	fmt.Fprintf(&b, ":: Description: %s\r\n", p.Description)
	b.WriteString("@echo off\r\n")
	b.WriteString("chcp 1251\r\n")
	fmt.Fprintf(&b, "cd /d \"%s\"\r\n", filepath.Join(gameDir, "element"))
	fmt.Fprintf(&b, "start %s startbypatcher user:%s pwd:%s", clientExe, p.Login, p.Password)
	if p.Character != "" {
		fmt.Fprintf(&b, " role:%s", p.Character)
	}
	b.WriteString("\r\n")
	return b.String()
}

// Generate writes a launch script for p into dir and returns its path.
// The filename is derived from the login; a random suffix avoids clobbering
// an unrelated file that happens to share the name.
func Generate(dir, gameDir string, p Params) (string, error) {
	if strings.TrimSpace(p.Login) == "" {
		return "", errors.New("script: empty login")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create script dir: %w", err)
	}

	name := sanitizeName(p.Login) + ".bat"
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		// Overwrite only our own script for the same login. Anything else
		// at that name gets left alone and we pick a suffixed name.
		existing, perr := Parse(path)
		if perr != nil || existing.Login != p.Login {
			name = fmt.Sprintf("%s-%s.bat", sanitizeName(p.Login), uuid.NewString()[:8])
			path = filepath.Join(dir, name)
		}
	}

	encoded, err := charmap.Windows1251.NewEncoder().String(render(gameDir, p))
	if err != nil {
		return "", fmt.Errorf("encode script: %w", err)
	}
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	return path, nil
}

// Parse reads a launch script back into Params.
func Parse(path string) (Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return Params{}, fmt.Errorf("open script: %w", err)
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(charmap.Windows1251.NewDecoder().Reader(f))
	if err != nil {
		return Params{}, fmt.Errorf("decode script: %w", err)
	}

	var (
		p       Params
		started bool
	)
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		if m := reOwner.FindStringSubmatch(line); m != nil {
			p.Owner = m[1]
			continue
		}
		if m := reDescription.FindStringSubmatch(line); m != nil {
			p.Description = m[1]
			continue
		}
		if m := reStart.FindStringSubmatch(line); m != nil {
			p.Login, p.Password, p.Character = m[1], m[2], m[3]
			started = true
		}
	}
	if !started {
		return Params{}, fmt.Errorf("%w: %s", ErrNotLaunchScript, path)
	}
	return p, nil
}

// Scan walks dir recursively and returns every recognizable launch script,
// sorted by path. Foreign .bat files are skipped, not reported as errors.
func Scan(dir string) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".bat") {
			return nil
		}
		p, perr := Parse(path)
		if perr != nil {
			if errors.Is(perr, ErrNotLaunchScript) {
				return nil
			}
			return perr
		}
		out = append(out, Entry{Path: path, Params: p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scripts: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Delete removes a script file. A missing file is not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete script: %w", err)
	}
	return nil
}

// DeleteByLogin removes every script in dir generated for the given login
// and returns how many were deleted.
func DeleteByLogin(dir, login string) (int, error) {
	entries, err := Scan(dir)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, e := range entries {
		if e.Params.Login != login {
			continue
		}
		if err := Delete(e.Path); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// sanitizeName keeps filename-safe characters from a login.
func sanitizeName(login string) string {
	var b strings.Builder
	for _, r := range login {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
