// Package procscan enumerates running OS processes by name.
package procscan

import (
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Scanner reports the pids of running processes whose name contains one of
// the configured substrings (case-insensitive). It is a pure query with no
// side effects and is safe for concurrent use.
type Scanner struct {
	patterns []string
}

// New builds a Scanner for the given name substrings. Empty patterns are
// dropped; matching is case-insensitive.
func New(patterns ...string) *Scanner {
	ps := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			ps = append(ps, p)
		}
	}
	return &Scanner{patterns: ps}
}

// Snapshot returns the pids of all currently running matching processes.
// Processes that disappear mid-enumeration or deny access are skipped;
// enumeration itself never fails, an empty set is returned at worst.
func (s *Scanner) Snapshot() map[int32]struct{} {
	pids := make(map[int32]struct{})
	procs, err := gopsproc.Processes()
	if err != nil {
		return pids
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if s.matches(name) {
			pids[p.Pid] = struct{}{}
		}
	}
	return pids
}

func (s *Scanner) matches(name string) bool {
	ln := strings.ToLower(name)
	for _, p := range s.patterns {
		if strings.Contains(ln, p) {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the configured patterns.
func (s *Scanner) Patterns() []string {
	return append([]string(nil), s.patterns...)
}
