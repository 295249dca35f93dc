// Package guard vetoes lifecycle actions on directory objects whose paths
// match configured protection rules. It is the last line of defense before
// a destructive mutation.
package guard

import (
	"strings"
	"sync"
)

// Guard holds an ordered set of protected-path substrings. Matching is a
// case-insensitive containment test: distinguished names compare
// case-insensitively in the directory, so the rules do too.
type Guard struct {
	mu    sync.RWMutex
	rules []string // stored as given; compared lowercased
}

// New creates a guard with the given rules. Blank rules are dropped.
func New(rules []string) *Guard {
	g := &Guard{}
	g.SetRules(rules)
	return g
}

// IsProtected reports whether uniquePath matches any protection rule.
// A blank path is never protected.
func (g *Guard) IsProtected(uniquePath string) bool {
	if strings.TrimSpace(uniquePath) == "" {
		return false
	}
	needle := strings.ToLower(uniquePath)

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, r := range g.rules {
		if strings.Contains(needle, strings.ToLower(r)) {
			return true
		}
	}
	return false
}

// SetRules replaces the rule list, preserving order and dropping blanks.
func (g *Guard) SetRules(rules []string) {
	cleaned := make([]string, 0, len(rules))
	for _, r := range rules {
		r = strings.TrimSpace(r)
		if r != "" {
			cleaned = append(cleaned, r)
		}
	}

	g.mu.Lock()
	g.rules = cleaned
	g.mu.Unlock()
}

// Rules returns a copy of the current rule list.
func (g *Guard) Rules() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.rules))
	copy(out, g.rules)
	return out
}
