// Package ignore hides OS metadata files and the _dav sidecar from every
// listing and request. Patterns are shell-style globs matched against single
// path segments.
package ignore

import (
	"regexp"
	"strings"
)

// DefaultPatterns covers the usual desktop droppings plus the sidecar root.
var DefaultPatterns = []string{
	".DS_Store",
	"._*",
	".AppleDouble",
	".Spotlight-V100",
	"Thumbs.db",
	"desktop.ini",
	"_dav",
}

type Matcher struct {
	res []*regexp.Regexp
}

func New(globs ...string) *Matcher {
	if len(globs) == 0 {
		globs = DefaultPatterns
	}
	m := &Matcher{}
	for _, g := range globs {
		if re, err := regexp.Compile("^" + globToRegexp(g) + "$"); err == nil {
			m.res = append(m.res, re)
		}
	}
	return m
}

func globToRegexp(glob string) string {
	var sb strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			sb.WriteString("[^/]*")
		case '?':
			sb.WriteString("[^/]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return sb.String()
}

// MatchName reports whether a single segment is hidden.
func (m *Matcher) MatchName(name string) bool {
	for _, re := range m.res {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Match reports whether any segment of the path is hidden, which hides the
// whole subtree below it.
func (m *Matcher) Match(parts []string) bool {
	for _, seg := range parts {
		if m.MatchName(seg) {
			return true
		}
	}
	return false
}

// FilterNames drops hidden names from a directory listing.
func (m *Matcher) FilterNames(names []string) []string {
	out := names[:0:0]
	for _, n := range names {
		if !m.MatchName(n) {
			out = append(out, n)
		}
	}
	return out
}
