package common

import (
	"net/url"
	"strings"
)

// SplitPath normalizes a URL path into segments, dropping empty ones. The
// root collection is the empty slice.
func SplitPath(p string) []string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}

// Href renders segments back into a URL path, keeping the trailing slash for
// collections. Root renders as "/".
func Href(parts []string, dir bool) string {
	if len(parts) == 0 {
		return "/"
	}
	escaped := make([]string, len(parts))
	for i, seg := range parts {
		escaped[i] = url.PathEscape(seg)
	}
	h := "/" + strings.Join(escaped, "/")
	if dir {
		h += "/"
	}
	return h
}

// DestinationParts extracts the path of a Destination/Source header value,
// which may be an absolute URL or a bare path.
func DestinationParts(raw string) ([]string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		if unescaped, err := url.PathUnescape(u.Path); err == nil {
			return SplitPath(unescaped), true
		}
		return SplitPath(u.Path), true
	}
	if strings.HasPrefix(raw, "/") {
		return SplitPath(raw), true
	}
	return nil, false
}

// DisplayName is the last segment, or "/" for the root collection.
func DisplayName(parts []string) string {
	if len(parts) == 0 {
		return "/"
	}
	return parts[len(parts)-1]
}

func SafeSegment(s string) bool {
	return s != "" && !strings.Contains(s, "/") && !strings.Contains(s, "\\") && !strings.Contains(s, "..")
}

// Child returns parts extended by one segment without aliasing the input.
func Child(parts []string, name string) []string {
	out := make([]string, 0, len(parts)+1)
	out = append(out, parts...)
	return append(out, name)
}
