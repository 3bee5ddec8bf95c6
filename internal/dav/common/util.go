package common

import (
	"encoding/xml"
	"strings"
	"time"
)

const (
	NSDAV    = "DAV:"
	NSCalDAV = "urn:ietf:params:xml:ns:caldav"
	NSExt    = "urn:x"
	NSCalSrv = "http://calendarserver.org/ns/"
)

// Depth values per RFC 4918. Anything unrecognized falls back to def.
func ParseDepth(h string, def string) string {
	switch strings.TrimSpace(h) {
	case "0":
		return "0"
	case "1":
		return "1"
	case "infinity", "Infinity":
		return "infinity"
	case "":
		return def
	}
	return def
}

func TrimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// TrimBrackets strips one layer of <...> as used by Lock-Token and If.
func TrimBrackets(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// EscapeXML escapes text content for inline embedding.
func EscapeXML(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

// LocalName strips a namespace prefix off a qualified tag name.
func LocalName(tag string) string {
	if i := strings.Index(tag, ":"); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
