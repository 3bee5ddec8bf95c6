// Package xmlscan extracts what the engine needs from request bodies without
// building a DOM. The scan understands the constrained XML subset WebDAV
// clients actually send; unknown elements are ignored and broken bodies
// degrade to empty results.
package xmlscan

import (
	"regexp"
	"strings"
)

const name = `(?:[A-Za-z_][\w.-]*:)?[A-Za-z_][\w.-]*`

var (
	rePropname = regexp.MustCompile(`<(?:[\w.-]+:)?propname(?:\s[^>]*)?/?>`)
	reAllprop  = regexp.MustCompile(`<(?:[\w.-]+:)?allprop(?:\s[^>]*)?/?>`)
	rePropOpen = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?prop(?:\s[^>]*)?>(.*?)</(?:[\w.-]+:)?prop>`)
	reStartTag = regexp.MustCompile(`<(` + name + `)(?:\s[^>]*)?/?>`)
	rePaired   = regexp.MustCompile(`(?s)<(` + name + `)(?:\s[^>]*)?>([^<]*)</(` + name + `)>`)
	reSelfShut = regexp.MustCompile(`<(` + name + `)(?:\s[^>]*)?/>`)
	reSetBlock = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?set(?:\s[^>]*)?>(.*?)</(?:[\w.-]+:)?set>`)
	reRmBlock  = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?remove(?:\s[^>]*)?>(.*?)</(?:[\w.-]+:)?remove>`)
	reSegment  = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?segment(?:\s[^>]*)?>(.*?)</(?:[\w.-]+:)?segment>`)
	reNameEl   = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?name(?:\s[^>]*)?>(.*?)</(?:[\w.-]+:)?name>`)
	reContains = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?contains(?:\s[^>]*)?>(.*?)</(?:[\w.-]+:)?contains>`)
	reHref     = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?href(?:\s[^>]*)?>(.*?)</(?:[\w.-]+:)?href>`)
)

// Unescape reverses the XML entities the subset can contain.
func Unescape(s string) string {
	r := strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
		"&#39;", "'",
		"&#34;", `"`,
		"&amp;", "&",
	)
	return strings.TrimSpace(r.Replace(s))
}

type PropfindMode int

const (
	ModeAllprop PropfindMode = iota
	ModePropname
	ModeProp
)

// ParsePropfind classifies a PROPFIND body. For prop mode it returns the
// requested keys with their prefixes as written.
func ParsePropfind(body []byte) (PropfindMode, []string) {
	s := string(body)
	if strings.TrimSpace(s) == "" {
		return ModeAllprop, nil
	}
	if rePropname.MatchString(s) {
		return ModePropname, nil
	}
	if reAllprop.MatchString(s) {
		return ModeAllprop, nil
	}
	if m := rePropOpen.FindStringSubmatch(s); m != nil {
		var keys []string
		for _, tag := range reStartTag.FindAllStringSubmatch(m[1], -1) {
			keys = append(keys, tag[1])
		}
		return ModeProp, keys
	}
	return ModeAllprop, nil
}

// ParseSetProps pulls key/value pairs out of every set/prop section, both
// paired and self-closing forms. Order of first appearance is preserved.
func ParseSetProps(body []byte) (map[string]string, []string) {
	sets := map[string]string{}
	var order []string
	for _, block := range reSetBlock.FindAllStringSubmatch(string(body), -1) {
		for _, prop := range rePropOpen.FindAllStringSubmatch(block[1], -1) {
			for _, pair := range rePaired.FindAllStringSubmatch(prop[1], -1) {
				if pair[1] != pair[3] {
					continue
				}
				if _, ok := sets[pair[1]]; !ok {
					order = append(order, pair[1])
				}
				sets[pair[1]] = Unescape(pair[2])
			}
			for _, tag := range reSelfShut.FindAllStringSubmatch(prop[1], -1) {
				if _, ok := sets[tag[1]]; !ok {
					order = append(order, tag[1])
					sets[tag[1]] = ""
				}
			}
		}
	}
	return sets, order
}

// ParseRemoveProps lists the property names under remove/prop sections.
func ParseRemoveProps(body []byte) []string {
	var keys []string
	seen := map[string]bool{}
	for _, block := range reRmBlock.FindAllStringSubmatch(string(body), -1) {
		for _, prop := range rePropOpen.FindAllStringSubmatch(block[1], -1) {
			for _, tag := range reStartTag.FindAllStringSubmatch(prop[1], -1) {
				if !seen[tag[1]] {
					seen[tag[1]] = true
					keys = append(keys, tag[1])
				}
			}
		}
	}
	return keys
}

// ParseOrder accepts both order-member/segment and names/name sequences.
func ParseOrder(body []byte) []string {
	s := string(body)
	var names []string
	for _, m := range reSegment.FindAllStringSubmatch(s, -1) {
		if v := Unescape(m[1]); v != "" {
			names = append(names, v)
		}
	}
	if len(names) > 0 {
		return names
	}
	for _, m := range reNameEl.FindAllStringSubmatch(s, -1) {
		if v := Unescape(m[1]); v != "" {
			names = append(names, v)
		}
	}
	return names
}

// ParseContains extracts the needle of a SEARCH body.
func ParseContains(body []byte) string {
	if m := reContains.FindStringSubmatch(string(body)); m != nil {
		return Unescape(m[1])
	}
	return ""
}

// ParseHrefs lists href element contents (calendar-multiget).
func ParseHrefs(body []byte) []string {
	var hrefs []string
	for _, m := range reHref.FindAllStringSubmatch(string(body), -1) {
		if v := Unescape(m[1]); v != "" {
			hrefs = append(hrefs, v)
		}
	}
	return hrefs
}

type ReportKind int

const (
	ReportUnknown ReportKind = iota
	ReportVersionTree
	ReportCalendarQuery
	ReportCalendarMultiget
	ReportFreeBusyQuery
)

func DetectReport(body []byte) ReportKind {
	s := string(body)
	switch {
	case strings.Contains(s, "version-tree"), strings.Contains(s, "version-history"):
		return ReportVersionTree
	case strings.Contains(s, "calendar-query"):
		return ReportCalendarQuery
	case strings.Contains(s, "calendar-multiget"):
		return ReportCalendarMultiget
	case strings.Contains(s, "free-busy-query"):
		return ReportFreeBusyQuery
	}
	return ReportUnknown
}

// PropRequested reports whether a PROPFIND body asked for a property with the
// given local name, regardless of prefix.
func PropRequested(body []byte, local string) bool {
	mode, keys := ParsePropfind(body)
	if mode != ModeProp {
		return false
	}
	for _, k := range keys {
		if localName(k) == local {
			return true
		}
	}
	return false
}

func localName(tag string) string {
	if i := strings.Index(tag, ":"); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
