package xmlscan

import (
	"regexp"
	"strings"
)

// CalDAV filter model (RFC 4791 §9.7), constrained to the shapes the report
// engine evaluates: one optional VCALENDAR wrapper, one component filter,
// time-range, prop/param filters with text-match and is-not-defined.

type TimeRange struct {
	Start string
	End   string
}

type TextMatch struct {
	Value     string
	Collation string // i;ascii-casemap (default) or i;octet
	Negate    bool
}

type ParamFilter struct {
	Name         string
	IsNotDefined bool
	Text         *TextMatch
}

type PropFilter struct {
	Name         string
	IsNotDefined bool
	Text         *TextMatch
	Params       []ParamFilter
}

type CompFilter struct {
	Name      string
	Inner     *CompFilter
	TimeRange *TimeRange
	Props     []PropFilter
}

var (
	reCompFilter  = regexp.MustCompile(`<(?:[\w.-]+:)?comp-filter(\s[^>]*)?/?>`)
	reTimeRange   = regexp.MustCompile(`<(?:[\w.-]+:)?time-range(\s[^>]*)?/?>`)
	rePropFilterP = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?prop-filter(\s[^>]*)?>(.*?)</(?:[\w.-]+:)?prop-filter>`)
	rePropFilterS = regexp.MustCompile(`<(?:[\w.-]+:)?prop-filter(\s[^>]*)?/>`)
	reParamFilter = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?param-filter(\s[^>]*)?(?:/>|>(.*?)</(?:[\w.-]+:)?param-filter>)`)
	reTextMatch   = regexp.MustCompile(`(?s)<(?:[\w.-]+:)?text-match(\s[^>]*)?>(.*?)</(?:[\w.-]+:)?text-match>`)
	reNotDefined  = regexp.MustCompile(`<(?:[\w.-]+:)?is-not-defined(?:\s[^>]*)?/?>`)
	reAttr        = regexp.MustCompile(`([\w-]+)\s*=\s*"([^"]*)"`)
)

func attrs(s string) map[string]string {
	out := map[string]string{}
	for _, m := range reAttr.FindAllStringSubmatch(s, -1) {
		out[m[1]] = Unescape(m[2])
	}
	return out
}

// ParseCalendarFilter scans the comp-filter chain of a calendar-query. The
// returned root is nil when no comp-filter exists. Prop filters attach to the
// innermost component filter.
func ParseCalendarFilter(body []byte) *CompFilter {
	s := string(body)
	var root, cur *CompFilter
	for _, m := range reCompFilter.FindAllStringSubmatch(s, -1) {
		cf := &CompFilter{Name: strings.ToUpper(attrs(m[1])["name"])}
		if root == nil {
			root = cf
		} else {
			cur.Inner = cf
		}
		cur = cf
	}
	if root == nil {
		return nil
	}
	if m := reTimeRange.FindStringSubmatch(s); m != nil {
		a := attrs(m[1])
		cur.TimeRange = &TimeRange{Start: a["start"], End: a["end"]}
	}
	for _, m := range rePropFilterP.FindAllStringSubmatch(s, -1) {
		cur.Props = append(cur.Props, parsePropFilter(attrs(m[1]), m[2]))
	}
	for _, m := range rePropFilterS.FindAllStringSubmatch(s, -1) {
		cur.Props = append(cur.Props, parsePropFilter(attrs(m[1]), ""))
	}
	return root
}

func parsePropFilter(a map[string]string, inner string) PropFilter {
	pf := PropFilter{Name: strings.ToUpper(a["name"])}
	// param-filter bodies carry their own is-not-defined/text-match; strip
	// them so the prop-level scan does not pick them up.
	stripped := reParamFilter.ReplaceAllString(inner, "")
	if reNotDefined.MatchString(stripped) {
		pf.IsNotDefined = true
	}
	if tm := parseTextMatch(stripped); tm != nil {
		pf.Text = tm
	}
	for _, m := range reParamFilter.FindAllStringSubmatch(inner, -1) {
		pa := attrs(m[1])
		param := ParamFilter{Name: strings.ToUpper(pa["name"])}
		if reNotDefined.MatchString(m[2]) {
			param.IsNotDefined = true
		}
		if tm := parseTextMatch(m[2]); tm != nil {
			param.Text = tm
		}
		pf.Params = append(pf.Params, param)
	}
	return pf
}

func parseTextMatch(s string) *TextMatch {
	m := reTextMatch.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	a := attrs(m[1])
	tm := &TextMatch{Value: Unescape(m[2]), Collation: a["collation"]}
	if tm.Collation == "" {
		tm.Collation = "i;ascii-casemap"
	}
	if a["negate-condition"] == "yes" {
		tm.Negate = true
	}
	return tm
}

// ParseFreeBusyRange pulls the time-range of a free-busy-query.
func ParseFreeBusyRange(body []byte) *TimeRange {
	if m := reTimeRange.FindStringSubmatch(string(body)); m != nil {
		a := attrs(m[1])
		return &TimeRange{Start: a["start"], End: a["end"]}
	}
	return nil
}
