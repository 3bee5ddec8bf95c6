// Package caldav layers RFC 4791 behavior over the engine: the MKCALENDAR
// method, calendar property injection on PROPFIND, the .ics guard on PUT, and
// the three calendar reports. Everything attaches through hooks; the engine
// itself knows nothing about calendars.
package caldav

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/dav"
	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/ignore"
	"github.com/davgate/davgate/internal/dav/state"
	"github.com/davgate/davgate/internal/dav/xmlscan"
	"github.com/davgate/davgate/internal/persist"
)

const prodID = "-//davgate//EN"

type Service struct {
	pa     persist.Adapter
	state  *state.Store
	ignore *ignore.Matcher
	logger zerolog.Logger

	// Strict requires calendar-query filters to carry the full
	// VCALENDAR > component comp-filter nesting.
	Strict bool
}

func New(pa persist.Adapter, st *state.Store, ig *ignore.Matcher, logger zerolog.Logger) *Service {
	return &Service{pa: pa, state: st, ignore: ig, logger: logger}
}

// Register wires the CalDAV surface into the engine.
func (s *Service) Register(h *dav.Handlers) {
	h.RegisterMethod("MKCALENDAR", s.handleMkcalendar)
	reg := h.Hooks()
	reg.OnAfter("OPTIONS", s.afterOptions)
	reg.OnBefore("PUT", s.beforePut)
	reg.OnAfter("PROPFIND", s.afterPropfind)
	reg.OnBefore("REPORT", s.beforeReport)
}

// calendarDefaults are the properties a fresh calendar collection carries.
func calendarDefaults() map[string]string {
	return map[string]string{
		"D:resourcetype":                     "<D:collection/><C:calendar/>",
		"C:supported-calendar-component-set": `<C:comp name="VEVENT"/><C:comp name="VTODO"/>`,
		"C:supported-calendar-data":          `<C:calendar-data content-type="text/calendar" version="2.0"/>`,
		"C:max-resource-size":                "10485760",
		"C:min-date-time":                    "19700101T000000Z",
		"C:max-date-time":                    "20500101T000000Z",
		"C:max-instances":                    "1000",
		"C:max-attendees-per-instance":       "100",
		"C:calendar-timezone":                "UTC",
	}
}

func (s *Service) handleMkcalendar(ctx context.Context, req *common.Request) *common.Response {
	if len(req.Parts) == 0 {
		return common.TextResponse(http.StatusForbidden, "cannot create root")
	}
	if len(req.Body) > 0 {
		ct := req.Header.Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "xml") {
			return common.TextResponse(http.StatusUnsupportedMediaType, "expected XML body")
		}
	}
	if ok, err := s.pa.Exists(ctx, req.Parts); err != nil {
		return common.TextResponse(http.StatusInternalServerError, err.Error())
	} else if ok {
		return common.TextResponse(http.StatusMethodNotAllowed, "already exists")
	}
	parent := req.Parts[:len(req.Parts)-1]
	if info, err := s.pa.Stat(ctx, parent); err != nil || !info.Dir {
		return common.TextResponse(http.StatusConflict, "parent collection missing")
	}
	if err := s.pa.EnsureDir(ctx, req.Parts); err != nil {
		return common.TextResponse(http.StatusInternalServerError, err.Error())
	}

	props := calendarDefaults()
	if sets, _ := xmlscan.ParseSetProps(req.Body); len(sets) > 0 {
		for k, v := range sets {
			if common.LocalName(k) == "resourcetype" {
				continue
			}
			props[k] = v
		}
	}
	if err := s.state.MergeProps(ctx, req.Parts, props); err != nil {
		return common.TextResponse(http.StatusInternalServerError, err.Error())
	}
	return common.NewResponse(http.StatusCreated)
}

func (s *Service) afterOptions(_ context.Context, _ *common.Request, resp *common.Response) (*common.Response, error) {
	if hdr := resp.Header.Get("DAV"); hdr != "" && !strings.Contains(hdr, "calendar-access") {
		resp.Header.Set("DAV", hdr+", calendar-access")
	}
	if allow := resp.Header.Get("Allow"); allow != "" && !strings.Contains(allow, "MKCALENDAR") {
		resp.Header.Set("Allow", allow+", MKCALENDAR")
	}
	return resp, nil
}

// isCalendar reports whether the path's stored resourcetype marks a calendar
// collection.
func (s *Service) isCalendar(ctx context.Context, parts []string) bool {
	rt := s.state.GetProps(ctx, parts)["D:resourcetype"]
	return strings.Contains(rt, "calendar")
}

// underCalendar reports whether any ancestor of the path is a calendar.
func (s *Service) underCalendar(ctx context.Context, parts []string) bool {
	for i := len(parts) - 1; i >= 0; i-- {
		if s.isCalendar(ctx, parts[:i]) {
			return true
		}
	}
	return false
}

// beforePut rejects non-.ics uploads into calendar collections.
func (s *Service) beforePut(ctx context.Context, req *common.Request) (*common.Response, error) {
	if len(req.Parts) == 0 || !s.underCalendar(ctx, req.Parts) {
		return nil, nil
	}
	name := req.Parts[len(req.Parts)-1]
	if !strings.HasSuffix(strings.ToLower(name), ".ics") {
		return common.TextResponse(http.StatusUnsupportedMediaType, "calendar objects must be .ics"), nil
	}
	return nil, nil
}

// rePropstat matches one propstat block; the status group excludes "<" so
// the lazy prop group cannot swallow a neighboring block.
var (
	reResponse  = regexp.MustCompile(`(?s)<D:response><D:href>(.*?)</D:href>(.*?)</D:response>`)
	rePlainColl = regexp.MustCompile(`<D:resourcetype><D:collection/></D:resourcetype>`)
	rePropstat  = regexp.MustCompile(`(?s)<D:propstat><D:prop>(.*?)</D:prop><D:status>([^<]*)</D:status></D:propstat>`)
)

// afterPropfind injects calendar markers into the rendered multistatus:
// C:calendar in resourcetype for calendar collections, plus synthesized
// values for the calendar discovery properties the engine 404'd.
func (s *Service) afterPropfind(ctx context.Context, req *common.Request, resp *common.Response) (*common.Response, error) {
	if !common.IsMultiStatusXML(resp) {
		return nil, nil
	}
	body := reResponse.ReplaceAllStringFunc(string(resp.Body), func(block string) string {
		m := reResponse.FindStringSubmatch(block)
		parts := hrefParts(m[1])
		rest := m[2]

		calendar := s.isCalendar(ctx, parts)
		if calendar {
			rest = rePlainColl.ReplaceAllString(rest,
				"<D:resourcetype><D:collection/><C:calendar/></D:resourcetype>")
		}
		rest = rePropstat.ReplaceAllStringFunc(rest, func(ps string) string {
			if !strings.Contains(rePropstat.FindStringSubmatch(ps)[2], "404 Not Found") {
				return ps
			}
			return s.fillCalendarProps(ctx, parts, calendar, ps)
		})
		return "<D:response><D:href>" + m[1] + "</D:href>" + rest + "</D:response>"
	})
	out := common.XMLResponse(resp.Status, body)
	for k, vs := range resp.Header {
		if k == "Content-Type" || k == "Content-Length" {
			continue
		}
		out.Header[k] = vs
	}
	return out, nil
}

// fillCalendarProps moves known calendar properties out of a 404 propstat
// into synthesized 200 values.
func (s *Service) fillCalendarProps(ctx context.Context, parts []string, calendar bool, block string) string {
	m := rePropstat.FindStringSubmatch(block)
	inner := m[1]

	type synth struct {
		local string
		value func() string
	}
	candidates := []synth{
		{"supported-calendar-component-set", func() string {
			return `<C:supported-calendar-component-set><C:comp name="VEVENT"/></C:supported-calendar-component-set>`
		}},
		{"supported-calendar-data", func() string {
			return `<C:supported-calendar-data content-type="text/calendar" version="2.0"/>`
		}},
		{"getctag", func() string {
			info, err := s.pa.Stat(ctx, parts)
			if err != nil {
				return ""
			}
			return common.PropElement("CS:getctag", common.EscapeXML(common.FormatTime(info.ModTime)))
		}},
	}

	var filled string
	for _, c := range candidates {
		if !calendar {
			continue
		}
		re := regexp.MustCompile(`<((?:[\w.-]+:)?` + c.local + `)(?:\s[^>]*)?/>`)
		if re.MatchString(inner) {
			if v := c.value(); v != "" {
				filled += v
				inner = re.ReplaceAllString(inner, "")
			}
		}
	}
	// calendar-home-set answers on the root and principal paths.
	if len(parts) == 0 {
		re := regexp.MustCompile(`<((?:[\w.-]+:)?calendar-home-set)(?:\s[^>]*)?/>`)
		if re.MatchString(inner) {
			filled += "<C:calendar-home-set><D:href>/</D:href></C:calendar-home-set>"
			inner = re.ReplaceAllString(inner, "")
		}
	}
	if filled == "" {
		return block
	}
	out := "<D:propstat><D:prop>" + filled + "</D:prop><D:status>" + common.StatusOK + "</D:status></D:propstat>"
	if strings.TrimSpace(inner) != "" {
		out += "<D:propstat><D:prop>" + inner + "</D:prop><D:status>" + common.StatusNotFound + "</D:status></D:propstat>"
	}
	return out
}

func hrefParts(href string) []string {
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	return common.SplitPath(href)
}
