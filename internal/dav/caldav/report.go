package caldav

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/xmlscan"
	"github.com/davgate/davgate/pkg/ical"
)

// beforeReport intercepts the CalDAV report bodies; anything else falls
// through to the engine's REPORT handler.
func (s *Service) beforeReport(ctx context.Context, req *common.Request) (*common.Response, error) {
	switch xmlscan.DetectReport(req.Body) {
	case xmlscan.ReportCalendarQuery:
		return s.calendarQuery(ctx, req), nil
	case xmlscan.ReportCalendarMultiget:
		return s.calendarMultiget(ctx, req), nil
	case xmlscan.ReportFreeBusyQuery:
		return s.freeBusy(ctx, req), nil
	}
	return nil, nil
}

// icsFiles walks the target per Depth and returns the .ics object paths.
func (s *Service) icsFiles(ctx context.Context, parts []string, depth string) [][]string {
	info, err := s.pa.Stat(ctx, parts)
	if err != nil {
		return nil
	}
	if !info.Dir {
		if strings.HasSuffix(strings.ToLower(common.DisplayName(parts)), ".ics") {
			return [][]string{parts}
		}
		return nil
	}
	if depth == "0" {
		return nil
	}
	var out [][]string
	names, err := s.pa.ReadDir(ctx, parts)
	if err != nil {
		return nil
	}
	for _, name := range s.ignore.FilterNames(names) {
		child := common.Child(parts, name)
		cinfo, err := s.pa.Stat(ctx, child)
		if err != nil {
			continue
		}
		if cinfo.Dir {
			if depth == "infinity" {
				out = append(out, s.icsFiles(ctx, child, depth)...)
			}
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), ".ics") {
			out = append(out, child)
		}
	}
	return out
}

func (s *Service) calendarQuery(ctx context.Context, req *common.Request) *common.Response {
	filter := xmlscan.ParseCalendarFilter(req.Body)
	if s.Strict {
		if filter == nil || filter.Name != "VCALENDAR" || filter.Inner == nil {
			return common.TextResponse(http.StatusBadRequest, "filter must nest VCALENDAR and a component")
		}
	}
	target := innermost(filter)
	depth := common.ParseDepth(req.Header.Get("Depth"), "1")

	w := common.NewMultiStatus()
	for _, parts := range s.icsFiles(ctx, req.Parts, depth) {
		data, err := s.pa.ReadFile(ctx, parts)
		if err != nil {
			continue
		}
		blocks, err := ical.Parse(data)
		if err != nil {
			s.logger.Debug().Err(err).Str("path", common.Href(parts, false)).Msg("unparseable calendar object")
			continue
		}
		if !anyBlockMatches(blocks, target) {
			continue
		}
		s.writeCalendarData(ctx, w, parts, data)
	}
	return w.Close()
}

func (s *Service) calendarMultiget(ctx context.Context, req *common.Request) *common.Response {
	w := common.NewMultiStatus()
	for _, href := range xmlscan.ParseHrefs(req.Body) {
		parts := hrefParts(href)
		data, err := s.pa.ReadFile(ctx, parts)
		if err != nil {
			w.HrefResponse(common.Href(parts, false), common.StatusNotFound)
			continue
		}
		s.writeCalendarData(ctx, w, parts, data)
	}
	return w.Close()
}

func (s *Service) writeCalendarData(ctx context.Context, w *common.MultiStatus, parts []string, data []byte) {
	w.StartResponse(common.Href(parts, false))
	props := common.PropElement("C:calendar-data", common.EscapeXML(string(data)))
	if info, err := s.pa.Stat(ctx, parts); err == nil {
		etag := `W/"` + strconv.FormatInt(info.Size, 10) + "-" + common.FormatTime(info.ModTime) + `"`
		props = common.PropElement("D:getetag", common.EscapeXML(etag)) + props
	}
	w.Propstat(common.StatusOK, props)
	w.EndResponse()
}

func (s *Service) freeBusy(ctx context.Context, req *common.Request) *common.Response {
	tr := xmlscan.ParseFreeBusyRange(req.Body)
	if tr == nil || tr.Start == "" || tr.End == "" {
		return common.TextResponse(http.StatusBadRequest, "free-busy-query requires a time-range")
	}
	wStart, err1 := ical.ParseTime(tr.Start)
	wEnd, err2 := ical.ParseTime(tr.End)
	if err1 != nil || err2 != nil {
		return common.TextResponse(http.StatusBadRequest, "invalid time-range bounds")
	}

	var busy []ical.Interval
	for _, parts := range s.icsFiles(ctx, req.Parts, "infinity") {
		data, err := s.pa.ReadFile(ctx, parts)
		if err != nil {
			continue
		}
		blocks, err := ical.Parse(data)
		if err != nil {
			continue
		}
		for _, b := range blocks {
			if b.Name != "VEVENT" || !ical.Overlaps(b.Start, b.End, tr.Start, tr.End) {
				continue
			}
			bs, err := ical.ParseTime(b.Start)
			if err != nil {
				continue
			}
			be, err := ical.ParseTime(b.End)
			if err != nil {
				be = bs.Add(time.Hour)
			}
			busy = append(busy, ical.Interval{S: bs, E: be})
		}
	}

	body := ical.BuildFreeBusy(wStart, wEnd, ical.MergeIntervals(busy), prodID)
	resp := common.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	resp.Body = body
	return resp
}

// innermost follows the comp-filter chain past the VCALENDAR wrapper to the
// component filter the blocks are tested against.
func innermost(cf *xmlscan.CompFilter) *xmlscan.CompFilter {
	if cf == nil {
		return nil
	}
	for cf.Inner != nil {
		cf = cf.Inner
	}
	if cf.Name == "VCALENDAR" {
		return nil
	}
	return cf
}

func anyBlockMatches(blocks []ical.Block, cf *xmlscan.CompFilter) bool {
	for _, b := range blocks {
		if blockMatches(b, cf) {
			return true
		}
	}
	return false
}

func blockMatches(b ical.Block, cf *xmlscan.CompFilter) bool {
	if cf == nil {
		return true
	}
	if cf.Name != "" && b.Name != cf.Name {
		return false
	}
	if cf.TimeRange != nil && !ical.Overlaps(b.Start, b.End, cf.TimeRange.Start, cf.TimeRange.End) {
		return false
	}
	for _, pf := range cf.Props {
		if !propMatches(b, pf) {
			return false
		}
	}
	return true
}

func propMatches(b ical.Block, pf xmlscan.PropFilter) bool {
	prop, ok := b.Props[pf.Name]
	if pf.IsNotDefined {
		return !ok
	}
	if !ok {
		return false
	}
	if pf.Text != nil && !textMatches(*pf.Text, prop.Value) {
		return false
	}
	for _, param := range pf.Params {
		v, present := prop.Params[param.Name]
		if param.IsNotDefined {
			if present {
				return false
			}
			continue
		}
		if !present {
			return false
		}
		if param.Text != nil && !textMatches(*param.Text, v) {
			return false
		}
	}
	return true
}

// textMatches applies contains-semantics under the requested collation.
func textMatches(tm xmlscan.TextMatch, value string) bool {
	var match bool
	switch tm.Collation {
	case "i;octet":
		match = strings.Contains(value, tm.Value)
	default: // i;ascii-casemap
		match = strings.Contains(strings.ToLower(value), strings.ToLower(tm.Value))
	}
	if tm.Negate {
		return !match
	}
	return match
}
