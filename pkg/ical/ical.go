// Package ical wraps emersion/go-ical with the block model the CalDAV report
// engine filters on. Date-time values stay in their wire form
// (YYYYMMDD[ThhmmssZ]) so range checks compare lexicographically, matching
// how the values sort.
package ical

import (
	"bytes"
	"errors"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
)

// Prop is one content line of a component: raw value plus parameters keyed by
// uppercased name.
type Prop struct {
	Name   string
	Value  string
	Params map[string]string
}

// Block is a VEVENT or VTODO with its time bounds in wire form. End falls
// back to DUE for VTODO when DTEND is absent.
type Block struct {
	Name  string
	UID   string
	Start string
	End   string
	Props map[string]Prop
}

type Interval struct{ S, E time.Time }

// Parse extracts VEVENT and VTODO blocks from an iCalendar payload.
func Parse(data []byte) ([]Block, error) {
	cal, err := goical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, err
	}
	var blocks []Block
	for _, child := range cal.Children {
		if child.Name != goical.CompEvent && child.Name != goical.CompToDo {
			continue
		}
		b := Block{Name: child.Name, Props: map[string]Prop{}}
		for name, props := range child.Props {
			if len(props) == 0 {
				continue
			}
			p := props[0]
			params := map[string]string{}
			for pn, pv := range p.Params {
				if len(pv) > 0 {
					params[strings.ToUpper(pn)] = pv[0]
				}
			}
			b.Props[strings.ToUpper(name)] = Prop{
				Name:   strings.ToUpper(name),
				Value:  p.Value,
				Params: params,
			}
		}
		b.UID = b.Props["UID"].Value
		b.Start = b.Props["DTSTART"].Value
		b.End = b.Props["DTEND"].Value
		if b.End == "" && child.Name == goical.CompToDo {
			b.End = b.Props["DUE"].Value
		}
		blocks = append(blocks, b)
	}
	if blocks == nil {
		return nil, errors.New("no supported component")
	}
	return blocks, nil
}

// Normalize re-serializes a payload through the codec, validating it and
// producing consistent folding.
func Normalize(data []byte) ([]byte, error) {
	cal, err := goical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseTime accepts the wire forms: date, UTC date-time, or RFC 3339.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse("20060102T150405Z", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("20060102", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Overlaps implements the range rule on wire-form strings: the block overlaps
// the window iff end > windowStart and start < windowEnd, with every missing
// bound treated as open-ended.
func Overlaps(start, end, windowStart, windowEnd string) bool {
	if end != "" && windowStart != "" && !(end > windowStart) {
		return false
	}
	if start != "" && windowEnd != "" && !(start < windowEnd) {
		return false
	}
	return true
}

const stampLayout = "20060102T150405Z"

// BuildFreeBusy assembles a VCALENDAR/VFREEBUSY answer for a free-busy query.
// Lines are written directly; the payload is fixed-shape and every value is
// already in wire form.
func BuildFreeBusy(start, end time.Time, busy []Interval, prodID string) []byte {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}
	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + prodID)
	line("BEGIN:VFREEBUSY")
	line("DTSTAMP:" + time.Now().UTC().Format(stampLayout))
	line("DTSTART:" + start.UTC().Format(stampLayout))
	line("DTEND:" + end.UTC().Format(stampLayout))
	for _, iv := range busy {
		line("FREEBUSY;FBTYPE=BUSY:" + iv.S.UTC().Format(stampLayout) + "/" + iv.E.UTC().Format(stampLayout))
	}
	line("END:VFREEBUSY")
	line("END:VCALENDAR")
	return []byte(b.String())
}

// MergeIntervals sorts and coalesces overlapping busy intervals.
func MergeIntervals(in []Interval) []Interval {
	if len(in) <= 1 {
		return in
	}
	for i := 1; i < len(in); i++ {
		j := i
		for j > 0 && in[j-1].S.After(in[j].S) {
			in[j-1], in[j] = in[j], in[j-1]
			j--
		}
	}
	out := []Interval{in[0]}
	for i := 1; i < len(in); i++ {
		last := &out[len(out)-1]
		if in[i].S.After(last.E) {
			out = append(out, in[i])
		} else if in[i].E.After(last.E) {
			last.E = in[i].E
		}
	}
	return out
}
