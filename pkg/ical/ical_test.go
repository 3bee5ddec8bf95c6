package ical

import (
	"strings"
	"testing"
	"time"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func TestParseEvent(t *testing.T) {
	blocks, err := Parse(calendar(
		"BEGIN:VEVENT",
		"UID:e1",
		"DTSTART:20260102T100000Z",
		"DTEND:20260102T110000Z",
		"SUMMARY:Standup",
		"ATTENDEE;PARTSTAT=ACCEPTED:mailto:a@example.com",
		"END:VEVENT",
	))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("blocks = %+v", blocks)
	}
	b := blocks[0]
	if b.Name != "VEVENT" || b.UID != "e1" {
		t.Fatalf("block = %+v", b)
	}
	if b.Start != "20260102T100000Z" || b.End != "20260102T110000Z" {
		t.Fatalf("bounds = %q %q", b.Start, b.End)
	}
	if b.Props["SUMMARY"].Value != "Standup" {
		t.Fatalf("summary = %+v", b.Props["SUMMARY"])
	}
	if b.Props["ATTENDEE"].Params["PARTSTAT"] != "ACCEPTED" {
		t.Fatalf("attendee params = %+v", b.Props["ATTENDEE"].Params)
	}
}

func TestParseTodoDueFallback(t *testing.T) {
	blocks, err := Parse(calendar(
		"BEGIN:VTODO",
		"UID:t1",
		"DTSTART:20260105T090000Z",
		"DUE:20260105T170000Z",
		"SUMMARY:Ship it",
		"END:VTODO",
	))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if blocks[0].End != "20260105T170000Z" {
		t.Fatalf("end = %q", blocks[0].End)
	}
}

func TestParseNoComponents(t *testing.T) {
	if _, err := Parse(calendar()); err == nil {
		t.Fatal("calendar without components did not error")
	}
}

func TestParseTimeForms(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"20260102", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"20260102T100000Z", time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)},
		{"2026-01-02T10:00:00Z", time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := ParseTime(c.in)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", c.in, err)
		}
		if !got.Equal(c.want) {
			t.Fatalf("ParseTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if _, err := ParseTime("not-a-time"); err == nil {
		t.Fatal("garbage parsed")
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		start, end, wStart, wEnd string
		want                     bool
	}{
		{"20260102T100000Z", "20260102T110000Z", "20260101T000000Z", "20260103T000000Z", true},
		// touching the window start does not overlap
		{"20260101T000000Z", "20260101T000000Z", "20260101T000000Z", "20260103T000000Z", false},
		// entirely before
		{"20251230T000000Z", "20251231T000000Z", "20260101T000000Z", "20260103T000000Z", false},
		// entirely after
		{"20260104T000000Z", "20260105T000000Z", "20260101T000000Z", "20260103T000000Z", false},
		// open-ended block start
		{"", "20260102T000000Z", "20260101T000000Z", "20260103T000000Z", true},
		// open-ended window
		{"20260102T100000Z", "20260102T110000Z", "", "", true},
	}
	for i, c := range cases {
		if got := Overlaps(c.start, c.end, c.wStart, c.wEnd); got != c.want {
			t.Fatalf("case %d: Overlaps = %v, want %v", i, got, c.want)
		}
	}
}

func TestMergeIntervals(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 1, 2, h, 0, 0, 0, time.UTC) }
	in := []Interval{
		{S: at(14), E: at(15)},
		{S: at(9), E: at(11)},
		{S: at(10), E: at(12)},
	}
	out := MergeIntervals(in)
	if len(out) != 2 {
		t.Fatalf("merged = %+v", out)
	}
	if !out[0].S.Equal(at(9)) || !out[0].E.Equal(at(12)) {
		t.Fatalf("first = %+v", out[0])
	}
	if !out[1].S.Equal(at(14)) || !out[1].E.Equal(at(15)) {
		t.Fatalf("second = %+v", out[1])
	}
}

func TestBuildFreeBusy(t *testing.T) {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{
		S: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		E: time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC),
	}}
	out := string(BuildFreeBusy(start, end, busy, "-//test//EN"))
	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"PRODID:-//test//EN\r\n",
		"BEGIN:VFREEBUSY\r\n",
		"DTSTART:20260102T000000Z\r\n",
		"DTEND:20260103T000000Z\r\n",
		"FREEBUSY;FBTYPE=BUSY:20260102T100000Z/20260102T110000Z\r\n",
		"END:VFREEBUSY\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("free-busy output missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "END:VCALENDAR\r\n") {
		t.Fatalf("free-busy output not terminated:\n%s", out)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	if _, err := Normalize([]byte("definitely not ical")); err == nil {
		t.Fatal("garbage normalized")
	}
	out, err := Normalize(calendar(
		"BEGIN:VEVENT",
		"UID:e1",
		"DTSTAMP:20260101T000000Z",
		"DTSTART:20260102T100000Z",
		"SUMMARY:ok",
		"END:VEVENT",
	))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !strings.Contains(string(out), "BEGIN:VEVENT") {
		t.Fatalf("normalized output:\n%s", out)
	}
}
