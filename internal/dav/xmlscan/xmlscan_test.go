package xmlscan

import (
	"reflect"
	"testing"
)

func TestParsePropfindModes(t *testing.T) {
	mode, _ := ParsePropfind(nil)
	if mode != ModeAllprop {
		t.Fatalf("empty body mode = %v", mode)
	}

	mode, _ = ParsePropfind([]byte(`<D:propfind xmlns:D="DAV:"><D:propname/></D:propfind>`))
	if mode != ModePropname {
		t.Fatalf("propname mode = %v", mode)
	}

	mode, _ = ParsePropfind([]byte(`<D:propfind xmlns:D="DAV:"><D:allprop/></D:propfind>`))
	if mode != ModeAllprop {
		t.Fatalf("allprop mode = %v", mode)
	}

	mode, keys := ParsePropfind([]byte(`<D:propfind xmlns:D="DAV:"><D:prop><D:getetag/><Z:color/></D:prop></D:propfind>`))
	if mode != ModeProp {
		t.Fatalf("prop mode = %v", mode)
	}
	if !reflect.DeepEqual(keys, []string{"D:getetag", "Z:color"}) {
		t.Fatalf("keys = %v", keys)
	}
}

func TestParseSetProps(t *testing.T) {
	body := []byte(`<D:propertyupdate xmlns:D="DAV:" xmlns:Z="urn:x">
		<D:set><D:prop><Z:color>blue &amp; green</Z:color><Z:flag/></D:prop></D:set>
	</D:propertyupdate>`)
	sets, order := ParseSetProps(body)
	if sets["Z:color"] != "blue & green" {
		t.Fatalf("color = %q", sets["Z:color"])
	}
	if v, ok := sets["Z:flag"]; !ok || v != "" {
		t.Fatalf("flag = %q ok=%v", v, ok)
	}
	if !reflect.DeepEqual(order, []string{"Z:color", "Z:flag"}) {
		t.Fatalf("order = %v", order)
	}
}

func TestParseSetPropsMismatchedTags(t *testing.T) {
	// a close tag that does not match its open tag is skipped
	body := []byte(`<set><prop><Z:a>1</Z:b></prop></set>`)
	sets, _ := ParseSetProps(body)
	if len(sets) != 0 {
		t.Fatalf("sets = %v", sets)
	}
}

func TestParseRemoveProps(t *testing.T) {
	body := []byte(`<D:propertyupdate xmlns:D="DAV:"><D:remove><D:prop><Z:a/><Z:b/></D:prop></D:remove></D:propertyupdate>`)
	keys := ParseRemoveProps(body)
	if !reflect.DeepEqual(keys, []string{"Z:a", "Z:b"}) {
		t.Fatalf("keys = %v", keys)
	}
}

func TestParseOrder(t *testing.T) {
	segs := ParseOrder([]byte(`<orderpatch><segment>b</segment><segment>a</segment></orderpatch>`))
	if !reflect.DeepEqual(segs, []string{"b", "a"}) {
		t.Fatalf("segments = %v", segs)
	}
	names := ParseOrder([]byte(`<names><name>x</name></names>`))
	if !reflect.DeepEqual(names, []string{"x"}) {
		t.Fatalf("names = %v", names)
	}
}

func TestDetectReport(t *testing.T) {
	cases := []struct {
		body string
		want ReportKind
	}{
		{`<D:version-tree xmlns:D="DAV:"/>`, ReportVersionTree},
		{`<C:calendar-query xmlns:C="urn:ietf"/>`, ReportCalendarQuery},
		{`<C:calendar-multiget xmlns:C="urn:ietf"/>`, ReportCalendarMultiget},
		{`<C:free-busy-query xmlns:C="urn:ietf"/>`, ReportFreeBusyQuery},
		{`<D:something-else xmlns:D="DAV:"/>`, ReportUnknown},
	}
	for _, c := range cases {
		if got := DetectReport([]byte(c.body)); got != c.want {
			t.Fatalf("DetectReport(%s) = %v, want %v", c.body, got, c.want)
		}
	}
}

func TestParseCalendarFilterNesting(t *testing.T) {
	body := []byte(`<C:filter>
		<C:comp-filter name="VCALENDAR">
			<C:comp-filter name="VEVENT">
				<C:time-range start="20260101T000000Z" end="20260201T000000Z"/>
				<C:prop-filter name="SUMMARY">
					<C:text-match collation="i;octet" negate-condition="yes">boring</C:text-match>
				</C:prop-filter>
			</C:comp-filter>
		</C:comp-filter>
	</C:filter>`)
	cf := ParseCalendarFilter(body)
	if cf == nil || cf.Name != "VCALENDAR" || cf.Inner == nil {
		t.Fatalf("filter = %+v", cf)
	}
	inner := cf.Inner
	if inner.Name != "VEVENT" {
		t.Fatalf("inner = %+v", inner)
	}
	if inner.TimeRange == nil || inner.TimeRange.Start != "20260101T000000Z" {
		t.Fatalf("time range = %+v", inner.TimeRange)
	}
	if len(inner.Props) != 1 || inner.Props[0].Name != "SUMMARY" {
		t.Fatalf("props = %+v", inner.Props)
	}
	tm := inner.Props[0].Text
	if tm == nil || tm.Value != "boring" || tm.Collation != "i;octet" || !tm.Negate {
		t.Fatalf("text match = %+v", tm)
	}
}

func TestParseCalendarFilterParamFilter(t *testing.T) {
	body := []byte(`<C:comp-filter name="VEVENT">
		<C:prop-filter name="ATTENDEE">
			<C:param-filter name="PARTSTAT"><C:text-match>ACCEPTED</C:text-match></C:param-filter>
			<C:param-filter name="RSVP"><C:is-not-defined/></C:param-filter>
		</C:prop-filter>
	</C:comp-filter>`)
	cf := ParseCalendarFilter(body)
	if cf == nil || len(cf.Props) != 1 {
		t.Fatalf("filter = %+v", cf)
	}
	pf := cf.Props[0]
	if pf.Text != nil {
		t.Fatalf("param text leaked to prop level: %+v", pf.Text)
	}
	if len(pf.Params) != 2 {
		t.Fatalf("params = %+v", pf.Params)
	}
	if pf.Params[0].Name != "PARTSTAT" || pf.Params[0].Text == nil || pf.Params[0].Text.Value != "ACCEPTED" {
		t.Fatalf("partstat = %+v", pf.Params[0])
	}
	if pf.Params[1].Name != "RSVP" || !pf.Params[1].IsNotDefined {
		t.Fatalf("rsvp = %+v", pf.Params[1])
	}
}

func TestParseHrefs(t *testing.T) {
	body := []byte(`<C:calendar-multiget><D:href>/cal/a.ics</D:href><D:href>/cal/b.ics</D:href></C:calendar-multiget>`)
	hrefs := ParseHrefs(body)
	if !reflect.DeepEqual(hrefs, []string{"/cal/a.ics", "/cal/b.ics"}) {
		t.Fatalf("hrefs = %v", hrefs)
	}
}

func TestPropRequested(t *testing.T) {
	body := []byte(`<D:propfind xmlns:D="DAV:"><D:prop><D:supportedlock/></D:prop></D:propfind>`)
	if !PropRequested(body, "supportedlock") {
		t.Fatal("supportedlock not detected")
	}
	if PropRequested(body, "lockdiscovery") {
		t.Fatal("lockdiscovery false positive")
	}
	if PropRequested(nil, "supportedlock") {
		t.Fatal("allprop body should not report specific props")
	}
}
