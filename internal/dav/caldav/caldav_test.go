package caldav_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/dav"
	"github.com/davgate/davgate/internal/dav/caldav"
	"github.com/davgate/davgate/internal/persist/memory"
)

func newCalServer(t *testing.T, strict bool) *httptest.Server {
	t.Helper()
	pa := memory.New()
	h := dav.New(pa, zerolog.Nop(), dav.Options{})
	svc := caldav.New(pa, h.State(), h.Ignore(), zerolog.Nop())
	svc.Strict = strict
	svc.Register(h)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, hdrs map[string]string) (*http.Response, string) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(b)
}

func mustStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: got %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func ics(lines ...string) string {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	return strings.Join(all, "\r\n") + "\r\n"
}

func event(uid, start, end, summary string) []string {
	return []string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:20260101T000000Z",
		"DTSTART:" + start,
		"DTEND:" + end,
		"SUMMARY:" + summary,
		"END:VEVENT",
	}
}

func setupCalendar(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp, _ := do(t, srv, "MKCALENDAR", "/cal", "", nil)
	mustStatus(t, resp, http.StatusCreated)

	resp, _ = do(t, srv, "PUT", "/cal/morning.ics",
		ics(event("e1", "20260102T100000Z", "20260102T110000Z", "Standup")...),
		map[string]string{"Content-Type": "text/calendar"})
	mustStatus(t, resp, http.StatusCreated)

	resp, _ = do(t, srv, "PUT", "/cal/later.ics",
		ics(event("e2", "20260210T100000Z", "20260210T110000Z", "Review")...),
		map[string]string{"Content-Type": "text/calendar"})
	mustStatus(t, resp, http.StatusCreated)
}

func TestMkcalendarDefaults(t *testing.T) {
	srv := newCalServer(t, false)
	resp, _ := do(t, srv, "MKCALENDAR", "/cal", "", nil)
	mustStatus(t, resp, http.StatusCreated)

	reqBody := `<?xml version="1.0"?><D:propfind xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav"><D:prop><D:resourcetype/><C:supported-calendar-component-set/><C:supported-calendar-data/><C:min-date-time/><C:max-date-time/><C:calendar-timezone/></D:prop></D:propfind>`
	resp, body := do(t, srv, "PROPFIND", "/cal", reqBody, map[string]string{"Depth": "0"})
	mustStatus(t, resp, http.StatusMultiStatus)
	if !strings.Contains(body, "<C:calendar/>") {
		t.Fatalf("resourcetype missing calendar: %s", body)
	}
	if !strings.Contains(body, `<C:comp name="VEVENT"/>`) || !strings.Contains(body, `<C:comp name="VTODO"/>`) {
		t.Fatalf("supported-calendar-component-set missing: %s", body)
	}
	if !strings.Contains(body, `<C:calendar-data content-type="text/calendar" version="2.0"/>`) {
		t.Fatalf("supported-calendar-data missing: %s", body)
	}
	if !strings.Contains(body, ">19700101T000000Z<") || !strings.Contains(body, ">20500101T000000Z<") {
		t.Fatalf("date-time bounds missing: %s", body)
	}
	if !strings.Contains(body, ">UTC<") {
		t.Fatalf("calendar-timezone missing: %s", body)
	}

	// creating it again is refused
	resp, _ = do(t, srv, "MKCALENDAR", "/cal", "", nil)
	mustStatus(t, resp, http.StatusMethodNotAllowed)
}

func TestOptionsAdvertisesCalendarAccess(t *testing.T) {
	srv := newCalServer(t, false)
	resp, _ := do(t, srv, "OPTIONS", "/", "", nil)
	mustStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Header.Get("DAV"), "calendar-access") {
		t.Fatalf("DAV header = %q", resp.Header.Get("DAV"))
	}
	if !strings.Contains(resp.Header.Get("Allow"), "MKCALENDAR") {
		t.Fatalf("Allow header = %q", resp.Header.Get("Allow"))
	}
}

func TestPutRequiresICSUnderCalendar(t *testing.T) {
	srv := newCalServer(t, false)
	do(t, srv, "MKCALENDAR", "/cal", "", nil)

	resp, _ := do(t, srv, "PUT", "/cal/notes.txt", "not a calendar", nil)
	mustStatus(t, resp, http.StatusUnsupportedMediaType)

	// outside calendars anything goes
	resp, _ = do(t, srv, "PUT", "/notes.txt", "plain", nil)
	mustStatus(t, resp, http.StatusCreated)
}

func TestCalendarQueryTimeRange(t *testing.T) {
	srv := newCalServer(t, false)
	setupCalendar(t, srv)

	reqBody := `<?xml version="1.0"?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop><C:calendar-data/></D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:time-range start="20260101T000000Z" end="20260103T000000Z"/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`
	resp, body := do(t, srv, "REPORT", "/cal", reqBody, map[string]string{"Depth": "1"})
	mustStatus(t, resp, http.StatusMultiStatus)
	if !strings.Contains(body, "morning.ics") {
		t.Fatalf("in-range event missing: %s", body)
	}
	if strings.Contains(body, "later.ics") {
		t.Fatalf("out-of-range event included: %s", body)
	}
	if !strings.Contains(body, "calendar-data") || !strings.Contains(body, "Standup") {
		t.Fatalf("calendar-data not inlined: %s", body)
	}
}

func TestCalendarQueryTextMatch(t *testing.T) {
	srv := newCalServer(t, false)
	setupCalendar(t, srv)

	query := func(extra string) string {
		return `<?xml version="1.0"?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop><C:calendar-data/></D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">` + extra + `</C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`
	}

	// default collation is case-insensitive
	_, body := do(t, srv, "REPORT", "/cal", query(`<C:prop-filter name="SUMMARY"><C:text-match>standup</C:text-match></C:prop-filter>`), nil)
	if !strings.Contains(body, "morning.ics") || strings.Contains(body, "later.ics") {
		t.Fatalf("casemap text-match: %s", body)
	}

	// i;octet is byte-exact
	_, body = do(t, srv, "REPORT", "/cal", query(`<C:prop-filter name="SUMMARY"><C:text-match collation="i;octet">standup</C:text-match></C:prop-filter>`), nil)
	if strings.Contains(body, "morning.ics") {
		t.Fatalf("octet collation matched different case: %s", body)
	}

	// negate inverts
	_, body = do(t, srv, "REPORT", "/cal", query(`<C:prop-filter name="SUMMARY"><C:text-match negate-condition="yes">standup</C:text-match></C:prop-filter>`), nil)
	if strings.Contains(body, "morning.ics") || !strings.Contains(body, "later.ics") {
		t.Fatalf("negated text-match: %s", body)
	}

	// is-not-defined on an absent property matches everything
	_, body = do(t, srv, "REPORT", "/cal", query(`<C:prop-filter name="LOCATION"><C:is-not-defined/></C:prop-filter>`), nil)
	if !strings.Contains(body, "morning.ics") || !strings.Contains(body, "later.ics") {
		t.Fatalf("is-not-defined: %s", body)
	}
}

func TestCalendarQueryStrictFilter(t *testing.T) {
	srv := newCalServer(t, true)
	setupCalendar(t, srv)

	// missing the VCALENDAR wrapper is rejected in strict mode
	reqBody := `<?xml version="1.0"?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <C:filter><C:comp-filter name="VEVENT"/></C:filter>
</C:calendar-query>`
	resp, _ := do(t, srv, "REPORT", "/cal", reqBody, nil)
	mustStatus(t, resp, http.StatusBadRequest)
}

func TestCalendarMultiget(t *testing.T) {
	srv := newCalServer(t, false)
	setupCalendar(t, srv)

	reqBody := `<?xml version="1.0"?>
<C:calendar-multiget xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop><D:getetag/><C:calendar-data/></D:prop>
  <D:href>/cal/morning.ics</D:href>
  <D:href>/cal/missing.ics</D:href>
</C:calendar-multiget>`
	resp, body := do(t, srv, "REPORT", "/cal", reqBody, nil)
	mustStatus(t, resp, http.StatusMultiStatus)
	if !strings.Contains(body, "morning.ics") || !strings.Contains(body, "Standup") {
		t.Fatalf("multiget data: %s", body)
	}
	if !strings.Contains(body, "404 Not Found") {
		t.Fatalf("missing href not reported: %s", body)
	}
}

func TestFreeBusyQuery(t *testing.T) {
	srv := newCalServer(t, false)
	setupCalendar(t, srv)

	reqBody := `<?xml version="1.0"?>
<C:free-busy-query xmlns:C="urn:ietf:params:xml:ns:caldav">
  <C:time-range start="20260101T000000Z" end="20260103T000000Z"/>
</C:free-busy-query>`
	resp, body := do(t, srv, "REPORT", "/cal", reqBody, nil)
	mustStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/calendar") {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(body, "VFREEBUSY") {
		t.Fatalf("no VFREEBUSY component: %s", body)
	}
	if !strings.Contains(body, "20260102T100000Z/20260102T110000Z") {
		t.Fatalf("busy interval missing: %s", body)
	}
	if strings.Contains(body, "20260210T100000Z") {
		t.Fatalf("out-of-range event leaked: %s", body)
	}
}

func TestGetctagInjection(t *testing.T) {
	srv := newCalServer(t, false)
	setupCalendar(t, srv)

	reqBody := `<?xml version="1.0"?><D:propfind xmlns:D="DAV:" xmlns:CS="http://calendarserver.org/ns/"><D:prop><CS:getctag/></D:prop></D:propfind>`
	resp, body := do(t, srv, "PROPFIND", "/cal", reqBody, map[string]string{"Depth": "0"})
	mustStatus(t, resp, http.StatusMultiStatus)
	if !strings.Contains(body, "<CS:getctag>") {
		t.Fatalf("getctag not synthesized: %s", body)
	}
}

func TestCalendarHomeSetOnRoot(t *testing.T) {
	srv := newCalServer(t, false)

	reqBody := `<?xml version="1.0"?><D:propfind xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav"><D:prop><C:calendar-home-set/></D:prop></D:propfind>`
	resp, body := do(t, srv, "PROPFIND", "/", reqBody, map[string]string{"Depth": "0"})
	mustStatus(t, resp, http.StatusMultiStatus)
	if !strings.Contains(body, "calendar-home-set") || !strings.Contains(body, "<D:href>/</D:href>") {
		t.Fatalf("calendar-home-set not injected: %s", body)
	}
}
