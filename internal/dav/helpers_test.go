package dav_test

import (
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/davgate/davgate/internal/dav"
	"github.com/davgate/davgate/internal/dav/compat"
	"github.com/davgate/davgate/internal/persist/memory"
)

// Minimal Multi-Status parser sufficient for validations (RFC 4918 §13).
type multiStatus struct {
	XMLName   xml.Name     `xml:"multistatus"`
	Responses []msResponse `xml:"response"`
}
type msResponse struct {
	Href     string     `xml:"href"`
	PropStat []propStat `xml:"propstat"`
	Status   string     `xml:"status"`
}
type propStat struct {
	Status  string `xml:"status"`
	PropRaw anyXML `xml:"prop"`
	PropXML string `xml:"-"`
}
type anyXML struct {
	Inner string `xml:",innerxml"`
}

func parseMultiStatus(t *testing.T, b []byte) *multiStatus {
	t.Helper()
	var ms multiStatus
	if err := xml.Unmarshal(b, &ms); err != nil {
		t.Fatalf("parse multistatus: %v\n%s", err, b)
	}
	for i := range ms.Responses {
		for j := range ms.Responses[i].PropStat {
			ms.Responses[i].PropStat[j].PropXML = ms.Responses[i].PropStat[j].PropRaw.Inner
		}
	}
	return &ms
}

func statusIs(s string, code string) bool {
	return strings.Contains(s, " "+code+" ")
}

func newTestServer(t *testing.T, opts dav.Options) *httptest.Server {
	t.Helper()
	h := dav.New(memory.New(), zerolog.Nop(), opts)
	compat.Register(h.Hooks())
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
