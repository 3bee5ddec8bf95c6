package common

import (
	"context"
	"net/http"
	"strings"
)

// Request is the engine's view of one WebDAV call. Parts is the normalized
// segment form of the URL path; the empty slice is the root collection.
type Request struct {
	Method    string
	Parts     []string
	Header    http.Header
	Body      []byte
	UserAgent string
}

func (r *Request) Path() string { return Href(r.Parts, false) }

// Response is built by handlers and hooks and rendered to the wire once the
// pipeline finishes. After-hooks may replace it wholesale.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

func TextResponse(status int, body string) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Body = []byte(body)
	return resp
}

func XMLResponse(status int, body string) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", "application/xml; charset=utf-8")
	resp.Body = []byte(body)
	return resp
}

// BeforeHook may short-circuit a method by returning a non-nil response. A
// nil response and nil error passes control on; errors are logged and
// swallowed so the canonical handler still runs.
type BeforeHook func(ctx context.Context, req *Request) (*Response, error)

// AfterHook folds over the running response; returning nil keeps the current
// one.
type AfterHook func(ctx context.Context, req *Request, resp *Response) (*Response, error)

// IsMultiStatusXML reports whether a response body is the textual multistatus
// form compat transforms are allowed to touch.
func IsMultiStatusXML(resp *Response) bool {
	if resp == nil {
		return false
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "xml") {
		return false
	}
	return strings.Contains(string(resp.Body), "<D:multistatus")
}
