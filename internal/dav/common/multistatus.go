package common

import (
	"net/http"
	"strings"
)

const (
	StatusOK       = "HTTP/1.1 200 OK"
	StatusNotFound = "HTTP/1.1 404 Not Found"
)

// MultiStatus assembles a 207 response as text. All namespace prefixes the
// engine and its hooks emit are declared on the root.
type MultiStatus struct {
	sb strings.Builder
}

func NewMultiStatus() *MultiStatus {
	w := &MultiStatus{}
	w.sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	w.sb.WriteString(`<D:multistatus xmlns:D="` + NSDAV +
		`" xmlns:Z="` + NSExt +
		`" xmlns:C="` + NSCalDAV +
		`" xmlns:CS="` + NSCalSrv + `">`)
	return w
}

func (w *MultiStatus) StartResponse(href string) {
	w.sb.WriteString("<D:response><D:href>")
	w.sb.WriteString(EscapeXML(href))
	w.sb.WriteString("</D:href>")
}

// Propstat writes one propstat block; propXML is the already-rendered
// property elements.
func (w *MultiStatus) Propstat(status, propXML string) {
	w.sb.WriteString("<D:propstat><D:prop>")
	w.sb.WriteString(propXML)
	w.sb.WriteString("</D:prop><D:status>")
	w.sb.WriteString(status)
	w.sb.WriteString("</D:status></D:propstat>")
}

func (w *MultiStatus) EndResponse() {
	w.sb.WriteString("</D:response>")
}

// HrefResponse writes a response carrying only an href and status, as SEARCH
// results do.
func (w *MultiStatus) HrefResponse(href, status string) {
	w.StartResponse(href)
	w.sb.WriteString("<D:status>")
	w.sb.WriteString(status)
	w.sb.WriteString("</D:status>")
	w.EndResponse()
}

func (w *MultiStatus) Close() *Response {
	w.sb.WriteString("</D:multistatus>")
	return XMLResponse(http.StatusMultiStatus, w.sb.String())
}

// PropElement renders one property, self-closing when empty.
func PropElement(tag, inner string) string {
	if inner == "" {
		return "<" + tag + "/>"
	}
	return "<" + tag + ">" + inner + "</" + tag + ">"
}
