// Package compat holds client-compatibility after-hooks. They rewrite the
// rendered response text, so they compose with any handler or hook that
// produced it.
package compat

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/hooks"
	"github.com/davgate/davgate/internal/dav/xmlscan"
)

// rePropstat matches one propstat block. The status group excludes "<" so
// the lazy prop group cannot run past its own block's closing tags.
var (
	rePropstat = regexp.MustCompile(`(?s)<D:propstat><D:prop>(.*?)</D:prop><D:status>([^<]*)</D:status></D:propstat>`)
	reLockProp = regexp.MustCompile(`<((?:[\w.-]+:)?(?:supportedlock|lockdiscovery))(?:\s[^>]*)?/>`)
)

func isNotFoundStatus(status string) bool {
	return strings.Contains(status, "404 Not Found")
}

// Register attaches every compat transform to the registry.
func Register(reg *hooks.Registry) {
	reg.OnAfter("PROPFIND", propfindLockProps)
	reg.OnAfter("PROPFIND", propfindBrief)
	reg.OnAfter("GET", getPreferMinimal)
}

func wantsMinimal(hdr http.Header) (brief, prefer bool) {
	brief = strings.EqualFold(strings.TrimSpace(hdr.Get("Brief")), "t")
	prefer = strings.Contains(strings.ToLower(hdr.Get("Prefer")), "return=minimal")
	return
}

// propfindBrief strips 404 propstat blocks when the client asked for a
// minimal answer.
func propfindBrief(_ context.Context, req *common.Request, resp *common.Response) (*common.Response, error) {
	brief, prefer := wantsMinimal(req.Header)
	if !brief && !prefer {
		return nil, nil
	}
	if !common.IsMultiStatusXML(resp) {
		return nil, nil
	}
	body := rePropstat.ReplaceAllStringFunc(string(resp.Body), func(block string) string {
		m := rePropstat.FindStringSubmatch(block)
		if !isNotFoundStatus(m[2]) {
			return block
		}
		return ""
	})
	out := common.XMLResponse(resp.Status, body)
	for k, vs := range resp.Header {
		if k == "Content-Type" || k == "Content-Length" {
			continue
		}
		out.Header[k] = vs
	}
	if prefer {
		out.Header.Set("Preference-Applied", "return=minimal")
	}
	return out, nil
}

// propfindLockProps synthesizes minimal supportedlock/lockdiscovery bodies
// when the client requested them and the engine answered 404.
func propfindLockProps(_ context.Context, req *common.Request, resp *common.Response) (*common.Response, error) {
	if !xmlscan.PropRequested(req.Body, "supportedlock") && !xmlscan.PropRequested(req.Body, "lockdiscovery") {
		return nil, nil
	}
	if !common.IsMultiStatusXML(resp) {
		return nil, nil
	}

	body := rePropstat.ReplaceAllStringFunc(string(resp.Body), func(block string) string {
		m := rePropstat.FindStringSubmatch(block)
		if !isNotFoundStatus(m[2]) {
			return block
		}
		inner := m[1]
		tags := reLockProp.FindAllStringSubmatch(inner, -1)
		if len(tags) == 0 {
			return block
		}
		remaining := reLockProp.ReplaceAllString(inner, "")
		var synthesized string
		for _, t := range tags {
			switch {
			case strings.HasSuffix(t[1], "supportedlock"):
				synthesized += "<D:supportedlock><D:lockentry>" +
					"<D:lockscope><D:exclusive/></D:lockscope>" +
					"<D:locktype><D:write/></D:locktype>" +
					"</D:lockentry></D:supportedlock>"
			case strings.HasSuffix(t[1], "lockdiscovery"):
				synthesized += "<D:lockdiscovery/>"
			}
		}
		out := "<D:propstat><D:prop>" + synthesized + "</D:prop><D:status>HTTP/1.1 200 OK</D:status></D:propstat>"
		if strings.TrimSpace(remaining) != "" {
			out += "<D:propstat><D:prop>" + remaining + "</D:prop><D:status>HTTP/1.1 404 Not Found</D:status></D:propstat>"
		}
		return out
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

// getPreferMinimal converts a 200 GET into an empty 204 when asked.
func getPreferMinimal(_ context.Context, req *common.Request, resp *common.Response) (*common.Response, error) {
	_, prefer := wantsMinimal(req.Header)
	if !prefer || resp.Status != http.StatusOK {
		return nil, nil
	}
	out := common.NewResponse(http.StatusNoContent)
	for k, vs := range resp.Header {
		if k == "Content-Length" {
			continue
		}
		out.Header[k] = vs
	}
	out.Header.Set("Preference-Applied", "return=minimal")
	return out, nil
}
