package dav

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/persist"
)

var (
	reBracketed = regexp.MustCompile(`<([^<>]+)>`)
	reETagList  = regexp.MustCompile(`\[([^\[\]]+)\]`)
)

// tokenCandidates collects lock tokens a client may present: the Lock-Token
// header and the first bracketed value of If.
func tokenCandidates(hdr http.Header) []string {
	var out []string
	if lt := common.TrimBrackets(hdr.Get("Lock-Token")); lt != "" {
		out = append(out, lt)
	}
	if m := reBracketed.FindStringSubmatch(hdr.Get("If")); m != nil {
		out = append(out, m[1])
	}
	return out
}

// requireLockOk passes when the path is unlocked or a presented token
// matches the current lock.
func (h *Handlers) requireLockOk(ctx context.Context, parts []string, hdr http.Header) bool {
	lock := h.state.GetLock(ctx, parts)
	if lock == nil {
		return true
	}
	for _, tok := range tokenCandidates(hdr) {
		if tok == lock.Token {
			return true
		}
	}
	return false
}

func weakETag(info persist.Info) string {
	size := ""
	if !info.Dir {
		size = strconv.FormatInt(info.Size, 10)
	}
	return `W/"` + size + "-" + common.FormatTime(info.ModTime) + `"`
}

func (h *Handlers) currentETag(ctx context.Context, parts []string) string {
	info, err := h.adapter(ctx).Stat(ctx, parts)
	if err != nil {
		return ""
	}
	return weakETag(info)
}

// etagMatchesIfHeader checks [etag] conditions in If and the plain If-Match
// header. No condition present means pass.
func (h *Handlers) etagMatchesIfHeader(ctx context.Context, parts []string, hdr http.Header) bool {
	matches := reETagList.FindAllStringSubmatch(hdr.Get("If"), -1)
	if len(matches) > 0 {
		cur := h.currentETag(ctx, parts)
		ok := false
		for _, m := range matches {
			tag := m[1]
			if tag == cur || common.TrimQuotes(tag) == common.TrimQuotes(cur) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return h.ifMatchOk(ctx, parts, hdr.Get("If-Match"))
}

// ifMatchOk evaluates If-Match: "*" requires the resource to exist; a tag
// list requires one tag to equal the current etag.
func (h *Handlers) ifMatchOk(ctx context.Context, parts []string, im string) bool {
	im = strings.TrimSpace(im)
	if im == "" {
		return true
	}
	cur := h.currentETag(ctx, parts)
	if im == "*" {
		return cur != ""
	}
	for _, tag := range strings.Split(im, ",") {
		tag = strings.TrimSpace(tag)
		if tag == cur || common.TrimQuotes(tag) == common.TrimQuotes(cur) {
			return true
		}
	}
	return false
}
