package dav

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/davgate/davgate/internal/dav/common"
)

// handleGet serves GET and HEAD, including stored versions, conditional
// requests, and byte ranges.
func (h *Handlers) handleGet(ctx context.Context, req *common.Request) *common.Response {
	pa := h.adapter(ctx)

	if id := req.Header.Get("X-Version-Id"); id != "" {
		data, mime, err := h.state.ReadVersion(ctx, req.Parts, id)
		if err != nil {
			return common.TextResponse(statusForError(err), err.Error())
		}
		resp := common.NewResponse(http.StatusOK)
		if mime == "" {
			mime = "application/octet-stream"
		}
		resp.Header.Set("Content-Type", mime)
		resp.Header.Set("X-Version-Id", id)
		if req.Method != "HEAD" {
			resp.Body = data
		}
		resp.Header.Set("Content-Length", strconv.Itoa(len(data)))
		return resp
	}

	info, err := pa.Stat(ctx, req.Parts)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}

	if info.Dir {
		return h.dirIndex(ctx, req)
	}

	etag := weakETag(info)
	if inm := req.Header.Get("If-None-Match"); inm != "" {
		for _, tag := range strings.Split(inm, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || tag == etag || common.TrimQuotes(tag) == common.TrimQuotes(etag) {
				resp := common.NewResponse(http.StatusNotModified)
				resp.Header.Set("ETag", etag)
				return resp
			}
		}
	}

	data, err := pa.ReadFile(ctx, req.Parts)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}

	mime := info.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}

	if rh := req.Header.Get("Range"); rh != "" && req.Method == "GET" {
		if resp, ok := h.rangeResponse(rh, data, mime, etag); ok {
			return resp
		}
	}

	resp := common.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", mime)
	resp.Header.Set("ETag", etag)
	resp.Header.Set("Accept-Ranges", "bytes")
	resp.Header.Set("Content-Length", strconv.Itoa(len(data)))
	if req.Method != "HEAD" {
		resp.Body = data
	}
	return resp
}

type byteRange struct {
	start, end int64
}

// parseRanges handles bytes=a-b, bytes=a-, bytes=-n and comma lists.
// Malformed specs report ok=false so the caller falls back to a plain 200;
// syntactically valid but unsatisfiable ranges are skipped, so an empty
// result with ok=true means 416.
func parseRanges(spec string, size int64) (ranges []byteRange, ok bool) {
	spec = strings.TrimSpace(spec)
	if !strings.HasPrefix(spec, "bytes=") {
		return nil, false
	}
	for _, part := range strings.Split(spec[len("bytes="):], ",") {
		part = strings.TrimSpace(part)
		i := strings.Index(part, "-")
		if i < 0 {
			return nil, false
		}
		first, last := strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		var r byteRange
		switch {
		case first == "" && last == "":
			return nil, false
		case first == "":
			n, err := strconv.ParseInt(last, 10, 64)
			if err != nil {
				return nil, false
			}
			if n <= 0 {
				continue
			}
			if n > size {
				n = size
			}
			r = byteRange{start: size - n, end: size - 1}
		default:
			start, err := strconv.ParseInt(first, 10, 64)
			if err != nil || start < 0 {
				return nil, false
			}
			end := size - 1
			if last != "" {
				end, err = strconv.ParseInt(last, 10, 64)
				if err != nil {
					return nil, false
				}
				if start > end {
					return nil, false
				}
			}
			if end >= size {
				end = size - 1
			}
			if start >= size {
				continue
			}
			r = byteRange{start: start, end: end}
		}
		ranges = append(ranges, r)
	}
	return ranges, true
}

func (h *Handlers) rangeResponse(spec string, data []byte, mime, etag string) (*common.Response, bool) {
	size := int64(len(data))
	ranges, ok := parseRanges(spec, size)
	if !ok {
		return nil, false
	}
	if len(ranges) == 0 {
		resp := common.NewResponse(http.StatusRequestedRangeNotSatisfiable)
		resp.Header.Set("Content-Range", "bytes */"+strconv.FormatInt(size, 10))
		return resp, true
	}

	if len(ranges) == 1 {
		r := ranges[0]
		resp := common.NewResponse(http.StatusPartialContent)
		resp.Header.Set("Content-Type", mime)
		resp.Header.Set("ETag", etag)
		resp.Header.Set("Content-Range",
			"bytes "+strconv.FormatInt(r.start, 10)+"-"+strconv.FormatInt(r.end, 10)+"/"+strconv.FormatInt(size, 10))
		resp.Body = data[r.start : r.end+1]
		resp.Header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
		return resp, true
	}

	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
	var sb strings.Builder
	for _, r := range ranges {
		sb.WriteString("--" + boundary + "\r\n")
		sb.WriteString("Content-Type: " + mime + "\r\n")
		sb.WriteString("Content-Range: bytes " +
			strconv.FormatInt(r.start, 10) + "-" + strconv.FormatInt(r.end, 10) +
			"/" + strconv.FormatInt(size, 10) + "\r\n\r\n")
		sb.Write(data[r.start : r.end+1])
		sb.WriteString("\r\n")
	}
	sb.WriteString("--" + boundary + "--\r\n")

	resp := common.NewResponse(http.StatusPartialContent)
	resp.Header.Set("Content-Type", "multipart/byteranges; boundary="+boundary)
	resp.Header.Set("ETag", etag)
	resp.Body = []byte(sb.String())
	resp.Header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	return resp, true
}

// dirIndex renders a minimal HTML listing for browsers hitting a collection.
func (h *Handlers) dirIndex(ctx context.Context, req *common.Request) *common.Response {
	pa := h.adapter(ctx)
	names, err := pa.ReadDir(ctx, req.Parts)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	names = h.state.ApplyOrder(ctx, req.Parts, h.ignore.FilterNames(names))

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><title>Index of ")
	sb.WriteString(common.EscapeXML(req.Path()))
	sb.WriteString("</title></head><body><h1>Index of ")
	sb.WriteString(common.EscapeXML(req.Path()))
	sb.WriteString("</h1><ul>\n")
	for _, name := range names {
		child := common.Child(req.Parts, name)
		dir := false
		if info, err := pa.Stat(ctx, child); err == nil {
			dir = info.Dir
		}
		href := common.Href(child, dir)
		sb.WriteString(`<li><a href="` + common.EscapeXML(href) + `">` + common.EscapeXML(name))
		if dir {
			sb.WriteString("/")
		}
		sb.WriteString("</a></li>\n")
	}
	sb.WriteString("</ul></body></html>\n")

	resp := common.NewResponse(http.StatusOK)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	if req.Method != "HEAD" {
		resp.Body = []byte(sb.String())
	}
	return resp
}
