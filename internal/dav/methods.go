package dav

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/xmlscan"
)

func (h *Handlers) handleDelete(ctx context.Context, req *common.Request) *common.Response {
	pa := h.adapter(ctx)
	ok, err := pa.Exists(ctx, req.Parts)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	if !ok {
		return common.TextResponse(http.StatusNotFound, "not found")
	}
	if err := pa.Remove(ctx, req.Parts, true); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	return common.NewResponse(http.StatusNoContent)
}

func (h *Handlers) handleUnbind(ctx context.Context, req *common.Request) *common.Response {
	return h.handleDelete(ctx, req)
}

func (h *Handlers) handleMkcol(ctx context.Context, req *common.Request) *common.Response {
	if len(req.Parts) == 0 {
		return common.TextResponse(http.StatusForbidden, "cannot create root")
	}
	if len(req.Body) > 0 {
		ct := req.Header.Get("Content-Type")
		if ct != "" && !strings.Contains(ct, "xml") {
			return common.TextResponse(http.StatusUnsupportedMediaType, "expected XML body")
		}
	}
	pa := h.adapter(ctx)
	if ok, err := pa.Exists(ctx, req.Parts); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	} else if ok {
		return common.TextResponse(http.StatusMethodNotAllowed, "already exists")
	}
	parent := req.Parts[:len(req.Parts)-1]
	if info, err := pa.Stat(ctx, parent); err != nil || !info.Dir {
		return common.TextResponse(http.StatusConflict, "parent collection missing")
	}
	if err := pa.EnsureDir(ctx, req.Parts); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	if props, _ := xmlscan.ParseSetProps(req.Body); len(props) > 0 {
		if err := h.state.MergeProps(ctx, req.Parts, props); err != nil {
			h.logger.Warn().Err(err).Str("path", req.Path()).Msg("mkcol props not stored")
		}
	}
	return common.NewResponse(http.StatusCreated)
}

func (h *Handlers) handleMoveCopy(ctx context.Context, req *common.Request) *common.Response {
	dest, ok := common.DestinationParts(req.Header.Get("Destination"))
	if !ok {
		return common.TextResponse(http.StatusBadRequest, "missing or invalid Destination")
	}
	return h.relocate(ctx, req, req.Parts, dest, req.Method == "MOVE")
}

// handleBind copies the Source header's resource onto the request path.
func (h *Handlers) handleBind(ctx context.Context, req *common.Request) *common.Response {
	src, ok := common.DestinationParts(req.Header.Get("Source"))
	if !ok {
		return common.TextResponse(http.StatusBadRequest, "missing or invalid Source")
	}
	return h.relocate(ctx, req, src, req.Parts, false)
}

func (h *Handlers) handleRebind(ctx context.Context, req *common.Request) *common.Response {
	dest, ok := common.DestinationParts(req.Header.Get("Destination"))
	if !ok {
		return common.TextResponse(http.StatusBadRequest, "missing or invalid Destination")
	}
	return h.relocate(ctx, req, req.Parts, dest, true)
}

// relocate is the shared MOVE/COPY/BIND/REBIND body: depth gating for
// collections, destination preconditions, then remove-and-transfer.
func (h *Handlers) relocate(ctx context.Context, req *common.Request, src, dest []string, move bool) *common.Response {
	pa := h.adapter(ctx)
	info, err := pa.Stat(ctx, src)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}

	if samePath(src, dest) {
		return common.TextResponse(http.StatusForbidden, "source and destination are the same resource")
	}
	if underPath(src, dest) {
		return common.TextResponse(http.StatusConflict, "destination is inside the source collection")
	}

	if info.Dir {
		ok := h.dialect.EnsureDepthOkForDirOps(req, func() bool {
			return common.ParseDepth(req.Header.Get("Depth"), "") == "infinity"
		})
		if !ok {
			return common.TextResponse(http.StatusBadRequest, "collection operations require Depth: infinity")
		}
	}

	if len(dest) > 0 {
		parent := dest[:len(dest)-1]
		if pinfo, err := pa.Stat(ctx, parent); err != nil || !pinfo.Dir {
			return common.TextResponse(http.StatusConflict, "destination parent missing")
		}
	}
	if !h.requireLockOk(ctx, dest, req.Header) {
		return common.TextResponse(http.StatusLocked, "destination locked")
	}

	destExists, err := pa.Exists(ctx, dest)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	overwrite := !strings.EqualFold(req.Header.Get("Overwrite"), "F")
	if destExists && !overwrite {
		return common.TextResponse(http.StatusPreconditionFailed, "destination exists")
	}
	if destExists {
		if err := pa.Remove(ctx, dest, true); err != nil {
			return common.TextResponse(statusForError(err), err.Error())
		}
	}

	if move {
		err = pa.Move(ctx, src, dest)
	} else {
		err = pa.Copy(ctx, src, dest)
	}
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	if destExists {
		return common.NewResponse(http.StatusNoContent)
	}
	return common.NewResponse(http.StatusCreated)
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// underPath reports whether b is strictly inside the subtree rooted at a.
func underPath(a, b []string) bool {
	return len(b) > len(a) && samePath(a, b[:len(a)])
}

func (h *Handlers) handleLock(ctx context.Context, req *common.Request) *common.Response {
	pa := h.adapter(ctx)
	if ok, err := pa.Exists(ctx, req.Parts); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	} else if !ok {
		return common.TextResponse(http.StatusNotFound, "not found")
	}

	token := ""
	if lock := h.state.GetLock(ctx, req.Parts); lock != nil {
		token = lock.Token
	} else {
		token = "opaquelocktoken:" + uuid.NewString()
		if err := h.state.SetLock(ctx, req.Parts, token); err != nil {
			return common.TextResponse(statusForError(err), err.Error())
		}
	}

	body := `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
		`<D:prop xmlns:D="` + common.NSDAV + `"><D:lockdiscovery><D:activelock>` +
		`<D:locktype><D:write/></D:locktype>` +
		`<D:lockscope><D:exclusive/></D:lockscope>` +
		`<D:locktoken><D:href>` + common.EscapeXML(token) + `</D:href></D:locktoken>` +
		`</D:activelock></D:lockdiscovery></D:prop>`
	resp := common.XMLResponse(http.StatusOK, body)
	resp.Header.Set("Lock-Token", "<"+token+">")
	return resp
}

func (h *Handlers) handleUnlock(ctx context.Context, req *common.Request) *common.Response {
	token := common.TrimBrackets(req.Header.Get("Lock-Token"))
	ok, err := h.state.ReleaseLock(ctx, req.Parts, token)
	if err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	}
	if !ok {
		return common.TextResponse(http.StatusConflict, "lock token mismatch")
	}
	return common.NewResponse(http.StatusNoContent)
}
