package dav

import (
	"context"
	"net/http"
	"strconv"

	"github.com/davgate/davgate/internal/dav/common"
	"github.com/davgate/davgate/internal/dav/xmlscan"
)

// handleReport serves the version-tree report. CalDAV reports run as
// before-hooks and never reach this handler.
func (h *Handlers) handleReport(ctx context.Context, req *common.Request) *common.Response {
	switch xmlscan.DetectReport(req.Body) {
	case xmlscan.ReportVersionTree:
		return h.versionTree(ctx, req)
	}
	return common.TextResponse(http.StatusBadRequest, "unsupported report")
}

func (h *Handlers) versionTree(ctx context.Context, req *common.Request) *common.Response {
	pa := h.adapter(ctx)
	if ok, err := pa.Exists(ctx, req.Parts); err != nil {
		return common.TextResponse(statusForError(err), err.Error())
	} else if !ok {
		return common.TextResponse(http.StatusNotFound, "not found")
	}

	w := common.NewMultiStatus()
	href := common.Href(req.Parts, false)
	for _, rec := range h.state.ListVersions(ctx, req.Parts) {
		w.StartResponse(href)
		props := common.PropElement("Z:version-id", common.EscapeXML(rec.ID)) +
			common.PropElement("Z:size", strconv.FormatInt(rec.Size, 10)) +
			common.PropElement("Z:createdAt", common.EscapeXML(rec.CreatedAt))
		w.Propstat(common.StatusOK, props)
		w.EndResponse()
	}
	return w.Close()
}
